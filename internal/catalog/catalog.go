// Package catalog holds the versioned category rule catalog and the keyword
// dictionaries the intake pipeline scans requests against.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldID identifies a field defined by a CategoryRule.
type FieldID string

// Well-known field identifiers. Catalogs may declare others; those fall back
// to example-based detection.
const (
	FieldQuantity         FieldID = "quantity"
	FieldUnit             FieldID = "unit"
	FieldDeliveryLocation FieldID = "deliveryLocation"
	FieldDeliveryDate     FieldID = "deliveryDate"
	FieldEquipmentType    FieldID = "equipmentType"
	FieldServiceType      FieldID = "serviceType"
	FieldSpecifications   FieldID = "specifications"
	FieldBudget           FieldID = "budget"
	FieldDuration         FieldID = "duration"
)

// Field describes one piece of information a category needs.
type Field struct {
	ID          FieldID  `yaml:"id" json:"id"`
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description" json:"description"`
	Examples    []string `yaml:"examples" json:"examples"`
	Required    bool     `yaml:"required" json:"required"`
}

// CategoryRule is a static catalog entry for one procurement category.
type CategoryRule struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Fields   []Field  `yaml:"fields" json:"fields"`
}

// RequiredFields returns the rule's required fields in declaration order.
func (r *CategoryRule) RequiredFields() []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Field looks up a field definition by ID.
func (r *CategoryRule) Field(id FieldID) (Field, bool) {
	for _, f := range r.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// UrgencyKeywords groups the words that signal an explicit urgency level.
type UrgencyKeywords struct {
	Urgent []string `yaml:"urgent"`
	High   []string `yaml:"high"`
	Low    []string `yaml:"low"`
}

// Dictionaries are the keyword lists used by extraction and the deterministic
// field detector.
type Dictionaries struct {
	Urgency  UrgencyKeywords       `yaml:"urgency"`
	Units    []string              `yaml:"units"`
	Products []string              `yaml:"products"`
	Fields   map[FieldID][]string  `yaml:"fields"`
	Channels map[string]ChannelBias `yaml:"channels"`
}

// ChannelBias is the default urgency for a channel when no explicit keyword
// is present.
type ChannelBias struct {
	DefaultUrgency string `yaml:"default_urgency"`
}

// Catalog is the full, versioned rule catalog.
type Catalog struct {
	Version      string         `yaml:"version"`
	Categories   []CategoryRule `yaml:"categories"`
	Dictionaries Dictionaries   `yaml:"dictionaries"`
}

//go:embed default.yaml
var defaultCatalog []byte

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default: %v", err))
	}
	return c
}

// Load reads a YAML catalog from path. An empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c.normalize()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize folds every keyword so lookups can run against Normalize(text).
func (c *Catalog) normalize() {
	for i := range c.Categories {
		c.Categories[i].Keywords = normalizeAll(c.Categories[i].Keywords)
	}
	d := &c.Dictionaries
	d.Urgency.Urgent = normalizeAll(d.Urgency.Urgent)
	d.Urgency.High = normalizeAll(d.Urgency.High)
	d.Urgency.Low = normalizeAll(d.Urgency.Low)
	d.Units = normalizeAll(d.Units)
	d.Products = normalizeAll(d.Products)
	for id, words := range d.Fields {
		d.Fields[id] = normalizeAll(words)
	}
}

func (c *Catalog) validate() error {
	var errs []string
	if c.Version == "" {
		errs = append(errs, "version is required")
	}
	if len(c.Categories) == 0 {
		errs = append(errs, "at least one category is required")
	}
	seen := make(map[string]bool)
	for i, r := range c.Categories {
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("categories[%d].id is required", i))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Sprintf("categories[%d].id %q is duplicated", i, r.ID))
		}
		seen[r.ID] = true
		fields := make(map[FieldID]bool)
		for j, f := range r.Fields {
			if f.ID == "" {
				errs = append(errs, fmt.Sprintf("categories[%d].fields[%d].id is required", i, j))
				continue
			}
			if fields[f.ID] {
				errs = append(errs, fmt.Sprintf("categories[%d].fields[%d].id %q is duplicated", i, j, f.ID))
			}
			fields[f.ID] = true
			if f.Label == "" {
				errs = append(errs, fmt.Sprintf("categories[%d].fields[%d].label is required", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Rule returns the rule with the given ID, or nil.
func (c *Catalog) Rule(id string) *CategoryRule {
	if id == "" {
		return nil
	}
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i]
		}
	}
	return nil
}

// AllKeywords returns every category keyword in declaration order, without
// duplicates.
func (c *Catalog) AllKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.Categories {
		for _, kw := range r.Keywords {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

// BestMatch returns the rule whose keywords occur most often in normalized
// text and the number of its keywords that matched. Ties go to the first
// declared rule; nil is returned when nothing matched.
func (c *Catalog) BestMatch(text string) (*CategoryRule, int) {
	return c.best(func(kw string) bool { return ContainsWord(text, kw) })
}

// BestMatchKeywords is BestMatch over an already-extracted keyword set.
func (c *Catalog) BestMatchKeywords(keywords []string) (*CategoryRule, int) {
	set := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		set[Normalize(kw)] = true
	}
	return c.best(func(kw string) bool { return set[kw] })
}

func (c *Catalog) best(hit func(string) bool) (*CategoryRule, int) {
	var best *CategoryRule
	bestScore := 0
	for i := range c.Categories {
		score := 0
		for _, kw := range c.Categories[i].Keywords {
			if hit(kw) {
				score++
			}
		}
		if score > bestScore {
			best = &c.Categories[i]
			bestScore = score
		}
	}
	return best, bestScore
}
