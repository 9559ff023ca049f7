// Package extract pulls structured signals out of free-text procurement
// requests: category and urgency hints, quantities with units, line items and
// domain keywords. Extraction is pure and never fails; unknown input yields
// empty collections.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zulandar/rfqdesk/internal/catalog"
)

// Urgency is a coarse urgency level.
type Urgency string

// Urgency levels, most to least pressing.
const (
	UrgencyUrgent Urgency = "urgent"
	UrgencyHigh   Urgency = "high"
	UrgencyNormal Urgency = "normal"
	UrgencyLow    Urgency = "low"
)

// Quantity is a number found in the text, with its unit when one followed it.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Raw   string  `json:"raw"`
}

// Content is the result of extracting one request text.
type Content struct {
	Text          string     `json:"-"`
	Normalized    string     `json:"-"`
	CategoryGuess string     `json:"category_guess,omitempty"`
	Urgency       Urgency    `json:"urgency,omitempty"` // explicit keyword only; empty when none
	Quantities    []Quantity `json:"quantities"`
	LineItems     []string   `json:"line_items"`
	Keywords      []string   `json:"keywords"`
}

// HasUnit reports whether any extracted quantity carried a unit.
func (c Content) HasUnit() bool {
	for _, q := range c.Quantities {
		if q.Unit != "" {
			return true
		}
	}
	return false
}

// Extractor runs extraction against a rule catalog's dictionaries.
type Extractor struct {
	cat   *catalog.Catalog
	units map[string]bool
}

// New creates an Extractor. A nil catalog uses the embedded default.
func New(cat *catalog.Catalog) *Extractor {
	if cat == nil {
		cat = catalog.Default()
	}
	units := make(map[string]bool, len(cat.Dictionaries.Units))
	for _, u := range cat.Dictionaries.Units {
		units[u] = true
	}
	return &Extractor{cat: cat, units: units}
}

// Extract runs every extractor over text.
func (e *Extractor) Extract(text string) Content {
	norm := catalog.Normalize(text)
	c := Content{
		Text:       text,
		Normalized: norm,
		Quantities: e.quantities(text),
		LineItems:  e.lineItems(text, norm),
		Keywords:   e.keywords(norm),
		Urgency:    explicitUrgency(norm, e.cat.Dictionaries.Urgency),
	}
	if r, _ := e.cat.BestMatch(norm); r != nil {
		c.CategoryGuess = r.ID
	}
	return c
}

// explicitUrgency checks the low bucket first because it holds negations
// such as "no es urgente" that would otherwise hit the urgent bucket.
func explicitUrgency(norm string, kw catalog.UrgencyKeywords) Urgency {
	switch {
	case containsAny(norm, kw.Low):
		return UrgencyLow
	case containsAny(norm, kw.Urgent):
		return UrgencyUrgent
	case containsAny(norm, kw.High):
		return UrgencyHigh
	}
	return ""
}

var chatLikeChannels = map[string]bool{
	"chat":     true,
	"whatsapp": true,
	"telegram": true,
	"slack":    true,
	"discord":  true,
	"sms":      true,
}

// ChannelDefaultUrgency returns the urgency assumed for a channel when the
// text carries no explicit signal. Catalog channel biases take precedence;
// otherwise chat-like channels default to high and everything else to normal.
func ChannelDefaultUrgency(channel string, dict catalog.Dictionaries) Urgency {
	ch := strings.ToLower(strings.TrimSpace(channel))
	if bias, ok := dict.Channels[ch]; ok && bias.DefaultUrgency != "" {
		return Urgency(bias.DefaultUrgency)
	}
	if chatLikeChannels[ch] {
		return UrgencyHigh
	}
	return UrgencyNormal
}

// UrgencyGuess returns the explicit urgency if one was found, else the
// channel default.
func (c Content) UrgencyGuess(channel string, dict catalog.Dictionaries) Urgency {
	if c.Urgency != "" {
		return c.Urgency
	}
	return ChannelDefaultUrgency(channel, dict)
}

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

var listMarkerRe = regexp.MustCompile(`^(?:[-*•·▪]|\d{1,3}[.)]|[a-z][)])\s+`)

// quantities finds number+unit pairs. When none carry a known unit it falls
// back to the bare whole numbers in the text. Lines are scanned one by one so
// list numbering is not mistaken for a quantity.
func (e *Extractor) quantities(text string) []Quantity {
	var withUnit, bare []Quantity
	for _, line := range strings.Split(text, "\n") {
		norm := listMarkerRe.ReplaceAllString(catalog.Normalize(line), "")
		u, b := e.lineQuantities(norm)
		withUnit = append(withUnit, u...)
		bare = append(bare, b...)
	}
	if len(withUnit) > 0 {
		return withUnit
	}
	return bare
}

func (e *Extractor) lineQuantities(norm string) (withUnit, bare []Quantity) {
	for _, loc := range numberRe.FindAllStringIndex(norm, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && !numberMayFollow(norm[start-1]) {
			continue
		}
		if end < len(norm) && (norm[end] == '/' || norm[end] == ':' || norm[end] == '%') {
			continue
		}
		raw := norm[start:end]
		value, ok := parseNumber(raw)
		if !ok {
			continue
		}

		// Unit token may be glued to the number ("500kg") or follow a space.
		i := end
		for i < len(norm) && norm[i] == ' ' {
			i++
		}
		j := i
		for j < len(norm) && isTokenByte(norm[j]) {
			j++
		}
		token := norm[i:j]
		if token != "" && e.units[token] {
			withUnit = append(withUnit, Quantity{Value: value, Unit: token, Raw: norm[start:j]})
			continue
		}
		if end < len(norm) && isTokenByte(norm[end]) {
			// Glued to an unknown word, e.g. "4x4" or "3ra"; not a quantity.
			continue
		}
		if value == float64(int64(value)) {
			bare = append(bare, Quantity{Value: value, Raw: raw})
		}
	}
	return withUnit, bare
}

func numberMayFollow(b byte) bool {
	switch {
	case b == ' ' || b == '\n' || b == '\t' || b == '(' || b == ':' || b == '-' || b == '*' || b == ',':
		return true
	case b == '$' || b == '/' || b == '#' || b == '.':
		return false
	}
	return !isTokenByte(b)
}

func isTokenByte(b byte) bool {
	return ('a' <= b && b <= 'z') || ('0' <= b && b <= '9') || b >= 0x80
}

// parseNumber understands "1,000", "1.000", "2.5", "2,5", "1,000.50" and
// "1.000,50". A single separator followed by exactly three digits is read as
// a thousands separator.
func parseNumber(raw string) (float64, bool) {
	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")
	var s string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := "."
		thousands := ","
		if lastComma > lastDot {
			dec, thousands = ",", "."
		}
		s = strings.ReplaceAll(raw, thousands, "")
		s = strings.Replace(s, dec, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		groups := strings.Count(raw, sep)
		if groups > 1 || len(raw)-idx-1 == 3 {
			s = strings.ReplaceAll(raw, sep, "")
		} else {
			s = strings.Replace(raw, sep, ".", 1)
		}
	default:
		s = raw
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var listItemRe = regexp.MustCompile(`^\s*(?:[-*•·▪]|\d{1,3}[.)]|[a-zA-Z][)])\s+(.+)$`)

// lineItems returns bullet or numbered-list lines; without any list it falls
// back to hits against the product vocabulary.
func (e *Extractor) lineItems(text, norm string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			if item := strings.TrimSpace(m[1]); item != "" {
				items = append(items, item)
			}
		}
	}
	if len(items) > 0 {
		return items
	}
	seen := make(map[string]bool)
	for _, p := range e.cat.Dictionaries.Products {
		if !seen[p] && catalog.ContainsWord(norm, p) {
			seen[p] = true
			items = append(items, p)
		}
	}
	return items
}

// keywords returns every category keyword and product term present in the
// text, in catalog order.
func (e *Extractor) keywords(norm string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(words []string) {
		for _, kw := range words {
			if !seen[kw] && catalog.ContainsWord(norm, kw) {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	add(e.cat.AllKeywords())
	add(e.cat.Dictionaries.Products)
	return out
}

func containsAny(norm string, words []string) bool {
	for _, w := range words {
		if catalog.ContainsWord(norm, w) {
			return true
		}
	}
	return false
}
