package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/generate"
)

// Patterns run against normalized text alongside the dictionaries.
var fieldPatterns = map[catalog.FieldID]*regexp.Regexp{
	catalog.FieldDeliveryDate:   regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?\b|\b\d{4}-\d{2}-\d{2}\b`),
	catalog.FieldSpecifications: regexp.MustCompile(`\bm\d{1,2}\b|\b\d+(?:[.,]\d+)?\s*(?:awg|kva|kw|hp|volts?|amps?|mm|psi)\b|\b\d+\s*x\s*\d+\b`),
	catalog.FieldBudget:         regexp.MustCompile(`\$\s*\d`),
	catalog.FieldDuration:       regexp.MustCompile(`\b\d+\s*(?:dias|days|semanas|weeks|meses|months)\b`),
}

// KeywordDetector is the deterministic field detector. Quantity and unit come
// from extracted numbers; other fields from the catalog dictionaries and a few
// patterns. Fields it knows nothing about count as present when one of their
// examples appears in the text.
type KeywordDetector struct {
	dict catalog.Dictionaries
}

var _ FieldDetector = (*KeywordDetector)(nil)

// NewKeywordDetector creates a KeywordDetector over dict.
func NewKeywordDetector(dict catalog.Dictionaries) *KeywordDetector {
	return &KeywordDetector{dict: dict}
}

// Detect never returns an error.
func (d *KeywordDetector) Detect(_ context.Context, rule *catalog.CategoryRule, in Input) ([]catalog.FieldID, error) {
	norm := in.Content.Normalized
	if in.RawText != "" {
		norm = catalog.Normalize(in.RawText)
	}
	var out []catalog.FieldID
	for _, f := range rule.Fields {
		if d.present(f, in, norm) {
			out = append(out, f.ID)
		}
	}
	return out, nil
}

func (d *KeywordDetector) present(f catalog.Field, in Input, norm string) bool {
	switch f.ID {
	case catalog.FieldQuantity:
		return len(in.Content.Quantities) > 0
	case catalog.FieldUnit:
		return in.Content.HasUnit()
	}
	if re, ok := fieldPatterns[f.ID]; ok && re.MatchString(norm) {
		return true
	}
	if words, ok := d.dict.Fields[f.ID]; ok {
		return containsAny(norm, words)
	}
	for _, ex := range f.Examples {
		if catalog.ContainsWord(norm, catalog.Normalize(ex)) {
			return true
		}
	}
	return false
}

func containsAny(norm string, words []string) bool {
	for _, w := range words {
		if catalog.ContainsWord(norm, w) {
			return true
		}
	}
	return false
}

// AIDetector asks a Generator which fields are answered. Its output is
// restricted to the rule's own field IDs.
type AIDetector struct {
	gen     generate.Generator
	timeout time.Duration
}

var _ FieldDetector = (*AIDetector)(nil)

// NewAIDetector creates an AIDetector. A nil Generator makes every call
// return generate.ErrUnavailable.
func NewAIDetector(gen generate.Generator, timeout time.Duration) *AIDetector {
	return &AIDetector{gen: gen, timeout: timeout}
}

// Detect calls the generator and parses a JSON array of field IDs.
func (d *AIDetector) Detect(ctx context.Context, rule *catalog.CategoryRule, in Input) ([]catalog.FieldID, error) {
	candidates := make([]generate.Field, 0, len(rule.Fields))
	for _, f := range rule.Fields {
		candidates = append(candidates, generate.Field{
			ID:          string(f.ID),
			Label:       f.Label,
			Description: f.Description,
			Examples:    f.Examples,
		})
	}
	out, err := generate.Call(ctx, d.gen, d.timeout, generate.Context{
		Purpose:     generate.PurposeFieldDetection,
		Channel:     in.Channel,
		Client:      in.Client,
		Category:    rule.ID,
		RequestText: in.RawText,
		Candidates:  candidates,
		History:     in.History,
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(generate.ExtractJSON(out)), &ids); err != nil {
		return nil, fmt.Errorf("rules: parse detector output: %w", err)
	}
	var found []catalog.FieldID
	for _, id := range ids {
		if _, ok := rule.Field(catalog.FieldID(id)); ok {
			found = append(found, catalog.FieldID(id))
		}
	}
	return found, nil
}
