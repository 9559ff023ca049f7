// Package rules resolves the category rule for a request and decides which of
// its fields are present, producing the completeness snapshot the intake
// state machine acts on.
package rules

import (
	"context"
	"log"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/classify"
	"github.com/zulandar/rfqdesk/internal/extract"
	"github.com/zulandar/rfqdesk/internal/generate"
)

// Detector names which detector produced a Result.
const (
	DetectorNone    = "none"
	DetectorAI      = "ai"
	DetectorKeyword = "keyword"
)

// Input is everything the engine needs for one evaluation.
type Input struct {
	Content        extract.Content
	Classification classify.Classification
	RawText        string
	Channel        string
	Client         string
	History        []generate.Turn
}

// Result is the rules snapshot stored on a request.
type Result struct {
	Rule         *catalog.CategoryRule `json:"-"`
	Present      []catalog.FieldID     `json:"present"`
	Missing      []catalog.FieldID     `json:"missing"`
	Completeness float64               `json:"completeness"`
	Detector     string                `json:"detector"`
}

// RuleID returns the resolved rule ID, or "" when unclassifiable.
func (r Result) RuleID() string {
	if r.Rule == nil {
		return ""
	}
	return r.Rule.ID
}

// MissingFieldDefs returns the definitions of the missing fields in rule order.
func (r Result) MissingFieldDefs() []catalog.Field {
	return r.defs(r.Missing)
}

// PresentFieldDefs returns the definitions of the present fields in rule order.
func (r Result) PresentFieldDefs() []catalog.Field {
	return r.defs(r.Present)
}

func (r Result) defs(ids []catalog.FieldID) []catalog.Field {
	if r.Rule == nil {
		return nil
	}
	var out []catalog.Field
	for _, id := range ids {
		if f, ok := r.Rule.Field(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// FieldDetector reports which of a rule's fields are answered by the input.
type FieldDetector interface {
	Detect(ctx context.Context, rule *catalog.CategoryRule, in Input) ([]catalog.FieldID, error)
}

// Engine evaluates inputs against a catalog.
type Engine struct {
	cat      *catalog.Catalog
	detector FieldDetector
	keywords *KeywordDetector
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Catalog  *catalog.Catalog // defaults to catalog.Default()
	Detector FieldDetector    // optional; keyword heuristics are always the fallback
}

// New creates an Engine.
func New(opts Opts) *Engine {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &Engine{
		cat:      cat,
		detector: opts.Detector,
		keywords: NewKeywordDetector(cat.Dictionaries),
	}
}

// Catalog returns the catalog the engine evaluates against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// Evaluate resolves the rule and computes present/missing fields. It never
// fails: detector errors fall back to keyword heuristics, and content that
// matches no rule yields an empty result with zero completeness.
func (e *Engine) Evaluate(ctx context.Context, in Input) Result {
	rule := e.Resolve(in)
	if rule == nil {
		return Result{Present: []catalog.FieldID{}, Missing: []catalog.FieldID{}, Detector: DetectorNone}
	}

	detector := DetectorKeyword
	var found []catalog.FieldID
	if e.detector != nil {
		ids, err := e.detector.Detect(ctx, rule, in)
		switch {
		case err != nil:
			log.Printf("rules: field detector failed for %s, using keywords: %v", rule.ID, err)
		case len(ids) > 0:
			found = ids
			detector = DetectorAI
		}
	}
	if found == nil {
		found, _ = e.keywords.Detect(ctx, rule, in)
	}

	present := make(map[catalog.FieldID]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	res := Result{
		Rule:     rule,
		Present:  []catalog.FieldID{},
		Missing:  []catalog.FieldID{},
		Detector: detector,
	}
	required := 0
	for _, f := range rule.Fields {
		if present[f.ID] {
			res.Present = append(res.Present, f.ID)
		}
		if f.Required {
			required++
			if !present[f.ID] {
				res.Missing = append(res.Missing, f.ID)
			}
		}
	}
	res.Completeness = Completeness(required, len(res.Missing))
	return res
}

// Resolve picks the applicable rule: the classifier's category, then overlap
// with extracted keywords, then overlap with the raw text.
func (e *Engine) Resolve(in Input) *catalog.CategoryRule {
	if r := e.cat.Rule(in.Classification.Category); r != nil {
		return r
	}
	if r, _ := e.cat.BestMatchKeywords(in.Content.Keywords); r != nil {
		return r
	}
	r, _ := e.cat.BestMatch(catalog.Normalize(in.RawText))
	return r
}

// Completeness is (required - missing) / max(required, 1), clamped to [0,1].
func Completeness(required, missing int) float64 {
	if missing < 0 {
		missing = 0
	}
	if missing > required {
		missing = required
	}
	denom := required
	if denom < 1 {
		denom = 1
	}
	return float64(required-missing) / float64(denom)
}
