package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"pgregory.net/rapid"
)

var vocabulary = []string{
	"necesito", "500", "tornillos", "cajas", "cemento", "bolsas", "200", "obra",
	"entregar en", "renta", "excavadora", "2 semanas", "mantenimiento", "planta",
	"cable", "12 awg", "cascos", "papel", "urgente", "para el 15/07", "hola", "kg",
	"presupuesto $5000", "M8", "grúa", "por favor",
}

// TestProperty_CompletenessFormula verifies completeness stays in [0,1] and
// matches (required - missing) / max(required, 1) for arbitrary request text.
func TestProperty_CompletenessFormula(t *testing.T) {
	e := New(Opts{})
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 0, 12).Draw(rt, "words")
		text := strings.Join(words, " ")
		res := e.Evaluate(context.Background(), buildInput(e.Catalog(), text, "chat"))

		if res.Completeness < 0 || res.Completeness > 1 {
			rt.Fatalf("completeness %v out of [0,1] for %q", res.Completeness, text)
		}
		if res.Rule == nil {
			if res.Completeness != 0 || len(res.Missing) != 0 {
				rt.Fatalf("unclassifiable %q produced %+v", text, res)
			}
			return
		}
		required := len(res.Rule.RequiredFields())
		denom := required
		if denom < 1 {
			denom = 1
		}
		want := float64(required-len(res.Missing)) / float64(denom)
		if res.Completeness != want {
			rt.Fatalf("completeness = %v, want %v for %q", res.Completeness, want, text)
		}
	})
}

// TestProperty_MissingAreRequiredAndAbsent verifies every missing field is a
// required field of the rule and never also reported present.
func TestProperty_MissingAreRequiredAndAbsent(t *testing.T) {
	e := New(Opts{})
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 1, 12).Draw(rt, "words")
		res := e.Evaluate(context.Background(), buildInput(e.Catalog(), strings.Join(words, " "), "email"))
		if res.Rule == nil {
			return
		}
		present := make(map[catalog.FieldID]bool)
		for _, id := range res.Present {
			present[id] = true
		}
		for _, id := range res.Missing {
			f, ok := res.Rule.Field(id)
			if !ok || !f.Required {
				rt.Fatalf("missing field %q is not a required field of %s", id, res.Rule.ID)
			}
			if present[id] {
				rt.Fatalf("field %q reported both present and missing", id)
			}
		}
	})
}

// TestProperty_EvaluateIsDeterministic verifies identical accumulated content
// always yields the same snapshot.
func TestProperty_EvaluateIsDeterministic(t *testing.T) {
	e := New(Opts{})
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 0, 12).Draw(rt, "words")
		text := strings.Join(words, "\n")
		a := e.Evaluate(context.Background(), buildInput(e.Catalog(), text, "email"))
		b := e.Evaluate(context.Background(), buildInput(e.Catalog(), text, "email"))
		if a.RuleID() != b.RuleID() || a.Completeness != b.Completeness ||
			strings.Join(toStrings(a.Missing), ",") != strings.Join(toStrings(b.Missing), ",") {
			rt.Fatalf("evaluation not deterministic: %+v vs %+v", a, b)
		}
	})
}

// TestProperty_CompletenessHelper checks the bare formula over arbitrary counts.
func TestProperty_CompletenessHelper(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		required := rapid.IntRange(0, 20).Draw(rt, "required")
		missing := rapid.IntRange(0, required).Draw(rt, "missing")
		got := Completeness(required, missing)
		if got < 0 || got > 1 {
			rt.Fatalf("Completeness(%d, %d) = %v", required, missing, got)
		}
		if required > 0 && missing == 0 && got != 1 {
			rt.Fatalf("Completeness(%d, 0) = %v, want 1", required, got)
		}
	})
}

func toStrings(ids []catalog.FieldID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
