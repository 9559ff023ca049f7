// Package matching ranks suppliers for a ready request by blending category,
// purchase-history, geography and overall-score signals.
package matching

import (
	"sort"

	"github.com/zulandar/rfqdesk/internal/models"
)

// Signal names the matcher that produced a score.
type Signal string

const (
	SignalCategory  Signal = "category"
	SignalHistory   Signal = "history"
	SignalGeography Signal = "geography"
	SignalOverall   Signal = "overall"
)

// Weights used by Combine.
var Weights = map[Signal]float64{
	SignalCategory:  0.4,
	SignalHistory:   0.3,
	SignalGeography: 0.2,
	SignalOverall:   0.1,
}

// Defaults for Combine.
const (
	DefaultMinScore = 30
	DefaultLimit    = 10
)

// Match is one matcher's verdict on one supplier. Score is 0-100.
type Match struct {
	Supplier models.Supplier
	Signal   Signal
	Score    float64
	Reasons  []string
}

// Ranked is a supplier's combined result.
type Ranked struct {
	Supplier   models.Supplier
	Score      float64
	Components map[Signal]float64
	Reasons    []string
}

// CombineOpts controls filtering and truncation.
type CombineOpts struct {
	MinScore float64 // results below this are dropped
	Limit    int     // 0 or less keeps everything
}

type group struct {
	ranked Ranked
	sums   map[Signal]float64
	counts map[Signal]int
	seen   map[string]bool
}

// Combine groups matches by supplier, averages duplicate scores per signal,
// unions reasons, and blends the signals by Weights. Signals a supplier has
// no match for contribute zero. Results are sorted by score descending,
// keeping input order among equal scores.
func Combine(matches []Match, opts CombineOpts) []Ranked {
	var order []uint
	groups := make(map[uint]*group)
	for _, m := range matches {
		g, ok := groups[m.Supplier.ID]
		if !ok {
			g = &group{
				ranked: Ranked{Supplier: m.Supplier, Components: make(map[Signal]float64)},
				sums:   make(map[Signal]float64),
				counts: make(map[Signal]int),
				seen:   make(map[string]bool),
			}
			groups[m.Supplier.ID] = g
			order = append(order, m.Supplier.ID)
		}
		g.sums[m.Signal] += clamp(m.Score)
		g.counts[m.Signal]++
		for _, r := range m.Reasons {
			if !g.seen[r] {
				g.seen[r] = true
				g.ranked.Reasons = append(g.ranked.Reasons, r)
			}
		}
	}

	out := make([]Ranked, 0, len(order))
	for _, id := range order {
		g := groups[id]
		total := 0.0
		for sig, sum := range g.sums {
			avg := sum / float64(g.counts[sig])
			g.ranked.Components[sig] = avg
			total += Weights[sig] * avg
		}
		g.ranked.Score = total
		if total < opts.MinScore {
			continue
		}
		out = append(out, g.ranked)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
