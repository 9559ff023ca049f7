package matching

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/models"
)

// Criteria is what the matchers know about a request.
type Criteria struct {
	Category    string
	Subcategory string
	Text        string               // request text; specialties are looked up in it
	Client      *models.Client       // nil when the sender is not a known client
	Orders      []models.ClientOrder // the client's past orders
	Now         time.Time
}

func overallBonus(s models.Supplier) float64 {
	return 0.1 * s.OverallScore
}

// CategoryMatch scores suppliers serving the request's category: +50 for the
// category, +30 for the exact subcategory, +20 when a listed specialty
// appears in the request, plus 10% of the supplier's overall score.
func CategoryMatch(c Criteria, suppliers []models.Supplier) []Match {
	if c.Category == "" {
		return nil
	}
	norm := catalog.Normalize(c.Text)
	var out []Match
	for _, s := range suppliers {
		if !containsFold(decodeList(s.Categories), c.Category) {
			continue
		}
		m := Match{Supplier: s, Signal: SignalCategory, Score: 50}
		m.Reasons = append(m.Reasons, "serves "+c.Category)
		if c.Subcategory != "" && containsFold(decodeList(s.Subcategories), c.Subcategory) {
			m.Score += 30
			m.Reasons = append(m.Reasons, "subcategory "+c.Subcategory)
		}
		for _, sp := range decodeList(s.Specialties) {
			if catalog.ContainsWord(norm, catalog.Normalize(sp)) {
				m.Score += 20
				m.Reasons = append(m.Reasons, "specialty "+sp)
				break
			}
		}
		m.Score = clamp(m.Score + overallBonus(s))
		out = append(out, m)
	}
	return out
}

// GeographyMatch scores suppliers near the client: +30 same country, +40
// same state, +30 same city, capped at 100, plus 10% of the overall score.
// Suppliers with no location in common are skipped.
func GeographyMatch(c Criteria, suppliers []models.Supplier) []Match {
	if c.Client == nil {
		return nil
	}
	var out []Match
	for _, s := range suppliers {
		m := Match{Supplier: s, Signal: SignalGeography}
		if sameText(s.Country, c.Client.Country) {
			m.Score += 30
			m.Reasons = append(m.Reasons, "same country "+s.Country)
		}
		if sameText(s.State, c.Client.State) {
			m.Score += 40
			m.Reasons = append(m.Reasons, "same state "+s.State)
		}
		if sameText(s.City, c.Client.City) {
			m.Score += 30
			m.Reasons = append(m.Reasons, "same city "+s.City)
		}
		if m.Score == 0 {
			continue
		}
		m.Score = clamp(clamp(m.Score) + overallBonus(s))
		out = append(out, m)
	}
	return out
}

type orderStats struct {
	count  int
	volume float64
	last   time.Time
}

// HistoryMatch scores suppliers the client has bought from before by order
// count, total volume and recency of the last order, plus 10% of the
// overall score.
func HistoryMatch(c Criteria, suppliers []models.Supplier) []Match {
	if len(c.Orders) == 0 {
		return nil
	}
	stats := make(map[uint]*orderStats)
	for _, o := range c.Orders {
		st, ok := stats[o.SupplierID]
		if !ok {
			st = &orderStats{}
			stats[o.SupplierID] = st
		}
		st.count++
		st.volume += o.Amount
		if o.OrderedAt.After(st.last) {
			st.last = o.OrderedAt
		}
	}

	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	var out []Match
	for _, s := range suppliers {
		st, ok := stats[s.ID]
		if !ok {
			continue
		}
		m := Match{Supplier: s, Signal: SignalHistory, Score: countTier(st.count)}
		m.Reasons = append(m.Reasons, fmt.Sprintf("%d past order(s)", st.count))
		if v := volumeTier(st.volume); v > 0 {
			m.Score += v
			m.Reasons = append(m.Reasons, fmt.Sprintf("%.0f total volume", st.volume))
		}
		days := int(now.Sub(st.last).Hours() / 24)
		if r := recencyTier(days); r > 0 {
			m.Score += r
			m.Reasons = append(m.Reasons, fmt.Sprintf("last order %d day(s) ago", days))
		}
		m.Score = clamp(m.Score + overallBonus(s))
		out = append(out, m)
	}
	return out
}

func countTier(n int) float64 {
	switch {
	case n >= 10:
		return 40
	case n >= 5:
		return 30
	case n >= 2:
		return 20
	default:
		return 10
	}
}

func volumeTier(v float64) float64 {
	switch {
	case v >= 100000:
		return 30
	case v >= 50000:
		return 20
	case v >= 10000:
		return 10
	default:
		return 0
	}
}

func recencyTier(days int) float64 {
	switch {
	case days <= 30:
		return 20
	case days <= 90:
		return 10
	case days <= 180:
		return 5
	default:
		return 0
	}
}

// OverallSignal emits each supplier's overall score as its own signal.
func OverallSignal(suppliers []models.Supplier) []Match {
	out := make([]Match, 0, len(suppliers))
	for _, s := range suppliers {
		out = append(out, Match{Supplier: s, Signal: SignalOverall, Score: clamp(s.OverallScore)})
	}
	return out
}

func decodeList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if sameText(x, v) {
			return true
		}
	}
	return false
}

func sameText(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
