// Package quotes compares the supplier quotes received for one RFQ.
package quotes

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// Criterion names a scored dimension.
type Criterion string

const (
	CriterionPrice       Criterion = "price"
	CriterionDelivery    Criterion = "delivery"
	CriterionTerms       Criterion = "terms"
	CriterionReliability Criterion = "reliability"
	CriterionComposite   Criterion = "composite"
)

// Weights used for the composite score.
var Weights = map[Criterion]float64{
	CriterionPrice:       0.4,
	CriterionDelivery:    0.3,
	CriterionTerms:       0.15,
	CriterionReliability: 0.15,
}

// DefaultReliability stands in until supplier performance history is scored.
const DefaultReliability = 70

// Normalized is a quote converted to comparable values.
type Normalized struct {
	QuoteID        uint
	SupplierID     uint
	SupplierName   string
	Total          float64
	Currency       string
	DeliveryDays   int
	PaymentTerms   string
	WarrantyMonths int
	Availability   string
}

// Normalizer converts quotes to comparable values, e.g. a common currency.
type Normalizer interface {
	Normalize(q models.Quote) (Normalized, error)
}

// PassThrough copies values unchanged.
type PassThrough struct{}

// Normalize implements Normalizer.
func (PassThrough) Normalize(q models.Quote) (Normalized, error) {
	return Normalized{
		QuoteID:        q.ID,
		SupplierID:     q.SupplierID,
		SupplierName:   q.Supplier.Name,
		Total:          q.Total,
		Currency:       q.Currency,
		DeliveryDays:   q.DeliveryDays,
		PaymentTerms:   q.PaymentTerms,
		WarrantyMonths: q.WarrantyMonths,
		Availability:   q.Availability,
	}, nil
}

// Score is one quote's result.
type Score struct {
	Quote       Normalized
	Price       float64
	Delivery    float64
	Terms       float64
	Reliability float64
	Composite   float64
	Ranks       map[Criterion]int // 1 is best
}

// Summary describes the spread of the compared quotes.
type Summary struct {
	Count       int
	MinPrice    float64
	MaxPrice    float64
	AvgPrice    float64
	MinDelivery int
	MaxDelivery int
	Currencies  []string
}

// Comparison is the outcome of Compare.
type Comparison struct {
	Ranked  []Score // by composite, best first
	Best    *Score
	Summary Summary
}

// Comparator scores quotes.
type Comparator struct {
	norm Normalizer
}

// Opts holds parameters for creating a Comparator.
type Opts struct {
	Normalizer Normalizer // defaults to PassThrough
}

// New creates a Comparator.
func New(opts Opts) *Comparator {
	n := opts.Normalizer
	if n == nil {
		n = PassThrough{}
	}
	return &Comparator{norm: n}
}

// Comparable reports whether a quote's status takes part in comparison.
func Comparable(status string) bool {
	return status == models.QuoteSubmitted || status == models.QuoteAccepted
}

// Compare scores the submitted and accepted quotes among qs. Other statuses
// are ignored. An empty input yields an empty Comparison.
func (c *Comparator) Compare(qs []models.Quote) (*Comparison, error) {
	var norm []Normalized
	for _, q := range qs {
		if !Comparable(q.Status) {
			continue
		}
		n, err := c.norm.Normalize(q)
		if err != nil {
			return nil, fmt.Errorf("quotes: normalize quote %d: %w", q.ID, err)
		}
		norm = append(norm, n)
	}
	out := &Comparison{Ranked: []Score{}}
	if len(norm) == 0 {
		return out, nil
	}

	minP, maxP := norm[0].Total, norm[0].Total
	minD, maxD := norm[0].DeliveryDays, norm[0].DeliveryDays
	sum := 0.0
	currencies := map[string]bool{}
	for _, n := range norm {
		minP, maxP = math.Min(minP, n.Total), math.Max(maxP, n.Total)
		if n.DeliveryDays < minD {
			minD = n.DeliveryDays
		}
		if n.DeliveryDays > maxD {
			maxD = n.DeliveryDays
		}
		sum += n.Total
		if n.Currency != "" && !currencies[n.Currency] {
			currencies[n.Currency] = true
			out.Summary.Currencies = append(out.Summary.Currencies, n.Currency)
		}
	}
	out.Summary.Count = len(norm)
	out.Summary.MinPrice, out.Summary.MaxPrice = minP, maxP
	out.Summary.MinDelivery, out.Summary.MaxDelivery = minD, maxD
	out.Summary.AvgPrice = sum / float64(len(norm))

	for _, n := range norm {
		s := Score{
			Quote:       n,
			Price:       inversePosition(n.Total, minP, maxP),
			Delivery:    inversePosition(float64(n.DeliveryDays), float64(minD), float64(maxD)),
			Terms:       TermsScore(n),
			Reliability: DefaultReliability,
			Ranks:       make(map[Criterion]int),
		}
		s.Composite = Weights[CriterionPrice]*s.Price +
			Weights[CriterionDelivery]*s.Delivery +
			Weights[CriterionTerms]*s.Terms +
			Weights[CriterionReliability]*s.Reliability
		out.Ranked = append(out.Ranked, s)
	}

	rank(out.Ranked, CriterionPrice, func(s Score) float64 { return -s.Quote.Total })
	rank(out.Ranked, CriterionDelivery, func(s Score) float64 { return -float64(s.Quote.DeliveryDays) })
	rank(out.Ranked, CriterionTerms, func(s Score) float64 { return s.Terms })
	rank(out.Ranked, CriterionReliability, func(s Score) float64 { return s.Reliability })
	rank(out.Ranked, CriterionComposite, func(s Score) float64 { return s.Composite })

	sort.SliceStable(out.Ranked, func(i, j int) bool {
		return out.Ranked[i].Ranks[CriterionComposite] < out.Ranked[j].Ranks[CriterionComposite]
	})
	out.Best = &out.Ranked[0]
	return out, nil
}

// inversePosition maps min to 100 and max to 0. With no spread every value
// scores 100.
func inversePosition(v, min, max float64) float64 {
	if max == min {
		return 100
	}
	return (max - v) / (max - min) * 100
}

// rank assigns 1..n for criterion, highest key first, keeping input order
// among equal keys.
func rank(scores []Score, c Criterion, key func(Score) float64) {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(scores[idx[a]]) > key(scores[idx[b]]) })
	for pos, i := range idx {
		scores[i].Ranks[c] = pos + 1
	}
}

var (
	daysRe = regexp.MustCompile(`\d+`)
	codRe  = regexp.MustCompile(`\bcod\b|contra ?entrega|cash on delivery|pago al recibir`)
	stock  = []string{"in_stock", "in stock", "en existencia", "en stock", "immediate", "inmediata"}
)

// TermsScore rates payment terms, warranty and availability: base 50, +20
// for 30-day credit (+10 for 15-day), -10 for cash on delivery, +20 and up
// to +10 more for a warranty of a year or longer, +10 when in stock.
func TermsScore(n Normalized) float64 {
	score := 50.0
	terms := catalog.Normalize(n.PaymentTerms)
	switch {
	case terms == "":
	case codRe.MatchString(terms):
		score -= 10
	default:
		if m := daysRe.FindString(terms); m != "" {
			days, _ := strconv.Atoi(m)
			switch {
			case days >= 30:
				score += 20
			case days >= 15:
				score += 10
			}
		}
	}
	if n.WarrantyMonths >= 12 {
		score += 20 + math.Min(10, float64(n.WarrantyMonths-12)/12*10)
	}
	avail := catalog.Normalize(n.Availability)
	for _, s := range stock {
		if avail == s || catalog.ContainsWord(avail, s) {
			score += 10
			break
		}
	}
	return math.Max(0, math.Min(100, score))
}

// Load returns the comparable quotes for an RFQ with their suppliers and items.
func Load(db *gorm.DB, rfqID string) ([]models.Quote, error) {
	var qs []models.Quote
	if err := db.Preload("Supplier").Preload("Items").
		Where("rfq_id = ? AND status IN ?", rfqID, []string{models.QuoteSubmitted, models.QuoteAccepted}).
		Order("id ASC").
		Find(&qs).Error; err != nil {
		return nil, fmt.Errorf("quotes: load rfq %s: %w", rfqID, err)
	}
	return qs, nil
}
