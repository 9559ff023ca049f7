// Package classify assigns a category and urgency level to extracted request
// content.
package classify

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/extract"
)

// Confidence floors for outcomes without keyword evidence.
const (
	confidenceNoCategory    = 0.3
	confidenceEmptyKeywords = 0.5
	contentLengthSaturation = 500
)

// Metadata carries optional hints from the inbound adapter.
type Metadata struct {
	Deadline *time.Time
}

// Classification is the classifier's verdict.
type Classification struct {
	Category    string          `json:"category,omitempty"`
	Subcategory *string         `json:"subcategory"` // reserved; always nil
	Urgency     extract.Urgency `json:"urgency"`
	Confidence  float64         `json:"confidence"`
}

// Classifier scores extracted content against a rule catalog.
type Classifier struct {
	cat *catalog.Catalog
	now func() time.Time
}

// Opts holds parameters for creating a Classifier.
type Opts struct {
	Catalog *catalog.Catalog // defaults to catalog.Default()
	Now     func() time.Time // defaults to time.Now
}

// New creates a Classifier.
func New(opts Opts) *Classifier {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Classifier{cat: cat, now: now}
}

// Classify picks the category with the highest keyword overlap (first
// declared wins ties) and resolves urgency as explicit keyword, then
// deadline, then channel default.
func (c *Classifier) Classify(content extract.Content, channel string, meta Metadata) Classification {
	norm := content.Normalized
	if norm == "" && content.Text != "" {
		norm = catalog.Normalize(content.Text)
	}

	out := Classification{
		Urgency: c.urgency(content, channel, meta),
	}

	rule, matched := c.cat.BestMatch(norm)
	switch {
	case rule == nil:
		out.Confidence = confidenceNoCategory
	case len(rule.Keywords) == 0:
		out.Category = rule.ID
		out.Confidence = confidenceEmptyKeywords
	default:
		out.Category = rule.ID
		ratio := float64(matched) / float64(len(rule.Keywords))
		length := math.Min(float64(utf8.RuneCountInString(content.Text))/contentLengthSaturation, 1)
		out.Confidence = 0.7*ratio + 0.3*length
	}
	return out
}

func (c *Classifier) urgency(content extract.Content, channel string, meta Metadata) extract.Urgency {
	if content.Urgency != "" {
		return content.Urgency
	}
	if meta.Deadline != nil {
		return DeadlineUrgency(meta.Deadline.Sub(c.now()))
	}
	return extract.ChannelDefaultUrgency(channel, c.cat.Dictionaries)
}

// DeadlineUrgency maps time remaining until a deadline to an urgency level:
// within a day is urgent, under three days high, under a week normal.
func DeadlineUrgency(remaining time.Duration) extract.Urgency {
	const day = 24 * time.Hour
	switch {
	case remaining <= day:
		return extract.UrgencyUrgent
	case remaining < 3*day:
		return extract.UrgencyHigh
	case remaining < 7*day:
		return extract.UrgencyNormal
	default:
		return extract.UrgencyLow
	}
}
