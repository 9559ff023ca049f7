package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/rfqdesk/internal/generate"
	"github.com/zulandar/rfqdesk/internal/models"
)

// Continuation defaults.
const (
	DefaultClosedWindow          = 24 * time.Hour
	DefaultActivityWindow        = 72 * time.Hour
	DefaultContinuationThreshold = 0.6
)

// Decision sources.
const (
	DecisionGenerator = "generator"
	DecisionFallback  = "fallback"
)

// Decision is the continuation verdict for one inbound message.
type Decision struct {
	Continue   bool
	Confidence float64
	Source     string
	Reason     string
}

// ContinuationOpts holds parameters for creating a ContinuationAnalyzer.
type ContinuationOpts struct {
	Generator      generate.Generator
	Timeout        time.Duration
	Threshold      float64       // minimum generator confidence; default 0.6
	ClosedWindow   time.Duration // closed requests stay reachable this long; default 24h
	ActivityWindow time.Duration // open requests go stale after this; default 72h
	// FailClosed starts a new request whenever the generator cannot decide
	// confidently. The default continues the candidate instead.
	FailClosed bool
}

// ContinuationAnalyzer decides whether an inbound message extends an
// existing request or starts a new one.
type ContinuationAnalyzer struct {
	gen            generate.Generator
	timeout        time.Duration
	threshold      float64
	closedWindow   time.Duration
	activityWindow time.Duration
	failClosed     bool
}

// NewContinuationAnalyzer creates a ContinuationAnalyzer, filling defaults.
func NewContinuationAnalyzer(opts ContinuationOpts) *ContinuationAnalyzer {
	a := &ContinuationAnalyzer{
		gen:            opts.Generator,
		timeout:        opts.Timeout,
		threshold:      opts.Threshold,
		closedWindow:   opts.ClosedWindow,
		activityWindow: opts.ActivityWindow,
		failClosed:     opts.FailClosed,
	}
	if a.threshold <= 0 {
		a.threshold = DefaultContinuationThreshold
	}
	if a.closedWindow <= 0 {
		a.closedWindow = DefaultClosedWindow
	}
	if a.activityWindow <= 0 {
		a.activityWindow = DefaultActivityWindow
	}
	return a
}

// Eligible reports whether req can still receive messages at time at: it is
// open, or was closed within the closed window, and it saw activity within
// the activity window.
func (a *ContinuationAnalyzer) Eligible(req *models.Request, at time.Time) bool {
	if req == nil {
		return false
	}
	if req.ClosedAt != nil {
		if at.Sub(*req.ClosedAt) > a.closedWindow {
			return false
		}
	} else if req.Status == models.StatusClosed {
		return false
	}
	return at.Sub(req.LastActivityAt) <= a.activityWindow
}

type continuationVerdict struct {
	Continuation bool    `json:"continuation"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

// Decide asks the generator whether message continues candidate. A verdict
// below the threshold, or no verdict at all, falls back to the configured
// default.
func (a *ContinuationAnalyzer) Decide(ctx context.Context, candidate *models.Request, history []models.Message, message string) Decision {
	if candidate == nil {
		return Decision{Source: DecisionFallback, Reason: "no candidate"}
	}
	if a.gen == nil {
		return a.fallback("no generator configured")
	}

	out, err := generate.Call(ctx, a.gen, a.timeout, generate.Context{
		Purpose:     generate.PurposeContinuation,
		Channel:     candidate.Channel,
		Client:      candidate.SenderIdentity,
		Category:    candidate.Category,
		RequestText: candidate.RawContent,
		NewMessage:  message,
		History:     Turns(history),
	})
	if err != nil {
		log.Printf("intake: continuation check for %s: %v", candidate.ID, err)
		return a.fallback("generator unavailable")
	}
	v, err := parseVerdict(out)
	if err != nil {
		log.Printf("intake: continuation check for %s: %v", candidate.ID, err)
		return a.fallback("unparseable verdict")
	}
	if v.Confidence < a.threshold {
		return a.fallback(fmt.Sprintf("low confidence %.2f", v.Confidence))
	}
	return Decision{
		Continue:   v.Continuation,
		Confidence: v.Confidence,
		Source:     DecisionGenerator,
		Reason:     v.Reason,
	}
}

func (a *ContinuationAnalyzer) fallback(reason string) Decision {
	return Decision{Continue: !a.failClosed, Source: DecisionFallback, Reason: reason}
}

func parseVerdict(out string) (continuationVerdict, error) {
	var v continuationVerdict
	raw := generate.ExtractJSON(out)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return v, fmt.Errorf("no JSON object in continuation verdict")
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("parse continuation verdict: %w", err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return v, fmt.Errorf("continuation confidence %v out of range", v.Confidence)
	}
	return v, nil
}

// Turns converts stored messages into generator history.
func Turns(msgs []models.Message) []generate.Turn {
	out := make([]generate.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, generate.Turn{Direction: m.Direction, Content: m.Content, At: m.CreatedAt})
	}
	return out
}
