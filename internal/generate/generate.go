// Package generate defines the optional natural-language generation
// capability used by messaging, continuation analysis and field detection.
// Every caller must have a deterministic fallback: a Generator may be absent,
// slow or wrong, and failures surface as ErrUnavailable.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable reports that no usable text was produced.
var ErrUnavailable = errors.New("generate: unavailable")

// MaxHistory caps the conversation turns passed to a Generator.
const MaxHistory = 10

// DefaultTimeout bounds a single generation call when the caller gives none.
const DefaultTimeout = 15 * time.Second

// Purpose tells the Generator what kind of output is expected.
type Purpose string

const (
	PurposeFollowUp       Purpose = "follow_up"
	PurposeCompletion     Purpose = "completion"
	PurposeContinuation   Purpose = "continuation"
	PurposeFieldDetection Purpose = "field_detection"
)

// Field is a labelled request field as shown to the Generator.
type Field struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Turn is one message of conversation history.
type Turn struct {
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// Context is the structured input to a generation call.
type Context struct {
	Purpose     Purpose `json:"purpose"`
	Channel     string  `json:"channel"`
	Client      string  `json:"client,omitempty"`
	Category    string  `json:"category,omitempty"`
	RequestText string  `json:"request_text"`
	NewMessage  string  `json:"new_message,omitempty"`
	Missing     []Field `json:"missing_fields,omitempty"`
	Present     []Field `json:"present_fields,omitempty"`
	Candidates  []Field `json:"candidate_fields,omitempty"`
	History     []Turn  `json:"history,omitempty"`
}

// Generator produces text for a Context.
type Generator interface {
	Generate(ctx context.Context, gc Context) (string, error)
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, gc Context) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, gc Context) (string, error) {
	return f(ctx, gc)
}

// BoundHistory returns the last max turns of history.
func BoundHistory(history []Turn, max int) []Turn {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

// Call runs g under timeout with history bounded to MaxHistory. A nil
// Generator, an error or blank output all yield ErrUnavailable.
func Call(ctx context.Context, g Generator, timeout time.Duration, gc Context) (string, error) {
	if g == nil {
		return "", ErrUnavailable
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gc.History = BoundHistory(gc.History, MaxHistory)
	out, err := g.Generate(ctx, gc)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, gc.Purpose, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %s: empty output", ErrUnavailable, gc.Purpose)
	}
	return out, nil
}
