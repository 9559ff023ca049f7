package messaging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/generate"
	"github.com/zulandar/rfqdesk/internal/models"
)

const (
	followUpSubject   = "More details needed for your request"
	completionSubject = "Your request is complete"
)

// Draft is composed reply text, ready to queue.
type Draft struct {
	Kind      string
	Subject   string
	Content   string
	Generated bool // true when the generator wrote Content
}

// Composer writes follow-up and completion replies. The generator is
// optional; templates are used whenever it is absent or fails.
type Composer struct {
	gen     generate.Generator
	timeout time.Duration
}

// ComposerOpts holds parameters for creating a Composer.
type ComposerOpts struct {
	Generator generate.Generator
	Timeout   time.Duration
}

// NewComposer creates a Composer.
func NewComposer(opts ComposerOpts) *Composer {
	return &Composer{gen: opts.Generator, timeout: opts.Timeout}
}

// Conversation is the context shared by both replies.
type Conversation struct {
	RequestText string
	Client      string
	Channel     string
	History     []generate.Turn
}

// FollowUpInput is what FollowUp needs to ask for missing fields.
type FollowUpInput struct {
	Conversation
	AutoReply bool
	Rule      *catalog.CategoryRule
	Missing   []catalog.Field
	Present   []catalog.Field
}

// FollowUp returns a reply asking for the missing fields, or nil when
// auto-reply is off, no rule resolved or nothing is missing.
func (c *Composer) FollowUp(ctx context.Context, in FollowUpInput) *Draft {
	if !in.AutoReply || in.Rule == nil || len(in.Missing) == 0 {
		return nil
	}
	d := &Draft{Kind: models.KindFollowUp, Subject: followUpSubject}
	if text, ok := c.generate(ctx, generate.Context{
		Purpose:     generate.PurposeFollowUp,
		Channel:     in.Channel,
		Client:      in.Client,
		Category:    in.Rule.Name,
		RequestText: in.RequestText,
		Missing:     toGenFields(in.Missing),
		Present:     toGenFields(in.Present),
		History:     in.History,
	}); ok && mentionsAll(text, in.Missing) {
		d.Content, d.Generated = text, true
		return d
	}
	d.Content = FollowUpTemplate(in.Missing)
	return d
}

// CompletionInput is what Completion needs to confirm a finished request.
type CompletionInput struct {
	Conversation
	AutoReply      bool
	PreviousStatus string
	NewStatus      string
	CategoryName   string
	MessageCount   int // outbound messages already queued for the request
}

// Completion returns a one-shot confirmation when the request has just
// become ready, or nil otherwise.
func (c *Composer) Completion(ctx context.Context, in CompletionInput) *Draft {
	if !in.AutoReply || in.NewStatus != models.StatusReady || in.PreviousStatus == models.StatusReady {
		return nil
	}
	d := &Draft{Kind: models.KindCompletion, Subject: completionSubject}
	if text, ok := c.generate(ctx, generate.Context{
		Purpose:     generate.PurposeCompletion,
		Channel:     in.Channel,
		Client:      in.Client,
		Category:    in.CategoryName,
		RequestText: in.RequestText,
		History:     in.History,
	}); ok {
		d.Content, d.Generated = text, true
		return d
	}
	d.Content = CompletionTemplate(in.MessageCount, in.CategoryName)
	return d
}

func (c *Composer) generate(ctx context.Context, gc generate.Context) (string, bool) {
	if c.gen == nil {
		return "", false
	}
	text, err := generate.Call(ctx, c.gen, c.timeout, gc)
	if err != nil {
		log.Printf("messaging: %s generation failed, using template: %v", gc.Purpose, err)
		return "", false
	}
	return text, true
}

// mentionsAll guards against generated follow-ups that drop a missing field.
func mentionsAll(text string, fields []catalog.Field) bool {
	norm := catalog.Normalize(text)
	for _, f := range fields {
		if !strings.Contains(norm, catalog.Normalize(f.Label)) {
			return false
		}
	}
	return true
}

func toGenFields(fields []catalog.Field) []generate.Field {
	out := make([]generate.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, generate.Field{
			ID:          string(f.ID),
			Label:       f.Label,
			Description: f.Description,
			Examples:    f.Examples,
		})
	}
	return out
}

// FollowUpTemplate lists each missing field with its description and
// examples between a fixed intro and outro.
func FollowUpTemplate(missing []catalog.Field) string {
	var b strings.Builder
	b.WriteString("Thanks for your request! To prepare your quote we still need a few details:\n\n")
	for _, f := range missing {
		fmt.Fprintf(&b, "- %s", f.Label)
		if f.Description != "" {
			fmt.Fprintf(&b, ": %s", f.Description)
		}
		if len(f.Examples) > 0 {
			fmt.Fprintf(&b, " (e.g. %s)", strings.Join(f.Examples, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nJust reply to this message with the missing information and we will continue right away.")
	return b.String()
}

var completionTemplates = []func(category string) string{
	func(category string) string {
		return fmt.Sprintf("Thanks! We have everything we need for your %s request. "+
			"We are contacting suppliers now and will send you quotes shortly.", category)
	},
	func(category string) string {
		return fmt.Sprintf("Great, your %s request is complete. "+
			"Our team is reaching out to suppliers and you can expect quotes soon.", category)
	},
	func(category string) string {
		return fmt.Sprintf("All set! Your %s request has all the required details "+
			"and is on its way to matching suppliers.", category)
	},
}

// CompletionTemplateCount is the size of the completion rotation.
func CompletionTemplateCount() int {
	return len(completionTemplates)
}

// CompletionTemplate picks a confirmation by messageCount modulo the rotation
// size, so repeated confirmations vary in wording.
func CompletionTemplate(messageCount int, category string) string {
	if category == "" {
		category = "procurement"
	}
	n := len(completionTemplates)
	idx := ((messageCount % n) + n) % n
	return completionTemplates[idx](category)
}
