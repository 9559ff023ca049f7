// Package intake runs the request state machine: it attaches each inbound
// message to a new or continuing request, re-evaluates the accumulated text
// and queues at most one follow-up or completion reply.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/classify"
	"github.com/zulandar/rfqdesk/internal/extract"
	"github.com/zulandar/rfqdesk/internal/generate"
	"github.com/zulandar/rfqdesk/internal/messaging"
	"github.com/zulandar/rfqdesk/internal/models"
	"github.com/zulandar/rfqdesk/internal/rules"
	"gorm.io/gorm"
)

// Attachment describes a file that arrived with a message. Attachment
// content is not inspected.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
}

// Metadata is channel-specific detail about an inbound message.
type Metadata struct {
	From      string
	To        string
	Subject   string
	ReplyTo   string // where replies go, e.g. "C123:1700000000.000100" for chat threads
	Timestamp time.Time
	Deadline  *time.Time
}

// Inbound is one normalized message from any channel.
type Inbound struct {
	Source         string
	SourceID       string
	SenderIdentity string
	Content        string
	Metadata       Metadata
	Attachments    []Attachment
}

// Outcome reports what HandleInbound did.
type Outcome struct {
	Request        *models.Request
	Created        bool
	Continuation   Decision
	PreviousStatus string
	Classification classify.Classification
	Rules          rules.Result
	Inbound        *models.Message
	Outbound       *models.Message // nil when no reply was queued
}

// Orchestrator owns the request lifecycle.
type Orchestrator struct {
	db             *gorm.DB
	cat            *catalog.Catalog
	extractor      *extract.Extractor
	classifier     *classify.Classifier
	engine         *rules.Engine
	composer       *messaging.Composer
	continuation   *ContinuationAnalyzer
	readyThreshold float64
	replyFrom      string
	locks          *KeyedMutex
	now            func() time.Time
}

// OrchestratorOpts holds parameters for creating an Orchestrator.
type OrchestratorOpts struct {
	DB               *gorm.DB
	Catalog          *catalog.Catalog   // defaults to catalog.Default()
	Generator        generate.Generator // optional
	GeneratorTimeout time.Duration
	AIFieldDetection bool
	Continuation     ContinuationOpts // Generator and Timeout default to the fields above
	ReadyThreshold   float64
	ReplyFrom        string      // From address on queued replies
	Locks            *KeyedMutex // shared per-sender locks; one is created when nil
	Now              func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOpts) (*Orchestrator, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("intake: db is required")
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	locks := opts.Locks
	if locks == nil {
		locks = &KeyedMutex{}
	}

	var detector rules.FieldDetector
	if opts.AIFieldDetection && opts.Generator != nil {
		detector = rules.NewAIDetector(opts.Generator, opts.GeneratorTimeout)
	}
	cont := opts.Continuation
	if cont.Generator == nil {
		cont.Generator = opts.Generator
	}
	if cont.Timeout == 0 {
		cont.Timeout = opts.GeneratorTimeout
	}

	return &Orchestrator{
		db:             opts.DB,
		cat:            cat,
		extractor:      extract.New(cat),
		classifier:     classify.New(classify.Opts{Catalog: cat, Now: now}),
		engine:         rules.New(rules.Opts{Catalog: cat, Detector: detector}),
		composer:       messaging.NewComposer(messaging.ComposerOpts{Generator: opts.Generator, Timeout: opts.GeneratorTimeout}),
		continuation:   NewContinuationAnalyzer(cont),
		readyThreshold: opts.ReadyThreshold,
		replyFrom:      opts.ReplyFrom,
		locks:          locks,
		now:            now,
	}, nil
}

// Catalog returns the catalog requests are evaluated against.
func (o *Orchestrator) Catalog() *catalog.Catalog {
	return o.cat
}

// evaluation is the derived state for a request's accumulated text.
type evaluation struct {
	content        extract.Content
	classification classify.Classification
	rules          rules.Result
	status         string
}

func (o *Orchestrator) evaluate(ctx context.Context, texts []string, channel, client string, deadline *time.Time, history []generate.Turn) evaluation {
	raw := strings.Join(texts, "\n")
	content := o.extractor.Extract(raw)
	class := o.classifier.Classify(content, channel, classify.Metadata{Deadline: deadline})
	res := o.engine.Evaluate(ctx, rules.Input{
		Content:        content,
		Classification: class,
		RawText:        raw,
		Channel:        channel,
		Client:         client,
		History:        history,
	})
	category := class.Category
	if category == "" {
		category = res.RuleID()
	}
	return evaluation{
		content:        content,
		classification: class,
		rules:          res,
		status:         DecideStatus(res, content, category, o.readyThreshold),
	}
}

// apply writes an evaluation onto req. Statuses owned by downstream flows
// are left alone.
func (o *Orchestrator) apply(req *models.Request, ev evaluation, raw string) {
	req.RawContent = raw
	req.Category = ev.classification.Category
	if req.Category == "" {
		req.Category = ev.rules.RuleID()
	}
	req.Subcategory = ev.classification.Subcategory
	req.Urgency = string(ev.classification.Urgency)
	req.Confidence = ev.classification.Confidence
	req.CategoryRuleID = ev.rules.RuleID()
	req.PresentFields = EncodeFields(ev.rules.Present)
	req.MissingFields = EncodeFields(ev.rules.Missing)
	req.Completeness = ev.rules.Completeness
	req.CatalogVersion = o.cat.Version
	if decidedByIntake(req.Status) {
		req.Status = ev.status
		req.PipelineStage = StageFor(ev.status)
	}
}

// HandleInbound attaches msg to a continuing or new request, re-evaluates
// it and queues at most one reply. Messages from one sender on one channel
// are processed one at a time. Generator calls happen before any write; all
// writes for the message commit in a single transaction.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg Inbound) (*Outcome, error) {
	channel := strings.ToLower(strings.TrimSpace(msg.Source))
	if channel == "" {
		return nil, fmt.Errorf("intake: source is required")
	}
	sender := NormalizeSender(msg.SenderIdentity)
	if sender == "" {
		return nil, fmt.Errorf("intake: sender identity is required")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("intake: content is required")
	}
	at := msg.Metadata.Timestamp
	if at.IsZero() {
		at = o.now()
	}

	unlock := o.locks.Lock(SenderKey(channel, sender))
	defer unlock()

	if len(msg.Attachments) > 0 {
		log.Printf("intake: %d attachment(s) from %s on %s not inspected", len(msg.Attachments), sender, channel)
	}
	out := &Outcome{}
	req, history, err := o.findContinuation(ctx, channel, sender, msg.Content, at, out)
	if err != nil {
		return nil, err
	}

	var texts []string
	if req == nil {
		cid, err := clientID(o.db, sender)
		if err != nil {
			return nil, err
		}
		req = &models.Request{
			ID:               uuid.NewString(),
			Channel:          channel,
			SenderIdentity:   sender,
			ClientID:         cid,
			AutoReplyEnabled: true,
			CreatedAt:        at,
		}
		out.Created = true
	} else {
		prior, err := messaging.Inbound(o.db, req.ID)
		if err != nil {
			return nil, fmt.Errorf("intake: load inbound for %s: %w", req.ID, err)
		}
		for _, m := range prior {
			texts = append(texts, m.Content)
		}
	}
	texts = append(texts, msg.Content)
	turns := append(Turns(history), generate.Turn{Direction: models.DirectionInbound, Content: msg.Content, At: at})
	if msg.Metadata.Deadline != nil {
		req.Deadline = msg.Metadata.Deadline
	}

	out.PreviousStatus = req.Status
	ev := o.evaluate(ctx, texts, channel, sender, req.Deadline, turns)
	o.apply(req, ev, strings.Join(texts, "\n"))
	req.LastActivityAt = at
	out.Classification = ev.classification
	out.Rules = ev.rules

	draft, err := o.compose(ctx, req, out.PreviousStatus, ev, turns)
	if err != nil {
		return nil, err
	}

	err = o.db.Transaction(func(tx *gorm.DB) error {
		if out.Created {
			if err := tx.Create(req).Error; err != nil {
				return fmt.Errorf("intake: create request: %w", err)
			}
		}
		in, err := messaging.RecordInbound(tx, messaging.InboundOpts{
			RequestID: req.ID,
			Source:    channel,
			SourceID:  msg.SourceID,
			From:      firstNonEmpty(msg.Metadata.From, msg.SenderIdentity),
			To:        msg.Metadata.To,
			Subject:   msg.Metadata.Subject,
			Content:   msg.Content,
			At:        at,
		})
		if err != nil {
			return err
		}
		out.Inbound = in
		if draft != nil {
			q, err := messaging.QueueOutbound(tx, messaging.OutboundOpts{
				RequestID: req.ID,
				Source:    channel,
				To:        firstNonEmpty(msg.Metadata.ReplyTo, msg.Metadata.From, msg.SenderIdentity),
				From:      firstNonEmpty(o.replyFrom, msg.Metadata.To),
				Subject:   replySubject(msg.Metadata.Subject, draft.Subject),
				Content:   draft.Content,
				Kind:      draft.Kind,
			})
			if err != nil {
				return err
			}
			out.Outbound = q
		}
		if !out.Created {
			if err := tx.Save(req).Error; err != nil {
				return fmt.Errorf("intake: save request %s: %w", req.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Request = req
	return out, nil
}

// findContinuation returns the request msg continues, or nil for a new one,
// along with the candidate's recent history.
func (o *Orchestrator) findContinuation(ctx context.Context, channel, sender, content string, at time.Time, out *Outcome) (*models.Request, []models.Message, error) {
	recent, err := recentRequests(o.db, channel, sender)
	if err != nil {
		return nil, nil, err
	}
	for i := range recent {
		cand := &recent[i]
		if !o.continuation.Eligible(cand, at) {
			continue
		}
		history, err := messaging.History(o.db, cand.ID, generate.MaxHistory)
		if err != nil {
			return nil, nil, fmt.Errorf("intake: load history for %s: %w", cand.ID, err)
		}
		d := o.continuation.Decide(ctx, cand, history, content)
		out.Continuation = d
		if !d.Continue {
			return nil, nil, nil
		}
		return cand, history, nil
	}
	return nil, nil, nil
}

// compose picks the single reply for a transition, if any.
func (o *Orchestrator) compose(ctx context.Context, req *models.Request, prev string, ev evaluation, turns []generate.Turn) (*messaging.Draft, error) {
	if !decidedByIntake(req.Status) {
		return nil, nil
	}
	conv := messaging.Conversation{
		RequestText: req.RawContent,
		Client:      req.SenderIdentity,
		Channel:     req.Channel,
		History:     turns,
	}
	switch req.Status {
	case models.StatusReady:
		count := 0
		if prev != "" {
			n, err := messaging.CountOutbound(o.db, req.ID)
			if err != nil {
				return nil, fmt.Errorf("intake: count replies for %s: %w", req.ID, err)
			}
			count = n
		}
		name := req.Category
		if ev.rules.Rule != nil {
			name = ev.rules.Rule.Name
		}
		return o.composer.Completion(ctx, messaging.CompletionInput{
			Conversation:   conv,
			AutoReply:      req.AutoReplyEnabled,
			PreviousStatus: prev,
			NewStatus:      req.Status,
			CategoryName:   name,
			MessageCount:   count,
		}), nil
	default:
		return o.composer.FollowUp(ctx, messaging.FollowUpInput{
			Conversation: conv,
			AutoReply:    req.AutoReplyEnabled,
			Rule:         ev.rules.Rule,
			Missing:      ev.rules.MissingFieldDefs(),
			Present:      ev.rules.PresentFieldDefs(),
		}), nil
	}
}

// Reevaluate recomputes a request from its stored inbound messages. It
// never queues follow-ups, so calling it repeatedly is harmless; a request
// that becomes ready through it still gets its one completion reply.
func (o *Orchestrator) Reevaluate(ctx context.Context, requestID string) (*Outcome, error) {
	unlock, err := o.lockRequest(requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	req, err := GetRequest(o.db, requestID)
	if err != nil {
		return nil, err
	}

	inbound, err := messaging.Inbound(o.db, req.ID)
	if err != nil {
		return nil, fmt.Errorf("intake: load inbound for %s: %w", req.ID, err)
	}
	texts := make([]string, 0, len(inbound))
	for _, m := range inbound {
		texts = append(texts, m.Content)
	}
	history, err := messaging.History(o.db, req.ID, generate.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("intake: load history for %s: %w", req.ID, err)
	}
	turns := Turns(history)

	out := &Outcome{PreviousStatus: req.Status, Continuation: Decision{Continue: true, Source: DecisionFallback, Reason: "reevaluate"}}
	ev := o.evaluate(ctx, texts, req.Channel, req.SenderIdentity, req.Deadline, turns)
	req.Messages = nil
	o.apply(req, ev, strings.Join(texts, "\n"))
	out.Classification = ev.classification
	out.Rules = ev.rules

	var draft *messaging.Draft
	if req.Status == models.StatusReady {
		if draft, err = o.compose(ctx, req, out.PreviousStatus, ev, turns); err != nil {
			return nil, err
		}
	}

	err = o.db.Transaction(func(tx *gorm.DB) error {
		if draft != nil {
			to, from := replyAddresses(history)
			q, err := messaging.QueueOutbound(tx, messaging.OutboundOpts{
				RequestID: req.ID,
				Source:    req.Channel,
				To:        firstNonEmpty(to, req.SenderIdentity),
				From:      firstNonEmpty(o.replyFrom, from),
				Subject:   draft.Subject,
				Content:   draft.Content,
				Kind:      draft.Kind,
			})
			if err != nil {
				return err
			}
			out.Outbound = q
		}
		if err := tx.Save(req).Error; err != nil {
			return fmt.Errorf("intake: save request %s: %w", req.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Request = req
	return out, nil
}

// lockRequest takes the sender lock for a request. The request itself must
// be read after the lock is held.
func (o *Orchestrator) lockRequest(requestID string) (unlock func(), err error) {
	var key struct {
		Channel        string
		SenderIdentity string
	}
	res := o.db.Model(&models.Request{}).Select("channel", "sender_identity").
		Where("id = ?", requestID).Limit(1).Find(&key)
	if res.Error != nil {
		return nil, fmt.Errorf("intake: get request %s: %w", requestID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return o.locks.Lock(SenderKey(key.Channel, key.SenderIdentity)), nil
}

// SetAutoReply turns automatic replies on or off for a request.
func (o *Orchestrator) SetAutoReply(ctx context.Context, requestID string, enabled bool) error {
	unlock, err := o.lockRequest(requestID)
	if err != nil {
		return err
	}
	defer unlock()
	result := o.db.WithContext(ctx).Model(&models.Request{}).
		Where("id = ?", requestID).
		Update("auto_reply_enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("intake: set auto-reply for %s: %w", requestID, result.Error)
	}
	if result.RowsAffected == 0 {
		// Some drivers report zero rows when the value is unchanged.
		if _, err := GetRequest(o.db, requestID); err != nil {
			return err
		}
	}
	return nil
}

// IsNotFound reports whether err means the request does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}

// replyAddresses returns where the last reply went, or failing that, the
// last inbound sender and recipient.
func replyAddresses(history []models.Message) (to, from string) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Direction == models.DirectionOutbound && history[i].ToAddr != "" {
			return history[i].ToAddr, history[i].FromAddr
		}
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].FromAddr != "" {
			return history[i].FromAddr, history[i].ToAddr
		}
	}
	return "", ""
}

func replySubject(inbound, fallback string) string {
	s := strings.TrimSpace(inbound)
	if s == "" {
		return fallback
	}
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	return "Re: " + s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
