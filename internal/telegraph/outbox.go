package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/zulandar/rfqdesk/internal/messaging"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// Default outbox settings.
const (
	DefaultOutboxInterval = 5 * time.Second
	DefaultOutboxBatch    = 20
)

// Deliverer sends one queued reply and returns the platform's id for it.
type Deliverer interface {
	Deliver(ctx context.Context, msg *models.Message) (string, error)
}

// AdapterDeliverer posts replies through a chat adapter. The message's
// ToAddr is a target produced by EncodeTarget.
type AdapterDeliverer struct {
	Adapter Adapter
}

// Deliver implements Deliverer.
func (d AdapterDeliverer) Deliver(ctx context.Context, msg *models.Message) (string, error) {
	channelID, threadID := ParseTarget(msg.ToAddr)
	if channelID == "" {
		return "", fmt.Errorf("telegraph: message %d has no target channel", msg.ID)
	}
	return d.Adapter.Send(ctx, OutboundMessage{
		ChannelID: channelID,
		ThreadID:  threadID,
		Text:      msg.Content,
	})
}

// CommandDeliverer hands replies to a local command, e.g. a mail transfer agent.
type CommandDeliverer struct {
	Config messaging.CommandConfig
}

// Deliver implements Deliverer.
func (d CommandDeliverer) Deliver(ctx context.Context, msg *models.Message) (string, error) {
	return "", messaging.DeliverCommand(ctx, msg, d.Config)
}

// Outbox delivers queued replies. A reply that fails stays queued and is
// retried on the next pass.
type Outbox struct {
	db         *gorm.DB
	deliverers map[string]Deliverer
	sources    []string
	batch      int
	interval   time.Duration
	kick       chan struct{}
	out        io.Writer
}

// OutboxOpts holds parameters for creating an Outbox.
type OutboxOpts struct {
	DB           *gorm.DB
	Deliverers   map[string]Deliverer // keyed by message source
	BatchSize    int                  // defaults to DefaultOutboxBatch
	PollInterval time.Duration        // defaults to DefaultOutboxInterval
	Out          io.Writer            // defaults to os.Stdout
}

// NewOutbox creates an Outbox. Messages for sources without a deliverer
// are left queued.
func NewOutbox(opts OutboxOpts) (*Outbox, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: outbox: db is required")
	}
	if len(opts.Deliverers) == 0 {
		return nil, fmt.Errorf("telegraph: outbox: at least one deliverer is required")
	}
	sources := make([]string, 0, len(opts.Deliverers))
	for s := range opts.Deliverers {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultOutboxBatch
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultOutboxInterval
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Outbox{
		db:         opts.DB,
		deliverers: opts.Deliverers,
		sources:    sources,
		batch:      batch,
		interval:   interval,
		kick:       make(chan struct{}, 1),
		out:        out,
	}, nil
}

// Sources returns the sources this outbox delivers for.
func (o *Outbox) Sources() []string {
	return append([]string(nil), o.sources...)
}

// Flush delivers one batch of queued replies.
func (o *Outbox) Flush(ctx context.Context) (sent, failed int, err error) {
	pending, err := messaging.Pending(o.db, messaging.PendingOpts{Sources: o.sources, Limit: o.batch})
	if err != nil {
		return 0, 0, fmt.Errorf("telegraph: outbox: %w", err)
	}
	for i := range pending {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		msg := &pending[i]
		sourceID, err := o.deliverers[msg.Source].Deliver(ctx, msg)
		if err != nil {
			log.Printf("telegraph: outbox: deliver %d (%s): %v", msg.ID, msg.Source, err)
			failed++
			continue
		}
		if err := messaging.MarkProcessed(o.db, msg.ID, sourceID); err != nil {
			log.Printf("telegraph: outbox: %v", err)
			failed++
			continue
		}
		sent++
		fmt.Fprintf(o.out, "telegraph: outbox: delivered %d via %s [request=%s]\n", msg.ID, msg.Source, msg.RequestID)
	}
	return sent, failed, nil
}

// Kick asks a running outbox to flush without waiting for the next tick.
func (o *Outbox) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Run flushes on every tick and kick until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.kick:
		}
		if _, _, err := o.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Printf("%v", err)
		}
	}
}
