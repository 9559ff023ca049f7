package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/config"
	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// Daemon is the main telegraph process. It connects to a chat platform via
// an Adapter, feeds client messages into intake, delivers queued replies and
// posts request events to the operator channel.
type Daemon struct {
	db       *gorm.DB
	cfg      *config.Config
	adapter  Adapter
	intake   Intake
	requests Requests
	matcher  SupplierMatcher
	catalog  *catalog.Catalog
	outbox   *Outbox
	now      func() time.Time
	out      io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB       *gorm.DB
	Config   *config.Config
	Adapter  Adapter
	Intake   Intake
	Requests Requests         // optional; enables autoreply and reevaluate commands
	Matcher  SupplierMatcher  // optional; enables match and ready-event suggestions
	Catalog  *catalog.Catalog // labels for missing fields; defaults to catalog.Default()
	Outbox   *Outbox          // optional; run by the daemon and kicked on new replies
	Now      func() time.Time
	Out      io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("telegraph: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.Intake == nil {
		return nil, fmt.Errorf("telegraph: intake is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Outbox == nil {
		fmt.Fprintf(out, "telegraph: no outbox configured; replies stay queued\n")
	}
	return &Daemon{
		db:       opts.DB,
		cfg:      opts.Config,
		adapter:  opts.Adapter,
		intake:   opts.Intake,
		requests: opts.Requests,
		matcher:  opts.Matcher,
		catalog:  cat,
		outbox:   opts.Outbox,
		now:      now,
		out:      out,
	}, nil
}

// Run starts the telegraph daemon. It connects the adapter, builds all
// subsystems (Router, Watcher, Outbox, digest scheduler), and blocks until
// the context is cancelled. On shutdown it closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	cmdHandler, err := NewCommandHandler(CommandHandlerOpts{
		DB:       d.db,
		Requests: d.requests,
		Matcher:  d.matcher,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build command handler: %w", err)
	}

	var onQueued func()
	if d.outbox != nil {
		onQueued = d.outbox.Kick
	}
	router, err := NewRouter(RouterOpts{
		Intake:     d.intake,
		CmdHandler: cmdHandler,
		Adapter:    d.adapter,
		BotUserID:  botUserID,
		OnQueued:   onQueued,
		Out:        d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	watcher, err := NewWatcher(WatcherOpts{
		DB:  d.db,
		Now: d.now,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build watcher: %w", err)
	}
	// Establish the baseline so requests that existed before startup are
	// not announced.
	if _, err := watcher.Poll(ctx); err != nil {
		log.Printf("%v", err)
	}
	go d.dispatchEvents(ctx, watcher.Run(ctx))

	if d.outbox != nil {
		go d.outbox.Run(ctx)
	}
	go d.runDigestScheduler(ctx)

	fmt.Fprintf(d.out, "Telegraph online\n")
	if _, err := d.adapter.Send(ctx, OutboundMessage{Text: "rfqdesk online"}); err != nil {
		log.Printf("telegraph: send online message: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Telegraph shutting down...\n")
			d.sendShutdown()
			if err := d.adapter.Close(); err != nil {
				log.Printf("telegraph: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Telegraph stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// dispatchEvents formats watcher events and posts them to the operator channel.
func (d *Daemon) dispatchEvents(ctx context.Context, eventsCh <-chan DetectedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			d.handleDetectedEvent(ctx, event)
		}
	}
}

// handleDetectedEvent formats one event and sends it via the adapter.
// Requests that became ready carry supplier suggestions when a matcher is
// configured.
func (d *Daemon) handleDetectedEvent(ctx context.Context, event DetectedEvent) {
	if event.NewStatus == models.StatusReady && d.matcher != nil {
		req, err := intake.GetRequest(d.db, event.RequestID)
		if err == nil {
			event.Matches, err = d.matcher.Match(ctx, req)
		}
		if err != nil {
			log.Printf("telegraph: match suppliers for %s: %v", event.RequestID, err)
		}
	}
	formatted := FormatRequestEvent(event, d.catalog)
	if _, err := d.adapter.Send(ctx, OutboundMessage{
		Events: []FormattedEvent{formatted},
	}); err != nil {
		log.Printf("telegraph: send event %s: %v", event.Type, err)
	}
}

// runDigestScheduler posts the pending-request digest on its cron schedule.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	cfg := d.cfg.Telegraph.Digest
	if !cfg.Enabled || cfg.Cron == "" {
		return
	}
	wait := nextCronDuration(cfg.Cron, d.now())
	if wait <= 0 {
		log.Printf("telegraph: digest: invalid cron %q", cfg.Cron)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fireDigest(ctx)
			if wait := nextCronDuration(cfg.Cron, d.now()); wait > 0 {
				timer.Reset(wait)
			}
		}
	}
}

// fireDigest builds and sends the digest. Nothing is sent when nothing is pending.
func (d *Daemon) fireDigest(ctx context.Context) {
	event, err := BuildDigest(d.db, d.now(), d.cfg.Intake.ActivityWindow())
	if err != nil {
		log.Printf("%v", err)
		return
	}
	if event == nil {
		return
	}
	formatted := FormattedEvent{
		Title:    event.Title,
		Body:     event.Body,
		Severity: "info",
		Color:    ColorInfo,
	}
	if _, err := d.adapter.Send(ctx, OutboundMessage{
		Events: []FormattedEvent{formatted},
	}); err != nil {
		log.Printf("telegraph: send digest: %v", err)
	}
}

// sendShutdown posts a shutdown message to the adapter (best-effort).
func (d *Daemon) sendShutdown() {
	if _, err := d.adapter.Send(context.Background(), OutboundMessage{
		Text: "rfqdesk shutting down",
	}); err != nil {
		log.Printf("telegraph: send shutdown message: %v", err)
	}
}
