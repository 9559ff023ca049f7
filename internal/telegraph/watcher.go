package telegraph

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/rfqdesk/internal/matching"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// Default watcher settings.
const (
	DefaultPollInterval = 15 * time.Second
	DefaultWatchWindow  = 30 * 24 * time.Hour
)

// EventType identifies the kind of event detected by the watcher.
type EventType string

const (
	EventRequestCreated EventType = "request_created"
	EventStatusChange   EventType = "request_status_change"
)

// DetectedEvent is a raw event detected by the watcher before formatting.
type DetectedEvent struct {
	Type      EventType
	Timestamp time.Time

	RequestID string
	Channel   string
	Sender    string
	Category  string
	RuleID    string
	OldStatus string
	NewStatus string
	Missing   string // encoded missing field IDs

	// Filled in by the daemon for requests that became ready.
	Matches []matching.Ranked

	// Digest events
	Title string
	Body  string
}

// requestSnapshot holds the last-known state of a request for change detection.
type requestSnapshot struct {
	Status string
}

// Watcher polls the request store for new requests and status changes.
type Watcher struct {
	db           *gorm.DB
	pollInterval time.Duration
	window       time.Duration
	now          func() time.Time

	mu       sync.Mutex
	snapshot map[string]requestSnapshot // requestID -> last-known state
	seeded   bool                       // true after first poll (baseline established)
}

// WatcherOpts holds parameters for creating a Watcher.
type WatcherOpts struct {
	DB           *gorm.DB
	PollInterval time.Duration // defaults to DefaultPollInterval
	Window       time.Duration // only requests active this recently; defaults to DefaultWatchWindow
	Now          func() time.Time
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOpts) (*Watcher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: watcher: db is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWatchWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Watcher{
		db:           opts.DB,
		pollInterval: poll,
		window:       window,
		now:          now,
		snapshot:     make(map[string]requestSnapshot),
	}, nil
}

// Poll runs one detection cycle and returns the detected events. The first
// call only records a baseline.
func (w *Watcher) Poll(ctx context.Context) ([]DetectedEvent, error) {
	now := w.now()
	var reqs []models.Request
	if err := w.db.WithContext(ctx).
		Select("id, channel, sender_identity, category, category_rule_id, status, missing_fields").
		Where("last_activity_at >= ?", now.Add(-w.window)).
		Order("created_at ASC").
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("telegraph: watcher: load requests: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var events []DetectedEvent
	current := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		current[r.ID] = true
		old, exists := w.snapshot[r.ID]
		w.snapshot[r.ID] = requestSnapshot{Status: r.Status}
		if !w.seeded {
			continue
		}
		ev := DetectedEvent{
			Timestamp: now,
			RequestID: r.ID,
			Channel:   r.Channel,
			Sender:    r.SenderIdentity,
			Category:  r.Category,
			RuleID:    r.CategoryRuleID,
			OldStatus: old.Status,
			NewStatus: r.Status,
			Missing:   r.MissingFields,
		}
		switch {
		case !exists:
			ev.Type = EventRequestCreated
		case old.Status != r.Status:
			ev.Type = EventStatusChange
		default:
			continue
		}
		events = append(events, ev)
	}

	// Forget requests that aged out of the window.
	for id := range w.snapshot {
		if !current[id] {
			delete(w.snapshot, id)
		}
	}
	w.seeded = true
	return events, nil
}

// Run starts the watcher loop. Detected events are sent to the returned
// channel, which is closed when the context is cancelled.
func (w *Watcher) Run(ctx context.Context) <-chan DetectedEvent {
	ch := make(chan DetectedEvent, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, err := w.Poll(ctx)
				if err != nil {
					log.Printf("%v", err)
					continue
				}
				for _, e := range events {
					select {
					case ch <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch
}
