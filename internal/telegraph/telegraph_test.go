package telegraph

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/rfqdesk/internal/config"
	rfqdb "github.com/zulandar/rfqdesk/internal/db"
	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testCfg() *config.Config {
	cfg := config.Default()
	cfg.Telegraph.Platform = "slack"
	cfg.Telegraph.Channel = "C-OPS"
	return cfg
}

// openTestDB opens a file-backed sqlite database so goroutines sharing the
// pool see the same schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telegraph.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := rfqdb.AutoMigrate(db); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func newTestOrchestrator(t *testing.T, db *gorm.DB) *intake.Orchestrator {
	t.Helper()
	o, err := intake.NewOrchestrator(intake.OrchestratorOpts{DB: db})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- NewDaemon tests ---

func TestNewDaemon_Validation(t *testing.T) {
	db := openTestDB(t)
	orch := newTestOrchestrator(t, db)
	tests := []struct {
		name string
		opts DaemonOpts
		want string
	}{
		{"no db", DaemonOpts{Config: testCfg(), Adapter: NewMockAdapter(), Intake: orch}, "db is required"},
		{"no config", DaemonOpts{DB: db, Adapter: NewMockAdapter(), Intake: orch}, "config is required"},
		{"no adapter", DaemonOpts{DB: db, Config: testCfg(), Intake: orch}, "adapter is required"},
		{"no intake", DaemonOpts{DB: db, Config: testCfg(), Adapter: NewMockAdapter()}, "intake is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDaemon(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNewDaemon_WarnsWithoutOutbox(t *testing.T) {
	db := openTestDB(t)
	var out bytes.Buffer
	_, err := NewDaemon(DaemonOpts{
		DB: db, Config: testCfg(), Adapter: NewMockAdapter(),
		Intake: newTestOrchestrator(t, db), Out: &out,
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if !strings.Contains(out.String(), "replies stay queued") {
		t.Errorf("output = %q", out.String())
	}
}

// --- Run ---

func TestDaemon_RunDeliversFollowUpInThread(t *testing.T) {
	db := openTestDB(t)
	adapter := NewMockAdapter()
	orch := newTestOrchestrator(t, db)
	outbox, err := NewOutbox(OutboxOpts{
		DB:           db,
		Deliverers:   map[string]Deliverer{"slack": AdapterDeliverer{Adapter: adapter}},
		PollInterval: time.Hour,
		Out:          &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("NewOutbox: %v", err)
	}
	var out bytes.Buffer
	d, err := NewDaemon(DaemonOpts{
		DB: db, Config: testCfg(), Adapter: adapter,
		Intake: orch, Requests: orch, Outbox: outbox, Out: &out,
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "online message", func() bool { return adapter.SentCount() >= 1 })
	adapter.SimulateInbound(InboundMessage{
		Platform:  "slack",
		ChannelID: "C-CLIENT",
		MessageID: "1700000000.000100",
		UserID:    "U42",
		UserName:  "compras",
		Text:      "Necesito 500 tornillos M8",
	})

	// The kick delivers the follow-up long before the hourly tick.
	var reply OutboundMessage
	waitFor(t, "follow-up delivery", func() bool {
		for _, m := range adapter.AllSent() {
			if m.ChannelID == "C-CLIENT" {
				reply = m
				return true
			}
		}
		return false
	})
	if reply.ThreadID != "1700000000.000100" {
		t.Errorf("ThreadID = %q, want the client's message", reply.ThreadID)
	}
	if !strings.Contains(reply.Text, "Unit") {
		t.Errorf("reply = %q, want a question about the unit", reply.Text)
	}

	waitFor(t, "outbound marked processed", func() bool {
		var n int64
		db.Model(&models.Message{}).Where("direction = ? AND processed = ?", models.DirectionOutbound, true).Count(&n)
		return n == 1
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	last, _ := adapter.LastSent()
	if last.Text != "rfqdesk shutting down" {
		t.Errorf("last message = %q", last.Text)
	}
}

func TestDaemon_RunConnectError(t *testing.T) {
	db := openTestDB(t)
	adapter := NewMockAdapter()
	adapter.Close()
	d, err := NewDaemon(DaemonOpts{
		DB: db, Config: testCfg(), Adapter: adapter,
		Intake: newTestOrchestrator(t, db), Out: &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if err := d.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "telegraph: connect") {
		t.Errorf("err = %v", err)
	}
}

func TestDaemon_HandleDetectedEventAddsMatches(t *testing.T) {
	db := openTestDB(t)
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	req := models.Request{ID: "req-ready", Channel: "slack", SenderIdentity: "u42", Status: models.StatusReady, Category: "fasteners", LastActivityAt: t0}
	if err := db.Create(&req).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	matcher := &fakeMatcher{ranked: rankedFixture()}
	d, err := NewDaemon(DaemonOpts{
		DB: db, Config: testCfg(), Adapter: adapter,
		Intake: newTestOrchestrator(t, db), Matcher: matcher, Out: &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	d.handleDetectedEvent(context.Background(), DetectedEvent{
		Type: EventStatusChange, RequestID: "req-ready", Channel: "slack",
		OldStatus: models.StatusIncomplete, NewStatus: models.StatusReady,
	})
	if matcher.calls != 1 {
		t.Errorf("matcher calls = %d, want 1", matcher.calls)
	}
	msg, ok := adapter.LastSent()
	if !ok || len(msg.Events) != 1 {
		t.Fatalf("sent = %+v", msg)
	}
	if !strings.Contains(msg.Events[0].Body, "1. Tornillos del Norte") {
		t.Errorf("body = %q", msg.Events[0].Body)
	}
}

func TestDaemon_FireDigest(t *testing.T) {
	db := openTestDB(t)
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	now := time.Now()
	d, err := NewDaemon(DaemonOpts{
		DB: db, Config: testCfg(), Adapter: adapter,
		Intake: newTestOrchestrator(t, db), Out: &bytes.Buffer{},
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	d.fireDigest(context.Background())
	if adapter.SentCount() != 0 {
		t.Fatalf("digest sent with nothing pending")
	}

	db.Create(&models.Request{ID: "r1", Channel: "email", SenderIdentity: "a@b.mx", Status: models.StatusIncomplete, LastActivityAt: now, CreatedAt: now.Add(-time.Hour)})
	d.fireDigest(context.Background())
	msg, ok := adapter.LastSent()
	if !ok || len(msg.Events) != 1 || !strings.HasPrefix(msg.Events[0].Title, "Pending requests") {
		t.Fatalf("sent = %+v", msg)
	}
}
