package telegraph

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// fakeIntake records inbound messages and returns a canned outcome.
type fakeIntake struct {
	mu      sync.Mutex
	calls   []intake.Inbound
	queue   bool
	failErr error
}

func (f *fakeIntake) HandleInbound(ctx context.Context, msg intake.Inbound) (*intake.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if f.failErr != nil {
		return nil, f.failErr
	}
	out := &intake.Outcome{
		Request: &models.Request{ID: "req-1", Status: models.StatusIncomplete},
		Created: len(f.calls) == 1,
	}
	if f.queue {
		out.Outbound = &models.Message{ID: 1}
	}
	return out, nil
}

func (f *fakeIntake) Calls() []intake.Inbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]intake.Inbound(nil), f.calls...)
}

func setupRouter(t *testing.T, db *gorm.DB, botUserID string) (*Router, *MockAdapter, *fakeIntake, *int) {
	t.Helper()
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	in := &fakeIntake{}

	cmdHandler, err := NewCommandHandler(CommandHandlerOpts{DB: db})
	if err != nil {
		t.Fatalf("new command handler: %v", err)
	}

	kicks := new(int)
	router, err := NewRouter(RouterOpts{
		Intake:     in,
		CmdHandler: cmdHandler,
		Adapter:    adapter,
		BotUserID:  botUserID,
		OnQueued:   func() { *kicks++ },
		Out:        &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router, adapter, in, kicks
}

// --- NewRouter tests ---

func TestNewRouter_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts RouterOpts
	}{
		{"nil intake", RouterOpts{CmdHandler: &CommandHandler{}, Adapter: NewMockAdapter()}},
		{"nil command handler", RouterOpts{Intake: &fakeIntake{}, Adapter: NewMockAdapter()}},
		{"nil adapter", RouterOpts{Intake: &fakeIntake{}, CmdHandler: &CommandHandler{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRouter(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// --- Handle tests ---

func TestRouter_IgnoresSelfAndEmpty(t *testing.T) {
	router, adapter, in, _ := setupRouter(t, openTestDB(t), "BOT")
	ctx := context.Background()

	router.Handle(ctx, InboundMessage{Platform: "slack", ChannelID: "C1", UserID: "BOT", Text: "Necesito cemento"})
	router.Handle(ctx, InboundMessage{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "   "})

	if len(in.Calls()) != 0 || adapter.SentCount() != 0 {
		t.Errorf("calls = %d sent = %d, want none", len(in.Calls()), adapter.SentCount())
	}
}

func TestRouter_CommandRepliesInThread(t *testing.T) {
	router, adapter, in, _ := setupRouter(t, openTestDB(t), "BOT")

	router.Handle(context.Background(), InboundMessage{
		Platform: "slack", ChannelID: "C-OPS", ThreadID: "T1", UserID: "U1", Text: "!rfq status",
	})

	if len(in.Calls()) != 0 {
		t.Error("command must not reach intake")
	}
	msg, ok := adapter.LastSent()
	if !ok {
		t.Fatal("expected a command response")
	}
	if msg.ChannelID != "C-OPS" || msg.ThreadID != "T1" {
		t.Errorf("target = %s/%s", msg.ChannelID, msg.ThreadID)
	}
	if !bytes.Contains([]byte(msg.Text), []byte("**Requests**")) {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestRouter_MentionCommand(t *testing.T) {
	router, adapter, in, _ := setupRouter(t, openTestDB(t), "UBOT")

	router.Handle(context.Background(), InboundMessage{
		Platform: "slack", ChannelID: "C-OPS", UserID: "U1", Text: "<@UBOT> help",
	})
	if len(in.Calls()) != 0 || adapter.SentCount() != 1 {
		t.Fatalf("calls = %d sent = %d", len(in.Calls()), adapter.SentCount())
	}
}

func TestRouter_MentionOfColleagueGoesToIntake(t *testing.T) {
	router, adapter, in, _ := setupRouter(t, openTestDB(t), "UBOT")

	router.Handle(context.Background(), InboundMessage{
		Platform: "slack", ChannelID: "C1", MessageID: "M1", UserID: "U1",
		Text: "<@UCOLLEAGUE> list de precios de tornillos M8 por favor",
	})
	calls := in.Calls()
	if len(calls) != 1 {
		t.Fatalf("intake calls = %d, want 1", len(calls))
	}
	if calls[0].Content != "list de precios de tornillos M8 por favor" {
		t.Errorf("Content = %q", calls[0].Content)
	}
	if adapter.SentCount() != 0 {
		t.Errorf("sent = %d, want no command reply", adapter.SentCount())
	}
}

func TestRouter_PlainCommandWordGoesToIntake(t *testing.T) {
	router, _, in, _ := setupRouter(t, openTestDB(t), "BOT")

	// Without a mention a client writing "status ..." is a client message.
	router.Handle(context.Background(), InboundMessage{
		Platform: "slack", ChannelID: "C1", MessageID: "M1", UserID: "U1", Text: "status de mi pedido de tornillos",
	})
	if len(in.Calls()) != 1 {
		t.Fatalf("intake calls = %d, want 1", len(in.Calls()))
	}
}

func TestRouter_ClientMessageBuildsInbound(t *testing.T) {
	router, _, in, kicks := setupRouter(t, openTestDB(t), "BOT")
	in.queue = true
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	router.Handle(context.Background(), InboundMessage{
		Platform: "discord", ChannelID: "C1", MessageID: "M1", UserID: "U1", UserName: "compras",
		Text: "<@123> Necesito 20 toneladas de varilla", Timestamp: at,
	})

	calls := in.Calls()
	if len(calls) != 1 {
		t.Fatalf("intake calls = %d, want 1", len(calls))
	}
	got := calls[0]
	if got.Source != "discord" || got.SourceID != "M1" || got.SenderIdentity != "U1" {
		t.Errorf("inbound = %+v", got)
	}
	if got.Content != "Necesito 20 toneladas de varilla" {
		t.Errorf("Content = %q, want mention stripped", got.Content)
	}
	if got.Metadata.ReplyTo != "C1:M1" || got.Metadata.From != "compras" || !got.Metadata.Timestamp.Equal(at) {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if *kicks != 1 {
		t.Errorf("outbox kicks = %d, want 1", *kicks)
	}
}

func TestRouter_ThreadReplyKeepsThread(t *testing.T) {
	router, _, in, kicks := setupRouter(t, openTestDB(t), "")

	router.Handle(context.Background(), InboundMessage{
		Platform: "slack", ChannelID: "C1", ThreadID: "T9", MessageID: "M2", UserID: "U1", Text: "son 500 piezas",
	})
	if got := in.Calls()[0].Metadata.ReplyTo; got != "C1:T9" {
		t.Errorf("ReplyTo = %q, want C1:T9", got)
	}
	if *kicks != 0 {
		t.Errorf("kicks = %d, want 0 when nothing was queued", *kicks)
	}
}

func TestRouter_IntakeErrorIsContained(t *testing.T) {
	router, adapter, in, kicks := setupRouter(t, openTestDB(t), "")
	in.failErr = errors.New("db down")

	router.Handle(context.Background(), InboundMessage{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "hola"})
	if adapter.SentCount() != 0 || *kicks != 0 {
		t.Errorf("sent = %d kicks = %d", adapter.SentCount(), *kicks)
	}
}

// --- helpers ---

func TestExtractMentionCommand(t *testing.T) {
	tests := []struct {
		text  string
		botID string
		want  string
	}{
		{"<@U123> status", "U123", "status"},
		{"<@!123> show abc", "123", "show abc"},
		{"<@123> show abc", "123", "show abc"},
		{"<@U123> necesito cemento", "U123", ""},
		{"status", "U123", ""},
		{"<@U123>", "U123", ""},
		{"<@U999> status", "U123", ""},
		{"<@U123> status", "", ""},
	}
	for _, tt := range tests {
		if got := extractMentionCommand(tt.text, tt.botID); got != tt.want {
			t.Errorf("extractMentionCommand(%q, %q) = %q, want %q", tt.text, tt.botID, got, tt.want)
		}
	}
}

func TestIsCommand(t *testing.T) {
	for text, want := range map[string]bool{
		"!rfq":        true,
		"!rfq status": true,
		"!rfqstatus":  false,
		"hola !rfq":   false,
	} {
		if got := isCommand(text); got != want {
			t.Errorf("isCommand(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
	got := truncate("cotización de válvulas", 8)
	if got != "cotizaci..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ñññ", 2); got != "ññ..." || !utf8.ValidString(got) {
		t.Errorf("truncate = %q", got)
	}
}
