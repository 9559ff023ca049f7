package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/rfqdesk/internal/telegraph"
)

// --- fake session ---

type fakeSession struct {
	mu       sync.Mutex
	openErr  error
	sendErrs []error
	sent     []sentMessage
	handlers []interface{}
	removed  int
	closed   bool
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func (f *fakeSession) Open() error { return f.openErr }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "1200000000000000001"}, nil
}

func (f *fakeSession) AddHandler(handler interface{}) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
	return func() {
		f.mu.Lock()
		f.removed++
		f.mu.Unlock()
	}
}

// messageHandler returns the MessageCreate handler registered by Listen.
func (f *fakeSession) messageHandler(t *testing.T) func(*discordgo.Session, *discordgo.MessageCreate) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.MessageCreate)); ok {
			return fn
		}
	}
	t.Fatal("no MessageCreate handler registered")
	return nil
}

func connected(t *testing.T) (*Adapter, *fakeSession) {
	t.Helper()
	sess := &fakeSession{}
	a, err := New(AdapterOpts{OpsChannel: "ops", Session: sess})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.backoff = time.Millisecond
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, sess
}

func create(id, channel, authorID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: id, ChannelID: channel, Content: content,
		Author: &discordgo.User{ID: authorID, Username: "compras_" + authorID},
	}}
}

func rateLimited() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
}

// --- New / Connect ---

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Error("expected error without bot token")
	}
}

func TestConnect_LearnsBotIDFromReady(t *testing.T) {
	a, sess := connected(t)
	ready, ok := sess.handlers[0].(func(*discordgo.Session, *discordgo.Ready))
	if !ok {
		t.Fatalf("first handler = %T, want Ready handler", sess.handlers[0])
	}
	ready(nil, &discordgo.Ready{User: &discordgo.User{ID: "BOT", Username: "rfqdesk"}})
	if a.BotUserID() != "BOT" {
		t.Errorf("BotUserID = %q", a.BotUserID())
	}
}

func TestConnect_OpenError(t *testing.T) {
	a, _ := New(AdapterOpts{Session: &fakeSession{openErr: errors.New("4004 authentication failed")}})
	if err := a.Connect(context.Background()); err == nil || !strings.Contains(err.Error(), "open gateway") {
		t.Errorf("err = %v", err)
	}
}

// --- Listen ---

func TestListen_ForwardsUserMessages(t *testing.T) {
	a, sess := connected(t)
	a.SetBotUserID("BOT")
	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	handle := sess.messageHandler(t)

	handle(nil, create("1", "C1", "BOT", "echo"))
	bot := create("2", "C1", "B2", "otro bot")
	bot.Author.Bot = true
	handle(nil, bot)
	handle(nil, create("3", "C1", "U1", "   "))
	handle(nil, create("1200000000000000000", "C1", "U1", "Necesito 20 toneladas de varilla"))

	select {
	case msg := <-inbound:
		if msg.Platform != "discord" || msg.ChannelID != "C1" || msg.MessageID != "1200000000000000000" || msg.UserName != "compras_U1" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("timestamp should come from the snowflake")
		}
	default:
		t.Fatal("expected a forwarded message")
	}
	select {
	case extra := <-inbound:
		t.Errorf("unexpected message %+v", extra)
	default:
	}
}

func TestListen_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: &fakeSession{}})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Error("expected error before Connect")
	}
}

// --- Send ---

func TestSend_ReplyReferencesMessage(t *testing.T) {
	a, sess := connected(t)

	id, err := a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", ThreadID: "1200000000000000000", Text: "¿En qué unidad?"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "1200000000000000001" {
		t.Errorf("id = %q", id)
	}
	got := sess.sent[0]
	if got.channelID != "C1" || got.data.Reference == nil || got.data.Reference.MessageID != "1200000000000000000" {
		t.Errorf("sent = %+v", got)
	}
}

func TestSend_EventsToOpsChannel(t *testing.T) {
	a, sess := connected(t)
	_, err := a.Send(context.Background(), telegraph.OutboundMessage{Events: []telegraph.FormattedEvent{{
		Title: "Pending requests", Color: "#36a64f",
		Fields: []telegraph.Field{{Name: "Category", Value: "fasteners", Short: true}},
	}}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := sess.sent[0]
	if got.channelID != "ops" || got.data.Reference != nil || len(got.data.Embeds) != 1 {
		t.Fatalf("sent = %+v", got)
	}
	if e := got.data.Embeds[0]; e.Color != 0x36a64f || !e.Fields[0].Inline {
		t.Errorf("embed = %+v", e)
	}
}

func TestSend_TruncatesLongText(t *testing.T) {
	a, sess := connected(t)
	a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", Text: strings.Repeat("ñ", 2500)})
	if n := len([]rune(sess.sent[0].data.Content)); n != maxContentLen {
		t.Errorf("content runes = %d, want %d", n, maxContentLen)
	}
}

func TestSend_RateLimitRetry(t *testing.T) {
	a, sess := connected(t)
	sess.sendErrs = []error{rateLimited(), rateLimited()}
	if _, err := a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", Text: "hola"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sess.sendErrs = []error{rateLimited(), rateLimited(), rateLimited(), rateLimited()}
	if _, err := a.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "C1", Text: "hola"}); err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestSend_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: &fakeSession{}, OpsChannel: "ops"})
	if _, err := a.Send(context.Background(), telegraph.OutboundMessage{Text: "hola"}); err == nil {
		t.Error("expected error before Connect")
	}
}

// --- Close ---

func TestClose_RemovesHandlers(t *testing.T) {
	a, sess := connected(t)
	a.Listen(context.Background())
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sess.removed != 3 || !sess.closed {
		t.Errorf("removed = %d closed = %v", sess.removed, sess.closed)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestHexColor(t *testing.T) {
	for in, want := range map[string]int{"#ff0000": 0xff0000, "36a64f": 0x36a64f, "": 0, "#zz": 0} {
		if got := hexColor(in); got != want {
			t.Errorf("hexColor(%q) = %d, want %d", in, got, want)
		}
	}
}
