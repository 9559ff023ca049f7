package telegraph

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Compile-time interface compliance checks.
var _ Adapter = (*MockAdapter)(nil)
var _ BotUserIDer = (*MockAdapter)(nil)

func TestMockAdapter_ConnectAndClose(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Connect(ctx); err == nil {
		t.Fatal("Connect after Close should fail")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("double Close should succeed: %v", err)
	}
}

func TestMockAdapter_RequiresConnect(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	if _, err := m.Listen(ctx); err == nil {
		t.Error("Listen before Connect should fail")
	}
	if _, err := m.Send(ctx, OutboundMessage{Text: "hola"}); err == nil {
		t.Error("Send before Connect should fail")
	}
}

func TestMockAdapter_SimulateInbound(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)
	ch, err := m.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	m.SimulateInbound(InboundMessage{Platform: "test", ChannelID: "C123", MessageID: "M1", UserID: "U456", Text: "hola"})

	select {
	case msg := <-ch:
		if msg.Text != "hola" || msg.MessageID != "M1" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("Timestamp should be set automatically")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestMockAdapter_SendReturnsIDs(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	if _, ok := m.LastSent(); ok {
		t.Fatal("LastSent should return false when no messages sent")
	}
	id1, err := m.Send(ctx, OutboundMessage{ChannelID: "C1", Text: "first"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	id2, _ := m.Send(ctx, OutboundMessage{ChannelID: "C1", Text: "second"})
	if id1 != "mock-1" || id2 != "mock-2" {
		t.Errorf("ids = %q, %q", id1, id2)
	}
	last, _ := m.LastSent()
	if last.Text != "second" || m.SentCount() != 2 {
		t.Errorf("last = %+v count = %d", last, m.SentCount())
	}

	all := m.AllSent()
	all[0].Text = "modified"
	if m.AllSent()[0].Text != "first" {
		t.Error("AllSent should return a copy")
	}
}

func TestMockAdapter_SendError(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	m.SetSendError(errors.New("rate limited"))
	if _, err := m.Send(ctx, OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected send error")
	}
	if m.SentCount() != 0 {
		t.Errorf("failed send was recorded")
	}
	m.SetSendError(nil)
	if _, err := m.Send(ctx, OutboundMessage{Text: "x"}); err != nil {
		t.Fatalf("Send after clearing error: %v", err)
	}
}

func TestMockAdapter_BotUserID(t *testing.T) {
	m := NewMockAdapter()
	m.SetBotUserID("UBOT")
	if m.BotUserID() != "UBOT" {
		t.Errorf("BotUserID = %q", m.BotUserID())
	}
}

// --- Targets ---

func TestTargets(t *testing.T) {
	tests := []struct {
		channel, thread, encoded string
	}{
		{"C1", "1700000000.000100", "C1:1700000000.000100"},
		{"C1", "", "C1"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := EncodeTarget(tt.channel, tt.thread); got != tt.encoded {
			t.Errorf("EncodeTarget(%q, %q) = %q, want %q", tt.channel, tt.thread, got, tt.encoded)
		}
		ch, th := ParseTarget(tt.encoded)
		if ch != tt.channel || th != tt.thread {
			t.Errorf("ParseTarget(%q) = %q, %q", tt.encoded, ch, th)
		}
	}
}
