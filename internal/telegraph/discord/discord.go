// Package discord connects rfqdesk to a Discord guild over the Gateway.
// Replies to clients are sent as message replies so they stay attached to
// the message that opened or continued the request.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/rfqdesk/internal/telegraph"
)

const (
	platform = "discord"

	maxRetries    = 3
	baseBackoff   = 2 * time.Second
	maxBackoff    = 30 * time.Second
	inboundBuffer = 100
	// Discord rejects message content above this many characters.
	maxContentLen = 2000
)

// session is the subset of *discordgo.Session the adapter uses.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Adapter implements telegraph.Adapter for Discord.
type Adapter struct {
	botToken   string
	opsChannel string

	mu        sync.Mutex
	sess      session
	botUserID string
	connected bool
	closed    bool
	inbound   chan telegraph.InboundMessage
	removers  []func()

	backoff    time.Duration
	backoffCap time.Duration
}

// AdapterOpts configures a Discord Adapter. Session replaces the gateway
// session in tests.
type AdapterOpts struct {
	BotToken   string
	OpsChannel string // channel for notifications and digests

	Session session
}

// New creates a Discord Adapter. It does not connect.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		botToken:   opts.BotToken,
		opsChannel: opts.OpsChannel,
		sess:       opts.Session,
		inbound:    make(chan telegraph.InboundMessage, inboundBuffer),
		backoff:    baseBackoff,
		backoffCap: maxBackoff,
	}, nil
}

// Connect opens the gateway. The bot user id is learned from the Ready
// event; discordgo reconnects on its own after that.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
		a.sess = dg
	}

	a.removers = append(a.removers,
		a.sess.AddHandler(a.onReady),
		a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			log.Printf("discord: gateway disconnected")
		}),
	)
	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	a.SetBotUserID(r.User.ID)
	log.Printf("discord: connected as %s", r.User.Username)
}

// Listen registers the message handler and returns the inbound stream.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.removers = append(a.removers, a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	}))
	return a.inbound, nil
}

// Send posts msg and returns the new message id. A ThreadID names the
// message being replied to; an empty ChannelID posts to the operator
// channel.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) (string, error) {
	a.mu.Lock()
	connected, sess := a.connected, a.sess
	a.mu.Unlock()
	if !connected {
		return "", fmt.Errorf("discord: not connected")
	}

	channel := msg.ChannelID
	if channel == "" {
		channel = a.opsChannel
	}
	if channel == "" {
		return "", fmt.Errorf("discord: no channel specified")
	}

	data := messageSend(channel, msg)
	var sent *discordgo.Message
	err := a.withRateLimitRetry(ctx, func() error {
		var sendErr error
		sent, sendErr = sess.ChannelMessageSendComplex(channel, data)
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	if sent == nil {
		return "", nil
	}
	return sent.ID, nil
}

// Close removes the handlers, closes the inbound stream and the gateway.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removers {
		remove()
	}
	a.removers = nil
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's user id once the Ready event arrived.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID overrides the bot user id used for self-message filtering.
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

// handleMessage forwards a user message. Inside a Discord thread the
// thread is the channel, so ChannelID is always where a reply belongs.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	skip := a.closed || m.Author.ID == a.botUserID
	a.mu.Unlock()
	if skip {
		return
	}

	text := m.Content
	for _, att := range m.Attachments {
		log.Printf("discord: message %s has attachment %s (%s), not forwarded", m.ID, att.Filename, att.ContentType)
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts, _ = discordgo.SnowflakeTimestamp(m.ID)
	}
	name := m.Author.GlobalName
	if name == "" {
		name = m.Author.Username
	}

	a.inbound <- telegraph.InboundMessage{
		Platform:  platform,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		UserID:    m.Author.ID,
		UserName:  name,
		Text:      text,
		Timestamp: ts,
	}
}

// messageSend renders an OutboundMessage. Text beyond Discord's limit is
// cut, and events become embeds.
func messageSend(channel string, msg telegraph.OutboundMessage) *discordgo.MessageSend {
	content := msg.Text
	if r := []rune(content); len(r) > maxContentLen {
		content = string(r[:maxContentLen-3]) + "..."
	}
	data := &discordgo.MessageSend{Content: content}
	if msg.ThreadID != "" {
		fail := false
		data.Reference = &discordgo.MessageReference{
			MessageID:       msg.ThreadID,
			ChannelID:       channel,
			FailIfNotExists: &fail,
		}
	}
	for _, evt := range msg.Events {
		data.Embeds = append(data.Embeds, embed(evt))
	}
	return data
}

func embed(evt telegraph.FormattedEvent) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
		Color:       hexColor(evt.Color),
	}
	for _, f := range evt.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Short})
	}
	return e
}

// hexColor parses "#rrggbb" into Discord's integer color; anything else is 0.
func hexColor(s string) int {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

// withRateLimitRetry retries fn on HTTP 429 with exponential backoff.
func (a *Adapter) withRateLimitRetry(ctx context.Context, fn func() error) error {
	wait := a.backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		var restErr *discordgo.RESTError
		if err == nil || attempt == maxRetries || !errors.As(err, &restErr) ||
			restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v", attempt+1, maxRetries, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > a.backoffCap {
			wait = a.backoffCap
		}
	}
}
