// Package slack connects rfqdesk to a Slack workspace over Socket Mode.
// Client messages posted in any channel the bot is in become inbound
// requests; replies are threaded under the client's message.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/rfqdesk/internal/telegraph"
)

const (
	platform = "slack"

	maxRetries           = 3
	baseBackoff          = 2 * time.Second
	maxBackoff           = 2 * time.Minute
	maxReconnectAttempts = 10
	inboundBuffer        = 100
	seenLimit            = 500
)

// api is the subset of the Slack Web API the adapter calls.
type api interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socket is the subset of the Socket Mode client the adapter drives.
type socket interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

type socketModeClient struct{ c *socketmode.Client }

func (s socketModeClient) Run() error                        { return s.c.Run() }
func (s socketModeClient) EventsChan() chan socketmode.Event { return s.c.Events }
func (s socketModeClient) Ack(req socketmode.Request, payload ...interface{}) {
	s.c.Ack(req, payload...)
}

// Adapter implements telegraph.Adapter for Slack.
type Adapter struct {
	appToken   string
	botToken   string
	opsChannel string

	mu        sync.Mutex
	client    api
	sock      socket
	botUserID string
	connected bool
	closed    bool
	cancel    context.CancelFunc
	inbound   chan telegraph.InboundMessage
	names     map[string]string
	seen      map[string]bool
	seenOrder []string

	backoff      time.Duration
	backoffCap   time.Duration
	maxReconnect int
}

// AdapterOpts configures a Slack Adapter. Client and Socket replace the
// real API clients in tests.
type AdapterOpts struct {
	AppToken   string // xapp-... app-level token for Socket Mode
	BotToken   string // xoxb-... bot token
	OpsChannel string // channel for notifications and digests

	Client api
	Socket socket
}

// New creates a Slack Adapter. It does not connect.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		opsChannel:   opts.OpsChannel,
		client:       opts.Client,
		sock:         opts.Socket,
		inbound:      make(chan telegraph.InboundMessage, inboundBuffer),
		names:        make(map[string]string),
		seen:         make(map[string]bool),
		backoff:      baseBackoff,
		backoffCap:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect authenticates the bot and records its user id.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.client == nil {
		c := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = c
		a.sock = socketModeClient{c: socketmode.New(c)}
	}
	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.connected = true
	return nil
}

// Listen starts the Socket Mode loop and returns the inbound stream.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	go a.runSocket(listenCtx)
	go a.pump(listenCtx)
	return a.inbound, nil
}

// Send posts msg and returns the Slack timestamp of the new message. An
// empty ChannelID posts to the operator channel.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) (string, error) {
	a.mu.Lock()
	connected, client := a.connected, a.client
	a.mu.Unlock()
	if !connected {
		return "", fmt.Errorf("slack: not connected")
	}

	channel := msg.ChannelID
	if channel == "" {
		channel = a.opsChannel
	}
	if channel == "" {
		return "", fmt.Errorf("slack: no channel specified")
	}

	var ts string
	err := withRateLimitRetry(ctx, func() error {
		var postErr error
		_, ts, postErr = client.PostMessage(channel, msgOptions(msg)...)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

// Close stops the event loop and closes the inbound stream.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancel != nil {
		a.cancel()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's user id, known after Connect.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

func (a *Adapter) runSocket(ctx context.Context) {
	wait := a.backoff
	for attempt := 1; attempt <= a.maxReconnect; attempt++ {
		err := a.sock.Run()
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Printf("slack: socket mode stopped (attempt %d/%d): %v; retrying in %v",
			attempt, a.maxReconnect, err, wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > a.backoffCap {
			wait = a.backoffCap
		}
	}
	log.Printf("slack: giving up after %d socket mode reconnects", a.maxReconnect)
}

func (a *Adapter) pump(ctx context.Context) {
	events := a.sock.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		payload, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.sock.Ack(*evt.Request)
		}
		if payload.Type != slackevents.CallbackEvent {
			return
		}
		switch ev := payload.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			// Edits, joins and bot posts arrive as subtyped messages.
			if ev.BotID != "" || ev.SubType != "" {
				return
			}
			a.emit(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp, ev.User, ev.Text)
		case *slackevents.AppMentionEvent:
			a.emit(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp, ev.User, ev.Text)
		}
	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to socket mode")
	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)
	case socketmode.EventTypeDisconnect:
		log.Printf("slack: disconnect requested, reconnecting")
	}
}

// emit forwards one user message. Slack delivers both a message and an
// app_mention event for a mention in a channel, so messages are forwarded
// once per channel and ts.
func (a *Adapter) emit(channel, thread, ts, user, text string) {
	a.mu.Lock()
	skip := a.closed || user == "" || user == a.botUserID || a.markSeen(channel+"/"+ts)
	a.mu.Unlock()
	if skip {
		return
	}
	a.inbound <- telegraph.InboundMessage{
		Platform:  platform,
		ChannelID: channel,
		ThreadID:  thread,
		MessageID: ts,
		UserID:    user,
		UserName:  a.displayName(user),
		Text:      text,
		Timestamp: parseTimestamp(ts),
	}
}

// markSeen records key and reports whether it was already recorded. The
// caller holds a.mu.
func (a *Adapter) markSeen(key string) bool {
	if a.seen[key] {
		return true
	}
	a.seen[key] = true
	a.seenOrder = append(a.seenOrder, key)
	if len(a.seenOrder) > seenLimit {
		delete(a.seen, a.seenOrder[0])
		a.seenOrder = a.seenOrder[1:]
	}
	return false
}

// displayName resolves and caches a user's display name, falling back to
// the real name and then the id.
func (a *Adapter) displayName(userID string) string {
	a.mu.Lock()
	name, ok := a.names[userID]
	client := a.client
	a.mu.Unlock()
	if ok {
		return name
	}

	name = userID
	if u, err := client.GetUserInfo(userID); err == nil {
		switch {
		case u.Profile.DisplayName != "":
			name = u.Profile.DisplayName
		case u.RealName != "":
			name = u.RealName
		}
	}
	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

// msgOptions renders an OutboundMessage as Slack message options. Events
// become attachments and the text doubles as the notification fallback.
func msgOptions(msg telegraph.OutboundMessage) []slackapi.MsgOption {
	opts := []slackapi.MsgOption{slackapi.MsgOptionText(msg.Text, false)}
	if msg.ThreadID != "" {
		opts = append(opts, slackapi.MsgOptionTS(msg.ThreadID))
	}
	if len(msg.Events) > 0 {
		atts := make([]slackapi.Attachment, 0, len(msg.Events))
		for _, evt := range msg.Events {
			atts = append(atts, attachment(evt))
		}
		opts = append(opts, slackapi.MsgOptionAttachments(atts...))
	}
	return opts
}

func attachment(evt telegraph.FormattedEvent) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    evt.Color,
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: f.Short})
	}
	return att
}

// withRateLimitRetry retries fn while Slack answers with a rate limit,
// waiting the Retry-After Slack asks for.
func withRateLimitRetry(ctx context.Context, fn func() error) error {
	wait := time.Second
	for attempt := 0; ; attempt++ {
		err := fn()
		var rle *slackapi.RateLimitedError
		if err == nil || !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}
		if rle.RetryAfter > 0 {
			wait = rle.RetryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// parseTimestamp converts a Slack ts ("1700000000.000100") to a time.
func parseTimestamp(ts string) time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var usec int64
	if frac != "" {
		usec, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(sec, usec*int64(time.Microsecond)).UTC()
}
