// Package telegraph connects rfqdesk to chat platforms (Slack, Discord). It
// feeds chat messages into intake, delivers queued replies and posts
// operator notifications.
package telegraph

import (
	"context"
	"strings"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message and returns the platform's id for
	// it. An empty ChannelID targets the adapter's operator channel.
	Send(ctx context.Context, msg OutboundMessage) (string, error)

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "slack", "discord"
	ChannelID string    // platform-specific channel identifier
	ThreadID  string    // thread/conversation identifier (empty if top-level)
	MessageID string    // platform id of this message
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel
	ThreadID  string           // thread to reply in (empty for new top-level message)
	Text      string           // message text (platform-native formatting)
	Events    []FormattedEvent // structured event attachments
}

// FormattedEvent is a notification rendered as a chat attachment.
type FormattedEvent struct {
	Title    string  // headline, e.g. "Request 1f2c... ready"
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint (e.g. "#36a64f" for success)
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// EncodeTarget joins a channel and thread into the reply address stored on
// queued messages.
func EncodeTarget(channelID, threadID string) string {
	if threadID == "" {
		return channelID
	}
	return channelID + ":" + threadID
}

// ParseTarget splits a reply address produced by EncodeTarget.
func ParseTarget(target string) (channelID, threadID string) {
	channelID, threadID, _ = strings.Cut(target, ":")
	return channelID, threadID
}
