package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/rfqdesk/internal/intake"
)

// commandPrefix is the prefix that triggers operator command handling.
const commandPrefix = "!rfq"

// Intake accepts inbound client messages. *intake.Orchestrator satisfies it.
type Intake interface {
	HandleInbound(ctx context.Context, msg intake.Inbound) (*intake.Outcome, error)
}

// Router classifies inbound chat messages and routes them: operator commands
// to the command handler, everything else from a person to intake.
type Router struct {
	intake     Intake
	cmdHandler *CommandHandler
	adapter    Adapter
	botUserID  string // the bot's own user ID (to filter self-messages)
	onQueued   func()
	out        io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Intake     Intake
	CmdHandler *CommandHandler
	Adapter    Adapter
	BotUserID  string    // bot's user ID for self-message filtering
	OnQueued   func()    // called after intake queues a reply, e.g. to wake the outbox
	Out        io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Intake == nil {
		return nil, fmt.Errorf("telegraph: router: intake is required")
	}
	if opts.CmdHandler == nil {
		return nil, fmt.Errorf("telegraph: router: command handler is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		intake:     opts.Intake,
		cmdHandler: opts.CmdHandler,
		adapter:    opts.Adapter,
		botUserID:  opts.BotUserID,
		onQueued:   opts.OnQueued,
		out:        out,
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Bot self-message or empty text → ignore
//  2. Command prefix "!rfq" or @mention + known command → command handler
//  3. Everything else → intake, replying in the message's thread
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	fmt.Fprintf(r.out, "telegraph: router: recv [ch=%s thread=%s user=%s] %q\n",
		msg.ChannelID, msg.ThreadID, msg.UserName, truncate(text, 80))

	if isCommand(text) {
		r.handleCommand(ctx, msg, text)
		return
	}
	if mentionCmd := extractMentionCommand(text, r.botUserID); mentionCmd != "" {
		r.handleCommand(ctx, msg, commandPrefix+" "+mentionCmd)
		return
	}

	r.handleIntake(ctx, msg, stripMentions(text))
}

// handleIntake passes a client message to intake. The reply itself is queued
// by intake and delivered by the outbox.
func (r *Router) handleIntake(ctx context.Context, msg InboundMessage, text string) {
	if text == "" {
		return
	}
	in := intake.Inbound{
		Source:         msg.Platform,
		SourceID:       msg.MessageID,
		SenderIdentity: msg.UserID,
		Content:        text,
		Metadata: intake.Metadata{
			From:      msg.UserName,
			ReplyTo:   EncodeTarget(msg.ChannelID, replyThread(msg)),
			Timestamp: msg.Timestamp,
		},
	}
	outcome, err := r.intake.HandleInbound(ctx, in)
	if err != nil {
		log.Printf("telegraph: router: intake from %s: %v", msg.UserID, err)
		return
	}
	verb := "updated"
	if outcome.Created {
		verb = "created"
	}
	fmt.Fprintf(r.out, "telegraph: router: request %s %s [status=%s]\n",
		outcome.Request.ID, verb, outcome.Request.Status)
	if outcome.Outbound != nil && r.onQueued != nil {
		r.onQueued()
	}
}

// replyThread keeps replies inside the client's thread, starting one from
// the message itself when it was top-level.
func replyThread(msg InboundMessage) string {
	if msg.ThreadID != "" {
		return msg.ThreadID
	}
	return msg.MessageID
}

// truncate returns s cut to maxLen runes with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}

// handleCommand executes a "!rfq" command and sends the response.
func (r *Router) handleCommand(ctx context.Context, msg InboundMessage, text string) {
	response := r.cmdHandler.Execute(ctx, text)
	if _, err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      response,
	}); err != nil {
		log.Printf("telegraph: router: send command response: %v", err)
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// isCommand returns true if the text starts with the command prefix.
func isCommand(text string) bool {
	return strings.HasPrefix(text, commandPrefix+" ") || text == commandPrefix
}

// mentionRe matches Slack <@U123ABC> and Discord <@123> or <@!123> mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// knownCommands is the set of top-level commands the CommandHandler supports.
var knownCommands = map[string]bool{
	"status":     true,
	"show":       true,
	"list":       true,
	"autoreply":  true,
	"reevaluate": true,
	"match":      true,
	"quotes":     true,
	"help":       true,
}

// extractMentionCommand returns the command text when the message mentions
// the bot and its first word is a known command. Mentions of anyone else
// never make a command.
func extractMentionCommand(text, botID string) string {
	if botID == "" {
		return ""
	}
	if !strings.Contains(text, "<@"+botID+">") && !strings.Contains(text, "<@!"+botID+">") {
		return ""
	}
	stripped := stripMentions(text)
	if stripped == "" {
		return ""
	}
	if knownCommands[strings.Fields(stripped)[0]] {
		return stripped
	}
	return ""
}

func stripMentions(text string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
}
