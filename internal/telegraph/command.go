package telegraph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/matching"
	"github.com/zulandar/rfqdesk/internal/messaging"
	"github.com/zulandar/rfqdesk/internal/models"
	"github.com/zulandar/rfqdesk/internal/quotes"
	"gorm.io/gorm"
)

// Requests changes requests on an operator's behalf. *intake.Orchestrator
// satisfies it.
type Requests interface {
	Reevaluate(ctx context.Context, requestID string) (*intake.Outcome, error)
	SetAutoReply(ctx context.Context, requestID string, enabled bool) error
}

// SupplierMatcher ranks suppliers for a request. *matching.Matcher satisfies it.
type SupplierMatcher interface {
	Match(ctx context.Context, req *models.Request) ([]matching.Ranked, error)
}

// CommandHandler processes "!rfq" operator commands from chat.
type CommandHandler struct {
	db       *gorm.DB
	requests Requests
	matcher  SupplierMatcher
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	DB       *gorm.DB
	Requests Requests        // optional; disables autoreply and reevaluate
	Matcher  SupplierMatcher // optional; disables match
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: command handler: db is required")
	}
	return &CommandHandler{
		db:       opts.DB,
		requests: opts.Requests,
		matcher:  opts.Matcher,
	}, nil
}

// Execute parses and executes a "!rfq" command string. Returns the
// response text to send back to the chat channel.
func (ch *CommandHandler) Execute(ctx context.Context, text string) string {
	args := parseCommand(text)
	if len(args) == 0 {
		return ch.helpText()
	}

	switch args[0] {
	case "status":
		return ch.cmdStatus()
	case "list":
		return ch.cmdList(args[1:])
	case "show":
		return ch.cmdShow(args[1:])
	case "autoreply":
		return ch.cmdAutoReply(ctx, args[1:])
	case "reevaluate":
		return ch.cmdReevaluate(ctx, args[1:])
	case "match":
		return ch.cmdMatch(ctx, args[1:])
	case "quotes":
		return ch.cmdQuotes(args[1:])
	case "help":
		return ch.helpText()
	default:
		return fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], ch.helpText())
	}
}

// parseCommand strips the "!rfq" prefix and splits the remaining text.
func parseCommand(text string) []string {
	text = strings.TrimSpace(text)
	if text == commandPrefix {
		return nil
	}
	text = strings.TrimPrefix(text, commandPrefix+" ")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

// cmdStatus summarizes requests by status and the outbox backlog.
func (ch *CommandHandler) cmdStatus() string {
	counts, err := intake.CountByStatus(ch.db)
	if err != nil {
		return fmt.Sprintf("Error getting status: %v", err)
	}
	pending, err := messaging.Pending(ch.db, messaging.PendingOpts{})
	if err != nil {
		return fmt.Sprintf("Error getting outbox: %v", err)
	}
	return formatStatusCounts(counts, len(pending))
}

// cmdList lists recent requests with optional filters.
func (ch *CommandHandler) cmdList(args []string) string {
	opts := intake.ListOpts{Limit: 20}
	for i := 0; i < len(args)-1; i += 2 {
		switch args[i] {
		case "--status":
			opts.Status = args[i+1]
		case "--channel":
			opts.Channel = args[i+1]
		case "--limit":
			if n, err := strconv.Atoi(args[i+1]); err == nil && n > 0 {
				opts.Limit = n
			}
		}
	}
	reqs, err := intake.ListRequests(ch.db, opts)
	if err != nil {
		return fmt.Sprintf("Error listing requests: %v", err)
	}
	if len(reqs) == 0 {
		return "No requests found."
	}
	return formatRequestTable(reqs)
}

// cmdShow shows one request.
func (ch *CommandHandler) cmdShow(args []string) string {
	if len(args) == 0 {
		return "Usage: `!rfq show <request-id>`"
	}
	req, err := intake.GetRequest(ch.db, args[0])
	if err != nil {
		return requestError(args[0], err)
	}
	return formatRequestDetail(req)
}

// cmdAutoReply turns automatic replies on or off.
func (ch *CommandHandler) cmdAutoReply(ctx context.Context, args []string) string {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return "Usage: `!rfq autoreply <request-id> on|off`"
	}
	if ch.requests == nil {
		return "Auto-reply changes are not available."
	}
	if err := ch.requests.SetAutoReply(ctx, args[0], args[1] == "on"); err != nil {
		return requestError(args[0], err)
	}
	return fmt.Sprintf("Auto-reply %s for `%s`.", args[1], args[0])
}

// cmdReevaluate recomputes a request against the current catalog.
func (ch *CommandHandler) cmdReevaluate(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: `!rfq reevaluate <request-id>`"
	}
	if ch.requests == nil {
		return "Re-evaluation is not available."
	}
	out, err := ch.requests.Reevaluate(ctx, args[0])
	if err != nil {
		return requestError(args[0], err)
	}
	msg := fmt.Sprintf("`%s`: %s → %s (completeness %.0f%%)",
		out.Request.ID, out.PreviousStatus, out.Request.Status, out.Request.Completeness*100)
	if out.Outbound != nil {
		msg += "\nCompletion reply queued."
	}
	return msg
}

// cmdMatch ranks suppliers for a request.
func (ch *CommandHandler) cmdMatch(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: `!rfq match <request-id>`"
	}
	if ch.matcher == nil {
		return "Supplier matching is not available."
	}
	req, err := intake.GetRequest(ch.db, args[0])
	if err != nil {
		return requestError(args[0], err)
	}
	ranked, err := ch.matcher.Match(ctx, req)
	if err != nil {
		return fmt.Sprintf("Error matching suppliers: %v", err)
	}
	if len(ranked) == 0 {
		return fmt.Sprintf("No suppliers matched `%s`.", req.ID)
	}
	return formatMatches(ranked)
}

// cmdQuotes compares the quotes received for an RFQ.
func (ch *CommandHandler) cmdQuotes(args []string) string {
	if len(args) == 0 {
		return "Usage: `!rfq quotes <rfq-id>`"
	}
	qs, err := quotes.Load(ch.db, args[0])
	if err != nil {
		return fmt.Sprintf("Error loading quotes: %v", err)
	}
	cmp, err := quotes.New(quotes.Opts{}).Compare(qs)
	if err != nil {
		return fmt.Sprintf("Error comparing quotes: %v", err)
	}
	if len(cmp.Ranked) == 0 {
		return fmt.Sprintf("No quotes to compare for `%s`.", args[0])
	}
	return formatComparison(cmp)
}

func requestError(id string, err error) string {
	if intake.IsNotFound(err) {
		return fmt.Sprintf("Request not found: `%s`", id)
	}
	return fmt.Sprintf("Error: %v", err)
}

// helpText returns the list of available commands.
func (ch *CommandHandler) helpText() string {
	return "**rfqdesk Commands**\n" +
		"`!rfq status` — requests by status and outbox backlog\n" +
		"`!rfq list [--status <s>] [--channel <c>] [--limit <n>]` — recent requests\n" +
		"`!rfq show <id>` — request details\n" +
		"`!rfq autoreply <id> on|off` — toggle automatic replies\n" +
		"`!rfq reevaluate <id>` — re-run rules against the current catalog\n" +
		"`!rfq match <id>` — rank suppliers\n" +
		"`!rfq quotes <rfq-id>` — compare received quotes\n" +
		"`!rfq help` — this message"
}
