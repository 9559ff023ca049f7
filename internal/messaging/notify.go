package messaging

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/zulandar/rfqdesk/internal/models"
)

// CommandConfig controls delivery of replies through a local command, e.g.
// "mail -s {{.Subject}} {{.To}}". The message content is written to stdin.
type CommandConfig struct {
	Command string
}

// DeliverCommand runs the configured command for msg. Placeholders are
// shell-quoted before substitution.
func DeliverCommand(ctx context.Context, msg *models.Message, cfg CommandConfig) error {
	if cfg.Command == "" {
		return fmt.Errorf("messaging: delivery command is required")
	}
	cmdStr := templateMessage(cfg.Command, msg)
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdStr)
	cmd.Stdin = strings.NewReader(msg.Content)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("messaging: deliver %d: %w: %s", msg.ID, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// templateMessage replaces placeholders in the command template with message values.
func templateMessage(command string, msg *models.Message) string {
	r := strings.NewReplacer(
		"{{.Subject}}", shellQuote(msg.Subject),
		"{{.To}}", shellQuote(msg.ToAddr),
		"{{.From}}", shellQuote(msg.FromAddr),
		"{{.RequestID}}", shellQuote(msg.RequestID),
		"{{.ID}}", strconv.FormatUint(uint64(msg.ID), 10),
	)
	return r.Replace(command)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
