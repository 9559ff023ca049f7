package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/intake"
	"golang.org/x/term"
)

func newIntakeCmd() *cobra.Command {
	var (
		flags    configFlags
		channel  string
		sender   string
		from     string
		subject  string
		sourceID string
		deadline string
	)

	cmd := &cobra.Command{
		Use:   "intake [text...]",
		Short: "Process one inbound message",
		Long: `Runs a message through intake as if it arrived on --channel from --sender.
The text comes from the arguments or, when none are given, from piped stdin.
Any reply is queued for the outbox, not sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := messageText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if sender == "" {
				return fmt.Errorf("--sender is required")
			}
			msg := intake.Inbound{
				Source:         channel,
				SourceID:       sourceID,
				SenderIdentity: sender,
				Content:        text,
				Metadata: intake.Metadata{
					From:      from,
					Subject:   subject,
					ReplyTo:   sender,
					Timestamp: time.Now(),
				},
			}
			if deadline != "" {
				d, err := time.Parse(time.DateOnly, deadline)
				if err != nil {
					return fmt.Errorf("--deadline: %w", err)
				}
				msg.Metadata.Deadline = &d
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			out, err := a.orch.HandleInbound(context.Background(), msg)
			if err != nil {
				return err
			}
			verb := "Continued"
			if out.Created {
				verb = "Created"
			}
			printOutcome(cmd.OutOrStdout(), verb+" request "+out.Request.ID, out, a.cat)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&channel, "channel", "email", "channel the message arrived on")
	cmd.Flags().StringVarP(&sender, "sender", "s", "", "sender identity: email address, phone or chat user id")
	cmd.Flags().StringVar(&from, "from", "", "sender display name")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&sourceID, "id", "", "channel message id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "requested delivery date (YYYY-MM-DD)")
	return cmd
}

// messageText joins args, or reads in when there are none and in is not a
// terminal.
func messageText(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no message text: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no message text")
	}
	return text, nil
}

func printOutcome(w io.Writer, header string, out *intake.Outcome, cat *catalog.Catalog) {
	req := out.Request
	fmt.Fprintln(w, header)
	if out.Continuation.Source != "" {
		fmt.Fprintf(w, "  continuation: %s (%s)\n", out.Continuation.Source, out.Continuation.Reason)
	}
	if out.PreviousStatus != "" && out.PreviousStatus != req.Status {
		fmt.Fprintf(w, "  status:       %s -> %s\n", out.PreviousStatus, req.Status)
	} else {
		fmt.Fprintf(w, "  status:       %s\n", req.Status)
	}
	category := req.Category
	if category == "" {
		category = "(unclassified)"
	}
	fmt.Fprintf(w, "  category:     %s\n", category)
	fmt.Fprintf(w, "  urgency:      %s\n", req.Urgency)
	fmt.Fprintf(w, "  completeness: %.0f%%\n", req.Completeness*100)
	if missing := missingLabels(cat, req.CategoryRuleID, req.MissingFields); len(missing) > 0 {
		fmt.Fprintf(w, "  missing:      %s\n", strings.Join(missing, ", "))
	}
	if out.Outbound != nil {
		fmt.Fprintf(w, "\nQueued %s reply #%d to %s:\n%s\n", out.Outbound.Kind, out.Outbound.ID, out.Outbound.ToAddr, out.Outbound.Content)
	}
}

func missingLabels(cat *catalog.Catalog, ruleID, encoded string) []string {
	rule := cat.Rule(ruleID)
	var labels []string
	for _, id := range intake.DecodeFields(encoded) {
		label := string(id)
		if rule != nil {
			if f, ok := rule.Field(id); ok && f.Label != "" {
				label = f.Label
			}
		}
		labels = append(labels, label)
	}
	return labels
}
