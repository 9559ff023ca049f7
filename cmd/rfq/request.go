package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/db"
	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/models"
)

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Inspect and manage requests",
	}

	cmd.AddCommand(newRequestListCmd())
	cmd.AddCommand(newRequestShowCmd())
	cmd.AddCommand(newRequestAutoReplyCmd())
	cmd.AddCommand(newRequestReevaluateCmd())
	return cmd
}

func newRequestListCmd() *cobra.Command {
	var (
		flags   configFlags
		status  string
		channel string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests by most recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := openDB(flags)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			reqs, err := intake.ListRequests(gormDB, intake.ListOpts{Status: status, Channel: channel, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(reqs) == 0 {
				fmt.Fprintln(out, "No requests found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCHANNEL\tSENDER\tCATEGORY\tCOMPLETE\tLAST ACTIVITY")
			for _, r := range reqs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
					r.ID, r.Status, r.Channel, truncate(r.SenderIdentity, 30), r.Category,
					r.Completeness*100, r.LastActivityAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&channel, "channel", "", "filter by channel")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func newRequestShowCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			req, err := intake.GetRequest(a.db, args[0])
			if err != nil {
				return err
			}
			printRequest(cmd, req, a.cat)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printRequest(cmd *cobra.Command, req *models.Request, cat *catalog.Catalog) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Request:      %s\n", req.ID)
	fmt.Fprintf(out, "Status:       %s (%s)\n", req.Status, req.PipelineStage)
	fmt.Fprintf(out, "Channel:      %s\n", req.Channel)
	fmt.Fprintf(out, "Sender:       %s\n", req.SenderIdentity)
	if req.Category != "" {
		category := req.Category
		if req.Subcategory != nil {
			category += " / " + *req.Subcategory
		}
		fmt.Fprintf(out, "Category:     %s (confidence %.2f)\n", category, req.Confidence)
	}
	fmt.Fprintf(out, "Urgency:      %s\n", req.Urgency)
	fmt.Fprintf(out, "Completeness: %.0f%%\n", req.Completeness*100)
	if missing := missingLabels(cat, req.CategoryRuleID, req.MissingFields); len(missing) > 0 {
		fmt.Fprintf(out, "Missing:      %s\n", strings.Join(missing, ", "))
	}
	fmt.Fprintf(out, "Auto-reply:   %t\n", req.AutoReplyEnabled)
	fmt.Fprintf(out, "Created:      %s\n", req.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Activity:     %s\n", req.LastActivityAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(out, "\nMessages (%d):\n", len(req.Messages))
	for _, m := range req.Messages {
		arrow := "<"
		if m.Direction == models.DirectionOutbound {
			arrow = ">"
			if !m.Processed {
				arrow = ">?"
			}
		}
		fmt.Fprintf(out, "  %-2s %s %s\n", arrow, m.CreatedAt.Format("01-02 15:04"), firstLine(m.Content))
	}
}

func newRequestAutoReplyCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:       "autoreply <id> <on|off>",
		Short:     "Enable or disable automatic replies for a request",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[1] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("second argument must be on or off, got %q", args[1])
			}
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			if err := a.orch.SetAutoReply(context.Background(), args[0], enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Auto-reply %s for %s\n", args[1], args[0])
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newRequestReevaluateCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "reevaluate <id>",
		Short: "Re-run classification and rules over a request's messages",
		Long:  "Useful after a catalog change. A completion reply is queued only when the request becomes ready.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			out, err := a.orch.Reevaluate(context.Background(), args[0])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), "Re-evaluated request "+out.Request.ID, out, a.cat)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return truncate(line, 80)
}
