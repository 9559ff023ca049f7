package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/config"
	"github.com/zulandar/rfqdesk/internal/db"
	"github.com/zulandar/rfqdesk/internal/messaging"
	"github.com/zulandar/rfqdesk/internal/telegraph"
	discordadapter "github.com/zulandar/rfqdesk/internal/telegraph/discord"
	slackadapter "github.com/zulandar/rfqdesk/internal/telegraph/slack"
	"gorm.io/gorm"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and deliver queued replies",
	}

	cmd.AddCommand(newOutboxListCmd())
	cmd.AddCommand(newOutboxFlushCmd())
	return cmd
}

func newOutboxListCmd() *cobra.Command {
	var (
		flags configFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List undelivered replies, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := openDB(flags)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			msgs, err := messaging.Pending(gormDB, messaging.PendingOpts{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "Outbox is empty.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREQUEST\tSOURCE\tKIND\tTO\tQUEUED\tTEXT")
			for _, m := range msgs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.RequestID, m.Source, m.Kind, truncate(m.ToAddr, 30),
					m.CreatedAt.Format("2006-01-02 15:04"), truncate(firstLine(m.Content), 40))
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	return cmd
}

func newOutboxFlushCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Deliver one batch of queued replies and exit",
		Long: `Delivers through the configured delivery commands and, when a chat
platform is configured, through its adapter. Failed deliveries stay queued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := openDB(flags)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			ctx := context.Background()

			adapter, err := newAdapter(cfg)
			if err != nil {
				return err
			}
			if adapter != nil {
				if err := adapter.Connect(ctx); err != nil {
					return fmt.Errorf("connect %s: %w", cfg.Telegraph.Platform, err)
				}
				defer adapter.Close()
			}

			outbox, err := newOutbox(cfg, gormDB, adapter, cmd)
			if err != nil {
				return err
			}
			sent, failed, err := outbox.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d, failed %d (sources: %v)\n", sent, failed, outbox.Sources())
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// newAdapter builds the configured chat adapter, or returns nil when no
// platform is configured.
func newAdapter(cfg *config.Config) (telegraph.Adapter, error) {
	switch cfg.Telegraph.Platform {
	case "":
		return nil, nil
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:   cfg.Telegraph.Slack.AppToken,
			BotToken:   cfg.Telegraph.Slack.BotToken,
			OpsChannel: cfg.Telegraph.Channel,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:   cfg.Telegraph.Discord.BotToken,
			OpsChannel: cfg.Telegraph.Channel,
		})
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Telegraph.Platform)
	}
}

// newOutbox wires a deliverer per configured command source plus the chat
// adapter under its platform name.
func newOutbox(cfg *config.Config, gormDB *gorm.DB, adapter telegraph.Adapter, cmd *cobra.Command) (*telegraph.Outbox, error) {
	deliverers := make(map[string]telegraph.Deliverer)
	for source, command := range cfg.Telegraph.Commands {
		deliverers[source] = telegraph.CommandDeliverer{
			Config: messaging.CommandConfig{Command: command},
		}
	}
	if adapter != nil {
		deliverers[cfg.Telegraph.Platform] = telegraph.AdapterDeliverer{Adapter: adapter}
	}
	if len(deliverers) == 0 {
		return nil, fmt.Errorf("no delivery configured: set telegraph.platform or telegraph.commands")
	}
	return telegraph.NewOutbox(telegraph.OutboxOpts{
		DB:           gormDB,
		Deliverers:   deliverers,
		BatchSize:    cfg.Telegraph.Outbox.BatchSize,
		PollInterval: time.Duration(cfg.Telegraph.Outbox.PollIntervalSec) * time.Second,
		Out:          cmd.OutOrStdout(),
	})
}
