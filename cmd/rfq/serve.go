package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/telegraph"
	"github.com/zulandar/rfqdesk/internal/webhook"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		flags configFlags
		port  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intake webhook, chat bridge and outbox",
		Long: `Serves the HTTP intake webhook and, when telegraph.platform is set, the chat
bridge with request notifications and digests. Queued replies are delivered
by the outbox in the same process. Stops cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, port)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "webhook port (default: webhook.port from config)")
	return cmd
}

func runServe(cmd *cobra.Command, flags configFlags, port int) error {
	a, err := openApp(flags)
	if err != nil {
		return err
	}
	cfg := a.cfg
	out := cmd.OutOrStdout()
	if port == 0 {
		port = cfg.Webhook.Port
	}
	if cfg.Telegraph.Digest.Enabled {
		if err := telegraph.ValidateCron(cfg.Telegraph.Digest.Cron); err != nil {
			return err
		}
	}

	adapter, err := newAdapter(cfg)
	if err != nil {
		return err
	}
	var outbox *telegraph.Outbox
	if adapter != nil || len(cfg.Telegraph.Commands) > 0 {
		outbox, err = newOutbox(cfg, a.db, adapter, cmd)
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, "No delivery configured; replies stay queued until `rfq outbox flush`")
	}

	var onQueued func()
	if outbox != nil {
		onQueued = outbox.Kick
	}
	var daemon *telegraph.Daemon
	if adapter != nil {
		daemon, err = telegraph.NewDaemon(telegraph.DaemonOpts{
			DB:       a.db,
			Config:   cfg,
			Adapter:  adapter,
			Intake:   a.orch,
			Requests: a.orch,
			Matcher:  a.matcher,
			Catalog:  a.cat,
			Outbox:   outbox,
			Out:      out,
		})
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return webhook.Start(gctx, webhook.StartOpts{
			DB:       a.db,
			Intake:   a.orch,
			Catalog:  a.cat,
			Port:     port,
			Token:    cfg.Webhook.Token,
			OnQueued: onQueued,
			Out:      out,
		})
	})
	switch {
	case daemon != nil:
		// The daemon runs the outbox alongside the chat bridge.
		g.Go(func() error { return daemon.Run(gctx) })
	case outbox != nil:
		g.Go(func() error {
			outbox.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}
