package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/intake"
)

func newMatchCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "match <request-id>",
		Short: "Rank suppliers for a request",
		Long:  "Scores active suppliers by category, geography and order history with the request's client.",
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
			ranked, err := a.matcher.Match(context.Background(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ranked) == 0 {
				fmt.Fprintf(out, "No suppliers matched %s.\n", req.ID)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSUPPLIER\tSCORE\tREASONS")
			for i, r := range ranked {
				fmt.Fprintf(w, "%d\t%s\t%.1f\t%s\n", i+1, r.Supplier.Name, r.Score, truncate(strings.Join(r.Reasons, "; "), 70))
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}
