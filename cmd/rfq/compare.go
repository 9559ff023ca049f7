package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/quotes"
)

func newCompareCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "compare <rfq-id>",
		Short: "Compare the supplier quotes for an RFQ",
		Long: `Ranks submitted and accepted quotes by price, delivery, payment terms and
reliability. Quotes whose line items do not add up are flagged but still ranked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := openDB(flags)
			if err != nil {
				return err
			}
			qs, err := quotes.Load(gormDB, args[0])
			if err != nil {
				return err
			}
			cmp, err := quotes.New(quotes.Opts{}).Compare(qs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cmp.Ranked) == 0 {
				fmt.Fprintf(out, "No comparable quotes for %s.\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSUPPLIER\tTOTAL\tDAYS\tPRICE\tDELIVERY\tTERMS\tSCORE")
			for i, s := range cmp.Ranked {
				q := s.Quote
				fmt.Fprintf(w, "%d\t%s\t%.2f %s\t%d\t%.0f\t%.0f\t%.0f\t%.1f\n",
					i+1, q.SupplierName, q.Total, q.Currency, q.DeliveryDays,
					s.Price, s.Delivery, s.Terms, s.Composite)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			sum := cmp.Summary
			fmt.Fprintf(out, "\n%d quotes, price %.2f to %.2f (avg %.2f), delivery %d to %d days\n",
				sum.Count, sum.MinPrice, sum.MaxPrice, sum.AvgPrice, sum.MinDelivery, sum.MaxDelivery)
			if len(sum.Currencies) > 1 {
				fmt.Fprintf(out, "warning: mixed currencies (%s); prices are compared unconverted\n", strings.Join(sum.Currencies, ", "))
			}
			for _, q := range qs {
				if !quotes.Comparable(q.Status) {
					continue
				}
				for _, problem := range quotes.Validate(q) {
					fmt.Fprintf(out, "warning: %s: %s\n", q.Supplier.Name, problem)
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
