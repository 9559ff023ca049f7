package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the category rule catalog",
	}

	cmd.AddCommand(newCatalogValidateCmd())
	cmd.AddCommand(newCatalogShowCmd())
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file.yaml]",
		Short: "Validate a catalog file, or the embedded default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			fields := 0
			for _, r := range cat.Categories {
				fields += len(r.Fields)
			}
			name := path
			if name == "" {
				name = "embedded catalog"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s, %d categories, %d fields, %d units\n",
				name, cat.Version, len(cat.Categories), fields, len(cat.Dictionaries.Units))
			return nil
		},
	}
}

func newCatalogShowCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "show [category]",
		Short: "List categories, or the fields of one category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

			if len(args) == 0 {
				fmt.Fprintf(out, "Catalog version %s\n\n", cat.Version)
				fmt.Fprintln(w, "ID\tNAME\tREQUIRED\tKEYWORDS")
				for _, r := range cat.Categories {
					fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", r.ID, r.Name,
						len(r.RequiredFields()), len(r.Fields), truncate(strings.Join(r.Keywords, ", "), 40))
				}
				return w.Flush()
			}

			rule := cat.Rule(args[0])
			if rule == nil {
				return fmt.Errorf("category %q not found", args[0])
			}
			fmt.Fprintf(out, "%s (%s)\n\n", rule.Name, rule.ID)
			fmt.Fprintln(w, "FIELD\tLABEL\tREQUIRED\tEXAMPLES")
			for _, f := range rule.Fields {
				req := ""
				if f.Required {
					req = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Label, req, truncate(strings.Join(f.Examples, ", "), 40))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "catalog file (default: embedded catalog)")
	return cmd
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
