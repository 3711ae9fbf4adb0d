package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWeeksCmd(a *app) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "weeks",
		Short: "List camp weeks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = a.client.Visit(cmd.Context()) // counted once per day; failures don't matter
			weeks, err := a.client.Weeks(cmd.Context(), location)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWEEK\tPRICE\tDEPOSIT\tCAPACITY")
			for _, wk := range weeks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", wk.ID, wk.Label, money(wk.PriceCents), money(wk.DepositCents), wk.Capacity)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "only weeks at this location (lex, nw, bos)")
	return cmd
}
