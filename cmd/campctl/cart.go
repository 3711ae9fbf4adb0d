package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/acappella-workshop/internal/cart"
	"github.com/iliyamo/acappella-workshop/internal/model"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or change the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCart(cmd.Context(), cmd.OutOrStdout(), a.cart)
		},
	}

	var deposit bool
	add := &cobra.Command{
		Use:   "add WEEK_ID",
		Short: "Add a week to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.client.Week(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pt := model.PaymentTypeFull
			if deposit {
				pt = model.PaymentTypeDeposit
			}
			if err := a.cart.Add(cmd.Context(), w.ID, pt, cart.WeekInfoOf(w), w.Location); err != nil {
				return err
			}
			return printCart(cmd.Context(), cmd.OutOrStdout(), a.cart)
		},
	}
	add.Flags().BoolVar(&deposit, "deposit", false, "pay the deposit now and the balance later")

	remove := &cobra.Command{
		Use:   "remove WEEK_ID",
		Short: "Remove a week from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cart.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printCart(cmd.Context(), cmd.OutOrStdout(), a.cart)
		},
	}

	var clearPromo bool
	promo := &cobra.Command{
		Use:   "promo [CODE]",
		Short: "Apply or remove a promo code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch {
			case clearPromo:
				err = a.cart.RemovePromoCode(cmd.Context())
			case len(args) == 1:
				err = a.cart.SetPromoCode(cmd.Context(), args[0])
			default:
				return fmt.Errorf("give a code or --clear")
			}
			if err != nil {
				return err
			}
			return printCart(cmd.Context(), cmd.OutOrStdout(), a.cart)
		},
	}
	promo.Flags().BoolVar(&clearPromo, "clear", false, "remove the applied code")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.cart.Clear(cmd.Context())
		},
	}

	cmd.AddCommand(add, remove, promo, clearCmd)
	return cmd
}

func printCart(ctx context.Context, out io.Writer, c *cart.Cart) error {
	st, err := c.State(ctx)
	if err != nil {
		return err
	}
	if len(st.Items) == 0 {
		_, err := fmt.Fprintln(out, "cart is empty")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, it := range st.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.WeekID, it.Label, it.PaymentType, money(it.UnitPriceCents))
	}
	fmt.Fprintf(w, "\tsubtotal\t\t%s\n", money(st.Quote.SubtotalCents))
	if st.PromoCode != "" {
		fmt.Fprintf(w, "\tpromo %s\t\t-%s\n", st.PromoCode, money(st.Quote.DiscountCents))
	}
	fmt.Fprintf(w, "\ttotal\t\t%s\n", money(st.Quote.TotalCents))
	return w.Flush()
}
