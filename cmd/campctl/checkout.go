package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/acappella-workshop/internal/apiclient"
	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/config"
	"github.com/iliyamo/acappella-workshop/internal/poller"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		contact checkout.Contact
		wait    bool
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Start a hosted checkout for the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req, err := checkoutRequest(ctx, a, contact)
			if err != nil {
				return err
			}
			res, err := a.client.CreateSession(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total %s\nopen this page to pay:\n  %s\nsession %s\n", money(res.Quote.TotalCents), res.URL, res.SessionID)
			if !wait {
				return nil
			}
			return watch(ctx, a, res.SessionID, cmd.InOrStdin(), out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&contact.ParentName, "parent", "", "parent or guardian name")
	f.StringVar(&contact.Email, "email", "", "email for the receipt")
	f.StringVar(&contact.ChildName, "child", "", "name of the student attending")
	f.BoolVar(&wait, "wait", true, "watch the payment status after starting")
	return cmd
}

// checkoutRequest builds the request from the local cart.  Every item is
// for the child named in contact.
func checkoutRequest(ctx context.Context, a *app, contact checkout.Contact) (apiclient.CheckoutRequest, error) {
	st, err := a.cart.State(ctx)
	if err != nil {
		return apiclient.CheckoutRequest{}, err
	}
	if len(st.Items) == 0 {
		return apiclient.CheckoutRequest{}, errors.New("cart is empty")
	}
	items := make([]checkout.Item, 0, len(st.Items))
	for _, it := range st.Items {
		items = append(items, checkout.Item{WeekID: it.WeekID, PaymentType: it.PaymentType, StudentName: strings.TrimSpace(contact.ChildName)})
	}
	return apiclient.CheckoutRequest{Items: items, PromoCode: st.PromoCode, Contact: contact, FormSubmitted: true}, nil
}

func newPollCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "poll SESSION_ID",
		Short: "Watch the payment status of a checkout session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), a, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// watch polls until the session settles.  Enter re-checks at once; "q"
// then Enter reports the payment page closed.
func watch(ctx context.Context, a *app, sessionID string, in io.Reader, out io.Writer) error {
	pc := config.LoadPollerConfig()
	p := poller.New(a.client, a.cart, poller.Config{Interval: pc.Interval, MaxAttempts: pc.MaxAttempts})
	p.OnCompleted(func(err error) {
		if err != nil {
			fmt.Fprintf(out, "payment received, but the cart could not be cleared: %v\n", err)
			return
		}
		fmt.Fprintln(out, "payment received, cart cleared")
	})
	p.OnIncomplete(func(reason string) { fmt.Fprintf(out, "payment not completed (%s)\n", reason) })

	if err := p.Start(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintln(out, "waiting for payment (Enter to re-check, q+Enter if you closed the page)")
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			p.Focus(strings.EqualFold(strings.TrimSpace(sc.Text()), "q"))
		}
	}()

	switch p.Wait() {
	case poller.StateCompleted:
		return p.ClearErr()
	case poller.StateIncomplete:
		return errors.New("checkout incomplete")
	default:
		return ctx.Err()
	}
}
