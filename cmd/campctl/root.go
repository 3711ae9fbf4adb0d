package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iliyamo/acappella-workshop/internal/apiclient"
	"github.com/iliyamo/acappella-workshop/internal/cart"
	"github.com/iliyamo/acappella-workshop/internal/config"
	"github.com/iliyamo/acappella-workshop/internal/kv"
)

const visitorKey = "visitor_id"

// app is the state shared by every subcommand.
type app struct {
	apiURL    string
	statePath string
	token     string

	store  kv.Store
	client *apiclient.Client
	cart   *cart.Cart
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "campctl",
		Short:         "Browse camp weeks, manage a cart and pay from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotenv()
			return a.open(cmd.Context())
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.apiURL, "api", envOr("ACW_API_URL", "http://localhost:8080"), "base URL of the registration API")
	f.StringVar(&a.statePath, "state", os.Getenv("ACW_STATE_FILE"), "state file (default: user config dir)")
	f.StringVar(&a.token, "token", os.Getenv("ACW_TOKEN"), "bearer access token of a signed-in parent")

	root.AddCommand(newWeeksCmd(a), newCartCmd(a), newCheckoutCmd(a), newPollCmd(a))
	return root
}

// open loads the state file, the visitor id and the API client.
func (a *app) open(ctx context.Context) error {
	if a.statePath == "" {
		p, err := kv.DefaultPath()
		if err != nil {
			return err
		}
		a.statePath = p
	}
	a.store = kv.NewFile(a.statePath)
	a.cart = cart.New(a.store)

	visitor, err := loadVisitorID(ctx, a.store)
	if err != nil {
		return err
	}
	a.client = apiclient.New(a.apiURL, visitor)
	a.client.Token = a.token
	return nil
}

// loadVisitorID returns the persisted visitor id, minting one on first use.
func loadVisitorID(ctx context.Context, s kv.Store) (string, error) {
	b, err := s.Get(ctx, visitorKey)
	if err == nil {
		var id string
		if json.Unmarshal(b, &id) == nil && id != "" {
			return id, nil
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return "", err
	}
	id := uuid.NewString()
	b, _ = json.Marshal(id)
	return id, s.Set(ctx, visitorKey, b)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func money(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
