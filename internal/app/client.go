package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/adapter/gateway"
	"github.com/niksmo/twin-supply/internal/adapter/localstore"
	"github.com/niksmo/twin-supply/internal/adapter/paypal"
	"github.com/niksmo/twin-supply/internal/adapter/webhook"
	"github.com/niksmo/twin-supply/internal/core/checkout"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

// ClientConfig wires the checkout client.
type ClientConfig struct {
	ServerURL string
	DataDir   string
	Settings  domain.StoreSettings
	Timeout   time.Duration
	// PayPalSandboxSecret enables direct sandbox payments while the server
	// is unreachable. It is ignored unless the PayPal mode is sandbox.
	PayPalSandboxSecret string
	ConfirmationPage    string
}

// Client is the wired checkout with its local store.
type Client struct {
	Checkout *checkout.Checkout
	Store    localstore.Store
}

func NewClient(cfg ClientConfig) (Client, error) {
	const op = "app.NewClient"
	log := slog.With("op", op)

	settings := cfg.Settings.Normalize()
	httpClient := adapter.NewHTTPClient(cfg.Timeout)

	store, err := localstore.New(cfg.DataDir)
	if err != nil {
		return Client{}, fmt.Errorf("%s: %w", op, err)
	}

	api, err := gateway.New(cfg.ServerURL, httpClient)
	if err != nil {
		return Client{}, fmt.Errorf("%s: %w", op, err)
	}

	var notifier port.Notifier
	if settings.OrderWebhookURL != "" {
		n, err := webhook.New(settings.OrderWebhookURL, settings.OrderWebhookToken, httpClient)
		if err != nil {
			log.Warn("order webhook disabled", "err", err)
		} else {
			notifier = n
		}
	}

	var fallback checkout.Fallback
	if settings.PayPalMode == domain.EnvSandbox && cfg.PayPalSandboxSecret != "" {
		pp, err := paypal.New(
			settings.PayPalClientID, cfg.PayPalSandboxSecret, domain.EnvSandbox,
			paypal.HTTPClientOpt(httpClient),
		)
		if err != nil {
			log.Warn("paypal sandbox fallback disabled", "err", err)
		} else {
			fallback = checkout.PayPalSandbox{Gateway: pp}
		}
	}

	paypalProvider := checkout.PayPalProvider{API: api}
	sessions := []*checkout.Session{
		checkout.NewSession(checkout.FundingPayPal, paypalProvider, settings.PayPalMode, fallback),
		checkout.NewSession(checkout.FundingVenmo, paypalProvider, settings.PayPalMode, fallback),
		checkout.NewSession(checkout.FundingCashApp,
			checkout.SquareProvider{API: api, LocationID: settings.SquareLocationID},
			settings.SquareEnv, nil),
		checkout.NewSession(checkout.FundingCard, checkout.StripeProvider{API: api},
			domain.EnvLive, nil),
	}

	effects := checkout.NewEffects(store, store, store, notifier, cfg.ConfirmationPage)

	co := checkout.New(settings, store, store, effects, sessions...)
	co.UseCatalogSource(api)

	return Client{
		Checkout: co,
		Store:    store,
	}, nil
}
