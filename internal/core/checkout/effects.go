package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/niksmo/twin-supply/internal/core/calc"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const defaultConfirmationPage = "success.html"

// A Report is the outcome of the local effects of a completed order.
type Report struct {
	Stock       domain.EffectResult `json:"stock"`
	Webhook     domain.EffectResult `json:"webhook"`
	Cart        domain.EffectResult `json:"cart"`
	RedirectURL string              `json:"redirectUrl"`
}

// Effects performs the local consequences of a captured payment.
type Effects struct {
	orders   port.OrderStore
	catalog  port.CatalogStore
	cart     port.CartStore
	notifier port.Notifier
	page     string
}

// NewEffects returns an effects runner.
//
// A nil notifier skips the webhook. An empty page means success.html.
func NewEffects(
	orders port.OrderStore,
	catalog port.CatalogStore,
	cart port.CartStore,
	notifier port.Notifier,
	page string,
) Effects {
	if page == "" {
		page = defaultConfirmationPage
	}
	return Effects{
		orders:   orders,
		catalog:  catalog,
		cart:     cart,
		notifier: notifier,
		page:     page,
	}
}

// Run persists the order and applies the remaining effects in order.
//
// Only the persist step is fatal: when it fails nothing else runs and the
// cart is kept. The cart is cleared only after stock was handled.
func (e Effects) Run(ctx context.Context, order domain.Order) (Report, error) {
	const op = "Effects.Run"
	log := slog.With("op", op, "orderID", order.ID)

	if err := e.orders.AppendOrder(ctx, order); err != nil {
		log.Error("failed to persist order", "err", err)
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}

	var r Report

	if err := e.decrementStock(ctx, order.Lines()); err != nil {
		log.Error("failed to decrement local stock", "err", err)
		r.Stock = domain.EffectFailed("stock decrement failed", err)
	} else {
		r.Stock = domain.EffectOK()
	}

	r.Webhook = domain.EffectSkipped()
	if e.notifier != nil {
		if err := e.notifier.NotifyOrder(ctx, order); err != nil {
			log.Warn("order webhook failed", "err", err)
			r.Webhook = domain.EffectFailed("webhook failed", err)
		} else {
			r.Webhook = domain.EffectOK()
		}
	}

	if err := e.cart.ClearCart(ctx); err != nil {
		log.Error("failed to clear cart", "err", err)
		r.Cart = domain.EffectFailed("cart clear failed", err)
	} else {
		r.Cart = domain.EffectOK()
	}

	r.RedirectURL = e.page + "?orderId=" + url.QueryEscape(order.ID)

	log.Info("order completed", "total", order.Total, "redirect", r.RedirectURL)
	return r, nil
}

func (e Effects) decrementStock(ctx context.Context, lines []domain.CartLine) error {
	catalog, err := e.catalog.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	return e.catalog.SaveCatalog(ctx, calc.DecrementStock(catalog, lines))
}
