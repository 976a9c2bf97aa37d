package service

import (
	"context"
	"log/slog"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

// runEffects performs the post-capture side effects in order.
//
// Every effect is best-effort: a failure is logged and reported in its
// result, never returned, so the captured payment always completes.
func (s Service) runEffects(
	ctx context.Context, order domain.Order, lines []domain.CartLine, currency string,
) domain.SideEffects {
	const op = "Service.runEffects"
	log := slog.With("op", op, "orderID", order.ID)

	var fx domain.SideEffects

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		log.Error("failed to record order", "err", err)
		fx.Record = domain.EffectFailed("order record failed", err)
	} else {
		fx.Record = domain.EffectOK()
	}

	if err := s.catalog.DecrementStock(ctx, lines); err != nil {
		log.Error("failed to decrement stock", "err", err)
		fx.Stock = domain.EffectFailed("stock decrement failed", err)
	} else {
		fx.Stock = domain.EffectOK()
	}

	fx.Email = domain.EffectSkipped()
	if s.mailer != nil {
		fx.Email = s.mailer.SendReceipt(ctx, port.Receipt{Order: order, Currency: currency})
		if fx.Email.Error != "" {
			log.Error("failed to send receipt", "err", fx.Email.Error, "detail", fx.Email.Detail)
		}
	}

	fx.Event = domain.EffectSkipped()
	if s.events != nil {
		evt := domain.OrderPlaced{
			OrderID:   order.ID,
			Provider:  order.Payment.Provider,
			Currency:  currency,
			Total:     order.Total,
			Items:     order.Items,
			CreatedAt: order.CreatedAt.UnixMilli(),
		}
		if err := s.events.PublishOrderPlaced(ctx, evt); err != nil {
			log.Warn("failed to publish order event", "err", err)
			fx.Event = domain.EffectFailed("event publish failed", err)
		} else {
			fx.Event = domain.EffectOK()
		}
	}

	return fx
}
