package config

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

// PricingWatcher serves the pricing section and re-reads it when the
// config file changes. Readers never block.
type PricingWatcher struct {
	cur *atomic.Pointer[domain.Pricing]
}

// WatchPricing starts watching the file the config was loaded from.
func (c Config) WatchPricing() PricingWatcher {
	w := NewStaticPricing(c.StorePricing())
	if c.v == nil {
		return w
	}

	v := c.v
	v.OnConfigChange(func(e fsnotify.Event) {
		const op = "PricingWatcher.reload"
		log := slog.With("op", op, "file", e.Name)

		var p pricing
		if err := v.UnmarshalKey("pricing", &p, decodeHook()); err != nil {
			log.Error("failed to reload pricing, keeping previous", "err", err)
			return
		}
		next := p.toDomain()
		w.cur.Store(&next)
		log.Info("pricing reloaded",
			"currency", next.Currency, "taxRate", next.TaxRate)
	})
	v.WatchConfig()

	return w
}

// NewStaticPricing returns a watcher that never changes.
func NewStaticPricing(p domain.Pricing) PricingWatcher {
	w := PricingWatcher{cur: &atomic.Pointer[domain.Pricing]{}}
	w.cur.Store(&p)
	return w
}

func (w PricingWatcher) Pricing() domain.Pricing {
	return *w.cur.Load()
}
