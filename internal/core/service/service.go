package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/niksmo/twin-supply/internal/core/calc"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

var (
	_ port.StorefrontAPI = (*Service)(nil)
	_ port.CatalogAdmin  = (*Service)(nil)
	_ port.OrdersAdmin   = (*Service)(nil)
)

var ErrTooFewOpts = errors.New("too few options")

const defaultEffectsTimeout = 15 * time.Second

type Opt func(*serviceOpts) error

type serviceOpts struct {
	catalog          port.CatalogRepository
	orders           port.OrdersRepository
	pricing          port.PricingSource
	paypal           port.PayPalGateway
	square           port.SquareGateway
	stripe           port.StripeGateway
	mailer           port.Mailer
	events           port.OrderEventsPublisher
	sales            port.SalesReader
	squareLocationID string
	effectsTimeout   time.Duration
}

func CatalogOpt(r port.CatalogRepository) Opt {
	return func(o *serviceOpts) error {
		if r == nil {
			return errors.New("catalog repository is nil")
		}
		o.catalog = r
		return nil
	}
}

func OrdersOpt(r port.OrdersRepository) Opt {
	return func(o *serviceOpts) error {
		if r == nil {
			return errors.New("orders repository is nil")
		}
		o.orders = r
		return nil
	}
}

func PricingOpt(p port.PricingSource) Opt {
	return func(o *serviceOpts) error {
		if p == nil {
			return errors.New("pricing source is nil")
		}
		o.pricing = p
		return nil
	}
}

func PayPalOpt(g port.PayPalGateway) Opt {
	return func(o *serviceOpts) error {
		o.paypal = g
		return nil
	}
}

func SquareOpt(g port.SquareGateway, locationID string) Opt {
	return func(o *serviceOpts) error {
		o.square = g
		o.squareLocationID = locationID
		return nil
	}
}

func StripeOpt(g port.StripeGateway) Opt {
	return func(o *serviceOpts) error {
		o.stripe = g
		return nil
	}
}

func MailerOpt(m port.Mailer) Opt {
	return func(o *serviceOpts) error {
		o.mailer = m
		return nil
	}
}

func EventsOpt(p port.OrderEventsPublisher) Opt {
	return func(o *serviceOpts) error {
		o.events = p
		return nil
	}
}

func SalesOpt(r port.SalesReader) Opt {
	return func(o *serviceOpts) error {
		o.sales = r
		return nil
	}
}

// EffectsTimeoutOpt bounds the side effects of a captured payment.
func EffectsTimeoutOpt(d time.Duration) Opt {
	return func(o *serviceOpts) error {
		if d <= 0 {
			return errors.New("effects timeout must be positive")
		}
		o.effectsTimeout = d
		return nil
	}
}

// Service is the trusted payment server core.
//
// Catalog, orders and pricing are required. A nil provider gateway disables
// its endpoints, a nil mailer or publisher skips that side effect.
type Service struct {
	serviceOpts
}

func New(opts ...Opt) (Service, error) {
	const op = "service.New"

	options := serviceOpts{effectsTimeout: defaultEffectsTimeout}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return Service{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if options.catalog == nil || options.orders == nil || options.pricing == nil {
		return Service{}, fmt.Errorf("%s: %w", op, ErrTooFewOpts)
	}

	return Service{options}, nil
}

// A quote is a cart priced against the current catalog.
type quote struct {
	lines            []domain.CartLine
	items            []domain.Item
	totals           domain.Totals
	fees             domain.FeeSchedule
	shippingMethodID string
	catalog          domain.Catalog
}

// quote prices the cart from a fresh catalog read.
func (s Service) quote(
	ctx context.Context, cart []domain.CartLine, shippingMethodID string,
) (quote, error) {
	const op = "Service.quote"

	lines := calc.NormalizeCart(cart)
	if len(lines) == 0 {
		return quote{}, fmt.Errorf("%s: %w", op, domain.ErrEmptyCart)
	}

	catalog, err := s.catalog.ReadCatalog(ctx)
	if err != nil {
		return quote{}, fmt.Errorf("%s: %w", op, err)
	}

	items := calc.JoinCart(lines, catalog)
	if len(items) == 0 {
		return quote{}, fmt.Errorf("%s: %w", op, domain.ErrEmptyCart)
	}

	pricing := s.pricing.Pricing()
	method := pricing.ShippingMethods.Resolve(shippingMethodID)
	return quote{
		lines:            lines,
		items:            items,
		totals:           calc.ComputeTotals(items, pricing, shippingMethodID),
		fees:             pricing.Fees,
		shippingMethodID: method.ID,
		catalog:          catalog,
	}, nil
}

// checkStock validates the quoted lines against the catalog read with them.
func (q quote) checkStock() error {
	if shortages := calc.ValidateStock(q.lines, q.catalog); len(shortages) != 0 {
		return &domain.InsufficientStockError{Shortages: shortages}
	}
	return nil
}

func checkExpected(totals domain.Totals, expected *float64) error {
	if expected == nil || *expected <= 0 {
		return nil
	}
	return calc.CheckExpectedTotal(totals, *expected)
}

func notConfigured(op, what string) error {
	return fmt.Errorf("%s: %s: %w", op, what, domain.ErrNotConfigured)
}
