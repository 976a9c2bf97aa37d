package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/niksmo/twin-supply/internal/core/calc"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const (
	FundingPayPal  = "paypal"
	FundingVenmo   = "venmo"
	FundingCashApp = "cashapp"
	FundingCard    = "card"
)

var ErrUnknownFunding = errors.New("unknown funding source")

// A Form is what the buyer filled in on the checkout page.
type Form struct {
	Customer         domain.Customer
	Notes            string
	ShippingMethodID string
	// LabelCost is the actual shipment cost, zero means the charged shipping.
	LabelCost float64
}

type Quote struct {
	Lines            []domain.CartLine
	Items            []domain.Item
	Totals           domain.Totals
	ShippingMethodID string
}

type Result struct {
	Order   domain.Order
	Capture domain.CaptureResult
	Report  Report
}

// Checkout coordinates the cart, the funding source sessions and the local effects.
type Checkout struct {
	settings domain.StoreSettings
	cart     port.CartStore
	catalog  port.CatalogStore
	effects  Effects
	sessions map[string]*Session
	live     port.CatalogSource
}

func New(
	settings domain.StoreSettings,
	cart port.CartStore,
	catalog port.CatalogStore,
	effects Effects,
	sessions ...*Session,
) *Checkout {
	c := &Checkout{
		settings: settings.Normalize(),
		cart:     cart,
		catalog:  catalog,
		effects:  effects,
		sessions: make(map[string]*Session, len(sessions)),
	}
	for _, s := range sessions {
		c.sessions[s.Funding()] = s
	}
	return c
}

func (c *Checkout) Session(funding string) (*Session, error) {
	s, ok := c.sessions[funding]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunding, funding)
	}
	return s, nil
}

// UseCatalogSource makes Quote read stock from the server. The local
// snapshot is refreshed on every read and serves when the server does not.
func (c *Checkout) UseCatalogSource(src port.CatalogSource) {
	c.live = src
}

// Quote prices the stored cart against a fresh catalog read.
//
// It fails with an InsufficientStockError before any payment call is made.
func (c *Checkout) Quote(ctx context.Context, shippingMethodID string) (Quote, error) {
	const op = "Checkout.Quote"

	stored, err := c.cart.LoadCart(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}
	lines := calc.NormalizeCart(stored)
	if len(lines) == 0 {
		return Quote{}, fmt.Errorf("%s: %w", op, domain.ErrEmptyCart)
	}

	catalog, err := c.loadCatalog(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", op, err)
	}

	if ss := calc.ValidateStock(lines, catalog); len(ss) != 0 {
		return Quote{}, fmt.Errorf(
			"%s: %w", op, &domain.InsufficientStockError{Shortages: ss},
		)
	}

	items := calc.JoinCart(lines, catalog)
	if len(items) == 0 {
		return Quote{}, fmt.Errorf("%s: %w", op, domain.ErrEmptyCart)
	}

	pricing := c.settings.Pricing()
	return Quote{
		Lines:            lines,
		Items:            items,
		Totals:           calc.ComputeTotals(items, pricing, shippingMethodID),
		ShippingMethodID: pricing.ShippingMethods.Resolve(shippingMethodID).ID,
	}, nil
}

// loadCatalog prefers the server catalog and falls back to the snapshot.
// Unit costs stay local, the server does not publish them.
func (c *Checkout) loadCatalog(ctx context.Context) (domain.Catalog, error) {
	const op = "Checkout.loadCatalog"
	log := slog.With("op", op)

	local, localErr := c.catalog.LoadCatalog(ctx)
	if c.live == nil {
		return local, localErr
	}

	live, err := c.live.Catalog(ctx)
	if err == nil && len(live) != 0 {
		costs := make(map[int64]float64, len(local))
		for _, p := range local {
			costs[p.ID] = p.Cost
		}
		for i := range live {
			if live[i].Cost == 0 {
				live[i].Cost = costs[live[i].ID]
			}
		}
		if err := c.catalog.SaveCatalog(ctx, live); err != nil {
			log.Warn("failed to refresh catalog snapshot", "err", err)
		}
		return live, nil
	}

	if localErr != nil {
		return nil, errors.Join(localErr, err)
	}
	log.Warn("server catalog unavailable, using local snapshot", "err", err)
	return local, nil
}

// Pay starts a payment with the given funding source.
func (c *Checkout) Pay(ctx context.Context, funding string, f Form) (Intent, error) {
	const op = "Checkout.Pay"

	s, err := c.Session(funding)
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}
	if !s.CanSubmit() {
		return Intent{}, fmt.Errorf("%s: %w", op, ErrBusy)
	}

	if missing := f.Customer.Missing(); len(missing) != 0 {
		return Intent{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: missing},
		)
	}

	q, err := c.Quote(ctx, f.ShippingMethodID)
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	intent, err := s.Begin(ctx, IntentRequest{
		LocalOrderID:     domain.NewOrderID(),
		Cart:             q.Lines,
		Items:            q.Items,
		Totals:           q.Totals,
		ShippingMethodID: q.ShippingMethodID,
		CustomerEmail:    f.Customer.Email,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}
	return intent, nil
}

// Complete captures the approved payment and runs the local effects.
//
// A failure before the capture leaves the cart and local stock untouched.
func (c *Checkout) Complete(
	ctx context.Context, funding string, f Form, a Approval,
) (Result, error) {
	const op = "Checkout.Complete"
	log := slog.With("op", op, "funding", funding)

	s, err := c.Session(funding)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if a.PayerEmail == "" {
		a.PayerEmail = f.Customer.Email
	}

	pricing := c.settings.Pricing()
	formMethodID := pricing.ShippingMethods.Resolve(f.ShippingMethodID).ID

	intent, out, err := s.Approve(ctx, a, CaptureRequest{
		ShippingMethodID: formMethodID,
		Customer:         f.Customer,
		Notes:            f.Notes,
		Method:           funding,
		LabelCost:        f.LabelCost,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	methodID := intent.ShippingMethodID
	if methodID == "" {
		methodID = formMethodID
	}
	if methodID != formMethodID {
		log.Warn("shipping changed after payment started, keeping the paid method",
			"paid", methodID, "form", formMethodID)
	}

	totals := out.Totals
	if totals.Total == 0 {
		totals = intent.Totals
	}

	order := calc.BuildOrder(calc.OrderInput{
		OrderID:          intent.LocalOrderID,
		Customer:         f.Customer,
		Notes:            f.Notes,
		Items:            intent.Items,
		Totals:           totals,
		ShippingMethodID: methodID,
		LabelCost:        f.LabelCost,
		Method:           funding,
		Capture:          out.Result,
	}, c.settings.Fees())

	res := Result{Order: order, Capture: out.Result}

	report, err := c.effects.Run(ctx, order)
	if err != nil {
		log.Error("payment captured but order was not persisted",
			"orderID", order.ID, "transactionID", out.Result.TransactionID)
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.Report = report
	return res, nil
}

// Cancel abandons the pending payment of a funding source.
func (c *Checkout) Cancel(funding string) error {
	const op = "Checkout.Cancel"

	s, err := c.Session(funding)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.Cancel(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	slog.Info("payment cancelled", "op", op, "funding", funding)
	return nil
}
