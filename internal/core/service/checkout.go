package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/niksmo/twin-supply/internal/core/calc"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const (
	ProviderPayPal = "paypal"
	ProviderSquare = "square"
	ProviderStripe = "stripe"

	stripePaid = "paid"
)

// CreateOrder prices the cart on the server and opens a PayPal order for
// the server total. A client total off by more than a cent is rejected
// before PayPal is called.
func (s Service) CreateOrder(
	ctx context.Context, req port.CreateOrderRequest,
) (port.CreateOrderResponse, error) {
	const op = "Service.CreateOrder"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return port.CreateOrderResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.paypal == nil {
		return port.CreateOrderResponse{}, notConfigured(op, ProviderPayPal)
	}

	q, err := s.quote(ctx, req.Cart, req.ShippingMethodID)
	if err != nil {
		return port.CreateOrderResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkExpected(q.totals, req.ExpectedTotal); err != nil {
		log.Warn("client total rejected", "err", err)
		return port.CreateOrderResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := q.checkStock(); err != nil {
		return port.CreateOrderResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	referenceID := strings.TrimSpace(req.ReferenceID)
	if referenceID == "" {
		referenceID = domain.NewOrderID()
	}

	po, err := s.paypal.CreateOrder(ctx, port.PayPalOrderRequest{
		ReferenceID: referenceID,
		Items:       q.items,
		Totals:      q.totals,
	})
	if err != nil {
		return port.CreateOrderResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info(
		"paypal order created",
		"orderID", po.ID,
		"referenceID", referenceID,
		"total", domain.FormatMoney(q.totals.Total),
	)

	return port.CreateOrderResponse{
		ID:          po.ID,
		ReferenceID: referenceID,
		Totals:      q.totals,
		Links:       po.Links,
	}, nil
}

// CaptureOrder re-validates the cart, captures the approved PayPal order
// and records the resulting order.
func (s Service) CaptureOrder(
	ctx context.Context, req port.CaptureRequest,
) (port.CaptureResponse, error) {
	const op = "Service.CaptureOrder"

	if err := ctx.Err(); err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.paypal == nil {
		return port.CaptureResponse{}, notConfigured(op, ProviderPayPal)
	}
	providerOrderID := strings.TrimSpace(req.OrderID)
	if providerOrderID == "" {
		return port.CaptureResponse{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: []string{"orderId"}},
		)
	}

	localOrderID := orderIDOrNew(req.LocalOrderID)
	res, ok, err := s.alreadyRecorded(ctx, localOrderID, func(p domain.PaymentInfo) bool {
		return p.ProviderOrderID == providerOrderID
	})
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return res, nil
	}

	q, err := s.quote(ctx, req.Cart, req.ShippingMethodID)
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := q.checkStock(); err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	capture, err := s.paypal.CaptureOrder(ctx, providerOrderID, localOrderID)
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	method := req.Method
	if method == "" {
		method = ProviderPayPal
	}
	return s.complete(ctx, q, capture, completion{
		orderID:   localOrderID,
		customer:  req.Customer,
		notes:     req.Notes,
		method:    method,
		labelCost: req.LabelCost,
	}), nil
}

// CreatePayment charges a Square payment source for the server total.
func (s Service) CreatePayment(
	ctx context.Context, req port.PaymentRequest,
) (port.CaptureResponse, error) {
	const op = "Service.CreatePayment"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.square == nil {
		return port.CaptureResponse{}, notConfigured(op, ProviderSquare)
	}

	var missing []string
	if strings.TrimSpace(req.SourceID) == "" {
		missing = append(missing, "sourceId")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		missing = append(missing, "idempotencyKey")
	}
	if len(missing) != 0 {
		return port.CaptureResponse{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: missing},
		)
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	localOrderID := orderIDOrNew(req.LocalOrderID)
	res, ok, err := s.alreadyRecorded(ctx, localOrderID, func(p domain.PaymentInfo) bool {
		return p.IdempotencyKey == idempotencyKey
	})
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return res, nil
	}

	q, err := s.quote(ctx, req.Cart, req.ShippingMethodID)
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkExpected(q.totals, req.ExpectedTotal); err != nil {
		log.Warn("client total rejected", "err", err)
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := q.checkStock(); err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	cents := domain.Cents(q.totals.Total)
	if cents <= 0 {
		return port.CaptureResponse{}, fmt.Errorf(
			"%s: invalid server amount: %w", op, domain.ErrInvalidRequest,
		)
	}

	locationID := strings.TrimSpace(req.LocationID)
	if locationID == "" {
		locationID = s.squareLocationID
	}

	buyerEmail := strings.TrimSpace(req.BuyerEmail)
	if buyerEmail == "" && req.Customer.HasEmail() {
		buyerEmail = req.Customer.Email
	}

	capture, err := s.square.CreatePayment(ctx, port.SquarePaymentRequest{
		SourceID:       req.SourceID,
		IdempotencyKey: idempotencyKey,
		AmountCents:    cents,
		Currency:       q.totals.Currency,
		LocationID:     locationID,
		BuyerEmail:     buyerEmail,
		ReferenceID:    localOrderID,
	})
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	method := req.Method
	if method == "" {
		method = "cashapp"
	}
	return s.complete(ctx, q, capture, completion{
		orderID:        localOrderID,
		customer:       req.Customer,
		notes:          req.Notes,
		method:         method,
		labelCost:      req.LabelCost,
		idempotencyKey: idempotencyKey,
	}), nil
}

// CreateCheckoutSession opens a hosted Stripe checkout priced by the server.
func (s Service) CreateCheckoutSession(
	ctx context.Context, req port.CheckoutSessionRequest,
) (port.CheckoutSessionResponse, error) {
	const op = "Service.CreateCheckoutSession"

	if err := ctx.Err(); err != nil {
		return port.CheckoutSessionResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.stripe == nil {
		return port.CheckoutSessionResponse{}, notConfigured(op, ProviderStripe)
	}

	q, err := s.quote(ctx, req.Cart, req.ShippingMethodID)
	if err != nil {
		return port.CheckoutSessionResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkExpected(q.totals, req.ExpectedTotal); err != nil {
		return port.CheckoutSessionResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := q.checkStock(); err != nil {
		return port.CheckoutSessionResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	referenceID := orderIDOrNew(req.ReferenceID)
	sess, err := s.stripe.CreateSession(ctx, port.StripeSessionRequest{
		ReferenceID:   referenceID,
		Items:         q.items,
		Totals:        q.totals,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		return port.CheckoutSessionResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	return port.CheckoutSessionResponse{
		ID:          sess.ID,
		URL:         sess.URL,
		ReferenceID: referenceID,
		Totals:      q.totals,
	}, nil
}

// ConfirmCheckoutSession records a paid Stripe session after checking the
// paid amount against the server total. The session's client reference
// names the local order; a request naming another order is rejected.
func (s Service) ConfirmCheckoutSession(
	ctx context.Context, req port.CaptureRequest,
) (port.CaptureResponse, error) {
	const op = "Service.ConfirmCheckoutSession"

	if err := ctx.Err(); err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.stripe == nil {
		return port.CaptureResponse{}, notConfigured(op, ProviderStripe)
	}
	sessionID := strings.TrimSpace(req.OrderID)
	if sessionID == "" {
		return port.CaptureResponse{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: []string{"orderId"}},
		)
	}

	capture, err := s.stripe.RetrieveSession(ctx, sessionID)
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	localOrderID, err := sessionOrderID(capture, req.LocalOrderID)
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: session %s: %w", op, sessionID, err)
	}
	res, ok, err := s.alreadyRecorded(ctx, localOrderID, func(p domain.PaymentInfo) bool {
		return p.ProviderOrderID == sessionID
	})
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return res, nil
	}

	if capture.Status != stripePaid {
		return port.CaptureResponse{}, fmt.Errorf(
			"%s: status %q: %w", op, capture.Status, domain.ErrPaymentNotCompleted,
		)
	}

	// The session is already paid, so stock is not re-validated here.
	q, err := s.quote(ctx, req.Cart, req.ShippingMethodID)
	if err != nil {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	paid, _ := capture.Details["amountTotal"].(int64)
	if paid != domain.Cents(q.totals.Total) {
		return port.CaptureResponse{}, fmt.Errorf("%s: %w", op, &domain.TotalsMismatchError{
			ServerTotal: q.totals.Total,
			ClientTotal: domain.Round2(float64(paid) / 100),
		})
	}

	method := req.Method
	if method == "" {
		method = "card"
	}
	return s.complete(ctx, q, capture, completion{
		orderID:   localOrderID,
		customer:  req.Customer,
		notes:     req.Notes,
		method:    method,
		labelCost: req.LabelCost,
	}), nil
}

// sessionOrderID resolves the local order of a session from its client
// reference. The requested id, when given, must match the reference.
func sessionOrderID(capture domain.CaptureResult, requested string) (string, error) {
	ref, _ := capture.Details["clientReferenceId"].(string)
	ref = strings.TrimSpace(ref)
	requested = strings.TrimSpace(requested)

	switch {
	case ref == "" && requested == "":
		return "", &domain.ValidationError{Fields: []string{"localOrderId"}}
	case ref == "":
		return requested, nil
	case requested != "" && requested != ref:
		return "", fmt.Errorf("reference %q, requested %q: %w", ref, requested, domain.ErrOrderConflict)
	}
	return ref, nil
}

type completion struct {
	orderID        string
	customer       domain.Customer
	notes          string
	method         string
	labelCost      float64
	idempotencyKey string
}

// complete builds the order of a captured payment and runs the side effects.
func (s Service) complete(
	ctx context.Context, q quote, capture domain.CaptureResult, c completion,
) port.CaptureResponse {
	const op = "Service.complete"
	log := slog.With("op", op, "orderID", c.orderID)

	order := calc.BuildOrder(calc.OrderInput{
		OrderID:          c.orderID,
		Customer:         c.customer,
		Notes:            c.notes,
		Items:            q.items,
		Totals:           q.totals,
		ShippingMethodID: q.shippingMethodID,
		LabelCost:        c.labelCost,
		Method:           c.method,
		Capture:          capture,
	}, q.fees)
	order.Payment.IdempotencyKey = c.idempotencyKey

	log.Info(
		"payment captured",
		"provider", capture.Provider,
		"transactionID", capture.TransactionID,
		"total", domain.FormatMoney(order.Total),
	)

	// Effects run to completion once the payment is taken.
	effCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.effectsTimeout)
	defer cancel()
	effects := s.runEffects(effCtx, order, q.lines, q.totals.Currency)

	return port.CaptureResponse{
		OK:          true,
		Capture:     capture,
		Totals:      q.totals,
		Order:       order,
		SideEffects: effects,
	}
}

// alreadyRecorded returns the stored order when a retried request reaches
// the server after the first one completed. The retry must carry the
// payment the order was recorded with; paidWith checks it.
func (s Service) alreadyRecorded(
	ctx context.Context, orderID string, paidWith func(domain.PaymentInfo) bool,
) (port.CaptureResponse, bool, error) {
	const op = "Service.alreadyRecorded"

	o, err := s.orders.ReadOrder(ctx, orderID)
	if err != nil {
		return port.CaptureResponse{}, false, nil
	}
	if !paidWith(o.Payment) {
		slog.Warn("order recorded with another payment", "op", op, "orderID", orderID)
		return port.CaptureResponse{}, false, fmt.Errorf(
			"%s: order %s: %w", op, orderID, domain.ErrOrderConflict,
		)
	}

	slog.Info("order already recorded", "op", op, "orderID", orderID)

	skipped := domain.EffectSkipped()
	return port.CaptureResponse{
		OK: true,
		Capture: domain.CaptureResult{
			Provider:      o.Payment.Provider,
			OrderID:       o.Payment.ProviderOrderID,
			TransactionID: o.Payment.ProviderCaptureID,
			Status:        o.Payment.ProviderStatus,
			PayerEmail:    o.Payment.PayerEmail,
		},
		Totals: o.Totals(domain.NormalizeCurrency(s.pricing.Pricing().Currency)),
		Order:  o,
		SideEffects: domain.SideEffects{
			Stock: skipped, Email: skipped, Record: skipped, Event: skipped,
		},
	}, true, nil
}

func orderIDOrNew(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.NewOrderID()
	}
	return id
}
