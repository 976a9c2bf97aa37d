package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

var ErrApprovalMismatch = errors.New("approval does not match the pending payment")

type (
	// An IntentRequest carries the client-side view of the cart.
	//
	// Totals are what the buyer sees, the server checks them against its own.
	IntentRequest struct {
		LocalOrderID     string
		Cart             []domain.CartLine
		Items            []domain.Item
		Totals           domain.Totals
		ShippingMethodID string
		CustomerEmail    string
	}

	// An Intent is a created but not yet captured payment.
	Intent struct {
		Provider       string
		ProviderID     string
		LocalOrderID   string
		IdempotencyKey string
		ApproveURL     string
		Totals         domain.Totals
		Cart           []domain.CartLine
		Items          []domain.Item
		// ShippingMethodID is the method the intent was priced with.
		ShippingMethodID string
		// Sandbox is set when the intent was built without the trusted server.
		Sandbox bool
	}

	// An Approval is the buyer's confirmation coming back from the provider UI.
	Approval struct {
		ProviderID string
		SourceID   string
		PayerEmail string
	}

	CaptureRequest struct {
		LocalOrderID     string
		Cart             []domain.CartLine
		ShippingMethodID string
		Customer         domain.Customer
		Notes            string
		Method           string
		LabelCost        float64
	}

	CaptureOutcome struct {
		Result domain.CaptureResult
		Totals domain.Totals
	}
)

// A Provider is one payment processor behind the trusted server.
type Provider interface {
	Name() string
	CreateIntent(context.Context, IntentRequest) (Intent, error)
	CaptureIntent(context.Context, Intent, Approval, CaptureRequest) (CaptureOutcome, error)
}

// A Fallback creates and captures payments without the trusted server.
//
// It is only consulted in a sandbox environment.
type Fallback interface {
	CreateIntent(context.Context, IntentRequest) (Intent, error)
	CaptureIntent(context.Context, Intent, Approval, CaptureRequest) (CaptureOutcome, error)
}

var (
	_ Provider = PayPalProvider{}
	_ Provider = SquareProvider{}
	_ Provider = StripeProvider{}
	_ Fallback = PayPalSandbox{}
)

// PayPalProvider creates PayPal orders on the server and captures them after approval.
type PayPalProvider struct {
	API port.StorefrontAPI
}

func (PayPalProvider) Name() string {
	return "paypal"
}

func (p PayPalProvider) CreateIntent(ctx context.Context, r IntentRequest) (Intent, error) {
	const op = "PayPalProvider.CreateIntent"

	expected := r.Totals.Total
	res, err := p.API.CreateOrder(ctx, port.CreateOrderRequest{
		Cart:             r.Cart,
		ShippingMethodID: r.ShippingMethodID,
		ExpectedTotal:    &expected,
		Currency:         r.Totals.Currency,
		ReferenceID:      r.LocalOrderID,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	return Intent{
		Provider:     p.Name(),
		ProviderID:   res.ID,
		LocalOrderID: r.LocalOrderID,
		ApproveURL:   approveLink(res.Links),
		Totals:       res.Totals,
		Cart:         r.Cart,
		Items:        r.Items,
	}, nil
}

func (p PayPalProvider) CaptureIntent(
	ctx context.Context, in Intent, a Approval, r CaptureRequest,
) (CaptureOutcome, error) {
	const op = "PayPalProvider.CaptureIntent"

	if a.ProviderID != "" && a.ProviderID != in.ProviderID {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, ErrApprovalMismatch)
	}

	res, err := p.API.CaptureOrder(ctx, port.CaptureRequest{
		OrderID:          in.ProviderID,
		LocalOrderID:     in.LocalOrderID,
		Cart:             r.Cart,
		ShippingMethodID: r.ShippingMethodID,
		Customer:         r.Customer,
		Notes:            r.Notes,
		Method:           r.Method,
		LabelCost:        r.LabelCost,
	})
	if err != nil {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return CaptureOutcome{Result: res.Capture, Totals: res.Totals}, nil
}

// SquareProvider charges a tokenized payment source in a single server call.
//
// The intent holds the idempotency key so a retried charge is not doubled.
type SquareProvider struct {
	API        port.StorefrontAPI
	LocationID string
}

func (SquareProvider) Name() string {
	return "square"
}

func (p SquareProvider) CreateIntent(_ context.Context, r IntentRequest) (Intent, error) {
	return Intent{
		Provider:       p.Name(),
		LocalOrderID:   r.LocalOrderID,
		IdempotencyKey: uuid.NewString(),
		Totals:         r.Totals,
		Cart:           r.Cart,
		Items:          r.Items,
	}, nil
}

func (p SquareProvider) CaptureIntent(
	ctx context.Context, in Intent, a Approval, r CaptureRequest,
) (CaptureOutcome, error) {
	const op = "SquareProvider.CaptureIntent"

	if a.SourceID == "" {
		return CaptureOutcome{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: []string{"sourceId"}},
		)
	}

	expected := in.Totals.Total
	res, err := p.API.CreatePayment(ctx, port.PaymentRequest{
		SourceID:         a.SourceID,
		IdempotencyKey:   in.IdempotencyKey,
		Currency:         in.Totals.Currency,
		BuyerEmail:       a.PayerEmail,
		LocationID:       p.LocationID,
		Cart:             r.Cart,
		ShippingMethodID: r.ShippingMethodID,
		ExpectedTotal:    &expected,
		LocalOrderID:     in.LocalOrderID,
		Customer:         r.Customer,
		Notes:            r.Notes,
		Method:           r.Method,
		LabelCost:        r.LabelCost,
	})
	if err != nil {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return CaptureOutcome{Result: res.Capture, Totals: res.Totals}, nil
}

// StripeProvider uses hosted checkout sessions.
type StripeProvider struct {
	API port.StorefrontAPI
}

func (StripeProvider) Name() string {
	return "stripe"
}

func (p StripeProvider) CreateIntent(ctx context.Context, r IntentRequest) (Intent, error) {
	const op = "StripeProvider.CreateIntent"

	expected := r.Totals.Total
	res, err := p.API.CreateCheckoutSession(ctx, port.CheckoutSessionRequest{
		Cart:             r.Cart,
		ShippingMethodID: r.ShippingMethodID,
		ExpectedTotal:    &expected,
		CustomerEmail:    r.CustomerEmail,
		ReferenceID:      r.LocalOrderID,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	return Intent{
		Provider:     p.Name(),
		ProviderID:   res.ID,
		LocalOrderID: r.LocalOrderID,
		ApproveURL:   res.URL,
		Totals:       res.Totals,
		Cart:         r.Cart,
		Items:        r.Items,
	}, nil
}

func (p StripeProvider) CaptureIntent(
	ctx context.Context, in Intent, a Approval, r CaptureRequest,
) (CaptureOutcome, error) {
	const op = "StripeProvider.CaptureIntent"

	if a.ProviderID != "" && a.ProviderID != in.ProviderID {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, ErrApprovalMismatch)
	}

	res, err := p.API.ConfirmCheckoutSession(ctx, port.CaptureRequest{
		OrderID:          in.ProviderID,
		LocalOrderID:     in.LocalOrderID,
		Cart:             r.Cart,
		ShippingMethodID: r.ShippingMethodID,
		Customer:         r.Customer,
		Notes:            r.Notes,
		Method:           r.Method,
		LabelCost:        r.LabelCost,
	})
	if err != nil {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return CaptureOutcome{Result: res.Capture, Totals: res.Totals}, nil
}

// PayPalSandbox talks to the PayPal sandbox directly with client-side totals.
//
// The amount is not verified by any trusted party, so it is only wired in
// sandbox environments.
type PayPalSandbox struct {
	Gateway port.PayPalGateway
}

func (p PayPalSandbox) CreateIntent(ctx context.Context, r IntentRequest) (Intent, error) {
	const op = "PayPalSandbox.CreateIntent"

	po, err := p.Gateway.CreateOrder(ctx, port.PayPalOrderRequest{
		ReferenceID: r.LocalOrderID,
		Items:       r.Items,
		Totals:      r.Totals,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	return Intent{
		Provider:     "paypal",
		ProviderID:   po.ID,
		LocalOrderID: r.LocalOrderID,
		ApproveURL:   approveLink(po.Links),
		Totals:       r.Totals,
		Cart:         r.Cart,
		Items:        r.Items,
		Sandbox:      true,
	}, nil
}

func (p PayPalSandbox) CaptureIntent(
	ctx context.Context, in Intent, a Approval, _ CaptureRequest,
) (CaptureOutcome, error) {
	const op = "PayPalSandbox.CaptureIntent"

	if a.ProviderID != "" && a.ProviderID != in.ProviderID {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, ErrApprovalMismatch)
	}

	res, err := p.Gateway.CaptureOrder(ctx, in.ProviderID, in.LocalOrderID)
	if err != nil {
		return CaptureOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return CaptureOutcome{Result: res, Totals: in.Totals}, nil
}

func approveLink(links []port.Link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}
