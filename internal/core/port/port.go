package port

import (
	"context"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

// Storefront server ports.

type CatalogRepository interface {
	ReadCatalog(context.Context) (domain.Catalog, error)
	ReplaceCatalog(context.Context, domain.Catalog) error
	// DecrementStock atomically subtracts quantities, flooring stock at 0.
	DecrementStock(context.Context, []domain.CartLine) error
}

type OrdersRepository interface {
	SaveOrder(context.Context, domain.Order) error
	ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error)
	ReadOrder(ctx context.Context, id string) (domain.Order, error)
	ClearOrders(context.Context) (int64, error)
}

type PricingSource interface {
	Pricing() domain.Pricing
}

type PayPalOrderRequest struct {
	ReferenceID string
	Items       []domain.Item
	Totals      domain.Totals
}

type PayPalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links,omitempty"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type PayPalGateway interface {
	CreateOrder(context.Context, PayPalOrderRequest) (PayPalOrder, error)
	// CaptureOrder captures an approved order. requestID makes retries idempotent.
	CaptureOrder(ctx context.Context, orderID, requestID string) (domain.CaptureResult, error)
}

type SquarePaymentRequest struct {
	SourceID       string
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	LocationID     string
	BuyerEmail     string
	ReferenceID    string
}

type SquareGateway interface {
	CreatePayment(context.Context, SquarePaymentRequest) (domain.CaptureResult, error)
}

type StripeSessionRequest struct {
	ReferenceID   string
	Items         []domain.Item
	Totals        domain.Totals
	CustomerEmail string
}

type StripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type StripeGateway interface {
	CreateSession(context.Context, StripeSessionRequest) (StripeSession, error)
	// RetrieveSession returns the session payment as a capture result with
	// the paid amount in Details["amountTotal"] as cents.
	RetrieveSession(ctx context.Context, sessionID string) (domain.CaptureResult, error)
}

type Receipt struct {
	Order    domain.Order
	Currency string
}

type Mailer interface {
	SendReceipt(context.Context, Receipt) domain.EffectResult
}

type OrderEventsPublisher interface {
	PublishOrderPlaced(context.Context, domain.OrderPlaced) error
}

type SalesReader interface {
	UnitsSold(ctx context.Context, productID int64) (int64, error)
}

// Checkout client ports.

type CartStore interface {
	LoadCart(context.Context) ([]domain.CartLine, error)
	SaveCart(context.Context, []domain.CartLine) error
	ClearCart(context.Context) error
}

type CatalogStore interface {
	LoadCatalog(context.Context) (domain.Catalog, error)
	SaveCatalog(context.Context, domain.Catalog) error
}

type OrderStore interface {
	// AppendOrder stores the order newest first.
	AppendOrder(context.Context, domain.Order) error
	LoadOrders(context.Context) ([]domain.Order, error)
}

type Notifier interface {
	NotifyOrder(context.Context, domain.Order) error
}
