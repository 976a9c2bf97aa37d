package port

import (
	"context"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

type (
	CreateOrderRequest struct {
		Cart             []domain.CartLine `json:"cart"`
		ShippingMethodID string            `json:"shippingMethodId"`
		// ExpectedTotal is checked only when present and positive.
		ExpectedTotal *float64 `json:"expectedTotal,omitempty"`
		Currency      string   `json:"currency,omitempty"`
		ReferenceID   string   `json:"referenceId,omitempty"`
	}

	CreateOrderResponse struct {
		ID          string        `json:"id"`
		ReferenceID string        `json:"referenceId"`
		Totals      domain.Totals `json:"totals"`
		Links       []Link        `json:"links,omitempty"`
	}

	// A CaptureRequest finalizes an approved provider order or session.
	CaptureRequest struct {
		OrderID          string            `json:"orderId"`
		LocalOrderID     string            `json:"localOrderId"`
		Cart             []domain.CartLine `json:"cart"`
		ShippingMethodID string            `json:"shippingMethodId"`
		Customer         domain.Customer   `json:"customer"`
		Notes            string            `json:"notes,omitempty"`
		Method           string            `json:"method,omitempty"`
		LabelCost        float64           `json:"labelCost,omitempty"`
	}

	PaymentRequest struct {
		SourceID         string            `json:"sourceId"`
		IdempotencyKey   string            `json:"idempotencyKey"`
		Currency         string            `json:"currency,omitempty"`
		BuyerEmail       string            `json:"buyerEmail,omitempty"`
		LocationID       string            `json:"locationId,omitempty"`
		Cart             []domain.CartLine `json:"cart"`
		ShippingMethodID string            `json:"shippingMethodId"`
		ExpectedTotal    *float64          `json:"expectedTotal,omitempty"`
		LocalOrderID     string            `json:"localOrderId"`
		Customer         domain.Customer   `json:"customer"`
		Notes            string            `json:"notes,omitempty"`
		Method           string            `json:"method,omitempty"`
		LabelCost        float64           `json:"labelCost,omitempty"`
	}

	// A CaptureResponse carries the capture, the charged totals, the
	// recorded order and the outcome of each side effect.
	CaptureResponse struct {
		OK      bool                 `json:"ok"`
		Capture domain.CaptureResult `json:"capture"`
		Totals  domain.Totals        `json:"totals"`
		Order   domain.Order         `json:"order"`
		domain.SideEffects
	}

	CheckoutSessionRequest struct {
		Cart             []domain.CartLine `json:"cart"`
		ShippingMethodID string            `json:"shippingMethodId"`
		ExpectedTotal    *float64          `json:"expectedTotal,omitempty"`
		CustomerEmail    string            `json:"customerEmail,omitempty"`
		ReferenceID      string            `json:"referenceId,omitempty"`
	}

	CheckoutSessionResponse struct {
		ID          string        `json:"id"`
		URL         string        `json:"url"`
		ReferenceID string        `json:"referenceId"`
		Totals      domain.Totals `json:"totals"`
	}

	ProductsUpdate struct {
		Products domain.Catalog `json:"products"`
	}
)

// StorefrontAPI is the trusted payment server as seen by the checkout.
type StorefrontAPI interface {
	CreateOrder(context.Context, CreateOrderRequest) (CreateOrderResponse, error)
	CaptureOrder(context.Context, CaptureRequest) (CaptureResponse, error)
	CreatePayment(context.Context, PaymentRequest) (CaptureResponse, error)
	CreateCheckoutSession(context.Context, CheckoutSessionRequest) (CheckoutSessionResponse, error)
	ConfirmCheckoutSession(context.Context, CaptureRequest) (CaptureResponse, error)
}

// CatalogSource serves the catalog with live stock.
type CatalogSource interface {
	Catalog(context.Context) (domain.Catalog, error)
}

type CatalogAdmin interface {
	UpdateProducts(context.Context, ProductsUpdate) error
	CatalogSource
}

type OrdersAdmin interface {
	ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error)
	ClearOrders(context.Context) (int64, error)
	Summary(context.Context) (domain.SalesSummary, error)
	ProductSales(ctx context.Context, productID int64) (domain.ProductSales, error)
}
