package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
	ShippingPickup   = "pickup"
)

type (
	ShippingMethod struct {
		ID    string  `json:"id" mapstructure:"id"`
		Name  string  `json:"name" mapstructure:"name"`
		Price float64 `json:"price" mapstructure:"price"`
	}

	ShippingMethods []ShippingMethod

	Totals struct {
		Currency string  `json:"currency"`
		Subtotal float64 `json:"subtotal"`
		Shipping float64 `json:"shipping"`
		Tax      float64 `json:"tax"`
		Total    float64 `json:"total"`
	}

	Customer struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Phone    string `json:"phone,omitempty"`
		Address1 string `json:"address1"`
		Address2 string `json:"address2,omitempty"`
		City     string `json:"city"`
		State    string `json:"state"`
		Zip      string `json:"zip"`
		Country  string `json:"country"`
	}

	ShippingInfo struct {
		MethodID  string  `json:"methodId"`
		Charged   float64 `json:"charged"`
		LabelCost float64 `json:"labelCost"`
	}

	PaymentInfo struct {
		Provider          string `json:"provider"`
		Method            string `json:"method"`
		ProviderOrderID   string `json:"providerOrderId"`
		ProviderCaptureID string `json:"providerCaptureId"`
		ProviderStatus    string `json:"providerStatus"`
		PayerEmail        string `json:"payerEmail,omitempty"`
		IdempotencyKey    string `json:"idempotencyKey,omitempty"`
	}

	Order struct {
		ID        string       `json:"id"`
		CreatedAt time.Time    `json:"createdAt"`
		Status    OrderStatus  `json:"status"`
		Customer  Customer     `json:"customer"`
		Notes     string       `json:"notes,omitempty"`
		Shipping  ShippingInfo `json:"shipping"`
		Items     []Item       `json:"items"`
		Subtotal  float64      `json:"subtotal"`
		Tax       float64      `json:"tax"`
		Total     float64      `json:"total"`
		Fees      float64      `json:"fees"`
		COGS      float64      `json:"cogs"`
		Profit    float64      `json:"profit"`
		Payment   PaymentInfo  `json:"payment"`
	}

	// A CaptureResult is the uniform outcome of a provider capture.
	//
	// Fee is set only when the provider reports the exact processing fee.
	// Details carries provider-specific fields tagged by Provider.
	CaptureResult struct {
		Provider      string         `json:"provider"`
		OrderID       string         `json:"orderId"`
		TransactionID string         `json:"transactionId"`
		Status        string         `json:"status"`
		PayerEmail    string         `json:"payerEmail,omitempty"`
		Fee           *float64       `json:"fee,omitempty"`
		Details       map[string]any `json:"details,omitempty"`
	}
)

func (ms ShippingMethods) Find(id string) (ShippingMethod, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, m := range ms {
		if m.ID == id {
			return m, true
		}
	}
	return ShippingMethod{}, false
}

// Resolve looks the method up by id and falls back to the standard method.
//
// When neither exists the zero method with price 0 is returned.
func (ms ShippingMethods) Resolve(id string) ShippingMethod {
	if m, ok := ms.Find(id); ok {
		return m
	}
	m, _ := ms.Find(ShippingStandard)
	return m
}

func DefaultShippingMethods() ShippingMethods {
	return ShippingMethods{
		{ID: ShippingStandard, Name: "Standard", Price: 7.99},
		{ID: ShippingExpress, Name: "Express", Price: 14.99},
		{ID: ShippingPickup, Name: "Pickup", Price: 0},
	}
}

// NewOrderID returns a sortable id made of a timestamp and a random suffix.
func NewOrderID() string {
	return "TS-" + ulid.Make().String()
}

func (o Order) Totals(currency string) Totals {
	return Totals{
		Currency: currency,
		Subtotal: o.Subtotal,
		Shipping: o.Shipping.Charged,
		Tax:      o.Tax,
		Total:    o.Total,
	}
}

func (o Order) Lines() []CartLine {
	lines := make([]CartLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, CartLine{ProductID: it.ID, Qty: it.Qty})
	}
	return lines
}

func (c Customer) HasEmail() bool {
	return strings.Contains(c.Email, "@")
}

// Missing lists required customer fields that are blank.
func (c Customer) Missing() []string {
	var missing []string
	required := []struct {
		name, v string
	}{
		{"name", c.Name},
		{"email", c.Email},
		{"address1", c.Address1},
		{"city", c.City},
		{"state", c.State},
		{"zip", c.Zip},
		{"country", c.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
