package calc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

type OrderInput struct {
	OrderID   string
	CreatedAt time.Time
	Customer  domain.Customer
	Notes     string
	Items     []domain.Item
	Totals    domain.Totals
	// ShippingMethodID is the method the totals were priced with.
	ShippingMethodID string
	// LabelCost overrides the actual shipment cost when positive.
	LabelCost float64
	Method    string
	Capture   domain.CaptureResult
}

// BuildOrder assembles the order record of a captured payment.
//
// The provider fee is used when reported, otherwise it is estimated from the
// fee schedule. Profit may be negative.
func BuildOrder(in OrderInput, fees domain.FeeSchedule) domain.Order {
	total := domain.Dec(in.Totals.Total)

	fee := EstimateFee(in.Totals.Total, fees)
	if in.Capture.Fee != nil && *in.Capture.Fee > 0 {
		fee = domain.Dec(*in.Capture.Fee).Round(2)
	}

	cogs := COGS(in.Items)

	labelCost := domain.Dec(in.Totals.Shipping)
	if in.LabelCost > 0 {
		labelCost = domain.Dec(in.LabelCost)
	}

	profit := total.Sub(cogs).Sub(fee).Sub(labelCost)

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	id := in.OrderID
	if id == "" {
		id = domain.NewOrderID()
	}

	items := make([]domain.Item, len(in.Items))
	copy(items, in.Items)

	return domain.Order{
		ID:        id,
		CreatedAt: createdAt,
		Status:    domain.StatusPaid,
		Customer:  in.Customer,
		Notes:     in.Notes,
		Shipping: domain.ShippingInfo{
			MethodID:  in.ShippingMethodID,
			Charged:   in.Totals.Shipping,
			LabelCost: domain.Money(labelCost),
		},
		Items:    items,
		Subtotal: in.Totals.Subtotal,
		Tax:      in.Totals.Tax,
		Total:    in.Totals.Total,
		Fees:     domain.Money(fee),
		COGS:     domain.Money(cogs),
		Profit:   domain.Money(profit),
		Payment: domain.PaymentInfo{
			Provider:          in.Capture.Provider,
			Method:            in.Method,
			ProviderOrderID:   in.Capture.OrderID,
			ProviderCaptureID: in.Capture.TransactionID,
			ProviderStatus:    in.Capture.Status,
			PayerEmail:        in.Capture.PayerEmail,
		},
	}
}

func EstimateFee(total float64, fees domain.FeeSchedule) decimal.Decimal {
	return domain.Dec(total).
		Mul(domain.Dec(domain.Finite(fees.Percent, 0))).
		Add(domain.Dec(domain.Finite(fees.Fixed, 0))).
		Round(2)
}

// COGS sums the snapshot cost of each item.
func COGS(items []domain.Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(domain.Dec(it.Cost).Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return sum.Round(2)
}
