// Package calc holds the pure checkout computations shared by the storefront
// server and the checkout client.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

// JoinCart resolves cart lines against the catalog.
//
// Lines whose product is unknown are dropped.
func JoinCart(lines []domain.CartLine, catalog domain.Catalog) []domain.Item {
	byID := catalog.ByID()
	items := make([]domain.Item, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || l.Qty < 1 {
			continue
		}
		items = append(items, domain.Item{
			ID:    p.ID,
			Name:  p.Name,
			Price: domain.Finite(p.Price, 0),
			Cost:  domain.Finite(p.Cost, 0),
			Qty:   l.Qty,
		})
	}
	return items
}

// ComputeTotals prices items with the resolved shipping method and tax rate.
//
// Each component is rounded to cents before the total is summed and rounded again.
func ComputeTotals(
	items []domain.Item, pricing domain.Pricing, shippingMethodID string,
) domain.Totals {
	sub := decimal.Zero
	for _, it := range items {
		sub = sub.Add(domain.Dec(it.Price).Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	subtotal := sub.Round(2)

	method := pricing.ShippingMethods.Resolve(shippingMethodID)
	shipping := domain.Dec(domain.Finite(method.Price, 0)).Round(2)

	rate := domain.Dec(domain.ClampPercent(pricing.TaxRate))
	tax := subtotal.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)

	total := subtotal.Add(shipping).Add(tax).Round(2)

	return domain.Totals{
		Currency: domain.NormalizeCurrency(pricing.Currency),
		Subtotal: subtotal.InexactFloat64(),
		Shipping: shipping.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

// CheckExpectedTotal returns a TotalsMismatchError when the client total
// differs from the server total by more than a cent.
func CheckExpectedTotal(t domain.Totals, expected float64) error {
	if domain.MoneyEqual(expected, t.Total) {
		return nil
	}
	return &domain.TotalsMismatchError{
		ServerTotal: t.Total,
		ClientTotal: domain.Round2(expected),
	}
}
