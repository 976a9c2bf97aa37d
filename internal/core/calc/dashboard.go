package calc

import (
	"github.com/shopspring/decimal"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

// Recompute refreshes the derived financials of a stored order, keeping
// any fee and label cost already recorded on it.
func Recompute(o domain.Order) domain.Order {
	cogs := COGS(o.Items)
	profit := domain.Dec(o.Total).
		Sub(cogs).
		Sub(domain.Dec(o.Fees)).
		Sub(domain.Dec(o.Shipping.LabelCost))
	o.COGS = domain.Money(cogs)
	o.Profit = domain.Money(profit)
	return o
}

// Summarize aggregates revenue and profit over paid orders.
func Summarize(orders []domain.Order) domain.SalesSummary {
	var s domain.SalesSummary
	revenue, profit := decimal.Zero, decimal.Zero
	for _, o := range orders {
		if o.Status == domain.StatusPending {
			s.Pending++
		}
		if !o.Status.Paid() {
			continue
		}
		s.Orders++
		revenue = revenue.Add(domain.Dec(o.Total))
		profit = profit.Add(domain.Dec(o.Profit))
		for _, it := range o.Items {
			s.UnitsSold += it.Qty
		}
	}
	s.Revenue = domain.Money(revenue)
	s.Profit = domain.Money(profit)
	return s
}
