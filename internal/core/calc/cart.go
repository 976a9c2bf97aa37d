package calc

import "github.com/niksmo/twin-supply/internal/core/domain"

const MaxLineQty = 999

// NormalizeCart clamps quantities to [1, MaxLineQty] and drops lines
// without a positive product id.
func NormalizeCart(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 {
			continue
		}
		l.Qty = min(max(l.Qty, 1), MaxLineQty)
		out = append(out, l)
	}
	return out
}

// ClampCart applies catalog stock to a stored cart.
//
// Quantities are clamped to [1, stock] and lines for sold-out products are
// dropped. Lines for unknown products are kept as they are.
func ClampCart(lines []domain.CartLine, catalog domain.Catalog) []domain.CartLine {
	byID := catalog.ByID()
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		l.Qty = max(l.Qty, 1)
		p, ok := byID[l.ProductID]
		if ok {
			if p.Stock <= 0 {
				continue
			}
			l.Qty = min(l.Qty, p.Stock)
		}
		out = append(out, l)
	}
	return out
}
