package calc

import "github.com/niksmo/twin-supply/internal/core/domain"

// ValidateStock reports every line asking for more than the catalog holds.
//
// The catalog must be freshly read by the caller. Unknown products are skipped.
func ValidateStock(
	lines []domain.CartLine, catalog domain.Catalog,
) []domain.StockShortage {
	byID := catalog.ByID()
	requested := make(map[int64]int, len(lines))
	order := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := byID[l.ProductID]; !ok {
			continue
		}
		if _, seen := requested[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		requested[l.ProductID] += l.Qty
	}

	var shortages []domain.StockShortage
	for _, id := range order {
		p := byID[id]
		if requested[id] > p.Stock {
			shortages = append(shortages, domain.StockShortage{
				ProductID:      p.ID,
				ProductName:    p.Name,
				AvailableStock: p.Stock,
				Requested:      requested[id],
			})
		}
	}
	return shortages
}

// DecrementStock returns a catalog copy with purchased quantities removed.
//
// Stock floors at 0 and unknown products are skipped.
func DecrementStock(catalog domain.Catalog, lines []domain.CartLine) domain.Catalog {
	dec := make(map[int64]int, len(lines))
	for _, l := range lines {
		dec[l.ProductID] += max(1, l.Qty)
	}

	out := make(domain.Catalog, len(catalog))
	for i, p := range catalog {
		if n, ok := dec[p.ID]; ok {
			p.Stock = max(0, p.Stock-n)
		}
		out[i] = p
	}
	return out
}
