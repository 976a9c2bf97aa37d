package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/niksmo/twin-supply/internal/core/calc"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// UpdateProducts replaces the catalog with a validated product list.
func (s Service) UpdateProducts(ctx context.Context, u port.ProductsUpdate) error {
	const op = "Service.UpdateProducts"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[int64]struct{}, len(u.Products))
	for _, p := range u.Products {
		if !p.Valid() {
			return fmt.Errorf("%s: product %d: %w", op, p.ID, domain.ErrInvalidRequest)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%s: duplicate product %d: %w", op, p.ID, domain.ErrInvalidRequest)
		}
		seen[p.ID] = struct{}{}
	}

	if err := s.catalog.ReplaceCatalog(ctx, u.Products); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("catalog replaced", "nProducts", len(u.Products))
	return nil
}

func (s Service) Catalog(ctx context.Context) (domain.Catalog, error) {
	const op = "Service.Catalog"

	c, err := s.catalog.ReadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ListOrders returns a page of orders, newest first.
func (s Service) ListOrders(
	ctx context.Context, limit, offset int,
) ([]domain.Order, error) {
	const op = "Service.ListOrders"

	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	offset = max(offset, 0)

	orders, err := s.orders.ListOrders(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s Service) UpdateOrderStatus(
	ctx context.Context, id string, status domain.OrderStatus,
) (domain.Order, error) {
	const op = "Service.UpdateOrderStatus"
	log := slog.With("op", op, "orderID", id)

	if !status.Valid() {
		return domain.Order{}, fmt.Errorf(
			"%s: unknown status %q: %w", op, status, domain.ErrInvalidRequest,
		)
	}

	current, err := s.orders.ReadOrder(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	if !current.Status.CanTransition(status) {
		return domain.Order{}, fmt.Errorf(
			"%s: %s to %s: %w", op, current.Status, status, domain.ErrInvalidTransition,
		)
	}

	updated, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("status changed", "from", current.Status, "to", status)
	return updated, nil
}

// ClearOrders removes the whole order history.
func (s Service) ClearOrders(ctx context.Context) (int64, error) {
	const op = "Service.ClearOrders"

	n, err := s.orders.ClearOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	slog.Warn("orders cleared", "op", op, "nOrders", n)
	return n, nil
}

func (s Service) Summary(ctx context.Context) (domain.SalesSummary, error) {
	const op = "Service.Summary"

	orders, err := s.orders.ListOrders(ctx, 0, 0)
	if err != nil {
		return domain.SalesSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	return calc.Summarize(orders), nil
}

func (s Service) ProductSales(
	ctx context.Context, productID int64,
) (domain.ProductSales, error) {
	const op = "Service.ProductSales"

	if s.sales == nil {
		return domain.ProductSales{}, notConfigured(op, "sales view")
	}

	n, err := s.sales.UnitsSold(ctx, productID)
	if err != nil {
		return domain.ProductSales{}, fmt.Errorf("%s: %w", op, err)
	}
	return domain.ProductSales{ProductID: productID, UnitsSold: n}, nil
}
