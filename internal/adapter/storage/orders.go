package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

var _ port.OrdersRepository = (*OrdersRepository)(nil)

// OrdersRepository keeps each order as a JSON document next to its
// indexed id, status and creation time.
type OrdersRepository struct {
	sqldb sqldb
}

func NewOrdersRepository(sqldb sqldb) OrdersRepository {
	return OrdersRepository{sqldb}
}

// SaveOrder inserts the order once. Saving an id again is a no-op.
func (r OrdersRepository) SaveOrder(ctx context.Context, o domain.Order) error {
	const op = "OrdersRepository.SaveOrder"

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO orders (id, created_at, status, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;`

	res, err := r.sqldb.ExecContext(ctx, query, o.ID, o.CreatedAt, string(o.Status), data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Info("order already recorded", "op", op, "orderID", o.ID)
	}
	return nil
}

// ListOrders returns orders newest first. A non-positive limit lists all.
func (r OrdersRepository) ListOrders(
	ctx context.Context, limit, offset int,
) ([]domain.Order, error) {
	const op = "OrdersRepository.ListOrders"

	query := `SELECT data FROM orders ORDER BY created_at DESC, id DESC OFFSET $1`
	args := []any{max(offset, 0)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.sqldb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		o, err := decodeOrder(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (r OrdersRepository) ReadOrder(ctx context.Context, id string) (domain.Order, error) {
	const op = "OrdersRepository.ReadOrder"

	var raw []byte
	err := r.sqldb.QueryRowContext(ctx, `SELECT data FROM orders WHERE id = $1;`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("%s: %w", op, domain.ErrOrderNotFound)
		}
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	o, err := decodeOrder(raw)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// UpdateStatus sets the status column and the status field of the stored
// document together.
func (r OrdersRepository) UpdateStatus(
	ctx context.Context, id string, status domain.OrderStatus,
) (domain.Order, error) {
	const op = "OrdersRepository.UpdateStatus"

	query := `
		UPDATE orders
		SET status = $2, data = jsonb_set(data, '{status}', to_jsonb($2::text))
		WHERE id = $1
		RETURNING data;`

	var raw []byte
	err := r.sqldb.QueryRowContext(ctx, query, id, string(status)).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("%s: %w", op, domain.ErrOrderNotFound)
		}
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	o, err := decodeOrder(raw)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

func (r OrdersRepository) ClearOrders(ctx context.Context) (int64, error) {
	const op = "OrdersRepository.ClearOrders"

	res, err := r.sqldb.ExecContext(ctx, `DELETE FROM orders;`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func decodeOrder(raw []byte) (domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}
