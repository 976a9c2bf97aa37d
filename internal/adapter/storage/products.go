package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/pkg/retry"
)

var _ port.CatalogRepository = (*CatalogRepository)(nil)

type CatalogRepository struct {
	sqldb sqldb
}

func NewCatalogRepository(sqldb sqldb) CatalogRepository {
	return CatalogRepository{sqldb}
}

func (r CatalogRepository) ReadCatalog(ctx context.Context) (domain.Catalog, error) {
	const op = "CatalogRepository.ReadCatalog"

	query := `SELECT id, name, price, stock, cost FROM products ORDER BY id ASC;`

	rows, err := r.sqldb.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var c domain.Catalog
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Cost); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c = append(c, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ReplaceCatalog swaps the whole product list in one transaction.
func (r CatalogRepository) ReplaceCatalog(ctx context.Context, c domain.Catalog) error {
	const op = "CatalogRepository.ReplaceCatalog"
	log := slog.With("op", op)

	err := withTx(ctx, r.sqldb, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM products;`); err != nil {
			return fmt.Errorf("failed to clear products: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO products (id, name, price, stock, cost)
			VALUES ($1, $2, $3, $4, $5);`)
		if err != nil {
			return fmt.Errorf("failed to prepare stmt: %w", err)
		}
		defer func() {
			if err := stmt.Close(); err != nil {
				log.Error("failed to close prepared stmt", "err", err)
			}
		}()

		for _, p := range c {
			_, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Price, p.Stock, p.Cost)
			if err != nil {
				return fmt.Errorf("failed to insert product %d: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("catalog replaced", "nProducts", len(c))
	return nil
}

// DecrementStock subtracts every line in one serializable transaction.
// Stock never drops below zero.
func (r CatalogRepository) DecrementStock(ctx context.Context, lines []domain.CartLine) error {
	const op = "CatalogRepository.DecrementStock"

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	err := retry.Do(ctx, conflictRetry(), func() error {
		return withTx(ctx, r.sqldb, opts, func(tx *sql.Tx) error {
			for _, l := range lines {
				if l.Qty <= 0 {
					continue
				}
				_, err := tx.ExecContext(ctx, `
					UPDATE products SET stock = GREATEST(stock - $2, 0)
					WHERE id = $1;`, l.ProductID, l.Qty)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
