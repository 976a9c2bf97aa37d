// Package localstore keeps the checkout's cart, catalog snapshot and
// order history as JSON files in one directory.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const (
	CartFile    = "cart.json"
	CatalogFile = "products.json"
	OrdersFile  = "orders.json"
)

var (
	_ port.CartStore    = (*Store)(nil)
	_ port.CatalogStore = (*Store)(nil)
	_ port.OrderStore   = (*Store)(nil)
)

type Store struct {
	dir string
	mu  *sync.Mutex
}

// New opens the store at dir, creating the directory when missing.
func New(dir string) (Store, error) {
	const op = "localstore.New"

	if dir == "" {
		return Store{}, fmt.Errorf("%s: empty dir: %w", op, domain.ErrNotConfigured)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Store{}, fmt.Errorf("%s: %w", op, err)
	}
	return Store{dir: dir, mu: &sync.Mutex{}}, nil
}

// LoadCart treats a missing or unreadable cart as empty.
func (s Store) LoadCart(ctx context.Context) ([]domain.CartLine, error) {
	const op = "Store.LoadCart"

	var lines []domain.CartLine
	if err := s.readLenient(ctx, CartFile, &lines); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lines, nil
}

func (s Store) SaveCart(ctx context.Context, lines []domain.CartLine) error {
	const op = "Store.SaveCart"

	if lines == nil {
		lines = []domain.CartLine{}
	}
	if err := s.write(ctx, CartFile, lines); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s Store) ClearCart(ctx context.Context) error {
	const op = "Store.ClearCart"

	if err := s.write(ctx, CartFile, []domain.CartLine{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s Store) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	const op = "Store.LoadCatalog"

	var c domain.Catalog
	if err := s.readLenient(ctx, CatalogFile, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (s Store) SaveCatalog(ctx context.Context, c domain.Catalog) error {
	const op = "Store.SaveCatalog"

	if c == nil {
		c = domain.Catalog{}
	}
	if err := s.write(ctx, CatalogFile, c); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AppendOrder puts the order first. A corrupt history is an error so that
// an append never overwrites it.
func (s Store) AppendOrder(ctx context.Context, o domain.Order) error {
	const op = "Store.AppendOrder"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []domain.Order
	if err := s.read(OrdersFile, &orders); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	orders = append([]domain.Order{o}, orders...)

	if err := s.writeLocked(OrdersFile, orders); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s Store) LoadOrders(ctx context.Context) ([]domain.Order, error) {
	const op = "Store.LoadOrders"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []domain.Order
	if err := s.read(OrdersFile, &orders); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s Store) readLenient(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.read(name, v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			slog.Warn("ignoring unreadable file", "file", name, "err", err)
			return nil
		}
		return err
	}
	return nil
}

// read leaves v untouched when the file does not exist.
func (s Store) read(name string, v any) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (s Store) write(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(name, v)
}

// writeLocked replaces the file through a rename so readers never see a
// partial document.
func (s Store) writeLocked(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
