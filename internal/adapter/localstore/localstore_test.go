package localstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niksmo/twin-supply/internal/adapter/localstore"
	"github.com/niksmo/twin-supply/internal/core/domain"
)

func newStore(t *testing.T) (localstore.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	s, err := localstore.New(dir)
	require.NoError(t, err)
	return s, dir
}

func TestCart(t *testing.T) {
	s, dir := newStore(t)
	ctx := t.Context()

	lines, err := s.LoadCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	want := []domain.CartLine{{ProductID: 1, Qty: 2}, {ProductID: 3, Qty: 1}}
	require.NoError(t, s.SaveCart(ctx, want))

	got, err := s.LoadCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.ClearCart(ctx))
	got, err = s.LoadCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	t.Run("Corrupt", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, localstore.CartFile), []byte("{"), 0o600))
		got, err := s.LoadCart(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestCatalog(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()

	c := domain.Catalog{{ID: 1, Name: "Hoodie", Price: 65, Stock: 4, Cost: 20}}
	require.NoError(t, s.SaveCatalog(ctx, c))

	got, err := s.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestOrders(t *testing.T) {
	t.Run("NewestFirst", func(t *testing.T) {
		s, _ := newStore(t)
		ctx := t.Context()

		require.NoError(t, s.AppendOrder(ctx, domain.Order{ID: "TS-1"}))
		require.NoError(t, s.AppendOrder(ctx, domain.Order{ID: "TS-2"}))

		orders, err := s.LoadOrders(ctx)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "TS-2", orders[0].ID)
		assert.Equal(t, "TS-1", orders[1].ID)
	})

	t.Run("CorruptHistoryKept", func(t *testing.T) {
		s, dir := newStore(t)
		path := filepath.Join(dir, localstore.OrdersFile)
		require.NoError(t, os.WriteFile(path, []byte("[{"), 0o600))

		err := s.AppendOrder(t.Context(), domain.Order{ID: "TS-1"})
		require.Error(t, err)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[{", string(raw))
	})
}

func TestNew(t *testing.T) {
	_, err := localstore.New("")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
