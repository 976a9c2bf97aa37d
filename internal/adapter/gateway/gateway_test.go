package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niksmo/twin-supply/internal/adapter/gateway"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

func newClient(t *testing.T, status int, body string) gateway.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := gateway.New(srv.URL, srv.Client())
	require.NoError(t, err)
	return c
}

func TestCreateOrder(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		var got port.CreateOrderRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/paypal-create-order", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"id":"PP-1","referenceId":"TS-1","totals":{"total":137.99}}`))
		}))
		t.Cleanup(srv.Close)

		c, err := gateway.New(srv.URL+"/", srv.Client())
		require.NoError(t, err)

		res, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{
			Cart:             []domain.CartLine{{ProductID: 1, Qty: 2}},
			ShippingMethodID: "standard",
			ReferenceID:      "TS-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "PP-1", res.ID)
		assert.Equal(t, 137.99, res.Totals.Total)
		assert.Equal(t, "TS-1", got.ReferenceID)
	})

	t.Run("Mismatch", func(t *testing.T) {
		c := newClient(t, http.StatusBadRequest,
			`{"error":"Totals mismatch","serverTotal":137.99,"clientTotal":130}`)

		_, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{})

		var mismatch *domain.TotalsMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 137.99, mismatch.ServerTotal)
		assert.Equal(t, 130.0, mismatch.ClientTotal)
	})

	t.Run("Stock", func(t *testing.T) {
		c := newClient(t, http.StatusConflict,
			`{"error":"Insufficient stock","items":[{"id":1,"name":"Hoodie","availableStock":1,"requested":2}]}`)

		_, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{})

		var stock *domain.InsufficientStockError
		require.ErrorAs(t, err, &stock)
		require.Len(t, stock.Shortages, 1)
		assert.Equal(t, 1, stock.Shortages[0].AvailableStock)
	})

	t.Run("EmptyCart", func(t *testing.T) {
		c := newClient(t, http.StatusBadRequest, `{"error":"Cart is empty"}`)
		_, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	t.Run("ServerError", func(t *testing.T) {
		c := newClient(t, http.StatusInternalServerError, `{"error":"Server not configured"}`)
		_, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{})

		var apiErr *gateway.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.ErrorIs(t, err, domain.ErrNotConfigured)
		assert.NotErrorIs(t, err, domain.ErrServerUnavailable)
	})

	t.Run("GatewayErrors", func(t *testing.T) {
		for _, status := range []int{
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		} {
			c := newClient(t, status, `{"error":"upstream down"}`)
			_, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{})
			assert.ErrorIs(t, err, domain.ErrServerUnavailable, "status %d", status)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		c, err := gateway.New(srv.URL, srv.Client())
		require.NoError(t, err)
		srv.Close()

		_, err = c.CreateOrder(t.Context(), port.CreateOrderRequest{})
		assert.ErrorIs(t, err, domain.ErrServerUnavailable)
	})

	t.Run("OtherClientError", func(t *testing.T) {
		c := newClient(t, http.StatusMethodNotAllowed, `{"error":"Use POST"}`)
		_, err := c.CreateOrder(t.Context(), port.CreateOrderRequest{})

		var apiErr *gateway.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusMethodNotAllowed, apiErr.Status)
		assert.NotErrorIs(t, err, domain.ErrServerUnavailable)
	})
}

func TestCapture(t *testing.T) {
	t.Run("PaymentNotCompleted", func(t *testing.T) {
		c := newClient(t, http.StatusBadRequest,
			`{"error":"Payment not completed","detail":"status unpaid"}`)
		_, err := c.ConfirmCheckoutSession(t.Context(), port.CaptureRequest{OrderID: "cs_1"})
		assert.ErrorIs(t, err, domain.ErrPaymentNotCompleted)
	})

	t.Run("MissingFields", func(t *testing.T) {
		c := newClient(t, http.StatusBadRequest,
			`{"error":"Missing required fields","fields":["sourceId"]}`)
		_, err := c.CreatePayment(t.Context(), port.PaymentRequest{})

		var invalid *domain.ValidationError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, []string{"sourceId"}, invalid.Fields)
	})

	t.Run("ProviderError", func(t *testing.T) {
		c := newClient(t, http.StatusInternalServerError,
			`{"error":"Payment provider error","detail":"card declined"}`)
		_, err := c.CaptureOrder(t.Context(), port.CaptureRequest{OrderID: "PP-1"})
		assert.ErrorIs(t, err, domain.ErrProvider)
		assert.NotErrorIs(t, err, domain.ErrServerUnavailable)
	})

	t.Run("OrderConflict", func(t *testing.T) {
		c := newClient(t, http.StatusConflict, `{"error":"Order reference conflict"}`)
		_, err := c.ConfirmCheckoutSession(t.Context(), port.CaptureRequest{OrderID: "cs_1"})
		assert.ErrorIs(t, err, domain.ErrOrderConflict)
	})

	t.Run("Captured", func(t *testing.T) {
		c := newClient(t, http.StatusOK,
			`{"ok":true,"capture":{"provider":"paypal","orderId":"PP-1","status":"COMPLETED"},"stock":{"ok":true}}`)
		res, err := c.CaptureOrder(t.Context(), port.CaptureRequest{OrderID: "PP-1"})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Equal(t, "COMPLETED", res.Capture.Status)
		assert.True(t, res.Stock.OK)
	})
}

func TestCatalog(t *testing.T) {
	t.Run("Listed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/products", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"products":[{"id":1,"name":"Tee","price":25,"stock":3}]}`))
		}))
		t.Cleanup(srv.Close)

		c, err := gateway.New(srv.URL, srv.Client())
		require.NoError(t, err)

		catalog, err := c.Catalog(t.Context())
		require.NoError(t, err)
		require.Len(t, catalog, 1)
		assert.Equal(t, 3, catalog[0].Stock)
	})

	t.Run("Unavailable", func(t *testing.T) {
		c := newClient(t, http.StatusServiceUnavailable, `{"error":"maintenance"}`)
		_, err := c.Catalog(t.Context())
		assert.ErrorIs(t, err, domain.ErrServerUnavailable)
	})
}

func TestNew(t *testing.T) {
	_, err := gateway.New("not a url", nil)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
