package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/niksmo/twin-supply/internal/adapter/httphandler"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) CreateOrder(
	ctx context.Context, r port.CreateOrderRequest,
) (port.CreateOrderResponse, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(port.CreateOrderResponse), args.Error(1)
}

func (m *MockAPI) CaptureOrder(
	ctx context.Context, r port.CaptureRequest,
) (port.CaptureResponse, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(port.CaptureResponse), args.Error(1)
}

func (m *MockAPI) CreatePayment(
	ctx context.Context, r port.PaymentRequest,
) (port.CaptureResponse, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(port.CaptureResponse), args.Error(1)
}

func (m *MockAPI) CreateCheckoutSession(
	ctx context.Context, r port.CheckoutSessionRequest,
) (port.CheckoutSessionResponse, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(port.CheckoutSessionResponse), args.Error(1)
}

func (m *MockAPI) ConfirmCheckoutSession(
	ctx context.Context, r port.CaptureRequest,
) (port.CaptureResponse, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(port.CaptureResponse), args.Error(1)
}

type MockAdmin struct {
	mock.Mock
}

func (m *MockAdmin) UpdateProducts(ctx context.Context, u port.ProductsUpdate) error {
	return m.Called(ctx, u).Error(0)
}

func (m *MockAdmin) Catalog(ctx context.Context) (domain.Catalog, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Catalog), args.Error(1)
}

func (m *MockAdmin) ListOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	args := m.Called(ctx, limit, offset)
	os, _ := args.Get(0).([]domain.Order)
	return os, args.Error(1)
}

func (m *MockAdmin) UpdateOrderStatus(
	ctx context.Context, id string, s domain.OrderStatus,
) (domain.Order, error) {
	args := m.Called(ctx, id, s)
	return args.Get(0).(domain.Order), args.Error(1)
}

func (m *MockAdmin) ClearOrders(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAdmin) Summary(ctx context.Context) (domain.SalesSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SalesSummary), args.Error(1)
}

func (m *MockAdmin) ProductSales(ctx context.Context, id int64) (domain.ProductSales, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ProductSales), args.Error(1)
}

func newMux(api *MockAPI, admin *MockAdmin, origin string) *http.ServeMux {
	mux := http.NewServeMux()
	httphandler.RegisterCheckout(mux, api, admin, origin)
	httphandler.RegisterAdmin(mux, admin, admin, origin, "secret")
	return mux
}

func do(
	t *testing.T, h http.Handler, method, target, body string, hdr map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) httphandler.ErrorResponse {
	t.Helper()
	var e httphandler.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestCORS(t *testing.T) {
	t.Run("Preflight", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodOptions, "/api/paypal-create-order", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("ForbiddenOrigin", func(t *testing.T) {
		api := &MockAPI{}
		mux := newMux(api, &MockAdmin{}, "https://shop.example")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order", `{"cart":[]}`,
			map[string]string{"Origin": "https://evil.example"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Forbidden origin", decodeErr(t, rec).Error)
		api.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodGet, "/api/paypal-capture-order", "", nil)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "Use POST", decodeErr(t, rec).Error)
	})

	t.Run("WrongMediaType", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order", "{}",
			map[string]string{"Content-Type": "text/plain"})

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestCreateOrder(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		api := &MockAPI{}
		api.On("CreateOrder", mock.Anything, mock.MatchedBy(func(r port.CreateOrderRequest) bool {
			return len(r.Cart) == 1 && r.Cart[0].ProductID == 1 && r.Cart[0].Qty == 2 &&
				r.ShippingMethodID == "standard" && *r.ExpectedTotal == 137.99
		})).Return(port.CreateOrderResponse{
			ID:     "PP-1",
			Totals: domain.Totals{Currency: "USD", Subtotal: 130, Shipping: 7.99, Total: 137.99},
		}, nil)
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order",
			`{"cart":[{"id":1,"qty":2}],"shippingMethodId":"standard","expectedTotal":137.99}`,
			map[string]string{"Content-Type": "application/json; charset=utf-8"})

		require.Equal(t, http.StatusOK, rec.Code)
		var res port.CreateOrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "PP-1", res.ID)
		assert.Equal(t, 137.99, res.Totals.Total)
		api.AssertExpectations(t)
	})

	t.Run("EmptyCart", func(t *testing.T) {
		api := &MockAPI{}
		api.On("CreateOrder", mock.Anything, mock.Anything).
			Return(port.CreateOrderResponse{}, domain.ErrEmptyCart)
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order", `{"cart":[]}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Cart is empty", decodeErr(t, rec).Error)
	})

	t.Run("TotalsMismatch", func(t *testing.T) {
		api := &MockAPI{}
		api.On("CreateOrder", mock.Anything, mock.Anything).
			Return(port.CreateOrderResponse{},
				&domain.TotalsMismatchError{ServerTotal: 137.99, ClientTotal: 129.99})
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order",
			`{"cart":[{"id":1,"qty":2}],"expectedTotal":129.99}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		e := decodeErr(t, rec)
		assert.Equal(t, "Totals mismatch", e.Error)
		require.NotNil(t, e.ServerTotal)
		assert.Equal(t, 137.99, *e.ServerTotal)
		assert.Equal(t, 129.99, *e.ClientTotal)
	})

	t.Run("InsufficientStock", func(t *testing.T) {
		api := &MockAPI{}
		api.On("CreateOrder", mock.Anything, mock.Anything).
			Return(port.CreateOrderResponse{}, &domain.InsufficientStockError{
				Shortages: []domain.StockShortage{
					{ProductID: 1, ProductName: "Hoodie", AvailableStock: 1, Requested: 2},
				},
			})
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order",
			`{"cart":[{"id":1,"qty":2}]}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		e := decodeErr(t, rec)
		assert.Equal(t, "Insufficient stock", e.Error)
		require.Len(t, e.Items, 1)
		assert.Equal(t, 1, e.Items[0].AvailableStock)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-create-order", `{"cart":`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCaptureOrder(t *testing.T) {
	t.Run("ProviderFailure", func(t *testing.T) {
		api := &MockAPI{}
		api.On("CaptureOrder", mock.Anything, mock.Anything).
			Return(port.CaptureResponse{}, errors.Join(domain.ErrProvider, errors.New("INSTRUMENT_DECLINED")))
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-capture-order",
			`{"orderId":"PP-1","cart":[{"id":1,"qty":2}]}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		e := decodeErr(t, rec)
		assert.Equal(t, "Payment provider error", e.Error)
		assert.Contains(t, e.Detail, "INSTRUMENT_DECLINED")
	})

	t.Run("CapturedWithFailedEffects", func(t *testing.T) {
		api := &MockAPI{}
		api.On("CaptureOrder", mock.Anything, mock.Anything).
			Return(port.CaptureResponse{
				OK:      true,
				Capture: domain.CaptureResult{Provider: "paypal", TransactionID: "CAP-1"},
				SideEffects: domain.SideEffects{
					Stock: domain.EffectFailed("stock decrement failed", errors.New("db down")),
					Email: domain.EffectSkipped(),
				},
			}, nil)
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/paypal-capture-order",
			`{"orderId":"PP-1","cart":[{"id":1,"qty":2}]}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["ok"])
		assert.Contains(t, body, "stock")
		assert.Contains(t, body, "email")
	})
}

func TestConfirmCheckoutSession(t *testing.T) {
	t.Run("ReferenceConflict", func(t *testing.T) {
		api := &MockAPI{}
		api.On("ConfirmCheckoutSession", mock.Anything, mock.Anything).
			Return(port.CaptureResponse{}, fmt.Errorf("confirm: %w", domain.ErrOrderConflict))
		mux := newMux(api, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/confirm-checkout-session",
			`{"orderId":"cs_1","localOrderId":"TS-2"}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Order reference conflict", decodeErr(t, rec).Error)
	})
}

func TestProducts(t *testing.T) {
	t.Run("HidesCost", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("Catalog", mock.Anything).Return(domain.Catalog{
			{ID: 1, Name: "Tee", Price: 25, Stock: 3, Cost: 9.5},
		}, nil)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodGet, "/api/products", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "cost")
		var res port.ProductsUpdate
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Len(t, res.Products, 1)
		assert.Equal(t, 3, res.Products[0].Stock)
	})

	t.Run("PostNotAllowed", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodPost, "/api/products", `{}`, nil)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestAdmin(t *testing.T) {
	auth := map[string]string{httphandler.AdminKeyHeader: "secret"}

	t.Run("Unauthorized", func(t *testing.T) {
		admin := &MockAdmin{}
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodPost, "/api/update-products", `[]`,
			map[string]string{httphandler.AdminKeyHeader: "wrong"})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		admin.AssertNotCalled(t, "UpdateProducts", mock.Anything, mock.Anything)
	})

	t.Run("UpdateProductsBareArray", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("UpdateProducts", mock.Anything, mock.MatchedBy(func(u port.ProductsUpdate) bool {
			return len(u.Products) == 1 && u.Products[0].Name == "Hoodie"
		})).Return(nil)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodPost, "/api/update-products",
			`[{"id":1,"name":"Hoodie","price":65,"stock":20,"cost":20}]`, auth)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true,"count":1}`, rec.Body.String())
		admin.AssertExpectations(t)
	})

	t.Run("UpdateProductsWrapped", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("UpdateProducts", mock.Anything, mock.Anything).Return(nil)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodPost, "/api/update-products",
			`{"products":[{"id":1,"name":"Hoodie","price":65,"stock":20}]}`, auth)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ListOrders", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("ListOrders", mock.Anything, 10, 20).
			Return([]domain.Order{{ID: "TS-1"}}, nil)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodGet, "/api/orders?limit=10&offset=20", "", auth)

		require.Equal(t, http.StatusOK, rec.Code)
		var page httphandler.OrdersPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Len(t, page.Orders, 1)
		assert.Equal(t, "TS-1", page.Orders[0].ID)
	})

	t.Run("ClearOrders", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("ClearOrders", mock.Anything).Return(int64(3), nil)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodDelete, "/api/orders", "", auth)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true,"deleted":3}`, rec.Body.String())
	})

	t.Run("UpdateStatusNotFound", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("UpdateOrderStatus", mock.Anything, "TS-404", domain.StatusShipped).
			Return(domain.Order{}, domain.ErrOrderNotFound)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodPost, "/api/orders/TS-404/status", `{"status":"shipped"}`, auth)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("UpdateStatusInvalidTransition", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("UpdateOrderStatus", mock.Anything, "TS-1", domain.StatusPending).
			Return(domain.Order{}, domain.ErrInvalidTransition)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodPost, "/api/orders/TS-1/status", `{"status":"pending"}`, auth)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("ProductSales", func(t *testing.T) {
		admin := &MockAdmin{}
		admin.On("ProductSales", mock.Anything, int64(4)).
			Return(domain.ProductSales{ProductID: 4, UnitsSold: 7}, nil)
		mux := newMux(&MockAPI{}, admin, "*")

		rec := do(t, mux, http.MethodGet, "/api/products/4/sales", "", auth)

		require.Equal(t, http.StatusOK, rec.Code)
		var s domain.ProductSales
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
		assert.Equal(t, int64(7), s.UnitsSold)
	})

	t.Run("ProductSalesBadID", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodGet, "/api/products/abc/sales", "", auth)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("AdminPreflightAllowsKeyHeader", func(t *testing.T) {
		mux := newMux(&MockAPI{}, &MockAdmin{}, "*")

		rec := do(t, mux, http.MethodOptions, "/api/orders", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Admin-Key")
	})
}
