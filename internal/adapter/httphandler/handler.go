package httphandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

// POST /api/paypal-create-order       (200, 400 empty cart or totals mismatch, 409 stock)
// POST /api/paypal-capture-order      (200, 400, 409, 500 provider)
// POST /api/square-create-payment     (200, 400, 409, 500 provider)
// POST /api/create-checkout-session   (200, 400, 409)
// POST /api/confirm-checkout-session  (200, 400 not paid or mismatch, 409 reference)
// GET  /api/products                  (200)

type CheckoutHandler struct {
	api     port.StorefrontAPI
	catalog port.CatalogSource
}

func RegisterCheckout(
	mux *http.ServeMux,
	api port.StorefrontAPI,
	catalog port.CatalogSource,
	allowedOrigin string,
) {
	h := CheckoutHandler{api, catalog}
	cors := CORS(allowedOrigin,
		[]string{http.MethodGet, http.MethodPost, http.MethodOptions}, []string{"Content-Type"})

	post := func(hf http.HandlerFunc) http.Handler {
		return chain(byMethod{http.MethodPost: hf}, cors, AllowJSON)
	}

	mux.Handle("/api/paypal-create-order", post(h.CreateOrder))
	mux.Handle("/api/paypal-capture-order", post(h.CaptureOrder))
	mux.Handle("/api/square-create-payment", post(h.CreatePayment))
	mux.Handle("/api/create-checkout-session", post(h.CreateCheckoutSession))
	mux.Handle("/api/confirm-checkout-session", post(h.ConfirmCheckoutSession))
	mux.Handle("/api/products", chain(byMethod{http.MethodGet: http.HandlerFunc(h.Products)}, cors))
}

// Products lists the catalog without unit costs.
func (h CheckoutHandler) Products(w http.ResponseWriter, r *http.Request) {
	const op = "CheckoutHandler.Products"
	log := slog.With("op", op)

	catalog, err := h.catalog.Catalog(r.Context())
	if err != nil {
		writeError(w, log, err)
		return
	}

	public := make(domain.Catalog, len(catalog))
	for i, p := range catalog {
		p.Cost = 0
		public[i] = p
	}
	writeJSON(w, http.StatusOK, port.ProductsUpdate{Products: public})
}

func (h CheckoutHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	const op = "CheckoutHandler.CreateOrder"
	log := slog.With("op", op)

	var req port.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	res, err := h.api.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
	log.Info("order created", "providerOrderID", res.ID, "total", res.Totals.Total)
}

func (h CheckoutHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	const op = "CheckoutHandler.CaptureOrder"
	log := slog.With("op", op)

	var req port.CaptureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	res, err := h.api.CaptureOrder(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
	log.Info("order captured", "orderID", res.Order.ID)
}

func (h CheckoutHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	const op = "CheckoutHandler.CreatePayment"
	log := slog.With("op", op)

	var req port.PaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	res, err := h.api.CreatePayment(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
	log.Info("payment charged", "orderID", res.Order.ID)
}

func (h CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	const op = "CheckoutHandler.CreateCheckoutSession"
	log := slog.With("op", op)

	var req port.CheckoutSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	res, err := h.api.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h CheckoutHandler) ConfirmCheckoutSession(w http.ResponseWriter, r *http.Request) {
	const op = "CheckoutHandler.ConfirmCheckoutSession"
	log := slog.With("op", op)

	var req port.CaptureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	res, err := h.api.ConfirmCheckoutSession(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
	log.Info("session confirmed", "orderID", res.Order.ID)
}

// POST   /api/update-products          X-Admin-Key (200, 400, 401)
// GET    /api/orders?limit=&offset=    X-Admin-Key (200)
// DELETE /api/orders                   X-Admin-Key (200)
// GET    /api/orders/summary           X-Admin-Key (200)
// POST   /api/orders/{id}/status       X-Admin-Key (200, 404, 409)
// GET    /api/products/{id}/sales      X-Admin-Key (200, 500 without the sales view)

type AdminHandler struct {
	catalog port.CatalogAdmin
	orders  port.OrdersAdmin
}

func RegisterAdmin(
	mux *http.ServeMux,
	catalog port.CatalogAdmin,
	orders port.OrdersAdmin,
	allowedOrigin, adminKey string,
) {
	h := AdminHandler{catalog, orders}
	cors := CORS(allowedOrigin,
		[]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		[]string{"Content-Type", AdminKeyHeader})
	guard := AdminKey(adminKey)

	route := func(m byMethod) http.Handler {
		return chain(m, cors)
	}
	auth := func(hf http.HandlerFunc) http.Handler {
		return chain(hf, guard, AllowJSON)
	}

	mux.Handle("/api/update-products", route(byMethod{
		http.MethodPost: auth(h.UpdateProducts),
	}))
	mux.Handle("/api/orders", route(byMethod{
		http.MethodGet:    auth(h.ListOrders),
		http.MethodDelete: auth(h.ClearOrders),
	}))
	mux.Handle("/api/orders/summary", route(byMethod{
		http.MethodGet: auth(h.Summary),
	}))
	mux.Handle("/api/orders/{id}/status", route(byMethod{
		http.MethodPost: auth(h.UpdateOrderStatus),
	}))
	mux.Handle("/api/products/{id}/sales", route(byMethod{
		http.MethodGet: auth(h.ProductSales),
	}))
}

// UpdateProducts accepts either a bare product array or {"products": [...]}.
func (h AdminHandler) UpdateProducts(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.UpdateProducts"
	log := slog.With("op", op)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, log, fmt.Errorf("%w: %w", err, domain.ErrInvalidRequest))
		return
	}

	var u port.ProductsUpdate
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("[")) {
		err = json.Unmarshal(raw, &u.Products)
	} else {
		err = json.Unmarshal(raw, &u)
	}
	if err != nil {
		writeError(w, log, fmt.Errorf("invalid JSON body: %w: %w", err, domain.ErrInvalidRequest))
		return
	}

	if err := h.catalog.UpdateProducts(r.Context(), u); err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateProductsResponse{OK: true, Count: len(u.Products)})
	log.Info("products updated", "nProducts", len(u.Products))
}

func (h AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.ListOrders"
	log := slog.With("op", op)

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, log, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, log, err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), limit, offset)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, OrdersPage{Orders: orders, Limit: limit, Offset: offset})
}

func (h AdminHandler) ClearOrders(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.ClearOrders"
	log := slog.With("op", op)

	n, err := h.orders.ClearOrders(r.Context())
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearOrdersResponse{OK: true, Deleted: n})
}

func (h AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.Summary"

	s, err := h.orders.Summary(r.Context())
	if err != nil {
		writeError(w, slog.With("op", op), err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.UpdateOrderStatus"
	log := slog.With("op", op)

	var req StatusUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h AdminHandler) ProductSales(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.ProductSales"
	log := slog.With("op", op)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, log, fmt.Errorf("product id %q: %w", r.PathValue("id"), domain.ErrInvalidRequest))
		return
	}

	s, err := h.orders.ProductSales(r.Context(), id)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("query %s=%q: %w", key, v, domain.ErrInvalidRequest)
	}
	return n, nil
}
