// Package gateway is the checkout's client of the storefront server.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/adapter/httphandler"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const service = "storefront"

var (
	_ port.StorefrontAPI = (*Client)(nil)
	_ port.CatalogSource = (*Client)(nil)
)

// An APIError is a server answer that maps to no core error.
type APIError struct {
	Status int
	Body   httphandler.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Detail != "" {
		return fmt.Sprintf("server responded %d: %s: %s", e.Status, e.Body.Error, e.Body.Detail)
	}
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Body.Error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil client uses a
// client with the default timeout.
func New(baseURL string, c *http.Client) (Client, error) {
	const op = "gateway.New"

	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Client{}, fmt.Errorf("%s: invalid server url %q: %w", op, baseURL, domain.ErrNotConfigured)
	}
	if c == nil {
		c = adapter.NewHTTPClient(0)
	}
	return Client{baseURL: strings.TrimRight(u.String(), "/"), http: c}, nil
}

func (c Client) CreateOrder(
	ctx context.Context, r port.CreateOrderRequest,
) (res port.CreateOrderResponse, err error) {
	err = c.post(ctx, "/api/paypal-create-order", r, &res)
	return res, err
}

func (c Client) CaptureOrder(
	ctx context.Context, r port.CaptureRequest,
) (res port.CaptureResponse, err error) {
	err = c.post(ctx, "/api/paypal-capture-order", r, &res)
	return res, err
}

func (c Client) CreatePayment(
	ctx context.Context, r port.PaymentRequest,
) (res port.CaptureResponse, err error) {
	err = c.post(ctx, "/api/square-create-payment", r, &res)
	return res, err
}

func (c Client) CreateCheckoutSession(
	ctx context.Context, r port.CheckoutSessionRequest,
) (res port.CheckoutSessionResponse, err error) {
	err = c.post(ctx, "/api/create-checkout-session", r, &res)
	return res, err
}

func (c Client) ConfirmCheckoutSession(
	ctx context.Context, r port.CaptureRequest,
) (res port.CaptureResponse, err error) {
	err = c.post(ctx, "/api/confirm-checkout-session", r, &res)
	return res, err
}

// Catalog returns the server's public catalog with live stock.
func (c Client) Catalog(ctx context.Context) (domain.Catalog, error) {
	var res port.ProductsUpdate
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &res); err != nil {
		return nil, err
	}
	return res.Products, nil
}

func (c Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c Client) do(ctx context.Context, method, path string, in, out any) error {
	op := "gateway.Client.do " + method + " " + path

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := adapter.DoJSON(c.http, req, service, out); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// mapError turns server error bodies back into core errors. Transport
// failures and gateway answers (502, 503, 504) mean the server is
// unavailable. Any other 5xx is the server's own verdict.
func mapError(err error) error {
	var se *adapter.StatusError
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrServerUnavailable, err)
	}

	var body httphandler.ErrorResponse
	_ = json.Unmarshal(se.Body, &body)

	switch {
	case unavailable(se.Status):
		return fmt.Errorf("%w: %w", domain.ErrServerUnavailable, &APIError{se.Status, body})
	case body.Error == "Payment provider error":
		return fmt.Errorf("%w: %w", domain.ErrProvider, &APIError{se.Status, body})
	case body.Error == "Server not configured":
		return fmt.Errorf("%w: %w", domain.ErrNotConfigured, &APIError{se.Status, body})
	case se.Status == http.StatusConflict && len(body.Items) > 0:
		return &domain.InsufficientStockError{Shortages: body.Items}
	case body.ServerTotal != nil && body.ClientTotal != nil:
		return &domain.TotalsMismatchError{
			ServerTotal: *body.ServerTotal, ClientTotal: *body.ClientTotal,
		}
	case len(body.Fields) > 0:
		return &domain.ValidationError{Fields: body.Fields}
	case body.Error == "Cart is empty":
		return domain.ErrEmptyCart
	case body.Error == "Payment not completed":
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotCompleted, body.Detail)
	case body.Error == "Order reference conflict":
		return domain.ErrOrderConflict
	}
	return &APIError{se.Status, body}
}

func unavailable(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
