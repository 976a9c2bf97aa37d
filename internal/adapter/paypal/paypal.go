package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/pkg/retry"
)

const (
	SandboxURL = "https://api-m.sandbox.paypal.com"
	LiveURL    = "https://api-m.paypal.com"

	service          = "paypal"
	defaultBrand     = "Twin-Supply"
	orderDescription = "Twin-Supply Order"
	maxNameLen       = 127
	tokenLeeway      = time.Minute
)

var _ port.PayPalGateway = (*Client)(nil)

type ClientOpt func(*clientOpts) error

type clientOpts struct {
	baseURL  string
	brand    string
	http     *http.Client
	attempts int
}

// BaseURLOpt overrides the environment host.
func BaseURLOpt(raw string) ClientOpt {
	return func(o *clientOpts) error {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base url %q", raw)
		}
		o.baseURL = strings.TrimRight(raw, "/")
		return nil
	}
}

func BrandOpt(name string) ClientOpt {
	return func(o *clientOpts) error {
		if strings.TrimSpace(name) != "" {
			o.brand = name
		}
		return nil
	}
}

func HTTPClientOpt(c *http.Client) ClientOpt {
	return func(o *clientOpts) error {
		if c == nil {
			return errors.New("http client is nil")
		}
		o.http = c
		return nil
	}
}

func AttemptsOpt(n int) ClientOpt {
	return func(o *clientOpts) error {
		if n < 1 {
			return fmt.Errorf("attempts must be positive, got %d", n)
		}
		o.attempts = n
		return nil
	}
}

// Client talks to the PayPal Orders v2 REST API with client credentials.
type Client struct {
	clientOpts
	clientID string
	secret   string
	retry    retry.RetryConfig
	tokens   *tokenCache
}

type tokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

// New returns a client for the sandbox or live environment.
func New(clientID, secret, env string, opts ...ClientOpt) (Client, error) {
	const op = "paypal.New"

	if clientID == "" || secret == "" {
		return Client{}, fmt.Errorf(
			"%s: missing client id or secret: %w", op, domain.ErrNotConfigured,
		)
	}

	options := clientOpts{
		baseURL:  SandboxURL,
		brand:    defaultBrand,
		http:     adapter.NewHTTPClient(0),
		attempts: 3,
	}
	if domain.NormalizeEnv(env) == domain.EnvLive {
		options.baseURL = LiveURL
	}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return Client{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return Client{
		clientOpts: options,
		clientID:   clientID,
		secret:     secret,
		retry: retry.RetryConfig{
			MaxAttempts: options.attempts,
			Backoff:     retry.ExponentialBackoff(200 * time.Millisecond),
			ShouldRetry: adapter.Transient,
		},
		tokens: &tokenCache{},
	}, nil
}

type (
	money struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	}

	item struct {
		Name       string `json:"name"`
		UnitAmount money  `json:"unit_amount"`
		Quantity   string `json:"quantity"`
		Category   string `json:"category"`
	}

	breakdown struct {
		ItemTotal money `json:"item_total"`
		Shipping  money `json:"shipping"`
		TaxTotal  money `json:"tax_total"`
	}

	amount struct {
		CurrencyCode string    `json:"currency_code"`
		Value        string    `json:"value"`
		Breakdown    breakdown `json:"breakdown"`
	}

	purchaseUnit struct {
		CustomID    string `json:"custom_id"`
		Description string `json:"description"`
		Amount      amount `json:"amount"`
		Items       []item `json:"items"`
	}

	applicationContext struct {
		BrandName  string `json:"brand_name"`
		UserAction string `json:"user_action"`
	}

	createOrderBody struct {
		Intent             string             `json:"intent"`
		ApplicationContext applicationContext `json:"application_context"`
		PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	}

	captureResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID                        string `json:"id"`
					Status                    string `json:"status"`
					SellerReceivableBreakdown struct {
						PayPalFee *money `json:"paypal_fee"`
					} `json:"seller_receivable_breakdown"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
)

// CreateOrder creates a CAPTURE order priced with server totals.
func (c Client) CreateOrder(
	ctx context.Context, r port.PayPalOrderRequest,
) (port.PayPalOrder, error) {
	const op = "paypal.Client.CreateOrder"
	log := slog.With("op", op, "referenceID", r.ReferenceID)

	body := c.orderBody(r)

	hdr := http.Header{}
	if r.ReferenceID != "" {
		hdr.Set("PayPal-Request-Id", "create-"+r.ReferenceID)
	}

	var out port.PayPalOrder
	if err := c.call(ctx, http.MethodPost, "/v2/checkout/orders", hdr, body, &out); err != nil {
		return port.PayPalOrder{}, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}
	if out.ID == "" {
		return port.PayPalOrder{}, fmt.Errorf(
			"%s: %w: response without order id", op, domain.ErrProvider,
		)
	}

	log.Info("order created", "paypalOrderID", out.ID, "total", r.Totals.Total)
	return out, nil
}

// CaptureOrder captures an approved order.
//
// The request id is sent as PayPal-Request-Id, so repeating a capture for
// the same local order returns the original result.
func (c Client) CaptureOrder(
	ctx context.Context, orderID, requestID string,
) (domain.CaptureResult, error) {
	const op = "paypal.Client.CaptureOrder"
	log := slog.With("op", op, "paypalOrderID", orderID)

	if orderID == "" {
		return domain.CaptureResult{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: []string{"orderId"}},
		)
	}

	hdr := http.Header{}
	if requestID != "" {
		hdr.Set("PayPal-Request-Id", requestID)
	}

	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	var out captureResponse
	if err := c.call(ctx, http.MethodPost, path, hdr, struct{}{}, &out); err != nil {
		return domain.CaptureResult{}, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}

	res := domain.CaptureResult{
		Provider:   service,
		OrderID:    out.ID,
		Status:     out.Status,
		PayerEmail: out.Payer.EmailAddress,
		Details:    map[string]any{"orderStatus": out.Status},
	}

	if len(out.PurchaseUnits) != 0 && len(out.PurchaseUnits[0].Payments.Captures) != 0 {
		capture := out.PurchaseUnits[0].Payments.Captures[0]
		res.TransactionID = capture.ID
		res.Details["captureStatus"] = capture.Status
		if fee := capture.SellerReceivableBreakdown.PayPalFee; fee != nil {
			if v, err := strconv.ParseFloat(fee.Value, 64); err == nil {
				res.Fee = &v
			}
		}
	}

	if out.Status != "COMPLETED" {
		return res, fmt.Errorf(
			"%s: %w: order status %q", op, domain.ErrProvider, out.Status,
		)
	}

	log.Info("order captured", "captureID", res.TransactionID)
	return res, nil
}

func (c Client) orderBody(r port.PayPalOrderRequest) createOrderBody {
	cur := domain.NormalizeCurrency(r.Totals.Currency)
	m := func(v float64) money {
		return money{CurrencyCode: cur, Value: domain.FormatMoney(v)}
	}

	items := make([]item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, item{
			Name:       truncate(it.Name, maxNameLen),
			UnitAmount: m(it.Price),
			Quantity:   strconv.Itoa(it.Qty),
			Category:   "PHYSICAL_GOODS",
		})
	}

	return createOrderBody{
		Intent: "CAPTURE",
		ApplicationContext: applicationContext{
			BrandName:  truncate(c.brand, maxNameLen),
			UserAction: "PAY_NOW",
		},
		PurchaseUnits: []purchaseUnit{{
			CustomID:    r.ReferenceID,
			Description: orderDescription,
			Amount: amount{
				CurrencyCode: cur,
				Value:        domain.FormatMoney(r.Totals.Total),
				Breakdown: breakdown{
					ItemTotal: m(r.Totals.Subtotal),
					Shipping:  m(r.Totals.Shipping),
					TaxTotal:  m(r.Totals.Tax),
				},
			},
			Items: items,
		}},
	}
}

func (c Client) call(
	ctx context.Context, method, path string, hdr http.Header, payload, out any,
) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return retry.Do(ctx, c.retry, func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(
			ctx, method, c.baseURL+path, bytes.NewReader(raw),
		)
		if err != nil {
			return err
		}
		for k, vs := range hdr {
			req.Header[k] = vs
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		err = adapter.DoJSON(c.http, req, service, out)
		var se *adapter.StatusError
		if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
			c.tokens.reset()
		}
		return err
	})
}

func (c Client) accessToken(ctx context.Context) (string, error) {
	const op = "paypal.Client.accessToken"

	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.token != "" && time.Now().Before(c.tokens.expires) {
		return c.tokens.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := adapter.DoJSON(c.http, req, service, &out); err != nil {
		return "", fmt.Errorf("%s: auth failed: %w", op, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%s: auth failed: empty access token", op)
	}

	c.tokens.token = out.AccessToken
	c.tokens.expires = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenLeeway)
	return c.tokens.token, nil
}

func (t *tokenCache) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
