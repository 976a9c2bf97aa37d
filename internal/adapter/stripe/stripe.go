package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/pkg/retry"
)

const (
	DefaultURL = "https://api.stripe.com"

	service = "stripe"
)

var _ port.StripeGateway = (*Client)(nil)

type ClientOpt func(*clientOpts) error

type clientOpts struct {
	baseURL  string
	http     *http.Client
	attempts int
}

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

// Client creates and reads hosted Checkout Sessions.
type Client struct {
	clientOpts
	secretKey  string
	successURL string
	cancelURL  string
	retry      retry.RetryConfig
}

func New(secretKey, successURL, cancelURL string, opts ...ClientOpt) (Client, error) {
	const op = "stripe.New"

	if secretKey == "" {
		return Client{}, fmt.Errorf("%s: missing secret key: %w", op, domain.ErrNotConfigured)
	}
	if successURL == "" || cancelURL == "" {
		return Client{}, fmt.Errorf("%s: missing redirect urls: %w", op, domain.ErrNotConfigured)
	}

	options := clientOpts{
		baseURL:  DefaultURL,
		http:     adapter.NewHTTPClient(0),
		attempts: 3,
	}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return Client{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return Client{
		clientOpts: options,
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		retry: retry.RetryConfig{
			MaxAttempts: options.attempts,
			Backoff:     retry.ExponentialBackoff(200 * time.Millisecond),
			ShouldRetry: adapter.Transient,
		},
	}, nil
}

type session struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	PaymentIntent     string `json:"payment_intent"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// CreateSession opens a payment session whose line items add up to the totals.
//
// Shipping and tax are sent as their own line items.
func (c Client) CreateSession(
	ctx context.Context, r port.StripeSessionRequest,
) (port.StripeSession, error) {
	const op = "stripe.Client.CreateSession"
	log := slog.With("op", op, "referenceID", r.ReferenceID)

	form := c.sessionForm(r)

	var out session
	err := retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions",
			strings.NewReader(form.Encode()),
		)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if r.ReferenceID != "" {
			req.Header.Set("Idempotency-Key", "session-"+r.ReferenceID)
		}
		c.authorize(req)
		return adapter.DoJSON(c.http, req, service, &out)
	})
	if err != nil {
		return port.StripeSession{}, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}

	log.Info("session created", "sessionID", out.ID)
	return port.StripeSession{ID: out.ID, URL: out.URL}, nil
}

// RetrieveSession reads the payment state of a session.
func (c Client) RetrieveSession(
	ctx context.Context, sessionID string,
) (domain.CaptureResult, error) {
	const op = "stripe.Client.RetrieveSession"

	if sessionID == "" {
		return domain.CaptureResult{}, fmt.Errorf(
			"%s: %w", op, &domain.ValidationError{Fields: []string{"orderId"}},
		)
	}

	var out session
	err := retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet,
			c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil,
		)
		if err != nil {
			return err
		}
		c.authorize(req)
		return adapter.DoJSON(c.http, req, service, &out)
	})
	if err != nil {
		return domain.CaptureResult{}, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}

	return domain.CaptureResult{
		Provider:      service,
		OrderID:       out.ID,
		TransactionID: out.PaymentIntent,
		Status:        out.PaymentStatus,
		PayerEmail:    out.CustomerDetails.Email,
		Details: map[string]any{
			"amountTotal":       out.AmountTotal,
			"currency":          out.Currency,
			"sessionStatus":     out.Status,
			"clientReferenceId": out.ClientReferenceID,
		},
	}, nil
}

func (c Client) sessionForm(r port.StripeSessionRequest) url.Values {
	cur := strings.ToLower(domain.NormalizeCurrency(r.Totals.Currency))

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", withSessionID(c.successURL))
	form.Set("cancel_url", c.cancelURL)
	if r.ReferenceID != "" {
		form.Set("client_reference_id", r.ReferenceID)
	}
	if strings.Contains(r.CustomerEmail, "@") {
		form.Set("customer_email", r.CustomerEmail)
	}

	i := 0
	line := func(name string, price float64, qty int) {
		p := fmt.Sprintf("line_items[%d]", i)
		form.Set(p+"[price_data][currency]", cur)
		form.Set(p+"[price_data][product_data][name]", name)
		form.Set(p+"[price_data][unit_amount]", strconv.FormatInt(domain.Cents(price), 10))
		form.Set(p+"[quantity]", strconv.Itoa(qty))
		i++
	}

	for _, it := range r.Items {
		line(it.Name, it.Price, it.Qty)
	}
	if r.Totals.Shipping > 0 {
		line("Shipping", r.Totals.Shipping, 1)
	}
	if r.Totals.Tax > 0 {
		line("Tax", r.Totals.Tax, 1)
	}
	return form
}

func (c Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
}

// withSessionID lets the success page confirm the session it returns from.
func withSessionID(u string) string {
	if strings.Contains(u, "{CHECKOUT_SESSION_ID}") {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}
