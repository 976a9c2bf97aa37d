package square

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/pkg/retry"
)

const (
	SandboxURL = "https://connect.squareupsandbox.com"
	LiveURL    = "https://connect.squareup.com"

	APIVersion = "2024-10-17"

	service = "square"
)

var _ port.SquareGateway = (*Client)(nil)

type ClientOpt func(*clientOpts) error

type clientOpts struct {
	baseURL  string
	version  string
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

// VersionOpt pins the Square-Version header.
func VersionOpt(v string) ClientOpt {
	return func(o *clientOpts) error {
		if v != "" {
			o.version = v
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

// Client charges tokenized payment sources through the Square Payments API.
type Client struct {
	clientOpts
	token string
	retry retry.RetryConfig
}

func New(accessToken, env string, opts ...ClientOpt) (Client, error) {
	const op = "square.New"

	if accessToken == "" {
		return Client{}, fmt.Errorf("%s: missing access token: %w", op, domain.ErrNotConfigured)
	}

	options := clientOpts{
		baseURL:  SandboxURL,
		version:  APIVersion,
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
		token:      accessToken,
		retry: retry.RetryConfig{
			MaxAttempts: options.attempts,
			Backoff:     retry.ExponentialBackoff(200 * time.Millisecond),
			ShouldRetry: adapter.Transient,
		},
	}, nil
}

type (
	amountMoney struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}

	createPaymentBody struct {
		SourceID          string      `json:"source_id"`
		IdempotencyKey    string      `json:"idempotency_key"`
		AmountMoney       amountMoney `json:"amount_money"`
		Autocomplete      bool        `json:"autocomplete"`
		LocationID        string      `json:"location_id,omitempty"`
		BuyerEmailAddress string      `json:"buyer_email_address,omitempty"`
		ReferenceID       string      `json:"reference_id,omitempty"`
	}

	payment struct {
		ID                string      `json:"id"`
		Status            string      `json:"status"`
		AmountMoney       amountMoney `json:"amount_money"`
		BuyerEmailAddress string      `json:"buyer_email_address"`
		ReceiptURL        string      `json:"receipt_url"`
		ProcessingFee     []struct {
			AmountMoney amountMoney `json:"amount_money"`
		} `json:"processing_fee"`
	}
)

// CreatePayment charges the source. The idempotency key makes retries safe.
func (c Client) CreatePayment(
	ctx context.Context, r port.SquarePaymentRequest,
) (domain.CaptureResult, error) {
	const op = "square.Client.CreatePayment"
	log := slog.With("op", op, "referenceID", r.ReferenceID)

	if r.AmountCents <= 0 {
		return domain.CaptureResult{}, fmt.Errorf(
			"%s: amount %d: %w", op, r.AmountCents, domain.ErrInvalidRequest,
		)
	}

	raw, err := json.Marshal(createPaymentBody{
		SourceID:          r.SourceID,
		IdempotencyKey:    r.IdempotencyKey,
		AmountMoney:       amountMoney{Amount: r.AmountCents, Currency: domain.NormalizeCurrency(r.Currency)},
		Autocomplete:      true,
		LocationID:        r.LocationID,
		BuyerEmailAddress: r.BuyerEmail,
		ReferenceID:       r.ReferenceID,
	})
	if err != nil {
		return domain.CaptureResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var out struct {
		Payment payment `json:"payment"`
	}
	err = retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, c.baseURL+"/v2/payments", bytes.NewReader(raw),
		)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Square-Version", c.version)
		req.Header.Set("Content-Type", "application/json")
		return adapter.DoJSON(c.http, req, service, &out)
	})
	if err != nil {
		return domain.CaptureResult{}, fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}

	p := out.Payment
	res := domain.CaptureResult{
		Provider:      service,
		OrderID:       p.ID,
		TransactionID: p.ID,
		Status:        p.Status,
		PayerEmail:    p.BuyerEmailAddress,
		Details: map[string]any{
			"receiptUrl": p.ReceiptURL,
			"amount":     p.AmountMoney.Amount,
		},
	}
	if len(p.ProcessingFee) != 0 {
		var cents int64
		for _, f := range p.ProcessingFee {
			cents += f.AmountMoney.Amount
		}
		fee := float64(cents) / 100
		res.Fee = &fee
	}

	switch p.Status {
	case "COMPLETED", "APPROVED":
	default:
		return res, fmt.Errorf("%s: %w: payment status %q", op, domain.ErrProvider, p.Status)
	}

	log.Info("payment created", "paymentID", p.ID, "status", p.Status)
	return res, nil
}
