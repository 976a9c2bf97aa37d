package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const service = "webhook"

var _ port.Notifier = (*Notifier)(nil)

// Notifier posts completed orders to an operator-defined URL.
type Notifier struct {
	target string
	http   *http.Client
}

// New returns a notifier for rawURL with the token appended as a query
// parameter when set.
func New(rawURL, token string, client *http.Client) (Notifier, error) {
	const op = "webhook.New"

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Notifier{}, fmt.Errorf("%s: missing url: %w", op, domain.ErrNotConfigured)
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return Notifier{}, fmt.Errorf("%s: %w", op, err)
	}
	if client == nil {
		client = adapter.NewHTTPClient(0)
	}

	return Notifier{target: WithToken(rawURL, token), http: client}, nil
}

// WithToken appends token as ?token= or &token=.
func WithToken(rawURL, token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "token=" + url.QueryEscape(token)
}

type payload struct {
	Order domain.Order `json:"order"`
}

func (n Notifier) NotifyOrder(ctx context.Context, o domain.Order) error {
	const op = "webhook.Notifier.NotifyOrder"

	raw, err := json.Marshal(payload{Order: o})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.target, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := adapter.DoJSON(n.http, req, service, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	slog.Info("order webhook delivered", "op", op, "orderID", o.ID)
	return nil
}
