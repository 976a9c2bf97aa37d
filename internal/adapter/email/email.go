package email

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

	"github.com/niksmo/twin-supply/internal/adapter"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const (
	DefaultURL = "https://api.resend.com"

	service = "resend"
)

var _ port.Mailer = (*Sender)(nil)

type SenderOpt func(*senderOpts) error

type senderOpts struct {
	baseURL string
	http    *http.Client
}

func BaseURLOpt(raw string) SenderOpt {
	return func(o *senderOpts) error {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base url %q", raw)
		}
		o.baseURL = strings.TrimRight(raw, "/")
		return nil
	}
}

func HTTPClientOpt(c *http.Client) SenderOpt {
	return func(o *senderOpts) error {
		if c == nil {
			return errors.New("http client is nil")
		}
		o.http = c
		return nil
	}
}

// Sender mails order receipts through the Resend API.
type Sender struct {
	senderOpts
	apiKey     string
	from       string
	adminEmail string
}

// New returns a sender. An empty admin email mails customers only.
func New(apiKey, from, adminEmail string, opts ...SenderOpt) (Sender, error) {
	const op = "email.New"

	if apiKey == "" || from == "" {
		return Sender{}, fmt.Errorf("%s: missing api key or sender: %w", op, domain.ErrNotConfigured)
	}

	options := senderOpts{
		baseURL: DefaultURL,
		http:    adapter.NewHTTPClient(0),
	}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return Sender{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return Sender{
		senderOpts: options,
		apiKey:     apiKey,
		from:       from,
		adminEmail: strings.TrimSpace(adminEmail),
	}, nil
}

type message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendReceipt mails the operator and, when the address looks valid, the customer.
func (s Sender) SendReceipt(ctx context.Context, r port.Receipt) domain.EffectResult {
	const op = "email.Sender.SendReceipt"
	log := slog.With("op", op, "orderID", r.Order.ID)

	html, err := RenderReceipt(r)
	if err != nil {
		log.Error("failed to render receipt", "err", err)
		return domain.EffectFailed("email failed", err)
	}

	var msgs []message
	if s.adminEmail != "" {
		msgs = append(msgs, message{
			From:    s.from,
			To:      []string{s.adminEmail},
			Subject: fmt.Sprintf("New Order %s (%s)", r.Order.ID, methodLabel(r.Order)),
			HTML:    html,
		})
	}
	if r.Order.Customer.HasEmail() {
		msgs = append(msgs, message{
			From:    s.from,
			To:      []string{strings.TrimSpace(r.Order.Customer.Email)},
			Subject: fmt.Sprintf("Your order %s is confirmed", r.Order.ID),
			HTML:    html,
		})
	}
	if len(msgs) == 0 {
		return domain.EffectSkipped()
	}

	var errs []error
	for _, m := range msgs {
		if err := s.send(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return domain.EffectFailed("email failed", err)
	}

	log.Info("receipt sent", "nMessages", len(msgs))
	return domain.EffectOK()
}

func (s Sender) send(ctx context.Context, m message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(raw),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return adapter.DoJSON(s.http, req, service, nil)
}
