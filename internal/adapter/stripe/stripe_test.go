package stripe_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niksmo/twin-supply/internal/adapter/stripe"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

func newClient(t *testing.T, h http.HandlerFunc) stripe.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := stripe.New("sk_test", "https://shop.test/success.html", "https://shop.test/cart.html",
		stripe.BaseURLOpt(srv.URL), stripe.HTTPClientOpt(srv.Client()), stripe.AttemptsOpt(1))
	require.NoError(t, err)
	return c
}

func TestCreateSession(t *testing.T) {
	var form url.Values
	var idem string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		idem = r.Header.Get("Idempotency-Key")
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.test/cs_1"}`))
	})

	s, err := c.CreateSession(t.Context(), port.StripeSessionRequest{
		ReferenceID: "TS-1",
		Items:       []domain.Item{{ID: 1, Name: "Hoodie", Price: 65, Qty: 2}},
		Totals: domain.Totals{
			Currency: "USD", Subtotal: 130, Shipping: 7.99, Tax: 0, Total: 137.99,
		},
		CustomerEmail: "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)
	assert.Equal(t, "session-TS-1", idem)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "TS-1", form.Get("client_reference_id"))
	assert.Equal(t, "ada@example.com", form.Get("customer_email"))
	assert.Equal(t,
		"https://shop.test/success.html?session_id={CHECKOUT_SESSION_ID}", form.Get("success_url"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Hoodie", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "6500", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "Shipping", form.Get("line_items[1][price_data][product_data][name]"))
	assert.Equal(t, "799", form.Get("line_items[1][price_data][unit_amount]"))
	assert.Empty(t, form.Get("line_items[2][quantity]"))
}

func TestRetrieveSession(t *testing.T) {
	t.Run("Paid", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"cs_1","status":"complete","payment_status":"paid",
				"amount_total":13799,"currency":"usd","payment_intent":"pi_1",
				"customer_details":{"email":"ada@example.com"}}`))
		})

		res, err := c.RetrieveSession(t.Context(), "cs_1")
		require.NoError(t, err)
		assert.Equal(t, "paid", res.Status)
		assert.Equal(t, "pi_1", res.TransactionID)
		assert.Equal(t, int64(13799), res.Details["amountTotal"])
	})

	t.Run("NotFound", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"resource_missing"}}`))
		})

		_, err := c.RetrieveSession(t.Context(), "cs_missing")
		assert.ErrorIs(t, err, domain.ErrProvider)
	})
}

func TestNew(t *testing.T) {
	_, err := stripe.New("", "https://a", "https://b")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
