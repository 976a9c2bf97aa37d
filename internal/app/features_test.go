package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cucumber/godog"

	"github.com/niksmo/twin-supply/config"
	"github.com/niksmo/twin-supply/internal/adapter/gateway"
	"github.com/niksmo/twin-supply/internal/adapter/httphandler"
	"github.com/niksmo/twin-supply/internal/app"
	"github.com/niksmo/twin-supply/internal/core/checkout"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/internal/core/service"
)

type memCatalog struct {
	mu      sync.Mutex
	catalog domain.Catalog
}

func (c *memCatalog) ReadCatalog(context.Context) (domain.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(domain.Catalog(nil), c.catalog...), nil
}

func (c *memCatalog) ReplaceCatalog(_ context.Context, cat domain.Catalog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = cat
	return nil
}

func (c *memCatalog) DecrementStock(_ context.Context, lines []domain.CartLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		for i := range c.catalog {
			if c.catalog[i].ID == l.ProductID {
				c.catalog[i].Stock = max(0, c.catalog[i].Stock-l.Qty)
			}
		}
	}
	return nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func (r *memOrders) SaveOrder(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		r.orders[o.ID] = o
	}
	return nil
}

func (r *memOrders) ListOrders(context.Context, int, int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out, nil
}

func (r *memOrders) UpdateStatus(
	_ context.Context, id string, s domain.OrderStatus,
) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.Status = s
	r.orders[id] = o
	return o, nil
}

func (r *memOrders) ReadOrder(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (r *memOrders) ClearOrders(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.orders))
	clear(r.orders)
	return n, nil
}

// fakePayPal approves every order it creates.
type fakePayPal struct {
	created atomic.Int32
	fee     *float64
}

func (p *fakePayPal) CreateOrder(
	_ context.Context, r port.PayPalOrderRequest,
) (port.PayPalOrder, error) {
	n := p.created.Add(1)
	id := fmt.Sprintf("PP-%d", n)
	return port.PayPalOrder{
		ID:     id,
		Status: "CREATED",
		Links:  []port.Link{{Rel: "approve", Href: "https://paypal.test/checkoutnow?token=" + id}},
	}, nil
}

func (p *fakePayPal) CaptureOrder(
	_ context.Context, orderID, _ string,
) (domain.CaptureResult, error) {
	return domain.CaptureResult{
		Provider:      "paypal",
		OrderID:       orderID,
		TransactionID: "CAP-" + orderID,
		Status:        "COMPLETED",
		Fee:           p.fee,
	}, nil
}

var buyer = domain.Customer{
	Name:     "Ada Lovelace",
	Email:    "ada@example.com",
	Address1: "1 Main St",
	City:     "Springfield",
	State:    "IL",
	Zip:      "62701",
	Country:  "US",
}

type checkoutTestContext struct {
	catalog  *memCatalog
	orders   *memOrders
	paypal   *fakePayPal
	settings domain.StoreSettings
	calls    atomic.Int32

	srv     *httptest.Server
	dataDir string
	client  app.Client

	quote  checkout.Quote
	result checkout.Result
	err    error
}

func (c *checkoutTestContext) reset() {
	c.close()
	c.catalog = &memCatalog{}
	c.orders = &memOrders{orders: make(map[string]domain.Order)}
	c.paypal = &fakePayPal{}
	c.settings = domain.DefaultStoreSettings()
	c.calls.Store(0)
	c.quote = checkout.Quote{}
	c.result = checkout.Result{}
	c.err = nil
}

func (c *checkoutTestContext) close() {
	if c.srv != nil {
		c.srv.Close()
		c.srv = nil
	}
	if c.dataDir != "" {
		_ = os.RemoveAll(c.dataDir)
		c.dataDir = ""
	}
}

// start brings up the server and the client once the Given steps are done.
func (c *checkoutTestContext) start(ctx context.Context) error {
	if c.srv != nil {
		return nil
	}

	pricing := c.settings.Normalize().Pricing()
	svc, err := service.New(
		service.CatalogOpt(c.catalog),
		service.OrdersOpt(c.orders),
		service.PricingOpt(config.NewStaticPricing(pricing)),
		service.PayPalOpt(c.paypal),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	httphandler.RegisterCheckout(mux, svc, svc, "*")
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			c.calls.Add(1)
		}
		mux.ServeHTTP(w, r)
	}))

	if c.dataDir, err = os.MkdirTemp("", "twin-supply-features-"); err != nil {
		return err
	}
	c.client, err = app.NewClient(app.ClientConfig{
		ServerURL: c.srv.URL,
		DataDir:   c.dataDir,
		Settings:  c.settings,
	})
	if err != nil {
		return err
	}

	catalog, _ := c.catalog.ReadCatalog(ctx)
	return c.client.Store.SaveCatalog(ctx, catalog)
}

func (c *checkoutTestContext) theCatalog(ctx context.Context, table *godog.Table) error {
	var catalog domain.Catalog
	for _, row := range table.Rows[1:] {
		var (
			p    domain.Product
			errs []error
			err  error
		)
		p.ID, err = strconv.ParseInt(row.Cells[0].Value, 10, 64)
		errs = append(errs, err)
		p.Name = row.Cells[1].Value
		p.Price, err = strconv.ParseFloat(row.Cells[2].Value, 64)
		errs = append(errs, err)
		p.Stock, err = strconv.Atoi(row.Cells[3].Value)
		errs = append(errs, err)
		p.Cost, err = strconv.ParseFloat(row.Cells[4].Value, 64)
		errs = append(errs, err)
		if err := errors.Join(errs...); err != nil {
			return err
		}
		catalog = append(catalog, p)
	}
	return c.catalog.ReplaceCatalog(ctx, catalog)
}

func (c *checkoutTestContext) theStoreChargesNoTax() error {
	c.settings.TaxRate = 0
	return nil
}

func (c *checkoutTestContext) paypalReportsAFee(fee float64) error {
	c.paypal.fee = &fee
	return nil
}

func (c *checkoutTestContext) theCartHolds(ctx context.Context, qty int, id int64) error {
	if err := c.start(ctx); err != nil {
		return err
	}
	return c.client.Store.SaveCart(ctx, []domain.CartLine{{ProductID: id, Qty: qty}})
}

func (c *checkoutTestContext) theServerHasLeft(ctx context.Context, stock int, id int64) error {
	catalog, err := c.catalog.ReadCatalog(ctx)
	if err != nil {
		return err
	}
	for i := range catalog {
		if catalog[i].ID == id {
			catalog[i].Stock = stock
			return c.catalog.ReplaceCatalog(ctx, catalog)
		}
	}
	return fmt.Errorf("product %d not in the server catalog", id)
}

func (c *checkoutTestContext) theBuyerQuotes(ctx context.Context, shipping string) error {
	c.quote, c.err = c.client.Checkout.Quote(ctx, shipping)
	return c.err
}

func (c *checkoutTestContext) theBuyerPays(ctx context.Context, funding string) error {
	_, c.err = c.client.Checkout.Pay(ctx, funding, checkout.Form{
		Customer:         buyer,
		ShippingMethodID: domain.ShippingStandard,
	})
	return nil
}

func (c *checkoutTestContext) theBuyerApproves(ctx context.Context) error {
	if c.err != nil {
		return fmt.Errorf("payment was not started: %w", c.err)
	}
	s, err := c.client.Checkout.Session(checkout.FundingPayPal)
	if err != nil {
		return err
	}
	intent, ok := s.Pending()
	if !ok {
		return errors.New("no payment awaiting approval")
	}
	c.result, c.err = c.client.Checkout.Complete(ctx, checkout.FundingPayPal, checkout.Form{
		Customer:         buyer,
		ShippingMethodID: domain.ShippingStandard,
	}, checkout.Approval{ProviderID: intent.ProviderID})
	return c.err
}

func (c *checkoutTestContext) theBuyerCancels() error {
	if c.err != nil {
		return fmt.Errorf("payment was not started: %w", c.err)
	}
	return c.client.Checkout.Cancel(checkout.FundingPayPal)
}

func (c *checkoutTestContext) theClientDeclaresAnExpectedTotal(
	ctx context.Context, expected float64, shipping string,
) error {
	api, err := gateway.New(c.srv.URL, c.srv.Client())
	if err != nil {
		return err
	}
	cart, err := c.client.Store.LoadCart(ctx)
	if err != nil {
		return err
	}
	_, c.err = api.CreateOrder(ctx, port.CreateOrderRequest{
		Cart:             cart,
		ShippingMethodID: shipping,
		ExpectedTotal:    &expected,
	})
	return nil
}

func (c *checkoutTestContext) theTotalsAre(subtotal, shipping, tax, total float64) error {
	got := c.quote.Totals
	want := domain.Totals{
		Currency: got.Currency, Subtotal: subtotal, Shipping: shipping, Tax: tax, Total: total,
	}
	if got != want {
		return fmt.Errorf("totals: want %+v, got %+v", want, got)
	}
	return nil
}

func (c *checkoutTestContext) checkoutIsBlockedForStock(name string) error {
	var stock *domain.InsufficientStockError
	if !errors.As(c.err, &stock) {
		return fmt.Errorf("expected insufficient stock, got %v", c.err)
	}
	for _, s := range stock.Shortages {
		if s.ProductName == name {
			return nil
		}
	}
	return fmt.Errorf("no shortage reported for %q: %+v", name, stock.Shortages)
}

func (c *checkoutTestContext) thePaymentServerWasNotCalled() error {
	if n := c.calls.Load(); n != 0 {
		return fmt.Errorf("payment server called %d times", n)
	}
	return nil
}

func (c *checkoutTestContext) theServerRejectsTheOrder(serverTotal, clientTotal float64) error {
	var mismatch *domain.TotalsMismatchError
	if !errors.As(c.err, &mismatch) {
		return fmt.Errorf("expected totals mismatch, got %v", c.err)
	}
	if mismatch.ServerTotal != serverTotal || mismatch.ClientTotal != clientTotal {
		return fmt.Errorf("mismatch: want %.2f/%.2f, got %.2f/%.2f",
			serverTotal, clientTotal, mismatch.ServerTotal, mismatch.ClientTotal)
	}
	return nil
}

func (c *checkoutTestContext) noPayPalOrderWasCreated() error {
	if n := c.paypal.created.Load(); n != 0 {
		return fmt.Errorf("%d paypal orders created", n)
	}
	return nil
}

func (c *checkoutTestContext) noOrderWasRecordedOnTheServer(ctx context.Context) error {
	orders, _ := c.orders.ListOrders(ctx, 0, 0)
	if len(orders) != 0 {
		return fmt.Errorf("%d orders recorded", len(orders))
	}
	return nil
}

func (c *checkoutTestContext) theRecordedOrderHas(
	ctx context.Context, total, cogs, fees, profit float64,
) error {
	orders, err := c.client.Store.LoadOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) != 1 {
		return fmt.Errorf("want 1 local order, got %d", len(orders))
	}
	o := orders[0]
	if o.Total != total || o.COGS != cogs || o.Fees != fees || o.Profit != profit {
		return fmt.Errorf("order: total %.2f cogs %.2f fees %.2f profit %.2f",
			o.Total, o.COGS, o.Fees, o.Profit)
	}
	if _, err := c.orders.ReadOrder(ctx, o.ID); err != nil {
		return fmt.Errorf("server record: %w", err)
	}
	return nil
}

func (c *checkoutTestContext) theCartIsEmpty(ctx context.Context) error {
	cart, err := c.client.Store.LoadCart(ctx)
	if err != nil {
		return err
	}
	if len(cart) != 0 {
		return fmt.Errorf("cart not cleared: %+v", cart)
	}
	return nil
}

func (c *checkoutTestContext) theSessionIs(funding, state string) error {
	s, err := c.client.Checkout.Session(funding)
	if err != nil {
		return err
	}
	if got := s.State().String(); got != state {
		return fmt.Errorf("session state: want %s, got %s", state, got)
	}
	return nil
}

func (c *checkoutTestContext) theCartStillHolds(ctx context.Context, qty int, id int64) error {
	cart, err := c.client.Store.LoadCart(ctx)
	if err != nil {
		return err
	}
	if len(cart) != 1 || cart[0].ProductID != id || cart[0].Qty != qty {
		return fmt.Errorf("cart changed: %+v", cart)
	}
	return nil
}

func (c *checkoutTestContext) noLocalOrderWasRecorded(ctx context.Context) error {
	orders, err := c.client.Store.LoadOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) != 0 {
		return fmt.Errorf("%d local orders recorded", len(orders))
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		tc.close()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the catalog:$`, tc.theCatalog)
	ctx.Step(`^the store charges no tax$`, tc.theStoreChargesNoTax)
	ctx.Step(`^PayPal reports a fee of (\d+\.\d+) on capture$`, tc.paypalReportsAFee)
	ctx.Step(`^the cart holds (\d+) of product (\d+)$`, tc.theCartHolds)
	ctx.Step(`^the server has (\d+) of product (\d+) left$`, tc.theServerHasLeft)

	// When steps
	ctx.Step(`^the buyer quotes with "([^"]*)" shipping$`, tc.theBuyerQuotes)
	ctx.Step(`^the buyer pays with "([^"]*)"$`, tc.theBuyerPays)
	ctx.Step(`^the buyer approves the payment$`, tc.theBuyerApproves)
	ctx.Step(`^the buyer cancels the payment$`, tc.theBuyerCancels)
	ctx.Step(`^the client declares an expected total of (\d+\.\d+) with "([^"]*)" shipping$`,
		tc.theClientDeclaresAnExpectedTotal)

	// Then steps
	ctx.Step(`^the totals are subtotal (\d+\.\d+), shipping (\d+\.\d+), tax (\d+\.\d+) and total (\d+\.\d+)$`,
		tc.theTotalsAre)
	ctx.Step(`^checkout is blocked for insufficient stock of "([^"]*)"$`, tc.checkoutIsBlockedForStock)
	ctx.Step(`^the payment server was not called$`, tc.thePaymentServerWasNotCalled)
	ctx.Step(`^the server rejects the order with server total (\d+\.\d+) and client total (\d+\.\d+)$`,
		tc.theServerRejectsTheOrder)
	ctx.Step(`^no PayPal order was created$`, tc.noPayPalOrderWasCreated)
	ctx.Step(`^no order was recorded on the server$`, tc.noOrderWasRecordedOnTheServer)
	ctx.Step(`^the recorded order has total (\d+\.\d+), cogs (\d+\.\d+), fees (\d+\.\d+) and profit (\d+\.\d+)$`,
		tc.theRecordedOrderHas)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the "([^"]*)" session is "([^"]*)"$`, tc.theSessionIs)
	ctx.Step(`^the cart still holds (\d+) of product (\d+)$`, tc.theCartStillHolds)
	ctx.Step(`^no local order was recorded$`, tc.noLocalOrderWasRecorded)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
