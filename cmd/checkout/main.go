package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/niksmo/twin-supply/config"
	"github.com/niksmo/twin-supply/internal/app"
	"github.com/niksmo/twin-supply/internal/core/calc"
	"github.com/niksmo/twin-supply/internal/core/checkout"
	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/pkg/sigctx"
)

const usage = `usage: checkout [flags] <command> [args]

commands:
  catalog <products.json>   replace the local catalog snapshot
  cart <id:qty>...          replace the cart, quantities clamped to stock
  quote                     price the cart
  pay                       pay for the cart and record the order
  orders                    list recorded orders, newest first

flags:
`

type flags struct {
	server       string
	dataDir      string
	settings     string
	funding      string
	shipping     string
	customer     string
	notes        string
	labelCost    float64
	sourceID     string
	sandboxKey   string
	timeout      time.Duration
	logLevel     string
	confirmation string
}

func main() {
	f := parseFlags()
	initLogger(f.logLevel)

	ctx, cancel := sigctx.NotifyContext()
	defer cancel()

	if err := run(ctx, f, pflag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "checkout:", describe(err))
		os.Exit(1)
	}
}

func parseFlags() flags {
	var f flags
	pflag.StringVarP(&f.server, "server", "s", envOr("STOREFRONT_URL", "http://localhost:8080"), "payment server url")
	pflag.StringVarP(&f.dataDir, "data-dir", "d", envOr("CHECKOUT_DATA_DIR", ".twin-supply"), "local store directory")
	pflag.StringVar(&f.settings, "settings", "", "store settings file (yaml or json)")
	pflag.StringVarP(&f.funding, "funding", "f", checkout.FundingPayPal, "paypal, venmo, cashapp or card")
	pflag.StringVar(&f.shipping, "shipping", domain.ShippingStandard, "shipping method id")
	pflag.StringVarP(&f.customer, "customer", "c", "", "customer json file")
	pflag.StringVar(&f.notes, "notes", "", "order notes")
	pflag.Float64Var(&f.labelCost, "label-cost", 0, "actual shipping label cost")
	pflag.StringVar(&f.sourceID, "source-id", "", "Square payment token for cashapp")
	pflag.StringVar(&f.sandboxKey, "paypal-sandbox-secret", os.Getenv("PAYPAL_SANDBOX_SECRET"), "enables the direct sandbox fallback")
	pflag.DurationVar(&f.timeout, "timeout", 20*time.Second, "server request timeout")
	pflag.StringVar(&f.logLevel, "log-level", "warn", "log level")
	pflag.StringVar(&f.confirmation, "confirmation-page", "", "confirmation page, success.html by default")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()
	return f
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func initLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
}

func run(ctx context.Context, f flags, args []string) error {
	if len(args) == 0 {
		pflag.Usage()
		return errors.New("missing command")
	}

	settings, err := config.LoadSettings(f.settings)
	if err != nil {
		return err
	}

	cl, err := app.NewClient(app.ClientConfig{
		ServerURL:           f.server,
		DataDir:             f.dataDir,
		Settings:            settings,
		Timeout:             f.timeout,
		PayPalSandboxSecret: f.sandboxKey,
		ConfirmationPage:    f.confirmation,
	})
	if err != nil {
		return err
	}

	switch args[0] {
	case "catalog":
		return importCatalog(ctx, cl, args[1:])
	case "cart":
		return setCart(ctx, cl, args[1:])
	case "quote":
		q, err := cl.Checkout.Quote(ctx, f.shipping)
		if err != nil {
			return err
		}
		return printJSON(q)
	case "pay":
		return pay(ctx, cl, f)
	case "orders":
		orders, err := cl.Store.LoadOrders(ctx)
		if err != nil {
			return err
		}
		return printJSON(orders)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func importCatalog(ctx context.Context, cl app.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("catalog: expected one file")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var c domain.Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return cl.Store.SaveCatalog(ctx, c)
}

func setCart(ctx context.Context, cl app.Client, args []string) error {
	lines := make([]domain.CartLine, 0, len(args))
	for _, a := range args {
		idS, qtyS, ok := strings.Cut(a, ":")
		if !ok {
			qtyS = "1"
		}
		id, err := strconv.ParseInt(idS, 10, 64)
		if err != nil {
			return fmt.Errorf("cart: bad product id %q", idS)
		}
		qty, err := strconv.Atoi(qtyS)
		if err != nil {
			return fmt.Errorf("cart: bad quantity %q", qtyS)
		}
		lines = append(lines, domain.CartLine{ProductID: id, Qty: qty})
	}

	catalog, err := cl.Store.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	lines = calc.ClampCart(calc.NormalizeCart(lines), catalog)
	if err := cl.Store.SaveCart(ctx, lines); err != nil {
		return err
	}
	return printJSON(lines)
}

func pay(ctx context.Context, cl app.Client, f flags) error {
	form := checkout.Form{
		Notes:            f.notes,
		ShippingMethodID: f.shipping,
		LabelCost:        f.labelCost,
	}
	if f.customer != "" {
		raw, err := os.ReadFile(f.customer)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &form.Customer); err != nil {
			return fmt.Errorf("customer: %w", err)
		}
	}

	intent, err := cl.Checkout.Pay(ctx, f.funding, form)
	if err != nil {
		return err
	}

	fmt.Printf("order %s: %s %s\n", intent.LocalOrderID,
		domain.FormatMoney(intent.Totals.Total), intent.Totals.Currency)
	if intent.Sandbox {
		fmt.Println("server unreachable, using the PayPal sandbox directly")
	}

	approval := checkout.Approval{ProviderID: intent.ProviderID, SourceID: f.sourceID}
	if intent.ApproveURL != "" {
		fmt.Printf("approve the payment at:\n  %s\n", intent.ApproveURL)
	}
	if f.funding == checkout.FundingCashApp && approval.SourceID == "" {
		fmt.Print("Square payment token: ")
	} else {
		fmt.Print("press Enter once approved, or type cancel: ")
	}

	answer, err := readLine(ctx)
	if err != nil || strings.EqualFold(answer, "cancel") {
		if cerr := cl.Checkout.Cancel(f.funding); cerr != nil {
			slog.Warn("cancel failed", "err", cerr)
		}
		fmt.Println("payment cancelled, cart kept")
		return nil
	}
	if f.funding == checkout.FundingCashApp && approval.SourceID == "" {
		approval.SourceID = answer
	}

	res, err := cl.Checkout.Complete(ctx, f.funding, form, approval)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// readLine returns an error when ctx is cancelled first.
func readLine(ctx context.Context) (string, error) {
	lineC := make(chan string, 1)
	errC := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			errC <- err
			return
		}
		lineC <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errC:
		return "", err
	case line := <-lineC:
		return line, nil
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe renders the errors a buyer can act on.
func describe(err error) string {
	var (
		stock    *domain.InsufficientStockError
		mismatch *domain.TotalsMismatchError
		invalid  *domain.ValidationError
	)
	switch {
	case errors.As(err, &stock):
		return "insufficient stock: " + domain.ShortageMessage(stock.Shortages)
	case errors.As(err, &mismatch):
		return fmt.Sprintf("prices changed, the total is now %s", domain.FormatMoney(mismatch.ServerTotal))
	case errors.As(err, &invalid):
		return "missing required fields: " + strings.Join(invalid.Fields, ", ")
	case errors.Is(err, domain.ErrEmptyCart):
		return "cart is empty"
	case errors.Is(err, checkout.ErrBusy):
		return "a payment is already in progress"
	case errors.Is(err, domain.ErrServerUnavailable):
		return "payment server unavailable, try again later"
	}
	return err.Error()
}
