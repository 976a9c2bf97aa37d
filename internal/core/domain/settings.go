package domain

import (
	"math"
	"strings"
)

const (
	EnvSandbox = "sandbox"
	EnvLive    = "live"

	DefaultCurrency   = "USD"
	DefaultFeePercent = 0.029
	DefaultFeeFixed   = 0.30
)

// StoreSettings is the client-side store configuration.
//
// TaxRate is a percentage, FeePercent is a fraction of the order total.
type StoreSettings struct {
	Currency          string          `json:"currency" mapstructure:"currency"`
	TaxRate           float64         `json:"taxRate" mapstructure:"tax_rate"`
	FeePercent        float64         `json:"feePercent" mapstructure:"fee_percent"`
	FeeFixed          float64         `json:"feeFixed" mapstructure:"fee_fixed"`
	ShippingMethods   ShippingMethods `json:"shippingMethods" mapstructure:"shipping_methods"`
	PayPalClientID    string          `json:"paypalClientId" mapstructure:"paypal_client_id"`
	PayPalMode        string          `json:"paypalMode" mapstructure:"paypal_mode"`
	SquareAppID       string          `json:"squareAppId" mapstructure:"square_app_id"`
	SquareLocationID  string          `json:"squareLocationId" mapstructure:"square_location_id"`
	SquareEnv         string          `json:"squareEnv" mapstructure:"square_env"`
	OrderWebhookURL   string          `json:"orderWebhookUrl" mapstructure:"order_webhook_url"`
	OrderWebhookToken string          `json:"orderWebhookToken" mapstructure:"order_webhook_token"`
}

// Pricing is the server-side subset of settings read at request time.
type Pricing struct {
	Currency        string
	TaxRate         float64
	ShippingMethods ShippingMethods
	Fees            FeeSchedule
}

type FeeSchedule struct {
	Percent float64
	Fixed   float64
}

func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		Currency:        DefaultCurrency,
		FeePercent:      DefaultFeePercent,
		FeeFixed:        DefaultFeeFixed,
		ShippingMethods: DefaultShippingMethods(),
		PayPalMode:      EnvSandbox,
		SquareEnv:       EnvSandbox,
	}
}

// Normalize replaces missing or invalid fields with defaults.
func (s StoreSettings) Normalize() StoreSettings {
	s.Currency = NormalizeCurrency(s.Currency)
	s.TaxRate = ClampPercent(s.TaxRate)
	s.FeePercent = Finite(s.FeePercent, 0)
	s.FeeFixed = Finite(s.FeeFixed, 0)
	s.PayPalMode = NormalizeEnv(s.PayPalMode)
	s.SquareEnv = NormalizeEnv(s.SquareEnv)

	methods := make(ShippingMethods, 0, len(s.ShippingMethods))
	for _, m := range s.ShippingMethods {
		m.ID = strings.ToLower(strings.TrimSpace(m.ID))
		if m.ID == "" {
			continue
		}
		m.Price = Finite(m.Price, 0)
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		methods = DefaultShippingMethods()
	}
	s.ShippingMethods = methods
	return s
}

func (s StoreSettings) Pricing() Pricing {
	return Pricing{
		Currency:        s.Currency,
		TaxRate:         s.TaxRate,
		ShippingMethods: s.ShippingMethods,
		Fees:            s.Fees(),
	}
}

func (s StoreSettings) Fees() FeeSchedule {
	return FeeSchedule{Percent: s.FeePercent, Fixed: s.FeeFixed}
}

func NormalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// NormalizeEnv maps anything except live or production to sandbox.
func NormalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case EnvLive, "production":
		return EnvLive
	}
	return EnvSandbox
}

// ClampPercent clamps a percentage to [0, 100]. Non-finite values become 0.
func ClampPercent(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return math.Min(math.Max(p, 0), 100)
}
