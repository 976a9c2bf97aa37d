package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

const (
	configFileEnvName = "STOREFRONT_CONFIG_FILE"
	envPrefix         = "STOREFRONT"

	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
)

type pricing struct {
	Currency        string                 `mapstructure:"currency"`
	TaxRate         float64                `mapstructure:"tax_rate"`
	FeePercent      float64                `mapstructure:"fee_percent"`
	FeeFixed        float64                `mapstructure:"fee_fixed"`
	ShippingMethods domain.ShippingMethods `mapstructure:"shipping_methods"`
}

type paypal struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Env          string `mapstructure:"env"`
	Brand        string `mapstructure:"brand"`
}

type square struct {
	AccessToken string `mapstructure:"access_token"`
	LocationID  string `mapstructure:"location_id"`
	Env         string `mapstructure:"env"`
}

type stripe struct {
	SecretKey  string `mapstructure:"secret_key"`
	SuccessURL string `mapstructure:"success_url"`
	CancelURL  string `mapstructure:"cancel_url"`
}

type email struct {
	APIKey     string `mapstructure:"api_key"`
	From       string `mapstructure:"from"`
	AdminEmail string `mapstructure:"admin_email"`
}

type topics struct {
	OrderPlaced string `mapstructure:"order_placed"`
}

type consumers struct {
	SalesGroup string `mapstructure:"sales_group"`
}

type brokerTLS struct {
	CA   string `mapstructure:"ca"`
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

// Broker is the Kafka cluster the order events go through.
type Broker struct {
	SeedBrokers        []string  `mapstructure:"seed_brokers"`
	SchemaRegistryURLs []string  `mapstructure:"schema_registry_urls"`
	Topics             topics    `mapstructure:"topics"`
	Consumers          consumers `mapstructure:"consumers"`
	TLS                brokerTLS `mapstructure:"tls"`
	User               string    `mapstructure:"user"`
	Pass               string    `mapstructure:"pass"`
}

type rabbitmq struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type events struct {
	// Driver is kafka, rabbitmq or empty to disable order events.
	Driver   string   `mapstructure:"driver"`
	Broker   Broker   `mapstructure:"broker"`
	RabbitMQ rabbitmq `mapstructure:"rabbitmq"`
}

type Config struct {
	LogLevel       slog.Level    `mapstructure:"log_level"`
	HTTPServerAddr string        `mapstructure:"http_server_addr"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	EffectsTimeout time.Duration `mapstructure:"effects_timeout"`
	AllowedOrigin  string        `mapstructure:"allowed_origin"`
	AdminKey       string        `mapstructure:"admin_key"`
	SQLDB          string        `mapstructure:"sql_db"`
	Pricing        pricing       `mapstructure:"pricing"`
	PayPal         paypal        `mapstructure:"paypal"`
	Square         square        `mapstructure:"square"`
	Stripe         stripe        `mapstructure:"stripe"`
	Email          email         `mapstructure:"email"`
	Events         events        `mapstructure:"events"`

	// v is kept for watching the pricing section.
	v *viper.Viper
}

// Load reads the file named by --config or STOREFRONT_CONFIG_FILE and
// exits with code 2 on failure.
func Load() Config {
	cfg, err := LoadFile(getConfigFilepath())
	if err != nil {
		die(err)
	}
	return cfg
}

// LoadFile reads the config file at path. STOREFRONT_ prefixed variables
// override file values, for example STOREFRONT_PAYPAL_CLIENT_SECRET.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, decodeHook()); err != nil {
		return Config{}, err
	}
	cfg.v = v
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http_server_addr", ":8080")
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("effects_timeout", 15*time.Second)
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("admin_key", "")
	v.SetDefault("sql_db", "")

	v.SetDefault("pricing.currency", domain.DefaultCurrency)
	v.SetDefault("pricing.tax_rate", 0)
	v.SetDefault("pricing.fee_percent", domain.DefaultFeePercent)
	v.SetDefault("pricing.fee_fixed", domain.DefaultFeeFixed)
	v.SetDefault("pricing.shipping_methods", shippingDefaults())

	v.SetDefault("paypal.client_id", "")
	v.SetDefault("paypal.client_secret", "")
	v.SetDefault("paypal.env", domain.EnvSandbox)
	v.SetDefault("paypal.brand", "Twin-Supply")

	v.SetDefault("square.access_token", "")
	v.SetDefault("square.location_id", "")
	v.SetDefault("square.env", domain.EnvSandbox)

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.success_url", "")
	v.SetDefault("stripe.cancel_url", "")

	v.SetDefault("email.api_key", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.admin_email", "")

	v.SetDefault("events.driver", "")
	v.SetDefault("events.broker.seed_brokers", []string{})
	v.SetDefault("events.broker.schema_registry_urls", []string{})
	v.SetDefault("events.broker.topics.order_placed", "orders.placed")
	v.SetDefault("events.broker.consumers.sales_group", "product-sales")
	v.SetDefault("events.broker.tls.ca", "")
	v.SetDefault("events.broker.tls.cert", "")
	v.SetDefault("events.broker.tls.key", "")
	v.SetDefault("events.broker.user", "")
	v.SetDefault("events.broker.pass", "")
	v.SetDefault("events.rabbitmq.url", "")
	v.SetDefault("events.rabbitmq.exchange", "order_exchange")
}

func shippingDefaults() []map[string]any {
	ms := domain.DefaultShippingMethods()
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, map[string]any{"id": m.ID, "name": m.Name, "price": m.Price})
	}
	return out
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

func getConfigFilepath() string {
	cmdLine := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	arg := cmdLine.String("config", "/config.yaml", "config file")
	_ = cmdLine.Parse(os.Args[1:])
	env, ok := os.LookupEnv(configFileEnvName)
	if ok {
		return env
	}
	return *arg
}

func die(err error) {
	fmt.Printf("failed to load config file: %v\n", err)
	os.Exit(2)
}

// StorePricing returns the pricing section with invalid values replaced
// by defaults.
func (c Config) StorePricing() domain.Pricing {
	return c.Pricing.toDomain()
}

func (p pricing) toDomain() domain.Pricing {
	s := domain.StoreSettings{
		Currency:        p.Currency,
		TaxRate:         p.TaxRate,
		FeePercent:      domain.Finite(p.FeePercent, domain.DefaultFeePercent),
		FeeFixed:        domain.Finite(p.FeeFixed, domain.DefaultFeeFixed),
		ShippingMethods: p.ShippingMethods,
	}
	return s.Normalize().Pricing()
}

func (c Config) Print() {
	tamplate := `
	General:
	LogLevel=%q
	HTTPServerAddr=%q
	AllowedOrigin=%q
	AdminKeySet=%t
	SQLDBSet=%t

	Pricing:
	Currency=%q
	TaxRate=%v
	ShippingMethods=%d

	Providers:
	PayPal=%t (%s)
	Square=%t (%s)
	Stripe=%t
	Email=%t

	Events:
	Driver=%q
	SeedBrokers=%q
	OrderPlacedTopic=%q
	SalesGroup=%q

`
	fmt.Println("Loaded config:")
	fmt.Printf(
		strings.TrimLeft(tamplate, "\n"),
		c.LogLevel,
		c.HTTPServerAddr,
		c.AllowedOrigin,
		c.AdminKey != "",
		c.SQLDB != "",
		c.Pricing.Currency,
		c.Pricing.TaxRate,
		len(c.Pricing.ShippingMethods),
		c.PayPal.ClientID != "", c.PayPal.Env,
		c.Square.AccessToken != "", c.Square.Env,
		c.Stripe.SecretKey != "",
		c.Email.APIKey != "",
		c.Events.Driver,
		c.Events.Broker.SeedBrokers,
		c.Events.Broker.Topics.OrderPlaced,
		c.Events.Broker.Consumers.SalesGroup,
	)
}
