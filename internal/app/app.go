package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/twmb/franz-go/pkg/sr"

	"github.com/niksmo/twin-supply/config"
	"github.com/niksmo/twin-supply/internal/adapter/email"
	"github.com/niksmo/twin-supply/internal/adapter/httphandler"
	"github.com/niksmo/twin-supply/internal/adapter/kafka"
	"github.com/niksmo/twin-supply/internal/adapter/paypal"
	"github.com/niksmo/twin-supply/internal/adapter/rabbitmq"
	"github.com/niksmo/twin-supply/internal/adapter/square"
	"github.com/niksmo/twin-supply/internal/adapter/storage"
	"github.com/niksmo/twin-supply/internal/adapter/stripe"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/internal/core/service"
	"github.com/niksmo/twin-supply/pkg/schema"
)

type gateways struct {
	paypal port.PayPalGateway
	square port.SquareGateway
	stripe port.StripeGateway
	mailer port.Mailer
}

type events struct {
	publisher port.OrderEventsPublisher
	sales     port.SalesReader
	producer  *kafka.OrderEventsProducer
	processor *kafka.SalesProcessor
	view      *kafka.SalesView
	rabbit    *rabbitmq.OrderPublisher
}

// App is the storefront payment server.
type App struct {
	ctx        context.Context
	cfg        config.Config
	sqldb      storage.SQLDB
	gateways   gateways
	events     events
	service    service.Service
	httpServer httphandler.HTTPServer
	wg         sync.WaitGroup
}

func New(ctx context.Context, cfg config.Config) *App {
	app := &App{ctx: ctx, cfg: cfg}

	app.initLogger()
	app.initStorage()
	app.initGateways()
	app.initEvents()
	app.initCoreService()
	app.initInboundAdapters()

	return app
}

func (app *App) initLogger() {
	opts := &slog.HandlerOptions{Level: app.cfg.LogLevel}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)
}

func (app *App) initStorage() {
	const op = "App.initStorage"

	db, err := storage.NewSQLDB(app.ctx, app.cfg.SQLDB)
	if err != nil {
		app.fallDown(op, err)
	}
	app.sqldb = db
}

// initGateways leaves a gateway nil when its credentials are missing, which
// disables the matching endpoints.
func (app *App) initGateways() {
	const op = "App.initGateways"
	log := slog.With("op", op)
	cfg := app.cfg

	if pp, err := paypal.New(
		cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, cfg.PayPal.Env,
		paypal.BrandOpt(cfg.PayPal.Brand),
	); err == nil {
		app.gateways.paypal = pp
	} else {
		log.Warn("paypal disabled", "err", err)
	}

	if sq, err := square.New(cfg.Square.AccessToken, cfg.Square.Env); err == nil {
		app.gateways.square = sq
	} else {
		log.Warn("square disabled", "err", err)
	}

	if st, err := stripe.New(
		cfg.Stripe.SecretKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL,
	); err == nil {
		app.gateways.stripe = st
	} else {
		log.Warn("stripe disabled", "err", err)
	}

	if m, err := email.New(cfg.Email.APIKey, cfg.Email.From, cfg.Email.AdminEmail); err == nil {
		app.gateways.mailer = m
	} else {
		log.Warn("receipt email disabled", "err", err)
	}
}

func (app *App) initEvents() {
	const op = "App.initEvents"

	switch app.cfg.Events.Driver {
	case "":
		slog.Info("order events disabled", "op", op)
	case config.EventsKafka:
		app.initKafka()
	case config.EventsRabbitMQ:
		pub, err := rabbitmq.Dial(
			app.ctx, app.cfg.Events.RabbitMQ.URL, app.cfg.Events.RabbitMQ.Exchange,
		)
		if err != nil {
			app.fallDown(op, err)
		}
		app.events.rabbit = &pub
		app.events.publisher = pub
	default:
		app.fallDown(op, fmt.Errorf("unknown events driver %q", app.cfg.Events.Driver))
	}
}

func (app *App) initKafka() {
	const op = "App.initKafka"
	bcfg := app.cfg.Events.Broker
	ctx := app.ctx

	sec, err := kafka.NewSecurity(bcfg.TLS.CA, bcfg.TLS.Cert, bcfg.TLS.Key, bcfg.User, bcfg.Pass)
	if err != nil {
		app.fallDown(op, err)
	}

	srClient, err := sr.NewClient(sr.URLs(bcfg.SchemaRegistryURLs...))
	if err != nil {
		app.fallDown(op, err)
	}

	orderSerde, err := schema.NewSerdeOrderPlacedV1(
		ctx,
		schema.SubjectOpt(bcfg.Topics.OrderPlaced+"-value"),
		schema.SchemaIdentifierOpt(schema.NewSchemaCreater(srClient)),
	)
	if err != nil {
		app.fallDown(op, err)
	}

	producer, err := kafka.NewOrderEventsProducer(
		kafka.ProducerClientOpt(ctx, bcfg.SeedBrokers, bcfg.Topics.OrderPlaced, sec),
		kafka.ProducerEncoderOpt(orderSerde),
	)
	if err != nil {
		app.fallDown(op, err)
	}

	processor, err := kafka.NewSalesProcessor(
		bcfg.SeedBrokers, bcfg.Topics.OrderPlaced, bcfg.Consumers.SalesGroup,
		orderSerde, sec,
	)
	if err != nil {
		app.fallDown(op, err)
	}

	view, err := kafka.NewSalesView(kafka.SalesViewConfig{
		SeedBrokers: bcfg.SeedBrokers,
		Group:       bcfg.Consumers.SalesGroup,
		Security:    sec,
	})
	if err != nil {
		app.fallDown(op, err)
	}

	app.events.producer = &producer
	app.events.processor = processor
	app.events.view = &view
	app.events.publisher = producer
	app.events.sales = view
}

func (app *App) initCoreService() {
	const op = "App.initCoreService"

	opts := []service.Opt{
		service.CatalogOpt(storage.NewCatalogRepository(app.sqldb)),
		service.OrdersOpt(storage.NewOrdersRepository(app.sqldb)),
		service.PricingOpt(app.cfg.WatchPricing()),
		service.PayPalOpt(app.gateways.paypal),
		service.SquareOpt(app.gateways.square, app.cfg.Square.LocationID),
		service.StripeOpt(app.gateways.stripe),
		service.MailerOpt(app.gateways.mailer),
		service.EventsOpt(app.events.publisher),
		service.SalesOpt(app.events.sales),
		service.EffectsTimeoutOpt(app.cfg.EffectsTimeout),
	}

	s, err := service.New(opts...)
	if err != nil {
		app.fallDown(op, err)
	}
	app.service = s
}

func (app *App) initInboundAdapters() {
	cfg := app.cfg
	mux := http.NewServeMux()
	httphandler.RegisterCheckout(mux, app.service, app.service, cfg.AllowedOrigin)
	httphandler.RegisterAdmin(mux, app.service, app.service, cfg.AllowedOrigin, cfg.AdminKey)

	app.httpServer = httphandler.NewHTTPServer(cfg.HTTPServerAddr, mux, cfg.HTTPTimeout)
}

func (app *App) Run(stopFn context.CancelFunc) {
	go app.httpServer.Run(stopFn)

	if app.events.processor != nil {
		app.wg.Add(1)
		go app.events.processor.Run(app.ctx, stopFn, &app.wg)
	}
	if app.events.view != nil {
		go app.events.view.Run(app.ctx)
	}

	slog.Info("application is running")
}

func (app *App) Close(ctx context.Context) {
	slog.Info("application is closing...")

	app.httpServer.Close(ctx)
	if app.events.processor != nil {
		app.events.processor.Close()
	}
	app.wg.Wait()
	if app.events.producer != nil {
		app.events.producer.Close()
	}
	if app.events.rabbit != nil {
		app.events.rabbit.Close()
	}
	app.sqldb.Close()

	slog.Info("application is closed")
}

func (app *App) fallDown(op string, err error) {
	panic(fmt.Errorf("%s: %w", op, err))
}
