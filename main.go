package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcart "github.com/Zhima-Mochi/foodcart/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/foodcart/internal/application/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/application/paymentmethod"
	"github.com/Zhima-Mochi/foodcart/internal/config"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/backend"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/id"
	kafkarelay "github.com/Zhima-Mochi/foodcart/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/stripe"
	"github.com/Zhima-Mochi/foodcart/internal/observability"
	httppresentation "github.com/Zhima-Mochi/foodcart/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/foodcart/internal/presentation/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "foodcart",
		Usage: "storefront cart and checkout service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file to load before the environment (default .env)"},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{Name: "serve", Usage: "run the HTTP service", Action: serve},
			{Name: "migrate", Usage: "apply the postgres cart store migrations", Action: migrateUp},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var files []string
	if f := c.String("env-file"); f != "" {
		files = append(files, f)
	}
	return config.Load(files...)
}

func newLogger(cfg *config.Config) (*zaplogger.Logger, error) {
	return zaplogger.New(cfg.LogFile,
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	oteltrace.InstallPropagator()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := infraobs.StandardMetrics(prometrics.New(reg, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, closeStore, err := openCartStore(ctx, cfg)
	if err != nil {
		logger.Error("cart_store_open_failed", observability.F("store", cfg.CartStore), observability.F("error", err))
		return err
	}
	defer closeStore()

	client := backend.New(cfg.BackendURL, cfg.BackendTimeout, backend.WithLogger(logger))
	carts := appcart.NewService(cartstore.New(blobs, cfg.CartStorageKey, logger), client, tel)
	methods := paymentmethod.NewService(client, tel)

	bus := outbox.NewBus(logger)
	opts := []appcheckout.Option{
		appcheckout.WithPollPolicy(appcheckout.PollPolicy{
			Interval: cfg.PaymentPollInterval,
			MaxWait:  cfg.PaymentPollMaxWait,
		}),
	}
	if cfg.StripeSecretKey != "" {
		opts = append(opts, appcheckout.WithConfirmer(stripe.New(cfg.StripeSecretKey)))
	}
	orchestrator := appcheckout.NewOrchestrator(
		memory.NewCheckoutRepository(),
		carts,
		client,
		client,
		id.NewUUIDGenerator(),
		bus,
		tel,
		opts...,
	)

	poller := workerpresentation.NewPaymentPoller(bus, orchestrator, logger)
	poller.Start()
	if cfg.KafkaEnabled() {
		relay := kafkarelay.NewRelay(kafkarelay.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		relay.Start(bus)
		defer func() { _ = relay.Close() }()
	}
	bus.Start(ctx)

	handler := httppresentation.NewHandler(carts, orchestrator, methods,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), tel)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("cart_store", cfg.CartStore),
			observability.F("stripe_confirm", cfg.StripeSecretKey != ""),
			observability.F("kafka_relay", cfg.KafkaEnabled()),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		logger.Info("http_server_stopped")
	}
	poller.Stop(shutdownCtx)
	bus.Stop(shutdownCtx)
	return nil
}

func migrateUp(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return errors.New("migrate: POSTGRES_DSN is required")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := postgres.Open(c.Context, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		logger.Error("migrations_failed", observability.F("error", err))
		return err
	}
	logger.Info("migrations_applied")
	return nil
}

// openCartStore returns the blob store selected by CART_STORE and a func
// releasing it.
func openCartStore(ctx context.Context, cfg *config.Config) (cartstore.Blobs, func(), error) {
	switch cfg.CartStore {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(client, cfg.ServiceName+":"), func() { _ = client.Close() }, nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.New(db), func() { _ = db.Close() }, nil
	default:
		return memory.NewBlobs(), func() {}, nil
	}
}
