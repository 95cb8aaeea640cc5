package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cartpay-io/cartpay-backend/api/routes"
	"github.com/cartpay-io/cartpay-backend/internal/cartpayment"
	"github.com/cartpay-io/cartpay-backend/internal/disputes"
	"github.com/cartpay-io/cartpay-backend/internal/payers"
	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/db"
	"github.com/cartpay-io/cartpay-backend/pkg/gateway"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
	"github.com/cartpay-io/cartpay-backend/pkg/metrics"
	"github.com/cartpay-io/cartpay-backend/pkg/migrate"
	"github.com/cartpay-io/cartpay-backend/pkg/outbox"
	"github.com/cartpay-io/cartpay-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeGW, err := gateway.NewStripeGateway(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe gateway", err)
		os.Exit(1)
	}
	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
	gw := gateway.NewInstrumentedGateway(stripeGW, gatewayMetrics)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	payerService, err := payers.NewService(dbClient, payers.NewRepository(dbClient.DB()), gw, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payer service", err)
		os.Exit(1)
	}

	methodService, err := paymentmethods.NewService(paymentmethods.NewRepository(dbClient.DB()), gw, payerService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment method service", err)
		os.Exit(1)
	}

	paymentService, err := cartpayment.NewService(
		dbClient,
		cartpayment.NewRepository(dbClient.DB()),
		gw,
		methodService,
		payerService,
		outboxService,
		logg,
		cfg.Payments,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart payment service", err)
		os.Exit(1)
	}

	disputeService, err := disputes.NewService(dbClient, disputes.NewRepository(dbClient.DB()), redisClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispute service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			stripeGW,
			payerService,
			methodService,
			paymentService,
			disputeService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
