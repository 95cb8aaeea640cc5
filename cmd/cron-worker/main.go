package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cartpay-io/cartpay-backend/internal/cartpayment"
	"github.com/cartpay-io/cartpay-backend/internal/cron"
	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/internal/payers"
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
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

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

	captureJob, err := cron.NewCaptureJob(cron.CaptureJobParams{
		Logger:    logg,
		Payments:  paymentService,
		BatchSize: cfg.Cron.CaptureBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create capture job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(captureJob, retentionJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "cron-worker",
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
