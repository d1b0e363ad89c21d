package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	cartsvc "github.com/tradeyard/tradeyard-backend/internal/cart"
	checkoutsvc "github.com/tradeyard/tradeyard-backend/internal/checkout"
	"github.com/tradeyard/tradeyard-backend/internal/cron"
	ordersvc "github.com/tradeyard/tradeyard-backend/internal/orders"
	"github.com/tradeyard/tradeyard-backend/internal/products"
	"github.com/tradeyard/tradeyard-backend/internal/users"
	"github.com/tradeyard/tradeyard-backend/internal/wallet"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	"github.com/tradeyard/tradeyard-backend/pkg/db"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
	"github.com/tradeyard/tradeyard-backend/pkg/metrics"
	"github.com/tradeyard/tradeyard-backend/pkg/migrate"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/redis"
)

const lockKeyFormat = "ty:cron-worker:lock:%s"

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

	cfg.Service.Kind = "cron-worker"

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

	gormDB := dbClient.DB()
	walletService, err := wallet.NewService(wallet.NewRepository(gormDB), users.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	recovery, err := checkoutsvc.NewRecoveryService(checkoutsvc.Deps{
		DB:           gormDB,
		Reservations: checkoutsvc.NewRepository(gormDB),
		Orders:       ordersvc.NewRepository(gormDB),
		Cart:         cartsvc.NewRepository(gormDB),
		Products:     products.NewRepository(gormDB),
		Users:        users.NewRepository(gormDB),
		Wallet:       walletService,
		Outbox:       outbox.NewService(outbox.NewRepository(gormDB), logg),
		Config:       cfg.Checkout,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recovery service", err)
		os.Exit(1)
	}

	reaper, err := cron.NewReservationReaperJob(recovery, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation reaper job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reaper),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Checkout.RecoveryInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
