package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradeyard/tradeyard-backend/api/controllers"
	"github.com/tradeyard/tradeyard-backend/api/routes"
	cartsvc "github.com/tradeyard/tradeyard-backend/internal/cart"
	checkoutsvc "github.com/tradeyard/tradeyard-backend/internal/checkout"
	ordersvc "github.com/tradeyard/tradeyard-backend/internal/orders"
	"github.com/tradeyard/tradeyard-backend/internal/products"
	"github.com/tradeyard/tradeyard-backend/internal/users"
	"github.com/tradeyard/tradeyard-backend/internal/wallet"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	"github.com/tradeyard/tradeyard-backend/pkg/db"
	"github.com/tradeyard/tradeyard-backend/pkg/gateway"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
	"github.com/tradeyard/tradeyard-backend/pkg/migrate"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/redis"
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

	gormDB := dbClient.DB()
	userRepo := users.NewRepository(gormDB)
	productRepo := products.NewRepository(gormDB)
	cartRepo := cartsvc.NewRepository(gormDB)
	orderRepo := ordersvc.NewRepository(gormDB)
	walletRepo := wallet.NewRepository(gormDB)
	reservationRepo := checkoutsvc.NewRepository(gormDB)

	cartService, err := cartsvc.NewService(cartRepo, productRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}
	cartValidator, err := cartsvc.NewValidator(cartRepo, productRepo, userRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart validator", err)
		os.Exit(1)
	}
	walletService, err := wallet.NewService(walletRepo, userRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	orderService, err := ordersvc.NewService(orderRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	var paymentGateway checkoutsvc.Gateway
	if strings.TrimSpace(cfg.Gateway.AccessToken) != "" {
		client, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create payment gateway client", err)
			os.Exit(1)
		}
		paymentGateway = client
	} else {
		logg.Warn(context.Background(), "payment gateway not configured, card settlements will fail")
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.Deps{
		DB:           gormDB,
		Reservations: reservationRepo,
		Orders:       orderRepo,
		Cart:         cartRepo,
		Products:     productRepo,
		Users:        userRepo,
		Wallet:       walletService,
		Outbox:       outbox.NewService(outbox.NewRepository(gormDB), logg),
		Gateway:      paymentGateway,
		Config:       cfg.Checkout,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
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
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Cart:     cartService,
			Verifier: cartValidator,
			Checkout: checkoutService,
			Orders:   orderService,
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
