package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/kwabenaosei/agritrade-backend/api/controllers"
	"github.com/kwabenaosei/agritrade-backend/api/routes"
	"github.com/kwabenaosei/agritrade-backend/internal/cart"
	checkoutsvc "github.com/kwabenaosei/agritrade-backend/internal/checkout"
	"github.com/kwabenaosei/agritrade-backend/internal/disputes"
	escrowsvc "github.com/kwabenaosei/agritrade-backend/internal/escrow"
	ordersvc "github.com/kwabenaosei/agritrade-backend/internal/orders"
	"github.com/kwabenaosei/agritrade-backend/internal/settings"
	paystackwebhook "github.com/kwabenaosei/agritrade-backend/internal/webhooks/paystack"
	"github.com/kwabenaosei/agritrade-backend/pkg/config"
	"github.com/kwabenaosei/agritrade-backend/pkg/db"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/migrate"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
	"github.com/kwabenaosei/agritrade-backend/pkg/paystack"
	"github.com/kwabenaosei/agritrade-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := paystack.New(cfg.Paystack)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	settingsService, err := settings.NewService(settings.NewRepository(dbClient.DB()), redisClient, cfg.Escrow, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, outboxService, cfg.Cart.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(
		checkoutsvc.NewRepository(dbClient.DB()),
		cart.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		settingsService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	escrowService, err := escrowsvc.NewService(
		escrowsvc.NewRepository(dbClient.DB()),
		dbClient,
		gateway,
		outboxService,
		settingsService,
		cfg.Paystack.CallbackURL,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	ordersService, err := ordersvc.NewService(
		ordersvc.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		escrowService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	disputesService, err := disputes.NewService(
		disputes.NewRepository(dbClient.DB()),
		dbClient,
		escrowService,
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create disputes service", err)
		os.Exit(1)
	}

	webhookService, err := paystackwebhook.NewService(escrowService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Redis:  redisClient,
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Cart:     cartService,
		Checkout: checkoutService,
		Orders:   ordersService,
		Escrow:   escrowService,
		Disputes: disputesService,
		Webhook:  webhookService,
	})

	addr := ":" + cfg.App.Port
	server := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
