package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oyunkod/oyunkod-backend/internal/chain"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/internal/poller"
	"github.com/oyunkod/oyunkod-backend/internal/routing"
	"github.com/oyunkod/oyunkod-backend/internal/vendors"
	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/instance"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/metrics"
	"github.com/oyunkod/oyunkod-backend/pkg/migrate"
	"github.com/oyunkod/oyunkod-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "poller"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "poller"

	logg = logger.New(logger.Options{
		ServiceName: "poller",
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

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)
	pollerMetrics := metrics.NewPollerMetrics(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepository(dbClient.DB())
	walletSvc, err := wallet.NewService(wallet.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	flagsSvc, err := flags.NewService(cfg.FeatureFlags, redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create flags service", err)
		os.Exit(1)
	}
	chainSvc, err := chain.NewService(ordersRepo, walletSvc, flagsSvc, dispatchMetrics, logg, cfg.Dispatch.MaxChainDepth)
	if err != nil {
		logg.Error(context.Background(), "failed to create chain service", err)
		os.Exit(1)
	}

	service, err := poller.NewService(poller.Deps{
		Orders:        ordersRepo,
		Integrations:  routing.NewRepository(dbClient.DB()),
		Registry:      vendors.NewRegistry(cfg.Vendors),
		Wallet:        walletSvc,
		Chain:         chainSvc,
		Flags:         flagsSvc,
		Tx:            dbClient,
		Lock:          redisClient,
		Metrics:       pollerMetrics,
		Logger:        logg,
		Config:        cfg.Poller,
		VendorTimeout: cfg.Dispatch.VendorTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create poller service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting status poller")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "status poller stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "status poller shutting down gracefully")
}
