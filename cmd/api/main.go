package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oyunkod/oyunkod-backend/api/routes"
	"github.com/oyunkod/oyunkod-backend/internal/chain"
	"github.com/oyunkod/oyunkod-backend/internal/codes"
	"github.com/oyunkod/oyunkod-backend/internal/dispatch"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/fx"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
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
	"github.com/oyunkod/oyunkod-backend/pkg/tasks"
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

	promRegistry := prometheus.NewRegistry()
	dispatchMetrics := metrics.NewDispatchMetrics(promRegistry)

	ordersRepo := orders.NewRepository(dbClient.DB())
	routingRepo := routing.NewRepository(dbClient.DB())

	routingSvc, err := routing.NewService(routingRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create routing service", err)
		os.Exit(1)
	}
	codesSvc, err := codes.NewService(codes.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create codes service", err)
		os.Exit(1)
	}
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
	fxSvc, err := fx.NewService(dbClient.DB(), redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fx service", err)
		os.Exit(1)
	}
	tasksSvc, err := tasks.NewService(tasks.NewRepository(dbClient.DB()), cfg.Tasks, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create tasks service", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, walletSvc, tasksSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	chainSvc, err := chain.NewService(ordersRepo, walletSvc, flagsSvc, dispatchMetrics, logg, cfg.Dispatch.MaxChainDepth)
	if err != nil {
		logg.Error(context.Background(), "failed to create chain service", err)
		os.Exit(1)
	}
	orders.SetPropagator(ordersSvc, chainSvc)

	registry := vendors.NewRegistry(cfg.Vendors)
	dispatchSvc, err := dispatch.NewService(dispatch.Deps{
		Orders:   ordersRepo,
		Routing:  routingSvc,
		Codes:    codesSvc,
		Wallet:   walletSvc,
		Chain:    chainSvc,
		Flags:    flagsSvc,
		Registry: registry,
		FX:       fxSvc,
		Tasks:    tasksSvc,
		Tx:       dbClient,
		Metrics:  dispatchMetrics,
		Logger:   logg,
		Config:   cfg.Dispatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Cache:    redisClient,
		Orders:   ordersSvc,
		Dispatch: dispatchSvc,
		Codes:    codesSvc,
		Wallet:   walletSvc,
		Flags:    flagsSvc,
		FX:       fxSvc,
		Routing:  routingRepo,
		Registry: registry,
		Metrics:  promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
