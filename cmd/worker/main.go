package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

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
	"github.com/oyunkod/oyunkod-backend/pkg/pubsub"
	"github.com/oyunkod/oyunkod-backend/pkg/redis"
	"github.com/oyunkod/oyunkod-backend/pkg/tasks"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	var pubsubClient *pubsub.Client
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "gcp project not configured, worker will poll the task queue only")
	}

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepository(dbClient.DB())
	routingSvc, err := routing.NewService(routing.NewRepository(dbClient.DB()))
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
	chainSvc, err := chain.NewService(ordersRepo, walletSvc, flagsSvc, dispatchMetrics, logg, cfg.Dispatch.MaxChainDepth)
	if err != nil {
		logg.Error(context.Background(), "failed to create chain service", err)
		os.Exit(1)
	}

	dispatchSvc, err := dispatch.NewService(dispatch.Deps{
		Orders:   ordersRepo,
		Routing:  routingSvc,
		Codes:    codesSvc,
		Wallet:   walletSvc,
		Chain:    chainSvc,
		Flags:    flagsSvc,
		Registry: vendors.NewRegistry(cfg.Vendors),
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

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Tasks:    tasksSvc,
		Dispatch: dispatchSvc,
		PubSub:   pubsubClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting dispatch worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}
