package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/oyunkod/oyunkod-backend/internal/dispatch"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/pubsub"
	"github.com/oyunkod/oyunkod-backend/pkg/redis"
	"github.com/oyunkod/oyunkod-backend/pkg/tasks"
)

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Tasks    tasks.Service
	Dispatch dispatch.Service
	PubSub   *pubsub.Client
}

// Service drains the dispatch task queue. The database queue is the source
// of truth; the optional Pub/Sub subscription only shortens the wait
// between enqueue and pickup.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	tasks    tasks.Service
	dispatch dispatch.Service
	pubsub   *pubsub.Client
	nudge    chan struct{}
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Tasks == nil {
		return nil, errors.New("tasks service is required")
	}
	if params.Dispatch == nil {
		return nil, errors.New("dispatch service is required")
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		tasks:    params.Tasks,
		dispatch: params.Dispatch,
		pubsub:   params.PubSub,
		nudge:    make(chan struct{}, 1),
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if s.pubsub != nil {
		if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	if s.pubsub != nil {
		go s.listenForNudges(ctx)
	}

	interval := s.cfg.Tasks.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case <-s.nudge:
			s.drain(ctx)
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

// listenForNudges turns Pub/Sub task notifications into drain triggers.
// Messages carry no payload the worker trusts; the queue row does.
func (s *Service) listenForNudges(ctx context.Context) {
	sub := s.pubsub.DispatchSubscription()
	if sub == nil {
		s.logg.Warn(ctx, "dispatch subscription unavailable, relying on polling")
		return
	}

	err := sub.Receive(ctx, func(_ context.Context, msg *gcppubsub.Message) {
		msg.Ack()
		select {
		case s.nudge <- struct{}{}:
		default:
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "pubsub receive stopped, relying on polling", err)
	}
}

// drain claims one batch and runs each task to completion or backoff.
func (s *Service) drain(ctx context.Context) {
	for {
		batch, err := s.tasks.Claim(ctx, s.cfg.Tasks.BatchSize)
		if err != nil {
			s.logg.Error(ctx, "claiming dispatch tasks failed", err)
			return
		}
		if len(batch) == 0 {
			return
		}
		for _, task := range batch {
			s.runTask(ctx, task)
		}
	}
}

func (s *Service) runTask(ctx context.Context, task models.DispatchTask) {
	logCtx := s.logg.WithOrderID(ctx, task.OrderID.String())
	logCtx = s.logg.WithTenantID(logCtx, task.TenantID.String())

	outcome, err := s.dispatch.Dispatch(ctx, task.TenantID, task.OrderID)
	if err != nil {
		if apperrors.IsRetryable(err) {
			if failErr := s.tasks.Fail(ctx, task, err); failErr != nil {
				s.logg.Error(logCtx, "rescheduling dispatch task failed", failErr)
			}
			return
		}
		s.logg.Error(logCtx, "dispatch attempt failed permanently", err)
		if failErr := s.tasks.Fail(ctx, task, err); failErr != nil {
			s.logg.Error(logCtx, "parking dispatch task failed", failErr)
		}
		return
	}

	if !outcome.Dispatched {
		if outcome.Reason == "locked" {
			// another dispatcher holds the row; try again after backoff
			if failErr := s.tasks.Fail(ctx, task, apperrors.New(apperrors.CodeLocked, "order row locked")); failErr != nil {
				s.logg.Error(logCtx, "rescheduling locked dispatch task failed", failErr)
			}
			return
		}
		logCtx = s.logg.WithField(logCtx, "reason", outcome.Reason)
	}
	s.logg.Info(logCtx, "dispatch task processed")

	if err := s.tasks.Complete(ctx, task.ID); err != nil {
		s.logg.Error(logCtx, "completing dispatch task failed", err)
	}
}
