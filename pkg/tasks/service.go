package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/config"
	dbpkg "github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

// Service queues dispatch work transactionally and hands it to workers.
type Service interface {
	Enqueue(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, runAfter time.Time) error
	Claim(ctx context.Context, limit int) ([]models.DispatchTask, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, task models.DispatchTask, cause error) error
}

type service struct {
	repo *Repository
	cfg  config.TasksConfig
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, cfg config.TasksConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("tasks repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		repo: repo,
		cfg:  cfg,
		logg: logg,
		now:  time.Now,
	}, nil
}

// Enqueue inserts a pending task for the order unless one already exists.
// It must run inside the transaction that made the order dispatchable.
func (s *service) Enqueue(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, runAfter time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	exists, err := s.repo.PendingExistsTx(tx, orderID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if runAfter.IsZero() {
		runAfter = s.now()
	}
	task := models.DispatchTask{
		TenantID: tenantID,
		OrderID:  orderID,
		Status:   enums.DispatchTaskStatusPending,
		RunAfter: runAfter,
	}
	if err := s.repo.Insert(tx, task); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_dispatch_tasks_order_pending") {
			return nil
		}
		return err
	}
	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, "dispatch task queued")
	return nil
}

func (s *service) Claim(ctx context.Context, limit int) ([]models.DispatchTask, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	lease := s.cfg.BackoffBase
	if lease <= 0 {
		lease = 10 * time.Second
	}
	return s.repo.Claim(ctx, s.now(), lease, limit)
}

func (s *service) Complete(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkDone(ctx, id)
}

// Fail reschedules the task with exponential backoff (10s, 20s, 40s, ...)
// until the attempt cap, then parks it as failed.
func (s *service) Fail(ctx context.Context, task models.DispatchTask, cause error) error {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if task.Attempts >= maxAttempts {
		logCtx := s.logg.WithOrderID(ctx, task.OrderID.String())
		s.logg.Error(logCtx, "dispatch task exhausted retries", cause)
		return s.repo.MarkFailed(ctx, task.ID, cause)
	}
	backoff := s.cfg.BackoffBase
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	shift := task.Attempts - 1
	if shift < 0 {
		shift = 0
	}
	runAfter := s.now().Add(backoff * time.Duration(1<<uint(shift)))
	return s.repo.Reschedule(ctx, task.ID, runAfter, cause)
}
