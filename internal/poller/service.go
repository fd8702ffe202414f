package poller

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/internal/chain"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/internal/routing"
	"github.com/oyunkod/oyunkod-backend/internal/vendors"
	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	dbpkg "github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/metrics"
	redispkg "github.com/oyunkod/oyunkod-backend/pkg/redis"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

// Service sweeps in-flight external orders and reconciles their status
// against the vendor. One sweep runs cluster-wide at a time; instances
// coordinate through a redis lock.
type Service interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdapterResolver picks the vendor adapter for an integration.
type AdapterResolver interface {
	Resolve(integration models.Integration, simulate bool) (vendors.Adapter, error)
}

type locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope string) string
}

// Deps carries the poller's collaborators. Lock may be nil when a single
// instance runs.
type Deps struct {
	Orders        orders.Repository
	Integrations  routing.Repository
	Registry      AdapterResolver
	Wallet        wallet.Service
	Chain         chain.Service
	Flags         flags.Service
	Tx            txRunner
	Lock          locker
	Metrics       *metrics.PollerMetrics
	Logger        *logger.Logger
	Config        config.PollerConfig
	VendorTimeout time.Duration
}

type service struct {
	deps       Deps
	instanceID string
	now        func() time.Time
}

// NewService wires the status poller. Metrics and Lock may be nil.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository is required")
	case deps.Integrations == nil:
		return nil, fmt.Errorf("integrations repository is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("adapter registry is required")
	case deps.Wallet == nil:
		return nil, fmt.Errorf("wallet service is required")
	case deps.Chain == nil:
		return nil, fmt.Errorf("chain service is required")
	case deps.Flags == nil:
		return nil, fmt.Errorf("flags service is required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		deps:       deps,
		instanceID: uuid.NewString(),
		now:        time.Now,
	}, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *service) Run(ctx context.Context) error {
	interval := s.deps.Config.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.acquireLock(ctx) {
				continue
			}
			if err := s.RunOnce(ctx); err != nil {
				s.deps.Logger.Error(ctx, "poll sweep finished with errors", err)
			}
			s.releaseLock(ctx)
		}
	}
}

func (s *service) acquireLock(ctx context.Context) bool {
	if s.deps.Lock == nil {
		return true
	}
	ttl := s.deps.Config.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := s.deps.Lock.SetNX(ctx, s.deps.Lock.LockKey("poller"), s.instanceID, ttl)
	if err != nil {
		s.deps.Logger.Warn(ctx, fmt.Sprintf("poller lock unavailable: %v", err))
		return false
	}
	return ok
}

// releaseLock frees the lock only while this instance still owns it. A
// sweep that outlived the TTL must not delete a lock another instance has
// since acquired.
func (s *service) releaseLock(ctx context.Context) {
	if s.deps.Lock == nil {
		return
	}
	key := s.deps.Lock.LockKey("poller")
	owner, err := s.deps.Lock.Get(ctx, key)
	if err != nil {
		if !redispkg.IsNil(err) {
			s.deps.Logger.Warn(ctx, fmt.Sprintf("poller lock owner read failed: %v", err))
		}
		return
	}
	if owner != s.instanceID {
		return
	}
	if err := s.deps.Lock.Del(ctx, key); err != nil {
		s.deps.Logger.Warn(ctx, fmt.Sprintf("poller lock release failed: %v", err))
	}
}

// RunOnce performs a single sweep: reconcile every pollable order inside
// the tracking window, then retire the ones whose budget ran out. Per-order
// failures are collected so one misbehaving vendor never stalls the sweep.
func (s *service) RunOnce(ctx context.Context) error {
	start := s.now()
	snapshot := s.deps.Flags.Snapshot(ctx)

	budget := s.deps.Config.Budget
	if budget <= 0 {
		budget = 24 * time.Hour
	}
	minAge := s.deps.Config.MinAge
	if minAge <= 0 {
		minAge = time.Minute
	}
	batchSize := s.deps.Config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	oldest := start.Add(-budget)
	newest := start.Add(-minAge)

	batch, err := s.deps.Orders.ListPollable(ctx, oldest, newest, batchSize)
	if err != nil {
		return err
	}
	s.deps.Metrics.AddScanned(len(batch))

	var errs error
	for i := range batch {
		if err := s.pollOne(ctx, snapshot, &batch[i]); err != nil {
			s.deps.Metrics.IncError()
			errs = multierr.Append(errs, err)
		}
	}
	errs = multierr.Append(errs, s.sweepExpired(ctx, oldest, batchSize))

	s.deps.Metrics.ObserveCycle(s.now().Sub(start))
	return errs
}

// pollOne asks the vendor for the order's current status and applies the
// answer under the order's row lock. The vendor call runs outside the
// transaction; the locked section re-checks that the order is still worth
// updating.
func (s *service) pollOne(ctx context.Context, snapshot flags.Snapshot, order *models.Order) error {
	if order.ProviderID == nil || order.ExternalOrderID == nil || *order.ExternalOrderID == "" {
		return nil
	}
	logCtx := s.deps.Logger.WithOrderID(ctx, order.ID.String())

	integration, err := s.deps.Integrations.FindIntegration(ctx, order.TenantID, *order.ProviderID)
	if err != nil {
		return fmt.Errorf("order %s: load integration: %w", order.ShortNo(), err)
	}
	adapter, err := s.deps.Registry.Resolve(*integration, snapshot.ZnetSimulate)
	if err != nil {
		return fmt.Errorf("order %s: %w", order.ShortNo(), err)
	}

	timeout := s.deps.VendorTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	vendorCtx, cancel := context.WithTimeout(ctx, timeout)
	result, err := adapter.FetchStatus(vendorCtx, *integration, *order.ExternalOrderID)
	cancel()

	attempt := order.PollAttempts + 1
	verbose := attempt == 1 || (s.deps.Config.VerboseEvery > 0 && attempt%s.deps.Config.VerboseEvery == 0)

	if err != nil {
		if txErr := s.recordLookupFailure(ctx, order.ID, err); txErr != nil {
			return multierr.Append(err, txErr)
		}
		if verbose {
			s.deps.Logger.Warn(logCtx, fmt.Sprintf("vendor status lookup failed: %v", err))
		}
		return fmt.Errorf("order %s: %w", order.ShortNo(), err)
	}

	return s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.deps.Orders.WithTx(tx)
		current, lockErr := repo.LockForDispatch(ctx, order.ID)
		if lockErr != nil {
			if dbpkg.IsLockNotAvailable(lockErr) {
				return nil
			}
			return lockErr
		}
		if current.Status.IsTerminal() || current.IsChainForwarded() {
			return nil
		}
		switch current.ExternalStatus {
		case enums.ExternalStatusSent, enums.ExternalStatusProcessing:
		default:
			return nil
		}

		now := s.now()
		current.PollAttempts++
		current.LastSyncAt = &now
		if result.Message != "" {
			message := result.Message
			current.LastMessage = &message
		}

		switch result.Status {
		case enums.NormalizedStatusCompleted:
			return s.applyCompletion(ctx, tx, repo, current, result, now)
		case enums.NormalizedStatusFailed, enums.NormalizedStatusRejected, enums.NormalizedStatusCancelled:
			return s.applyRejection(ctx, tx, repo, current, result, now)
		default:
			mapped := result.Status.ExternalStatus()
			changed := mapped != "" && mapped != current.ExternalStatus
			if changed {
				current.ExternalStatus = mapped
				s.deps.Metrics.IncTransition(string(mapped))
			}
			if err := repo.Update(ctx, current); err != nil {
				return err
			}
			if verbose {
				s.deps.Logger.Debug(logCtx, fmt.Sprintf("order %s still %s after %d polls", current.ShortNo(), current.ExternalStatus, current.PollAttempts))
			}
			return nil
		}
	})
}

func (s *service) applyCompletion(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, result *vendors.StatusResult, now time.Time) error {
	order.Status = enums.OrderStatusApproved
	order.ExternalStatus = enums.ExternalStatusCompleted
	order.ApprovedAt = &now
	order.CompletedAt = &now
	order.FxLocked = true
	if result.PinCode != "" {
		pin := result.PinCode
		order.ManualNote = &pin
	}
	if err := repo.Update(ctx, order); err != nil {
		return err
	}
	err := repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionPollSync,
		Result:   enums.DispatchResultOK,
		Message:  "vendor reported completion",
		Payload:  types.JSONMap{"raw_status": result.RawStatus},
	})
	if err != nil {
		return err
	}
	s.deps.Metrics.IncTransition("completed")
	logCtx := s.deps.Logger.WithOrderID(ctx, order.ID.String())
	s.deps.Logger.Info(logCtx, fmt.Sprintf("order %s completed by vendor", order.ShortNo()))
	return s.deps.Chain.PropagateFrom(ctx, tx, order)
}

func (s *service) applyRejection(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, result *vendors.StatusResult, now time.Time) error {
	order.Status = enums.OrderStatusRejected
	order.ExternalStatus = result.Status.ExternalStatus()
	order.CompletedAt = &now

	if _, err := s.deps.Wallet.Record(ctx, tx, wallet.RecordInput{
		TenantID:    order.TenantID,
		UserID:      order.UserID,
		OrderID:     &order.ID,
		Cause:       enums.WalletTxCauseOrderRejected,
		Amount:      order.SellPriceAmount,
		Currency:    order.SellPriceCurrency,
		Description: fmt.Sprintf("refund for order %s", order.ShortNo()),
	}); err != nil {
		return err
	}
	if err := repo.Update(ctx, order); err != nil {
		return err
	}
	err := repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Action:   enums.DispatchActionPollSync,
		Result:   enums.DispatchResultFailed,
		Message:  rejectionMessage(result),
		Payload:  types.JSONMap{"raw_status": result.RawStatus},
	})
	if err != nil {
		return err
	}
	s.deps.Metrics.IncTransition(string(result.Status))
	logCtx := s.deps.Logger.WithOrderID(ctx, order.ID.String())
	s.deps.Logger.Warn(logCtx, fmt.Sprintf("order %s rejected by vendor", order.ShortNo()))
	return s.deps.Chain.PropagateFrom(ctx, tx, order)
}

// recordLookupFailure bumps the attempt counter and stores the failure so
// operators can see a flapping vendor without reading worker logs.
func (s *service) recordLookupFailure(ctx context.Context, orderID uuid.UUID, cause error) error {
	return s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.deps.Orders.WithTx(tx)
		current, err := repo.LockForDispatch(ctx, orderID)
		if err != nil {
			if dbpkg.IsLockNotAvailable(err) || stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		message := failureMessage(cause)
		current.PollAttempts++
		current.LastMessage = &message
		return repo.Update(ctx, current)
	})
}

// sweepExpired retires orders the vendor never resolved inside the
// tracking budget. They are rejected and refunded; an operator can follow
// up with the vendor manually.
func (s *service) sweepExpired(ctx context.Context, cutoff time.Time, limit int) error {
	expired, err := s.deps.Orders.ListExpired(ctx, cutoff, limit)
	if err != nil {
		return err
	}

	var errs error
	for i := range expired {
		order := &expired[i]
		err := s.deps.Tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.deps.Orders.WithTx(tx)
			current, lockErr := repo.LockForDispatch(ctx, order.ID)
			if lockErr != nil {
				if dbpkg.IsLockNotAvailable(lockErr) {
					return nil
				}
				return lockErr
			}
			if current.Status.IsTerminal() {
				return nil
			}

			now := s.now()
			note := "status tracking budget exhausted"
			current.Status = enums.OrderStatusRejected
			current.ExternalStatus = enums.ExternalStatusFailed
			current.ManualNote = &note
			current.CompletedAt = &now

			if _, err := s.deps.Wallet.Record(ctx, tx, wallet.RecordInput{
				TenantID:    current.TenantID,
				UserID:      current.UserID,
				OrderID:     &current.ID,
				Cause:       enums.WalletTxCauseOrderRejected,
				Amount:      current.SellPriceAmount,
				Currency:    current.SellPriceCurrency,
				Description: fmt.Sprintf("refund for order %s", current.ShortNo()),
			}); err != nil {
				return err
			}
			if err := repo.Update(ctx, current); err != nil {
				return err
			}
			err := repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
				TenantID: current.TenantID,
				OrderID:  current.ID,
				Action:   enums.DispatchActionPollSync,
				Result:   enums.DispatchResultFailed,
				Message:  note,
			})
			if err != nil {
				return err
			}
			s.deps.Metrics.IncExhausted()
			logCtx := s.deps.Logger.WithOrderID(ctx, current.ID.String())
			s.deps.Logger.Warn(logCtx, fmt.Sprintf("order %s dropped after %s without a vendor answer", current.ShortNo(), s.deps.Config.Budget))
			return s.deps.Chain.PropagateFrom(ctx, tx, current)
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func rejectionMessage(result *vendors.StatusResult) string {
	if result.Message != "" {
		return result.Message
	}
	return fmt.Sprintf("vendor reported %s", result.Status)
}

func failureMessage(err error) string {
	if typed := apperrors.As(err); typed != nil {
		return typed.Message()
	}
	if err != nil {
		return err.Error()
	}
	return "status lookup failed"
}
