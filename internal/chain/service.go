package chain

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/metrics"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

// Service walks a forwarding chain upward from a terminal leaf, mirroring
// the outcome onto every ancestor and settling each hop's wallet.
type Service interface {
	PropagateFrom(ctx context.Context, tx *gorm.DB, leaf *models.Order) error
}

type service struct {
	repo     orders.Repository
	wallet   wallet.Service
	flags    flags.Service
	metrics  *metrics.DispatchMetrics
	logg     *logger.Logger
	maxDepth int
	now      func() time.Time
}

// NewService wires the chain propagator. metrics may be nil.
func NewService(repo orders.Repository, walletSvc wallet.Service, flagSvc flags.Service, m *metrics.DispatchMetrics, logg *logger.Logger, maxDepth int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if flagSvc == nil {
		return nil, fmt.Errorf("flags service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if maxDepth <= 0 {
		maxDepth = 16
	}
	return &service{
		repo:     repo,
		wallet:   walletSvc,
		flags:    flagSvc,
		metrics:  m,
		logg:     logg,
		maxDepth: maxDepth,
		now:      time.Now,
	}, nil
}

// PropagateFrom mirrors the leaf's terminal outcome onto each ancestor,
// locking one parent row at a time. It runs inside the caller's transaction
// and is safe to re-run: already-matching ancestors are skipped and wallet
// settlements are keyed by (user, order, cause).
func (s *service) PropagateFrom(ctx context.Context, tx *gorm.DB, leaf *models.Order) error {
	if leaf == nil || !leaf.Status.IsTerminal() {
		return nil
	}
	snapshot := s.flags.Snapshot(ctx)
	if !snapshot.ChainStatusPropagation {
		logCtx := s.logg.WithOrderID(ctx, leaf.ID.String())
		s.logg.Debug(logCtx, "chain propagation disabled, leaving ancestors untouched")
		return nil
	}

	repo := s.repo.WithTx(tx)
	origin := "from:" + leaf.ID.String()

	current := leaf
	hops := 0
	for hops < s.maxDepth {
		parent, err := repo.FindParentOf(ctx, current)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				if !current.IsRoot() {
					if err := s.recordBrokenLink(ctx, repo, current, origin); err != nil {
						return err
					}
				}
				break
			}
			return err
		}
		hops++

		if err := s.mirror(ctx, repo, tx, parent, leaf, origin); err != nil {
			return err
		}
		current = parent
	}
	if hops == s.maxDepth {
		logCtx := s.logg.WithOrderID(ctx, leaf.ID.String())
		s.logg.Warn(logCtx, fmt.Sprintf("chain walk stopped at depth cap %d", s.maxDepth))
	}

	s.metrics.ObserveChainHops(hops)
	return nil
}

// mirror applies the leaf's terminal outcome to one ancestor.
func (s *service) mirror(ctx context.Context, repo orders.Repository, tx *gorm.DB, parent, leaf *models.Order, origin string) error {
	target := leaf.Status
	if parent.Status == target && parent.ExternalStatus.IsTerminal() {
		return nil
	}
	if parent.Status.IsTerminal() {
		// A conflicting terminal decision was already taken upstream.
		// Never overwrite it; leave a trace instead.
		logCtx := s.logg.WithOrderID(ctx, parent.ID.String())
		s.logg.Warn(logCtx, fmt.Sprintf("ancestor already %s, not mirroring %s", parent.Status, target))
		return repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
			TenantID: parent.TenantID,
			OrderID:  parent.ID,
			Action:   enums.DispatchActionChainStatus,
			Result:   enums.DispatchResultSkipped,
			Message:  fmt.Sprintf("ancestor already terminal as %s", parent.Status),
			Origin:   origin,
		})
	}

	now := s.now()
	parent.Status = target
	parent.LastSyncAt = &now
	if leaf.ManualNote != nil && *leaf.ManualNote != "" {
		parent.ManualNote = leaf.ManualNote
	}

	switch target {
	case enums.OrderStatusApproved:
		parent.ExternalStatus = enums.ExternalStatusCompleted
		parent.ApprovedAt = &now
		parent.CompletedAt = &now
		parent.FxLocked = true
	case enums.OrderStatusRejected:
		parent.ExternalStatus = enums.ExternalStatusRejected
		parent.CompletedAt = &now
		if _, err := s.wallet.Record(ctx, tx, wallet.RecordInput{
			TenantID:    parent.TenantID,
			UserID:      parent.UserID,
			OrderID:     &parent.ID,
			Cause:       enums.WalletTxCauseOrderRejected,
			Amount:      parent.SellPriceAmount,
			Currency:    parent.SellPriceCurrency,
			Description: fmt.Sprintf("refund for order %s", parent.ShortNo()),
		}); err != nil {
			return err
		}
	}

	if err := repo.Update(ctx, parent); err != nil {
		return err
	}

	return repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: parent.TenantID,
		OrderID:  parent.ID,
		Action:   enums.DispatchActionChainStatus,
		Result:   enums.DispatchResultOK,
		Message:  fmt.Sprintf("mirrored %s from downstream", target),
		Origin:   origin,
		Payload: types.JSONMap{
			"status":          target.String(),
			"external_status": parent.ExternalStatus.String(),
		},
	})
}

// recordBrokenLink documents an orphaned non-root order whose parent row
// vanished. The walk stops here; an operator has to repair the chain.
func (s *service) recordBrokenLink(ctx context.Context, repo orders.Repository, current *models.Order, origin string) error {
	logCtx := s.logg.WithOrderID(ctx, current.ID.String())
	s.logg.Warn(logCtx, "forwarding chain broken, parent order missing")
	return repo.InsertDispatchLog(ctx, &models.OrderDispatchLog{
		TenantID: current.TenantID,
		OrderID:  current.ID,
		Action:   enums.DispatchActionChainBroken,
		Result:   enums.DispatchResultFailed,
		Message:  "parent order referencing this order was not found",
		Origin:   origin,
	})
}
