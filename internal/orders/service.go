package orders

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/pagination"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DispatchEnqueuer queues the async dispatch attempt inside the creating
// transaction.
type DispatchEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, runAfter time.Time) error
}

// StatusPropagator mirrors a terminal transition up the forwarding chain.
// The chain engine satisfies this; it is optional so wiring stays acyclic.
type StatusPropagator interface {
	PropagateFrom(ctx context.Context, tx *gorm.DB, leaf *models.Order) error
}

// CreateInput is a buyer's fulfillment request.
type CreateInput struct {
	TenantID       uuid.UUID
	UserID         uuid.UUID
	PackageID      uuid.UUID
	Quantity       int
	UserIdentifier string
	ExtraField     *string
}

// StatusChangeInput is an operator's manual terminal decision on an order.
type StatusChangeInput struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
	Status   enums.OrderStatus
	Note     *string
	ActorID  *uuid.UUID
}

// Service owns order lifecycle operations outside the dispatcher itself:
// creation (with the upfront wallet charge and task enqueue), listing, the
// forensics trail, and the operator status override.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (ListResult, error)
	Logs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error)
	SetStatus(ctx context.Context, input StatusChangeInput) (*models.Order, error)
}

// ListResult is one page of orders plus the cursor for the next page.
// NextCursor is empty on the last page.
type ListResult struct {
	Orders     []models.Order
	NextCursor string
}

type service struct {
	repo       Repository
	tx         txRunner
	wallet     wallet.Service
	tasks      DispatchEnqueuer
	propagator StatusPropagator
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the order service. The propagator may be nil when chain
// propagation is wired later via SetPropagator.
func NewService(repo Repository, tx txRunner, walletSvc wallet.Service, tasks DispatchEnqueuer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("dispatch enqueuer is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		wallet: walletSvc,
		tasks:  tasks,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// SetPropagator binds the chain engine after construction.
func SetPropagator(svc Service, propagator StatusPropagator) {
	if impl, ok := svc.(*service); ok {
		impl.propagator = propagator
	}
}

// Create persists a pending order, charges the buyer's wallet upfront, and
// queues the async dispatch attempt. Everything happens in one transaction;
// an insufficient charge or queue failure leaves no order behind.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.TenantID == uuid.Nil || input.UserID == uuid.Nil || input.PackageID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "tenant, user and package are required")
	}
	if input.UserIdentifier == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "user identifier is required")
	}
	if input.Quantity <= 0 {
		input.Quantity = 1
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		pkg, err := repo.FindPackage(ctx, input.TenantID, input.PackageID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "package not found")
			}
			return err
		}
		if !pkg.Active {
			return apperrors.New(apperrors.CodeStateConflict, "package is not sellable")
		}

		orderNo, err := repo.NextOrderNo(ctx, input.TenantID)
		if err != nil {
			return err
		}

		total := pkg.SellPrice.Mul(decimal.NewFromInt(int64(input.Quantity)))
		order = &models.Order{
			ID:                uuid.New(),
			OrderNo:           orderNo,
			TenantID:          input.TenantID,
			UserID:            input.UserID,
			PackageID:         pkg.ID,
			ProductID:         pkg.ProductID,
			Quantity:          input.Quantity,
			UserIdentifier:    input.UserIdentifier,
			ExtraField:        input.ExtraField,
			SellPriceAmount:   total,
			SellPriceCurrency: pkg.Currency,
			Status:            enums.OrderStatusPending,
			ExternalStatus:    enums.ExternalStatusNotSent,
			Mode:              enums.DispatchModeManual,
		}
		if err := repo.Create(ctx, order); err != nil {
			return err
		}

		if _, err := s.wallet.Record(ctx, tx, wallet.RecordInput{
			TenantID:    input.TenantID,
			UserID:      input.UserID,
			OrderID:     &order.ID,
			Cause:       enums.WalletTxCauseOrderApproved,
			Amount:      total,
			Currency:    pkg.Currency,
			Description: fmt.Sprintf("charge for order %s", order.ShortNo()),
		}); err != nil {
			return err
		}

		return s.tasks.Enqueue(ctx, tx, input.TenantID, order.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, tenantID, orderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (ListResult, error) {
	limit := pagination.NormalizeLimit(filter.Limit)
	filter.Limit = pagination.LimitWithBuffer(filter.Limit)

	rows, err := s.repo.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{Orders: rows}
	if len(rows) > limit {
		result.Orders = rows[:limit]
		last := result.Orders[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

func (s *service) Logs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error) {
	return s.repo.ListDispatchLogs(ctx, tenantID, orderID, limit)
}

// SetStatus lets an operator force a terminal decision. Approval locks the
// economics; rejection refunds the buyer. Either way the transition feeds
// chain propagation so upstream forwarded orders mirror it.
func (s *service) SetStatus(ctx context.Context, input StatusChangeInput) (*models.Order, error) {
	if !input.Status.IsTerminal() {
		return nil, apperrors.New(apperrors.CodeValidation, "target status must be approved or rejected")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.LockForDispatch(ctx, input.OrderID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "order not found")
			}
			return err
		}
		if order.TenantID != input.TenantID {
			return apperrors.New(apperrors.CodeForbidden, "order does not belong to tenant")
		}
		if order.Status == input.Status {
			updated = order
			return nil
		}
		if order.Status.IsTerminal() {
			return apperrors.New(apperrors.CodeStateConflict, "order already finalized")
		}

		now := s.now()
		order.Status = input.Status
		if input.Note != nil {
			order.ManualNote = input.Note
		}
		switch input.Status {
		case enums.OrderStatusApproved:
			order.ApprovedAt = &now
			order.CompletedAt = &now
			order.FxLocked = true
			if !order.ExternalStatus.IsTerminal() {
				order.ExternalStatus = enums.ExternalStatusCompleted
			}
		case enums.OrderStatusRejected:
			order.CompletedAt = &now
			if _, err := s.wallet.Record(ctx, tx, wallet.RecordInput{
				TenantID:    order.TenantID,
				UserID:      order.UserID,
				OrderID:     &order.ID,
				Cause:       enums.WalletTxCauseOrderRejected,
				Amount:      order.SellPriceAmount,
				Currency:    order.SellPriceCurrency,
				Description: fmt.Sprintf("refund for order %s", order.ShortNo()),
				ActorID:     input.ActorID,
			}); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, order); err != nil {
			return err
		}

		entry := &models.OrderDispatchLog{
			TenantID: order.TenantID,
			OrderID:  order.ID,
			Action:   enums.DispatchActionStatusChange,
			Result:   enums.DispatchResultOK,
			Message:  fmt.Sprintf("operator set status to %s", input.Status),
			Payload:  types.JSONMap{"status": input.Status.String()},
		}
		if input.ActorID != nil {
			entry.Payload["actor_id"] = input.ActorID.String()
		}
		if err := repo.InsertDispatchLog(ctx, entry); err != nil {
			return err
		}

		if s.propagator != nil {
			if err := s.propagator.PropagateFrom(ctx, tx, order); err != nil {
				return err
			}
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, updated.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("order status set to %s", updated.Status))
	return updated, nil
}
