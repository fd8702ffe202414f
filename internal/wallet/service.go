package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

// RecordInput captures one balance adjustment. Amount is the positive
// magnitude; the cause decides the direction.
type RecordInput struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	OrderID     *uuid.UUID
	Cause       enums.WalletTxCause
	Amount      decimal.Decimal
	Currency    enums.Currency
	Description string
	ActorID     *uuid.UUID
}

// Service appends ledger entries and maintains the cached user balance.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.WalletTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the wallet service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Record appends one ledger entry inside the caller's transaction. A second
// call with the same (user, order, cause) returns the existing entry and
// changes nothing; balances never double-move.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !input.Cause.IsValid() {
		return nil, fmt.Errorf("invalid wallet cause %q", input.Cause)
	}
	if input.Amount.IsNegative() {
		return nil, apperrors.New(apperrors.CodeInvariant, "wallet amount must be a positive magnitude")
	}

	repo := s.repo.WithTx(tx)

	// Order-less entries (deposits, corrections) have no idempotency key;
	// every call is a fresh movement.
	if input.OrderID != nil {
		if existing, err := repo.Find(ctx, input.UserID, input.OrderID, input.Cause); err == nil {
			return existing, nil
		} else if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	user, err := repo.LockUser(ctx, input.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
		}
		return nil, err
	}

	signed := input.Amount
	kind := input.Cause.Kind()
	if kind == enums.WalletTxKindDebit {
		if user.Balance.LessThan(input.Amount) {
			return nil, apperrors.New(apperrors.CodeStateConflict,
				fmt.Sprintf("insufficient balance: have %s, need %s", user.Balance, input.Amount))
		}
		signed = signed.Neg()
	}

	currency := input.Currency
	if currency == "" {
		currency = user.Currency
	}

	entry := &models.WalletTransaction{
		TenantID:      input.TenantID,
		UserID:        input.UserID,
		OrderID:       input.OrderID,
		Kind:          kind,
		Cause:         input.Cause,
		Amount:        signed,
		Currency:      currency,
		BalanceBefore: user.Balance,
		BalanceAfter:  user.Balance.Add(signed),
		Description:   input.Description,
		ActorID:       input.ActorID,
	}

	if err := repo.Insert(ctx, entry); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_wallet_tx_user_order_cause") {
			return repo.Find(ctx, input.UserID, input.OrderID, input.Cause)
		}
		return nil, err
	}

	if err := repo.UpdateUserBalance(ctx, input.UserID, entry.BalanceAfter); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id": input.UserID.String(),
		"cause":   input.Cause.String(),
		"amount":  signed.String(),
	})
	s.logg.Info(logCtx, "wallet entry recorded")
	return entry, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, fmt.Errorf("user id is required")
	}
	return s.repo.SumByUser(ctx, userID)
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
