package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type fakeRepository struct {
	lockUserFn func(ctx context.Context, userID uuid.UUID) (*models.User, error)
	insertFn   func(ctx context.Context, entry *models.WalletTransaction) error
	findFn     func(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, cause enums.WalletTxCause) (*models.WalletTransaction, error)
	updateFn   func(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if f.lockUserFn != nil {
		return f.lockUserFn(ctx, userID)
	}
	return &models.User{ID: userID, Balance: decimal.NewFromInt(100), Currency: enums.CurrencyTRY}, nil
}

func (f *fakeRepository) Insert(ctx context.Context, entry *models.WalletTransaction) error {
	if f.insertFn != nil {
		return f.insertFn(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) Find(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, cause enums.WalletTxCause) (*models.WalletTransaction, error) {
	if f.findFn != nil {
		return f.findFn(ctx, userID, orderID, cause)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) UpdateUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, userID, balance)
	}
	return nil
}

func (f *fakeRepository) SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	return nil, nil
}

func newWalletService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func stubTx() *gorm.DB {
	return &gorm.DB{}
}

func TestRecord_DebitOnApproval(t *testing.T) {
	repo := &fakeRepository{}
	var inserted *models.WalletTransaction
	var cachedBalance decimal.Decimal
	repo.insertFn = func(ctx context.Context, entry *models.WalletTransaction) error {
		inserted = entry
		return nil
	}
	repo.updateFn = func(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
		cachedBalance = balance
		return nil
	}

	svc := newWalletService(t, repo)
	orderID := uuid.New()
	entry, err := svc.Record(context.Background(), stubTx(), RecordInput{
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		OrderID:  &orderID,
		Cause:    enums.WalletTxCauseOrderApproved,
		Amount:   decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if inserted == nil {
		t.Fatal("expected ledger entry to be inserted")
	}
	if entry.Kind != enums.WalletTxKindDebit {
		t.Fatalf("approval should debit, got %s", entry.Kind)
	}
	if !entry.Amount.Equal(decimal.NewFromInt(-25)) {
		t.Fatalf("expected signed amount -25, got %s", entry.Amount)
	}
	if !entry.BalanceAfter.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("expected balance after 75, got %s", entry.BalanceAfter)
	}
	if !cachedBalance.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("cached balance should track ledger, got %s", cachedBalance)
	}
}

func TestRecord_CreditOnRejection(t *testing.T) {
	repo := &fakeRepository{}
	svc := newWalletService(t, repo)

	orderID := uuid.New()
	entry, err := svc.Record(context.Background(), stubTx(), RecordInput{
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		OrderID:  &orderID,
		Cause:    enums.WalletTxCauseOrderRejected,
		Amount:   decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if entry.Kind != enums.WalletTxKindCredit {
		t.Fatalf("rejection should credit, got %s", entry.Kind)
	}
	if !entry.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected signed amount 40, got %s", entry.Amount)
	}
	if !entry.BalanceAfter.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected balance after 140, got %s", entry.BalanceAfter)
	}
}

func TestRecord_IdempotentOnExistingEntry(t *testing.T) {
	existing := &models.WalletTransaction{ID: uuid.New(), Amount: decimal.NewFromInt(-25)}
	repo := &fakeRepository{
		findFn: func(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, cause enums.WalletTxCause) (*models.WalletTransaction, error) {
			return existing, nil
		},
		insertFn: func(ctx context.Context, entry *models.WalletTransaction) error {
			t.Fatal("insert must not run when the entry already exists")
			return nil
		},
	}
	svc := newWalletService(t, repo)

	orderID := uuid.New()
	entry, err := svc.Record(context.Background(), stubTx(), RecordInput{
		UserID:  uuid.New(),
		OrderID: &orderID,
		Cause:   enums.WalletTxCauseOrderApproved,
		Amount:  decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if entry != existing {
		t.Fatal("expected existing entry to be returned")
	}
}

func TestRecord_RejectsNegativeMagnitude(t *testing.T) {
	svc := newWalletService(t, &fakeRepository{})

	_, err := svc.Record(context.Background(), stubTx(), RecordInput{
		UserID: uuid.New(),
		Cause:  enums.WalletTxCauseOrderApproved,
		Amount: decimal.NewFromInt(-5),
	})
	if err == nil {
		t.Fatal("negative magnitude must be rejected")
	}
}

func TestRecord_RequiresTransaction(t *testing.T) {
	svc := newWalletService(t, &fakeRepository{})

	_, err := svc.Record(context.Background(), nil, RecordInput{
		UserID: uuid.New(),
		Cause:  enums.WalletTxCauseOrderApproved,
		Amount: decimal.NewFromInt(5),
	})
	if err == nil {
		t.Fatal("missing transaction must be rejected")
	}
}

func TestRecord_RejectsOverdraft(t *testing.T) {
	repo := &fakeRepository{
		lockUserFn: func(ctx context.Context, userID uuid.UUID) (*models.User, error) {
			return &models.User{ID: userID, Balance: decimal.NewFromInt(10), Currency: enums.CurrencyTRY}, nil
		},
		insertFn: func(ctx context.Context, entry *models.WalletTransaction) error {
			t.Fatal("overdrawing debit must not insert a ledger entry")
			return nil
		},
	}
	svc := newWalletService(t, repo)

	orderID := uuid.New()
	_, err := svc.Record(context.Background(), stubTx(), RecordInput{
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		OrderID:  &orderID,
		Cause:    enums.WalletTxCauseOrderApproved,
		Amount:   decimal.NewFromInt(25),
	})
	if !apperrors.HasCode(err, apperrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on overdraft, got %v", err)
	}
}

func TestRecord_OrderlessEntriesAreNotDeduplicated(t *testing.T) {
	inserted := 0
	repo := &fakeRepository{
		findFn: func(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, cause enums.WalletTxCause) (*models.WalletTransaction, error) {
			t.Fatal("order-less entries must skip the idempotency lookup")
			return nil, nil
		},
		insertFn: func(ctx context.Context, entry *models.WalletTransaction) error {
			inserted++
			return nil
		},
	}
	svc := newWalletService(t, repo)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := svc.Record(context.Background(), stubTx(), RecordInput{
			TenantID: uuid.New(),
			UserID:   userID,
			Cause:    enums.WalletTxCauseDeposit,
			Amount:   decimal.NewFromInt(50),
		}); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}
	if inserted != 2 {
		t.Fatalf("two deposits should insert two entries, got %d", inserted)
	}
}
