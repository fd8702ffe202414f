package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// Repository manages persistence for the wallet ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Insert(ctx context.Context, entry *models.WalletTransaction) error
	Find(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, cause enums.WalletTxCause) (*models.WalletTransaction, error)
	UpdateUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
	SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockUser loads the user row under FOR UPDATE so concurrent adjustments
// serialize per user.
func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) Insert(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Find(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, cause enums.WalletTxCause) (*models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND cause = ?", userID, cause)
	if orderID != nil {
		query = query.Where("order_id = ?", *orderID)
	} else {
		query = query.Where("order_id IS NULL")
	}
	var entry models.WalletTransaction
	if err := query.First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) UpdateUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", balance).Error
}

// SumByUser recomputes the balance from genesis. Used by reconciliation,
// not by the hot path.
func (r *repository) SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("user_id = ?", userID).
		Select("CAST(COALESCE(SUM(amount), 0) AS TEXT)").
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
