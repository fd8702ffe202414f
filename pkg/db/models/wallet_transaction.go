package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// WalletTransaction is an append-only ledger entry. Amount is stored
// signed (positive = credit) so that summing the column from genesis
// reproduces the user's balance. (user_id, order_id, cause) is unique,
// which makes every order-driven adjustment idempotent.
type WalletTransaction struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID      uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallet_tx_user_order_cause"`
	OrderID       *uuid.UUID          `gorm:"column:order_id;type:uuid;uniqueIndex:ux_wallet_tx_user_order_cause"`
	Kind          enums.WalletTxKind  `gorm:"column:kind;type:text;not null"`
	Cause         enums.WalletTxCause `gorm:"column:cause;type:text;not null;uniqueIndex:ux_wallet_tx_user_order_cause"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:decimal(20,2);not null"`
	Currency      enums.Currency      `gorm:"column:currency;type:text;not null"`
	BalanceBefore decimal.Decimal     `gorm:"column:balance_before;type:decimal(20,2);not null"`
	BalanceAfter  decimal.Decimal     `gorm:"column:balance_after;type:decimal(20,2);not null"`
	Description   string              `gorm:"column:description"`
	ActorID       *uuid.UUID          `gorm:"column:actor_id;type:uuid"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName pins the ledger table name.
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
