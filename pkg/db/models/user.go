package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// User is a buyer inside a tenant. The balance column is the cached wallet
// position; the wallet_transactions ledger is the source of truth.
type User struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	Email     string          `gorm:"column:email;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null;default:0"`
	Currency  enums.Currency  `gorm:"column:currency;type:text;not null;default:'TRY'"`
	IsService bool            `gorm:"column:is_service;not null;default:false"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
