package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// Package is a sellable digital good (top-up denomination, gift code tier).
// PublicCode is the tenant-independent identifier used to locate the same
// package in a chain-forward target tenant.
type Package struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID   uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index:idx_packages_tenant"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	PublicCode string          `gorm:"column:public_code;not null;index"`
	SellPrice  decimal.Decimal `gorm:"column:sell_price;type:decimal(20,2);not null"`
	Currency   enums.Currency  `gorm:"column:currency;type:text;not null;default:'TRY'"`
	Active     bool            `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
