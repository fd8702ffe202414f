package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

// Integration is a vendor binding owned by a tenant. Credentials is an
// opaque blob whose keys depend on ProviderType (kod/sifre for znet-style
// vendors, api_token for token vendors). Internal integrations instead
// carry the chain-forward target tenant and service user.
type Integration struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID     uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null;index"`
	Name         string             `gorm:"column:name;not null"`
	ProviderType enums.ProviderType `gorm:"column:provider_type;type:text;not null"`
	BaseURL      string             `gorm:"column:base_url"`
	Credentials  types.JSONMap      `gorm:"column:credentials;type:jsonb"`
	Enabled      bool               `gorm:"column:enabled;not null;default:true"`

	// Chain-forward binding, set only when ProviderType is internal.
	TargetTenantID *uuid.UUID `gorm:"column:target_tenant_id;type:uuid"`
	TargetUserID   *uuid.UUID `gorm:"column:target_user_id;type:uuid"`

	// Advisory caches refreshed best-effort from fetch_balance.
	Balance       *decimal.Decimal `gorm:"column:balance;type:decimal(20,2)"`
	Debt          *decimal.Decimal `gorm:"column:debt;type:decimal(20,2)"`
	BalanceSyncAt *time.Time       `gorm:"column:balance_sync_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
