package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// PackageRouting is the per-tenant fulfillment policy for a package.
// Lowest priority wins when several active rows match.
type PackageRouting struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID     uuid.UUID                 `gorm:"column:tenant_id;type:uuid;not null;index:idx_package_routings_tenant_package"`
	PackageID    uuid.UUID                 `gorm:"column:package_id;type:uuid;not null;index:idx_package_routings_tenant_package"`
	Mode         enums.RoutingMode         `gorm:"column:mode;type:text;not null"`
	ProviderType enums.RoutingProviderType `gorm:"column:provider_type;type:text;not null"`

	PrimaryProviderID  *uuid.UUID `gorm:"column:primary_provider_id;type:uuid"`
	FallbackProviderID *uuid.UUID `gorm:"column:fallback_provider_id;type:uuid"`
	CodeGroupID        *uuid.UUID `gorm:"column:code_group_id;type:uuid"`

	Priority int  `gorm:"column:priority;not null;default:1"`
	IsActive bool `gorm:"column:is_active;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Validate enforces the routing integrity constraints.
func (r PackageRouting) Validate() error {
	if r.Priority <= 0 {
		return errRoutingPriority
	}
	if r.Mode == enums.RoutingModeAuto {
		switch {
		case r.ProviderType == enums.RoutingProviderManual:
			return errRoutingAutoManual
		case r.ProviderType == enums.RoutingProviderExternal && r.PrimaryProviderID == nil:
			return errRoutingMissingProvider
		case r.ProviderType.IsCodeBacked() && r.CodeGroupID == nil:
			return errRoutingMissingCodeGroup
		}
	}
	return nil
}
