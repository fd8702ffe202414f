package models

import (
	"time"

	"github.com/google/uuid"
)

// PackageMapping translates one of our packages into the id the vendor's
// catalog uses. External dispatch fails without a row here.
type PackageMapping struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID          uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_package_mappings_scope"`
	PackageID         uuid.UUID `gorm:"column:package_id;type:uuid;not null;uniqueIndex:ux_package_mappings_scope"`
	IntegrationID     uuid.UUID `gorm:"column:integration_id;type:uuid;not null;uniqueIndex:ux_package_mappings_scope"`
	ProviderPackageID string    `gorm:"column:provider_package_id;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
