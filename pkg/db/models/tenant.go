package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated reseller space. Every core entity is partitioned by
// tenant id; only the chain link crosses tenants.
type Tenant struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string    `gorm:"column:name;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
