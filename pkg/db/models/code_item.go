package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// CodeItem is a single redemption code. Lifecycle: available -> reserved
// (row-locked allocation) -> used on commit, or back to available on
// release. Used is terminal.
type CodeItem struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index"`
	CodeGroupID uuid.UUID            `gorm:"column:code_group_id;type:uuid;not null;index:idx_code_items_group_status;uniqueIndex:ux_code_items_group_pin"`
	Status      enums.CodeItemStatus `gorm:"column:status;type:text;not null;default:'available';index:idx_code_items_group_status"`
	Pin         string               `gorm:"column:pin;not null;uniqueIndex:ux_code_items_group_pin"`
	Serial      *string              `gorm:"column:serial"`
	Cost        decimal.Decimal      `gorm:"column:cost;type:decimal(20,2);not null;default:0"`
	OrderID     *uuid.UUID           `gorm:"column:order_id;type:uuid;index"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// RedemptionValue is what the buyer receives: the pin, with the serial
// appended when present.
func (c CodeItem) RedemptionValue() string {
	if c.Serial != nil && *c.Serial != "" {
		return c.Pin + " / " + *c.Serial
	}
	return c.Pin
}
