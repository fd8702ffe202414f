package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// DispatchTask is a queued request to run the dispatcher for one order.
// Rows are written in the same transaction as the order change that wants
// the dispatch, then claimed by the worker with SKIP LOCKED.
type DispatchTask struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID                `gorm:"column:tenant_id;type:uuid;not null"`
	OrderID   uuid.UUID                `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_dispatch_tasks_order_pending,where:status = 'pending'"`
	Status    enums.DispatchTaskStatus `gorm:"column:status;type:text;not null;default:'pending';index:idx_dispatch_tasks_status_run_after"`
	Attempts  int                      `gorm:"column:attempts;not null;default:0"`
	RunAfter  time.Time                `gorm:"column:run_after;not null;index:idx_dispatch_tasks_status_run_after"`
	LastError *string                  `gorm:"column:last_error"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the task queue table name.
func (DispatchTask) TableName() string {
	return "dispatch_tasks"
}
