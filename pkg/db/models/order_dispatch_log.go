package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/types"
)

// OrderDispatchLog is the append-only forensics trail for dispatch and
// chain-propagation activity. Origin names the upstream trigger for
// chain-propagated rows ("from:<leaf order id>").
type OrderDispatchLog struct {
	ID       uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;index"`
	OrderID  uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Action   enums.DispatchAction `gorm:"column:action;type:text;not null"`
	Result   enums.DispatchResult `gorm:"column:result;type:text;not null"`
	Message  string               `gorm:"column:message"`
	Origin   string               `gorm:"column:origin"`
	Payload  types.JSONMap        `gorm:"column:payload;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName pins the dispatch log table name.
func (OrderDispatchLog) TableName() string {
	return "order_dispatch_logs"
}
