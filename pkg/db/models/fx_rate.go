package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FxRate is a point-in-time currency snapshot. The dispatcher reads the
// latest USD/TRY row when usd_cost_enforcement is on.
type FxRate struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Base      string          `gorm:"column:base;not null;index:idx_fx_rates_pair"`
	Quote     string          `gorm:"column:quote;not null;index:idx_fx_rates_pair"`
	Rate      decimal.Decimal `gorm:"column:rate;type:decimal(20,4);not null"`
	FetchedAt time.Time       `gorm:"column:fetched_at;not null;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
