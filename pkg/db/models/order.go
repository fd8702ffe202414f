package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// Order is a fulfillment request from a buyer within a tenant.
//
// Status is the buyer-facing lifecycle (pending/approved/rejected) and
// ExternalStatus tracks the fulfillment target. The pair never combines
// approved with a non-terminal external status; the dispatcher asserts
// that before every commit.
type Order struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNo  int64     `gorm:"column:order_no;not null;index:idx_orders_tenant_no"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;index:idx_orders_tenant_no"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	PackageID uuid.UUID `gorm:"column:package_id;type:uuid;not null"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int       `gorm:"column:quantity;not null;default:1"`

	UserIdentifier string  `gorm:"column:user_identifier;not null"`
	ExtraField     *string `gorm:"column:extra_field"`

	SellPriceAmount   decimal.Decimal  `gorm:"column:sell_price_amount;type:decimal(20,2);not null"`
	SellPriceCurrency enums.Currency   `gorm:"column:sell_price_currency;type:text;not null;default:'TRY'"`
	CostPriceUSD      *decimal.Decimal `gorm:"column:cost_price_usd;type:decimal(20,4)"`
	FxUsdTryAtOrder   *decimal.Decimal `gorm:"column:fx_usd_try_at_order;type:decimal(20,4)"`
	FxLocked          bool             `gorm:"column:fx_locked;not null;default:false"`

	Status         enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	ExternalStatus enums.ExternalStatus `gorm:"column:external_status;type:text;not null;default:'not_sent'"`
	Mode           enums.DispatchMode   `gorm:"column:mode;type:text;not null;default:'MANUAL'"`

	ProviderID        *uuid.UUID `gorm:"column:provider_id;type:uuid;index"`
	ExternalOrderID   *string    `gorm:"column:external_order_id;index"`
	ProviderReference *string    `gorm:"column:provider_reference"`
	ManualNote        *string    `gorm:"column:manual_note"`
	LastMessage       *string    `gorm:"column:last_message"`
	PollAttempts      int        `gorm:"column:poll_attempts;not null;default:0"`

	RootOrderID *uuid.UUID     `gorm:"column:root_order_id;type:uuid;index"`
	ChainPath   pq.StringArray `gorm:"column:chain_path;type:text[]"`

	SentAt      *time.Time `gorm:"column:sent_at;index"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	LastSyncAt  *time.Time `gorm:"column:last_sync_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ChainForwardSentinel is the display value derived for chain-forwarded
// orders where a vendor integration id would otherwise appear.
const ChainForwardSentinel = "CHAIN_FORWARD"

// ShortNo is the display form of the order number (hex suffix).
func (o Order) ShortNo() string {
	return fmt.Sprintf("#%X", o.OrderNo)
}

// IsRoot reports whether this order is the one the end-buyer created.
func (o Order) IsRoot() bool {
	return o.RootOrderID == nil || *o.RootOrderID == o.ID
}

// IsChainForwarded reports whether fulfillment was delegated to a child
// order in another tenant.
func (o Order) IsChainForwarded() bool {
	return o.Mode == enums.DispatchModeChainForward
}

// ProviderDisplay derives the provider binding shown to operators. Mode is
// authoritative; the sentinel is never read back for branching.
func (o Order) ProviderDisplay() string {
	if o.IsChainForwarded() {
		return ChainForwardSentinel
	}
	if o.ProviderID != nil {
		return o.ProviderID.String()
	}
	return ""
}

// HasExternalReference reports whether a non-stub vendor reference exists.
// Chain-forward stubs store the child order id, not a vendor reference.
func (o Order) HasExternalReference() bool {
	return o.ExternalOrderID != nil && *o.ExternalOrderID != "" && !o.IsChainForwarded()
}

// RootID resolves the root order id, treating a nil column as self-root.
func (o Order) RootID() uuid.UUID {
	if o.RootOrderID != nil {
		return *o.RootOrderID
	}
	return o.ID
}
