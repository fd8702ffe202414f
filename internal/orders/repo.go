package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/pagination"
)

// ListFilter narrows order listings. Cursor takes precedence over Offset
// when both are present.
type ListFilter struct {
	Status         enums.OrderStatus
	ExternalStatus enums.ExternalStatus
	UserID         *uuid.UUID
	Limit          int
	Offset         int
	Cursor         *pagination.Cursor
}

// Repository persists orders and their dispatch-log trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	FindPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error)
	FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
	LockForDispatch(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindParentOf(ctx context.Context, child *models.Order) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	NextOrderNo(ctx context.Context, tenantID uuid.UUID) (int64, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]models.Order, error)
	ListPollable(ctx context.Context, oldest, newest time.Time, limit int) ([]models.Order, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	InsertDispatchLog(ctx context.Context, entry *models.OrderDispatchLog) error
	ListDispatchLogs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		First(&order, "id = ? AND tenant_id = ?", orderID, tenantID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindPackage(ctx context.Context, tenantID, packageID uuid.UUID) (*models.Package, error) {
	var pkg models.Package
	err := r.db.WithContext(ctx).
		First(&pkg, "id = ? AND tenant_id = ?", packageID, tenantID).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *repository) FindTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		First(&tenant, "id = ?", tenantID).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// LockForDispatch takes the order's row lock without waiting. A competing
// dispatcher holding the lock surfaces as a lock_not_available error the
// caller translates into a "locked" outcome.
func (r *repository) LockForDispatch(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindParentOf walks one hop up the forwarding chain. The parent lives in a
// different tenant and stores the child's id as its external reference, so
// this is the one deliberately tenant-unscoped order lookup. The row is
// locked because the caller is about to mirror a terminal status onto it.
func (r *repository) FindParentOf(ctx context.Context, child *models.Order) (*models.Order, error) {
	var parent models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_order_id = ? AND mode = ?", child.ID.String(), enums.DispatchModeChainForward).
		First(&parent).Error
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

func (r *repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// NextOrderNo hands out the tenant's next monotonic order number. Callers
// run it inside the insert transaction so concurrent creators serialize on
// the max row.
func (r *repository) NextOrderNo(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).
		Raw("SELECT COALESCE(MAX(order_no), 0) + 1 FROM orders WHERE tenant_id = ?", tenantID).
		Scan(&next).Error
	return next, err
}

func (r *repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ExternalStatus != "" {
		query = query.Where("external_status = ?", filter.ExternalStatus)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	if filter.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	} else if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var orders []models.Order
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPollable selects external orders still worth polling: pending, a
// non-terminal external status, a real vendor reference, sent inside the
// [oldest, newest] window. Chain-forward stubs never match because their
// mode excludes them.
func (r *repository) ListPollable(ctx context.Context, oldest, newest time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Where("external_status IN ?", []enums.ExternalStatus{enums.ExternalStatusSent, enums.ExternalStatusProcessing}).
		Where("mode <> ?", enums.DispatchModeChainForward).
		Where("external_order_id IS NOT NULL AND external_order_id <> ''").
		Where("sent_at >= ? AND sent_at <= ?", oldest, newest).
		Order("sent_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListExpired selects external orders whose tracking budget ran out: still
// pending and in-flight, but sent before the cutoff.
func (r *repository) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Where("external_status IN ?", []enums.ExternalStatus{enums.ExternalStatusSent, enums.ExternalStatusProcessing}).
		Where("mode <> ?", enums.DispatchModeChainForward).
		Where("external_order_id IS NOT NULL AND external_order_id <> ''").
		Where("sent_at < ?", before).
		Order("sent_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) InsertDispatchLog(ctx context.Context, entry *models.OrderDispatchLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListDispatchLogs(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderDispatchLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.OrderDispatchLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
