package codes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// Repository manages persistence for code groups and items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindGroup(ctx context.Context, tenantID, groupID uuid.UUID) (*models.CodeGroup, error)
	LockNextAvailable(ctx context.Context, groupID uuid.UUID) (*models.CodeItem, error)
	TransitionStatus(ctx context.Context, itemID uuid.UUID, from, to enums.CodeItemStatus, orderID *uuid.UUID) (int64, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.CodeItem, error)
	CountByStatus(ctx context.Context, groupID uuid.UUID, status enums.CodeItemStatus) (int64, error)
	InsertIgnoreDuplicates(ctx context.Context, items []models.CodeItem) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a code inventory repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindGroup(ctx context.Context, tenantID, groupID uuid.UUID) (*models.CodeGroup, error) {
	var group models.CodeGroup
	err := r.db.WithContext(ctx).
		First(&group, "id = ? AND tenant_id = ?", groupID, tenantID).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// LockNextAvailable picks the oldest available code under FOR UPDATE SKIP
// LOCKED so concurrent dispatchers never reserve the same item.
func (r *repository) LockNextAvailable(ctx context.Context, groupID uuid.UUID) (*models.CodeItem, error) {
	var item models.CodeItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("code_group_id = ? AND status = ?", groupID, enums.CodeItemStatusAvailable).
		Order("created_at ASC").
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// TransitionStatus moves an item between lifecycle states with the source
// state guarded in the WHERE clause. Zero rows affected means the guard
// failed and the caller is looking at a stale item. The move to used keeps
// the order binding stamped at reservation time.
func (r *repository) TransitionStatus(ctx context.Context, itemID uuid.UUID, from, to enums.CodeItemStatus, orderID *uuid.UUID) (int64, error) {
	updates := map[string]any{"status": to}
	if to != enums.CodeItemStatusUsed {
		updates["order_id"] = orderID
	}
	result := r.db.WithContext(ctx).Model(&models.CodeItem{}).
		Where("id = ? AND status = ?", itemID, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.CodeItem, error) {
	var item models.CodeItem
	err := r.db.WithContext(ctx).
		First(&item, "order_id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CountByStatus(ctx context.Context, groupID uuid.UUID, status enums.CodeItemStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CodeItem{}).
		Where("code_group_id = ? AND status = ?", groupID, status).
		Count(&count).Error
	return count, err
}

// InsertIgnoreDuplicates bulk-inserts items, silently skipping pins the
// group already holds.
func (r *repository) InsertIgnoreDuplicates(ctx context.Context, items []models.CodeItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code_group_id"}, {Name: "pin"}},
			DoNothing: true,
		}).
		Create(&items)
	return result.RowsAffected, result.Error
}
