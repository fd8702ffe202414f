package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, task models.DispatchTask) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&task).Error
}

func (r *Repository) PendingExistsTx(tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.DispatchTask{}).
		Where("order_id = ? AND status = ?", orderID, enums.DispatchTaskStatusPending).
		Count(&count).Error
	return count > 0, err
}

// Claim leases due pending tasks with SKIP LOCKED so concurrent workers never
// grab the same row. The lease is modeled by pushing run_after forward; a
// worker that dies mid-task lets the row come due again.
func (r *Repository) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.DispatchTask, error) {
	var rows []models.DispatchTask
	err := r.db.WithContext(ctx).Raw(`
		UPDATE dispatch_tasks
		SET run_after = ?, attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM dispatch_tasks
			WHERE status = ? AND run_after <= ?
			ORDER BY run_after ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		now.Add(lease), now, enums.DispatchTaskStatusPending, now, limit,
	).Scan(&rows).Error
	return rows, err
}

func (r *Repository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.DispatchTask{}).
		Where("id = ?", id).
		Update("status", enums.DispatchTaskStatusDone).Error
}

func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, runAfter time.Time, cause error) error {
	updates := map[string]any{
		"run_after": runAfter,
	}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	return r.db.WithContext(ctx).Model(&models.DispatchTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	updates := map[string]any{
		"status": enums.DispatchTaskStatusFailed,
	}
	if cause != nil {
		updates["last_error"] = cause.Error()
	}
	return r.db.WithContext(ctx).Model(&models.DispatchTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}
