package codes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	apperrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

// Service manages the pre-loaded code inventory.
type Service interface {
	Allocate(ctx context.Context, tx *gorm.DB, groupID, orderID uuid.UUID) (*models.CodeItem, error)
	Commit(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error
	ItemForOrder(ctx context.Context, orderID uuid.UUID) (*models.CodeItem, error)
	Available(ctx context.Context, groupID uuid.UUID) (int64, error)
	Ingest(ctx context.Context, tx *gorm.DB, input IngestInput) (IngestResult, error)
}

// IngestInput is a bulk upload of raw code lines into one group.
type IngestInput struct {
	TenantID uuid.UUID
	GroupID  uuid.UUID
	Lines    []string
}

// IngestResult summarizes a bulk upload.
type IngestResult struct {
	Inserted int
	Skipped  int
	Rejected []string
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the code inventory service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("codes repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Allocate reserves the oldest available code in the group for the order.
// Runs inside the dispatch transaction; the reservation dies with a
// rollback.
func (s *service) Allocate(ctx context.Context, tx *gorm.DB, groupID, orderID uuid.UUID) (*models.CodeItem, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	item, err := repo.LockNextAvailable(ctx, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeCodesExhausted, "code group has no available items")
		}
		return nil, err
	}

	rows, err := repo.TransitionStatus(ctx, item.ID, enums.CodeItemStatusAvailable, enums.CodeItemStatusReserved, &orderID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, apperrors.New(apperrors.CodeInvariant, "reserved code changed state under lock")
	}

	item.Status = enums.CodeItemStatusReserved
	item.OrderID = &orderID
	return item, nil
}

// Commit burns a reserved code. Used is terminal.
func (s *service) Commit(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	rows, err := s.repo.WithTx(tx).TransitionStatus(ctx, itemID, enums.CodeItemStatusReserved, enums.CodeItemStatusUsed, nil)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "code is not reserved")
	}
	return nil
}

// Release returns a reserved code to the pool, e.g. after an order is
// rejected before delivery.
func (s *service) Release(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	rows, err := s.repo.WithTx(tx).TransitionStatus(ctx, itemID, enums.CodeItemStatusReserved, enums.CodeItemStatusAvailable, nil)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "code is not reserved")
	}
	return nil
}

func (s *service) ItemForOrder(ctx context.Context, orderID uuid.UUID) (*models.CodeItem, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.FindByOrder(ctx, orderID)
}

func (s *service) Available(ctx context.Context, groupID uuid.UUID) (int64, error) {
	if groupID == uuid.Nil {
		return 0, fmt.Errorf("group id is required")
	}
	return s.repo.CountByStatus(ctx, groupID, enums.CodeItemStatusAvailable)
}

// Ingest parses "pin[,serial][,cost]" lines and loads them into the group.
// Duplicate pins inside the group are skipped, malformed lines are
// reported back, and the batch is transactional.
func (s *service) Ingest(ctx context.Context, tx *gorm.DB, input IngestInput) (IngestResult, error) {
	var result IngestResult
	if tx == nil {
		return result, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	group, err := repo.FindGroup(ctx, input.TenantID, input.GroupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return result, apperrors.New(apperrors.CodeNotFound, "code group not found")
		}
		return result, err
	}
	if !group.Active {
		return result, apperrors.New(apperrors.CodeStateConflict, "code group is inactive")
	}

	items := make([]models.CodeItem, 0, len(input.Lines))
	seen := make(map[string]struct{}, len(input.Lines))
	for _, line := range input.Lines {
		item, err := parseCodeLine(line)
		if err != nil {
			result.Rejected = append(result.Rejected, strings.TrimSpace(line))
			continue
		}
		if item == nil {
			continue
		}
		if _, dup := seen[item.Pin]; dup {
			result.Skipped++
			continue
		}
		seen[item.Pin] = struct{}{}
		item.TenantID = input.TenantID
		item.CodeGroupID = group.ID
		item.Status = enums.CodeItemStatusAvailable
		items = append(items, *item)
	}

	inserted, err := repo.InsertIgnoreDuplicates(ctx, items)
	if err != nil {
		return result, err
	}
	result.Inserted = int(inserted)
	result.Skipped += len(items) - int(inserted)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"code_group_id": group.ID.String(),
		"inserted":      result.Inserted,
		"skipped":       result.Skipped,
		"rejected":      len(result.Rejected),
	})
	s.logg.Info(logCtx, "code batch ingested")
	return result, nil
}

// parseCodeLine splits one upload line. Returns (nil, nil) for blanks.
func parseCodeLine(line string) (*models.CodeItem, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	if len(parts) > 3 {
		return nil, fmt.Errorf("too many fields")
	}

	item := &models.CodeItem{Pin: strings.TrimSpace(parts[0])}
	if item.Pin == "" {
		return nil, fmt.Errorf("pin is required")
	}
	if len(parts) > 1 {
		if serial := strings.TrimSpace(parts[1]); serial != "" {
			item.Serial = &serial
		}
	}
	if len(parts) > 2 {
		cost, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid cost: %w", err)
		}
		if cost.IsNegative() {
			return nil, fmt.Errorf("cost cannot be negative")
		}
		item.Cost = cost
	}
	return item, nil
}
