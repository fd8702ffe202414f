package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/api/middleware"
	"github.com/oyunkod/oyunkod-backend/api/responses"
	"github.com/oyunkod/oyunkod-backend/api/validators"
	"github.com/oyunkod/oyunkod-backend/internal/codes"
	pkgerrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ingestCodesBody struct {
	Lines []string `json:"lines" validate:"required,min=1,max=5000"`
}

type ingestCodesResponse struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Rejected []string `json:"rejected"`
}

// IngestCodes bulk-loads redemption codes into a group. Duplicates are
// skipped and malformed lines are echoed back rather than failing the
// whole upload.
func IngestCodes(svc codes.Service, tx txRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || tx == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "code service unavailable"))
			return
		}

		groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "groupId must be a valid UUID"))
			return
		}

		var body ingestCodesBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var result codes.IngestResult
		err = tx.WithTx(ctx, func(tx *gorm.DB) error {
			var ingestErr error
			result, ingestErr = svc.Ingest(ctx, tx, codes.IngestInput{
				TenantID: middleware.TenantUUIDFromContext(ctx),
				GroupID:  groupID,
				Lines:    body.Lines,
			})
			return ingestErr
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rejected := result.Rejected
		if rejected == nil {
			rejected = []string{}
		}
		responses.WriteSuccess(w, ingestCodesResponse{
			Inserted: result.Inserted,
			Skipped:  result.Skipped,
			Rejected: rejected,
		})
	}
}

func CodeAvailability(svc codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "code service unavailable"))
			return
		}

		groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "groupId must be a valid UUID"))
			return
		}

		available, err := svc.Available(ctx, groupID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int64{"available": available})
	}
}
