package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/api/middleware"
	"github.com/oyunkod/oyunkod-backend/api/responses"
	"github.com/oyunkod/oyunkod-backend/api/validators"
	"github.com/oyunkod/oyunkod-backend/internal/dispatch"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	pkgerrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	"github.com/oyunkod/oyunkod-backend/pkg/pagination"
)

type createOrderBody struct {
	UserID         string  `json:"user_id" validate:"required,uuid"`
	PackageID      string  `json:"package_id" validate:"required,uuid"`
	Quantity       int     `json:"quantity" validate:"required,gte=1"`
	UserIdentifier string  `json:"user_identifier" validate:"required,min=1,max=255"`
	ExtraField     *string `json:"extra_field" validate:"omitempty,max=255"`
}

type setStatusBody struct {
	Status string  `json:"status" validate:"required,oneof=approved rejected"`
	Note   *string `json:"note" validate:"omitempty,max=1000"`
}

func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body createOrderBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		userID, err := uuid.Parse(body.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid UUID"))
			return
		}
		packageID, err := uuid.Parse(body.PackageID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "package_id must be a valid UUID"))
			return
		}

		order, err := svc.Create(ctx, orders.CreateInput{
			TenantID:       middleware.TenantUUIDFromContext(ctx),
			UserID:         userID,
			PackageID:      packageID,
			Quantity:       body.Quantity,
			UserIdentifier: body.UserIdentifier,
			ExtraField:     body.ExtraField,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		filter := orders.ListFilter{}

		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown status filter"))
				return
			}
			filter.Status = status
		}
		if raw := r.URL.Query().Get("external_status"); raw != "" {
			status, err := enums.ParseExternalStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown external_status filter"))
				return
			}
			filter.ExternalStatus = status
		}
		if raw := r.URL.Query().Get("user_id"); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid UUID"))
				return
			}
			filter.UserID = &userID
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<20)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter.Limit = limit
		filter.Offset = offset

		if raw := r.URL.Query().Get("cursor"); raw != "" {
			cursor, err := pagination.ParseCursor(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor"))
				return
			}
			filter.Cursor = cursor
		}

		page, err := svc.List(ctx, middleware.TenantUUIDFromContext(ctx), filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"orders":      page.Orders,
			"next_cursor": page.NextCursor,
		})
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId must be a valid UUID"))
			return
		}

		order, err := svc.Get(ctx, middleware.TenantUUIDFromContext(ctx), orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

func OrderLogs(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId must be a valid UUID"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logs, err := svc.Logs(ctx, middleware.TenantUUIDFromContext(ctx), orderID, limit)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, logs)
	}
}

// DispatchOrder triggers a synchronous dispatch attempt for one order.
// Locked and already-handled orders come back as a skipped outcome, not
// an error, so operators can mash the button safely.
func DispatchOrder(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId must be a valid UUID"))
			return
		}

		outcome, err := svc.Dispatch(ctx, middleware.TenantUUIDFromContext(ctx), orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, outcome)
	}
}

func SetOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId must be a valid UUID"))
			return
		}

		var body setStatusBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown status"))
			return
		}

		input := orders.StatusChangeInput{
			TenantID: middleware.TenantUUIDFromContext(ctx),
			OrderID:  orderID,
			Status:   status,
			Note:     body.Note,
		}
		if actorID := middleware.ActorUUIDFromContext(ctx); actorID != uuid.Nil {
			input.ActorID = &actorID
		}

		order, err := svc.SetStatus(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}
