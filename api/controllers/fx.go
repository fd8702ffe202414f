package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/api/responses"
	"github.com/oyunkod/oyunkod-backend/api/validators"
	"github.com/oyunkod/oyunkod-backend/internal/fx"
	pkgerrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type storeRateBody struct {
	Rate string `json:"rate" validate:"required"`
}

func GetUSDTRYRate(svc fx.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fx service unavailable"))
			return
		}

		rate, err := svc.USDTRY(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"pair": "USDTRY", "rate": rate})
	}
}

// StoreUSDTRYRate pins the USD/TRY rate used for cost stamping. Rates
// arrive from an external feed operators trust, so only a sanity bound
// is applied here.
func StoreUSDTRYRate(svc fx.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fx service unavailable"))
			return
		}

		var body storeRateBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rate, err := decimal.NewFromString(body.Rate)
		if err != nil || rate.LessThanOrEqual(decimal.Zero) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "rate must be a positive decimal"))
			return
		}

		if err := svc.Store(ctx, rate, time.Now().UTC()); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"pair": "USDTRY", "rate": rate})
	}
}
