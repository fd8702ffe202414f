package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oyunkod/oyunkod-backend/api/responses"
	"github.com/oyunkod/oyunkod-backend/api/validators"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	pkgerrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
)

type flagsResponse struct {
	USDCostEnforcement     bool `json:"usd_cost_enforcement"`
	ChainStatusPropagation bool `json:"chain_status_propagation"`
	AutoFallbackRouting    bool `json:"auto_fallback_routing"`
	ZnetSimulate           bool `json:"znet_simulate"`
}

type setFlagBody struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func GetFlags(svc flags.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flag service unavailable"))
			return
		}

		snapshot := svc.Snapshot(ctx)
		responses.WriteSuccess(w, flagsResponse{
			USDCostEnforcement:     snapshot.USDCostEnforcement,
			ChainStatusPropagation: snapshot.ChainStatusPropagation,
			AutoFallbackRouting:    snapshot.AutoFallbackRouting,
			ZnetSimulate:           snapshot.ZnetSimulate,
		})
	}
}

// SetFlag writes a runtime override for one flag. Overrides win over the
// environment until cleared.
func SetFlag(svc flags.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flag service unavailable"))
			return
		}

		name := chi.URLParam(r, "name")

		var body setFlagBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Set(ctx, name, *body.Enabled); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"name": name, "enabled": *body.Enabled})
	}
}

func ClearFlag(svc flags.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "flag service unavailable"))
			return
		}

		name := chi.URLParam(r, "name")
		if err := svc.Clear(ctx, name); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"name": name})
	}
}
