package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oyunkod/oyunkod-backend/api/middleware"
	"github.com/oyunkod/oyunkod-backend/api/responses"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/routing"
	"github.com/oyunkod/oyunkod-backend/internal/vendors"
	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	pkgerrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	redispkg "github.com/oyunkod/oyunkod-backend/pkg/redis"
)

const vendorBalanceTTL = 60 * time.Second

type adapterResolver interface {
	Resolve(integration models.Integration, simulate bool) (vendors.Adapter, error)
}

type balanceCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	VendorBalanceKey(integrationID string) string
}

type balanceResponse struct {
	Amount   decimal.Decimal `json:"amount"`
	Debt     decimal.Decimal `json:"debt"`
	Currency string          `json:"currency"`
	Cached   bool            `json:"cached"`
}

type productResponse struct {
	ExternalID string          `json:"external_id"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Cost       decimal.Decimal `json:"cost"`
	Currency   string          `json:"currency"`
}

// IntegrationBalance fetches the vendor account position for one
// integration. Fresh lookups are cached briefly so operator dashboards
// do not hammer vendor APIs.
func IntegrationBalance(repo routing.Repository, registry adapterResolver, flagSvc flags.Service, cache balanceCache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil || registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integration service unavailable"))
			return
		}

		integrationID, err := uuid.Parse(chi.URLParam(r, "integrationId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "integrationId must be a valid UUID"))
			return
		}

		if cache != nil {
			raw, cacheErr := cache.Get(ctx, cache.VendorBalanceKey(integrationID.String()))
			if cacheErr == nil && raw != "" {
				var cached balanceResponse
				if json.Unmarshal([]byte(raw), &cached) == nil {
					cached.Cached = true
					responses.WriteSuccess(w, cached)
					return
				}
			} else if cacheErr != nil && !redispkg.IsNil(cacheErr) && logg != nil {
				logg.Warn(ctx, "vendor balance cache read failed")
			}
		}

		integration, adapter, err := resolveIntegration(ctx, repo, registry, flagSvc, middleware.TenantUUIDFromContext(ctx), integrationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		balance, err := adapter.FetchBalance(ctx, *integration)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := balanceResponse{
			Amount:   balance.Amount,
			Debt:     balance.Debt,
			Currency: balance.Currency,
		}

		if cache != nil {
			if encoded, marshalErr := json.Marshal(resp); marshalErr == nil {
				if cacheErr := cache.Set(ctx, cache.VendorBalanceKey(integrationID.String()), string(encoded), vendorBalanceTTL); cacheErr != nil && logg != nil {
					logg.Warn(ctx, "vendor balance cache write failed")
				}
			}
		}

		responses.WriteSuccess(w, resp)
	}
}

// IntegrationProducts proxies the vendor catalog listing.
func IntegrationProducts(repo routing.Repository, registry adapterResolver, flagSvc flags.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil || registry == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "integration service unavailable"))
			return
		}

		integrationID, err := uuid.Parse(chi.URLParam(r, "integrationId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "integrationId must be a valid UUID"))
			return
		}

		integration, adapter, err := resolveIntegration(ctx, repo, registry, flagSvc, middleware.TenantUUIDFromContext(ctx), integrationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		products, err := adapter.ListProducts(ctx, *integration)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := make([]productResponse, 0, len(products))
		for _, p := range products {
			out = append(out, productResponse{
				ExternalID: p.ExternalID,
				Name:       p.Name,
				Category:   p.Category,
				Cost:       p.Cost,
				Currency:   p.Currency,
			})
		}

		responses.WriteSuccess(w, out)
	}
}

func resolveIntegration(ctx context.Context, repo routing.Repository, registry adapterResolver, flagSvc flags.Service, tenantID, integrationID uuid.UUID) (*models.Integration, vendors.Adapter, error) {
	integration, err := repo.FindIntegration(ctx, tenantID, integrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "integration not found")
		}
		return nil, nil, err
	}

	simulate := false
	if flagSvc != nil {
		simulate = flagSvc.Snapshot(ctx).ZnetSimulate
	}

	adapter, err := registry.Resolve(*integration, simulate)
	if err != nil {
		return nil, nil, err
	}
	return integration, adapter, nil
}
