package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oyunkod/oyunkod-backend/api/controllers"
	"github.com/oyunkod/oyunkod-backend/api/middleware"
	"github.com/oyunkod/oyunkod-backend/internal/codes"
	"github.com/oyunkod/oyunkod-backend/internal/dispatch"
	"github.com/oyunkod/oyunkod-backend/internal/flags"
	"github.com/oyunkod/oyunkod-backend/internal/fx"
	"github.com/oyunkod/oyunkod-backend/internal/orders"
	"github.com/oyunkod/oyunkod-backend/internal/routing"
	"github.com/oyunkod/oyunkod-backend/internal/vendors"
	"github.com/oyunkod/oyunkod-backend/internal/wallet"
	"github.com/oyunkod/oyunkod-backend/pkg/config"
	"github.com/oyunkod/oyunkod-backend/pkg/db"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
	"github.com/oyunkod/oyunkod-backend/pkg/logger"
	redispkg "github.com/oyunkod/oyunkod-backend/pkg/redis"
)

// Deps carries every service the HTTP surface exposes.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Cache    *redispkg.Client
	Orders   orders.Service
	Dispatch dispatch.Service
	Codes    codes.Service
	Wallet   wallet.Service
	Flags    flags.Service
	FX       fx.Service
	Routing  routing.Repository
	Registry *vendors.Registry
	Metrics  http.Handler
}

// NewRouter assembles the admin API. All business routes sit behind the
// bearer-token middleware; role gates split operator day-to-day work from
// admin-only configuration.
func NewRouter(deps Deps) chi.Router {
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))

	r.Get("/health/live", controllers.HealthLive())
	r.Get("/health/ready", controllers.HealthReady(deps.DB, deps.Cache, logg))

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Config.JWT, logg))

		operator := middleware.RequireRole(logg,
			string(enums.ActorRoleAdmin), string(enums.ActorRoleOperator))
		admin := middleware.RequireRole(logg, string(enums.ActorRoleAdmin))

		r.Group(func(r chi.Router) {
			r.Use(operator)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.CreateOrder(deps.Orders, logg))
				r.Get("/", controllers.ListOrders(deps.Orders, logg))
				r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
				r.Get("/{orderId}/logs", controllers.OrderLogs(deps.Orders, logg))
				r.Post("/{orderId}/dispatch", controllers.DispatchOrder(deps.Dispatch, logg))
				r.Post("/{orderId}/status", controllers.SetOrderStatus(deps.Orders, logg))
			})

			r.Route("/code-groups/{groupId}/codes", func(r chi.Router) {
				r.Post("/", controllers.IngestCodes(deps.Codes, deps.DB, logg))
				r.Get("/availability", controllers.CodeAvailability(deps.Codes, logg))
			})

			r.Route("/integrations/{integrationId}", func(r chi.Router) {
				r.Get("/balance", controllers.IntegrationBalance(deps.Routing, deps.Registry, deps.Flags, deps.Cache, logg))
				r.Get("/products", controllers.IntegrationProducts(deps.Routing, deps.Registry, deps.Flags, logg))
			})

			r.Get("/fx/usdtry", controllers.GetUSDTRYRate(deps.FX, logg))
			r.Get("/users/{userId}/wallet", controllers.UserWallet(deps.Wallet, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(admin)

			r.Route("/flags", func(r chi.Router) {
				r.Get("/", controllers.GetFlags(deps.Flags, logg))
				r.Put("/{name}", controllers.SetFlag(deps.Flags, logg))
				r.Delete("/{name}", controllers.ClearFlag(deps.Flags, logg))
			})

			r.Post("/fx/usdtry", controllers.StoreUSDTRYRate(deps.FX, logg))
		})
	})

	return r
}
