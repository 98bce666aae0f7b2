package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/ai-governance/app"
	"github.com/upb/ai-governance/handlers"
	"github.com/upb/ai-governance/middleware"
	"github.com/upb/ai-governance/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Auth.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
		r.Method(http.MethodGet, cfg.Observability.MetricsPath, deps.Metrics.Handler())
	}

	// Health check endpoints
	health := handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	for name, check := range deps.HealthChecks() {
		health.AddCheck(name, check)
	}
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	governance := handlers.NewGovernanceHandler(deps.Governance, deps.Logger)
	admin := handlers.NewAdminHandler(deps.Admin, deps.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		// Called by the gateway around every model request
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole(cfg.Auth.ServiceRole))
			r.Mount("/governance", governance.Routes())
		})

		// Catalog, quota, policy and fallback management
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole(cfg.Auth.AdminRole))
			r.Get("/usage/{tenantID}", governance.HandleUsage)
			r.Mount("/", admin.Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
