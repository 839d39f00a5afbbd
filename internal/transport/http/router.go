package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/Muhammad-NSQ/Dlens/internal/config"
	"github.com/Muhammad-NSQ/Dlens/internal/infrastructure"
	"github.com/Muhammad-NSQ/Dlens/internal/license"
	"github.com/Muhammad-NSQ/Dlens/internal/middleware"
	"github.com/Muhammad-NSQ/Dlens/internal/services"
)

// RouterDeps carries everything the router needs
type RouterDeps struct {
	Config         *config.Config
	LicenseService services.LicenseService
	StateManager   *license.StateManager
	Features       *license.FeatureManager
	Telemetry      *infrastructure.Telemetry
	Logger         *slog.Logger
}

// NewRouter builds the HTTP router. License management routes stay
// outside the tier gate so an expired install can still activate.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))
	r.Use(middleware.SecurityHeaders)

	activationLimiter := rate.NewLimiter(
		rate.Limit(deps.Config.License.ActivationRPS),
		deps.Config.License.ActivationBurst,
	)

	licenseHandler := NewLicenseHandler(deps.LicenseService, activationLimiter, deps.Logger)
	healthHandler := NewHealthHandler(deps.StateManager, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(chimiddleware.Timeout(deps.Config.Server.ReadTimeout))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/version", healthHandler.Version)

		r.Mount("/license", licenseHandler.Routes())

		// Paid features live behind the tier gate
		r.Group(func(r chi.Router) {
			gate := middleware.NewTierGate(deps.Features, license.TierPro, deps.Logger)
			r.Use(gate.Handler)
			r.Get("/features", licensedFeaturesStub)
		})
	})

	if deps.Telemetry != nil {
		r.Handle("/metrics", deps.Telemetry.MetricsHandler())
	}

	return r
}

// licensedFeaturesStub answers behind the tier gate so clients can
// probe whether their license unlocks the paid surface
func licensedFeaturesStub(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"features": []string{
			"advanced_analytics",
			"historical_export",
			"custom_reports",
		},
	})
}
