package http

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"

	"github.com/Muhammad-NSQ/Dlens/internal/license"
)

// Version is stamped at build time via -ldflags
var Version = "dev"

// HealthHandler answers liveness and version probes
type HealthHandler struct {
	manager *license.StateManager
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a health handler
func NewHealthHandler(manager *license.StateManager, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		manager: manager,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
	}
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status       string    `json:"status"`
	LicenseState string    `json:"license_state"`
	Tier         string    `json:"tier"`
	Uptime       string    `json:"uptime"`
	Timestamp    time.Time `json:"timestamp"`
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.manager.Status()

	render.Status(r, http.StatusOK)
	render.JSON(w, r, HealthResponse{
		Status:       "healthy",
		LicenseState: string(status.State),
		Tier:         string(status.Tier),
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Timestamp:    time.Now(),
	})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"version":    Version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	})
}
