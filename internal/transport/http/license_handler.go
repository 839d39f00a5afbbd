package http

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	apperrors "github.com/Muhammad-NSQ/Dlens/internal/errors"
	"github.com/Muhammad-NSQ/Dlens/internal/services"
)

// licenseKeyPattern accepts DLENS-XXXX-XXXX-XXXX style keys as well as
// compact alphanumeric keys from older batches
var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{4,}(-[A-Z0-9]{4,}){0,4}$`)

// LicenseHandler handles license HTTP requests
type LicenseHandler struct {
	service services.LicenseService
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler. The limiter throttles
// activation attempts to slow down key guessing.
func NewLicenseHandler(service services.LicenseService, limiter *rate.Limiter, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the license activation payload
type ActivationRequest struct {
	LicenseKey string `json:"license_key"`
}

// Bind implements render.Binder
func (a *ActivationRequest) Bind(r *http.Request) error {
	if a.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	if !licenseKeyPattern.MatchString(a.LicenseKey) {
		return errors.New("invalid license key format")
	}
	return nil
}

// DeactivationResponse is the deactivation payload
type DeactivationResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Routes returns the chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Post("/activate", h.Activate)
	r.Delete("/", h.Deactivate)

	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.service.GetStatus(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "license status request failed",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	if h.limiter != nil && !h.limiter.Allow() {
		h.logger.WarnContext(ctx, "activation rate limit exceeded",
			slog.String("request_id", reqID),
			slog.String("remote_addr", r.RemoteAddr),
		)
		render.Render(w, r, apperrors.ErrRateLimited)
		return
	}

	req := &ActivationRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Activate(ctx, req.LicenseKey)
	if err != nil {
		h.logger.WarnContext(ctx, "license activation failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		if apperrors.IsTerminal(err) {
			render.Render(w, r, apperrors.ErrActivation(err))
			return
		}
		render.Render(w, r, apperrors.NewWithDetails(
			http.StatusServiceUnavailable,
			"LICENSE_SERVER_UNREACHABLE",
			"Could not reach the license server. Please try again later",
			err.Error(),
		))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

// Deactivate handles DELETE /api/license
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Deactivate(ctx); err != nil {
		h.logger.ErrorContext(ctx, "license deactivation failed",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeactivationResponse{
		Success:   true,
		Message:   "License deactivated",
		Timestamp: time.Now(),
	})
}
