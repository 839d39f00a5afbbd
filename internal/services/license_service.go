package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Muhammad-NSQ/Dlens/internal/infrastructure"
	"github.com/Muhammad-NSQ/Dlens/internal/license"
)

// LicenseService provides the business logic behind the license HTTP
// endpoints
type LicenseService interface {
	GetStatus(ctx context.Context) (*StatusResponse, error)
	Activate(ctx context.Context, key string) (*StatusResponse, error)
	Deactivate(ctx context.Context) error
	ValidateWithContext(ctx context.Context) (bool, error)
}

// StatusResponse is the standardized license status payload
type StatusResponse struct {
	// RFC 7807 Problem Details
	Type   string `json:"type,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`

	LicenseStatus string    `json:"license_status"` // active|grace_period|expired|not_activated|activating|error
	Tier          string    `json:"tier"`
	Message       string    `json:"message"`
	DaysLeft      int       `json:"days_left,omitempty"`
	RetryCount    int       `json:"retry_count,omitempty"`
	TraceID       string    `json:"trace_id"`
	Timestamp     time.Time `json:"timestamp"`
}

type licenseService struct {
	manager *license.StateManager
	client  *license.Client
	logger  *slog.Logger
}

// NewLicenseService creates a license service backed by the state
// manager and its client
func NewLicenseService(manager *license.StateManager, client *license.Client, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		manager: manager,
		client:  client,
		logger:  logger.With(slog.String("service", "license")),
	}
}

// GetStatus returns the current license status summary
func (s *licenseService) GetStatus(ctx context.Context) (*StatusResponse, error) {
	traceID := traceIDFrom(ctx)

	status := s.manager.Status()

	s.logger.DebugContext(ctx, "license status check",
		slog.String("trace_id", traceID),
		slog.String("state", string(status.State)),
		slog.String("tier", string(status.Tier)),
	)

	resp := &StatusResponse{
		Status:        200,
		LicenseStatus: licenseStatusLabel(status.State),
		Tier:          string(status.Tier),
		DaysLeft:      status.ExpiresInDays,
		RetryCount:    status.RetryCount,
		Message:       statusMessage(status),
		TraceID:       traceID,
		Timestamp:     time.Now(),
	}

	if status.State == license.StateUnactivated {
		resp.Type = "/license/not-activated"
		resp.Title = "License Not Activated"
		resp.Detail = "No license has been activated on this system"
	}

	return resp, nil
}

// Activate activates the given license key and returns the resulting
// status
func (s *licenseService) Activate(ctx context.Context, key string) (*StatusResponse, error) {
	start := time.Now()
	traceID := traceIDFrom(ctx)

	s.logger.InfoContext(ctx, "license activation started",
		slog.String("trace_id", traceID),
		slog.String("operation", "activate"),
	)

	if err := s.manager.Activate(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "license activation failed",
			slog.String("trace_id", traceID),
			slog.Duration("latency", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("activation failed: %w", err)
	}

	s.logger.InfoContext(ctx, "license activation succeeded",
		slog.String("trace_id", traceID),
		slog.Duration("latency", time.Since(start)),
	)

	return s.GetStatus(ctx)
}

// Deactivate removes the current license
func (s *licenseService) Deactivate(ctx context.Context) error {
	traceID := traceIDFrom(ctx)

	if err := s.manager.Deactivate(); err != nil {
		s.logger.ErrorContext(ctx, "license deactivation failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.InfoContext(ctx, "license deactivated",
		slog.String("trace_id", traceID),
	)
	return nil
}

// ValidateWithContext runs an offline validation of the cached license,
// respecting context cancellation
func (s *licenseService) ValidateWithContext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	resultCh := make(chan bool, 1)
	go func() {
		status := s.client.CheckActivationStatus()
		resultCh <- status.IsActivated
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case valid := <-resultCh:
		return valid, nil
	}
}

// licenseStatusLabel maps lifecycle states onto the API's status strings
func licenseStatusLabel(state license.State) string {
	switch state {
	case license.StateActive:
		return "active"
	case license.StateGracePeriod:
		return "grace_period"
	case license.StateExpired:
		return "expired"
	case license.StateActivating:
		return "activating"
	case license.StateError:
		return "error"
	default:
		return "not_activated"
	}
}

func statusMessage(status license.Status) string {
	switch status.State {
	case license.StateActive:
		if status.ExpiresInDays > 0 {
			return fmt.Sprintf("License is active. %d days remaining until expiration.", status.ExpiresInDays)
		}
		return "License is active."
	case license.StateGracePeriod:
		return "License authority unreachable. Running on grace period trust."
	case license.StateExpired:
		return "Your license has expired. Please renew to restore full access."
	case license.StateActivating:
		return "License activation in progress."
	case license.StateError:
		return fmt.Sprintf("License validation failed (%d retries). Will retry on the next sync.", status.RetryCount)
	default:
		return "No license activated. Running on the free tier."
	}
}

// traceIDFrom resolves the request trace ID from middleware or logger
// context
func traceIDFrom(ctx context.Context) string {
	if traceID := middleware.GetReqID(ctx); traceID != "" {
		return traceID
	}
	return infrastructure.GetTraceID(ctx)
}
