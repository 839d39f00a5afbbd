package license

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the license subsystem's OpenTelemetry instruments
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationDuration metric.Float64Histogram

	ValidationAttempts metric.Int64Counter
	ValidationSuccess  metric.Int64Counter
	ValidationFailures metric.Int64Counter
	OfflineFallbacks   metric.Int64Counter
	AuthorityLatency   metric.Float64Histogram

	SyncRuns         metric.Int64Counter
	SyncFailures     metric.Int64Counter
	StateTransitions metric.Int64Counter
}

// NewMetrics creates the license metric instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	activationAttempts, err := meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	)
	if err != nil {
		return nil, err
	}

	activationSuccess, err := meter.Int64Counter(
		"license_activation_success_total",
		metric.WithDescription("Total number of successful license activations"),
	)
	if err != nil {
		return nil, err
	}

	activationDuration, err := meter.Float64Histogram(
		"license_activation_duration_seconds",
		metric.WithDescription("License activation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	validationAttempts, err := meter.Int64Counter(
		"license_validation_checks_total",
		metric.WithDescription("Total number of license validation checks"),
	)
	if err != nil {
		return nil, err
	}

	validationSuccess, err := meter.Int64Counter(
		"license_validation_success_total",
		metric.WithDescription("Total number of successful license validations"),
	)
	if err != nil {
		return nil, err
	}

	validationFailures, err := meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of failed license validations"),
	)
	if err != nil {
		return nil, err
	}

	offlineFallbacks, err := meter.Int64Counter(
		"license_offline_fallbacks_total",
		metric.WithDescription("Total number of validations that fell back to offline trust"),
	)
	if err != nil {
		return nil, err
	}

	authorityLatency, err := meter.Float64Histogram(
		"license_authority_request_duration_seconds",
		metric.WithDescription("License authority request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	syncRuns, err := meter.Int64Counter(
		"license_sync_runs_total",
		metric.WithDescription("Total number of periodic license sync runs"),
	)
	if err != nil {
		return nil, err
	}

	syncFailures, err := meter.Int64Counter(
		"license_sync_failures_total",
		metric.WithDescription("Total number of failed license sync runs"),
	)
	if err != nil {
		return nil, err
	}

	stateTransitions, err := meter.Int64Counter(
		"license_state_transitions_total",
		metric.WithDescription("Total number of license state transitions"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ActivationAttempts: activationAttempts,
		ActivationSuccess:  activationSuccess,
		ActivationDuration: activationDuration,
		ValidationAttempts: validationAttempts,
		ValidationSuccess:  validationSuccess,
		ValidationFailures: validationFailures,
		OfflineFallbacks:   offlineFallbacks,
		AuthorityLatency:   authorityLatency,
		SyncRuns:           syncRuns,
		SyncFailures:       syncFailures,
		StateTransitions:   stateTransitions,
	}, nil
}
