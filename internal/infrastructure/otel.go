package infrastructure

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName identifies the license client meter
const MeterName = "dlens-license-client"

// Telemetry bundles the metric pipeline: an OpenTelemetry meter backed by
// a Prometheus exporter, and the HTTP handler that serves the scrape
// endpoint.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

// InitializeTelemetry sets up the OpenTelemetry metrics pipeline with a
// Prometheus exporter on a dedicated registry.
func InitializeTelemetry() (*Telemetry, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return &Telemetry{
		provider: provider,
		registry: registry,
	}, nil
}

// Meter returns the meter used for license client metrics
func (t *Telemetry) Meter() metric.Meter {
	return t.provider.Meter(MeterName)
}

// MetricsHandler returns the HTTP handler serving Prometheus metrics
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the metric pipeline
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
