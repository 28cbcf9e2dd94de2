package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Prometheus is a pull-based meter backend: instruments created from Meter
// are served by Handler in the Prometheus exposition format.
type Prometheus struct {
	Meter   metric.Meter
	Handler http.Handler

	provider *sdkmetric.MeterProvider
}

// NewPrometheus creates an OTel MeterProvider backed by a Prometheus exporter
// on a private registry, so repeated calls do not collide.
func NewPrometheus() (*Prometheus, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &Prometheus{
		Meter:    provider.Meter(meterName),
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		provider: provider,
	}, nil
}

// Shutdown releases the meter provider.
func (p *Prometheus) Shutdown(ctx context.Context) error {
	err := p.provider.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown prometheus provider: %w", err)
	}

	return nil
}
