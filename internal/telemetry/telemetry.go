// Package telemetry installs the OpenTelemetry meter provider of the
// binaries and exposes it in the Prometheus format.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Provider owns the meter provider and its scrape handler.
type Provider struct {
	meter   *sdkmetric.MeterProvider
	handler http.Handler
}

// Setup creates a meter provider for service and installs it globally.
// The returned handler serves the collected metrics.
func Setup(ctx context.Context, service string, logger *slog.Logger) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.Any("err", err))
		p := &Provider{meter: sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))}
		otel.SetMeterProvider(p.meter)
		return p, nil
	}

	p := &Provider{
		meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		),
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	otel.SetMeterProvider(p.meter)
	logger.Info("telemetry initialized", slog.String("exporter", "prometheus"))
	return p, nil
}

// MeterProvider is the installed provider.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	return p.meter
}

// Handler serves the metrics. It is nil when the exporter is unavailable.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meter.Shutdown(ctx)
}
