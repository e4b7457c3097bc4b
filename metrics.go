package orderrt

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	functionCalls   metric.Int64Counter
	resultsDropped  metric.Int64Counter
	backendErrors   metric.Int64Counter
	connectFailures metric.Int64Counter
}

func newMetrics(m metric.Meter, logger *slog.Logger) *metrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("failed to create counter", slog.String("name", name), slog.Any("err", err))
			c, _ = noop.Meter{}.Int64Counter(name)
		}
		return c
	}

	return &metrics{
		functionCalls:   counter("orderrt.function_calls", "Function calls dispatched to the backend."),
		resultsDropped:  counter("orderrt.function_results_dropped", "Function results dropped because the event channel was closed."),
		backendErrors:   counter("orderrt.backend_errors", "Function calls the backend failed to execute."),
		connectFailures: counter("orderrt.connect_failures", "Failed connect attempts."),
	}
}

func (m *metrics) count(c metric.Int64Counter, key, value string) {
	c.Add(context.Background(), 1, metric.WithAttributes(attribute.String(key, value)))
}
