package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/provisioner/internal/infra/connector"
)

var _ connector.Metrics = (*connectorMetrics)(nil)

type connectorMetrics struct {
	callLatency metric.Float64Histogram
	failures    metric.Int64Counter
}

func newConnectorMetrics(mp metric.MeterProvider) (*connectorMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(connectorMetrics)
	var err error

	if m.callLatency, err = meter.Float64Histogram(
		"connector_call_latency_seconds",
		metric.WithDescription("Latency of connector calls in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.failures, err = meter.Int64Counter(
		"connector_call_failures_total",
		metric.WithDescription("Total number of failed connector calls"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *connectorMetrics) ObserveConnectorCall(ctx context.Context, connectorKey string, method string, duration time.Duration) {
	m.callLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("connector", connectorKey),
		attribute.String("method", method),
	))
}

func (m *connectorMetrics) IncConnectorFailures(ctx context.Context, connectorKey string, method string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("connector", connectorKey),
		attribute.String("method", method),
	))
}
