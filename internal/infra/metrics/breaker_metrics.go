package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/provisioner/internal/application/breaker"
)

var _ breaker.Metrics = (*breakerMetrics)(nil)

type breakerMetrics struct {
	warnings metric.Int64Counter
	blocks   metric.Int64Counter
}

func newBreakerMetrics(mp metric.MeterProvider) (*breakerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(breakerMetrics)
	var err error

	if m.warnings, err = meter.Int64Counter(
		"provisioning_break_warnings_total",
		metric.WithDescription("Total number of provisioning break warnings"),
	); err != nil {
		return nil, err
	}

	if m.blocks, err = meter.Int64Counter(
		"provisioning_break_blocks_total",
		metric.WithDescription("Total number of operation types blocked by a provisioning break"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *breakerMetrics) IncBreakWarnings(ctx context.Context, opType string) {
	m.warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", opType)))
}

func (m *breakerMetrics) IncBreakBlocks(ctx context.Context, opType string) {
	m.blocks.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", opType)))
}
