package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/provisioner/internal/application/provisioning"
)

var _ provisioning.Metrics = (*provisioningMetrics)(nil)

type provisioningMetrics struct {
	operations        metric.Int64Counter
	operationDuration metric.Float64Histogram
	stageDuration     metric.Float64Histogram
	inFlight          metric.Int64UpDownCounter
}

func newProvisioningMetrics(mp metric.MeterProvider) (*provisioningMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(provisioningMetrics)
	var err error

	if m.operations, err = meter.Int64Counter(
		"provisioning_operations_total",
		metric.WithDescription("Total number of provisioning pipeline runs by operation type and final state"),
	); err != nil {
		return nil, err
	}

	if m.operationDuration, err = meter.Float64Histogram(
		"provisioning_operation_duration_seconds",
		metric.WithDescription("Duration of provisioning pipeline runs in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.stageDuration, err = meter.Float64Histogram(
		"provisioning_stage_duration_seconds",
		metric.WithDescription("Duration of provisioning processors in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.inFlight, err = meter.Int64UpDownCounter(
		"provisioning_in_flight_operations",
		metric.WithDescription("Number of operations currently inside the pipeline"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *provisioningMetrics) IncOperations(ctx context.Context, opType string, state string) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_type", opType),
		attribute.String("state", state),
	))
}

func (m *provisioningMetrics) ObserveOperationDuration(ctx context.Context, opType string, duration time.Duration) {
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation_type", opType),
	))
}

func (m *provisioningMetrics) ObserveStageDuration(ctx context.Context, processor string, outcome string, duration time.Duration) {
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("processor", processor),
		attribute.String("outcome", outcome),
	))
}

func (m *provisioningMetrics) AddInFlight(ctx context.Context, delta int64) {
	m.inFlight.Add(ctx, delta)
}
