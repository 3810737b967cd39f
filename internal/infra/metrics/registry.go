// Package metrics implements the metric contracts declared by the
// application packages on top of an OpenTelemetry meter provider.
package metrics

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/provisioner/internal/application/breaker"
	"github.com/ahrav/provisioner/internal/application/provisioning"
	"github.com/ahrav/provisioner/internal/infra/connector"
)

const namespace = "provisioner"

// Registry provides access to all metric implementations.
// It centralizes the creation and management of metrics instances.
type Registry struct {
	Provisioning provisioning.Metrics
	Breaker      breaker.Metrics
	Connector    connector.Metrics
}

// NewRegistry creates and initializes all metrics implementations.
// It uses a single meter provider to ensure consistent configuration.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	provisioningMetrics, err := newProvisioningMetrics(mp)
	if err != nil {
		return nil, err
	}

	breakerMetrics, err := newBreakerMetrics(mp)
	if err != nil {
		return nil, err
	}

	connectorMetrics, err := newConnectorMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Registry{
		Provisioning: provisioningMetrics,
		Breaker:      breakerMetrics,
		Connector:    connectorMetrics,
	}, nil
}
