package provisioning

import (
	"context"
	"time"

	"github.com/ahrav/provisioner/internal/application/pipeline"
)

// Metrics defines metrics for provisioning operations.
type Metrics interface {
	pipeline.Metrics

	// IncOperations counts pipeline runs by operation type and final state.
	IncOperations(ctx context.Context, opType string, state string)

	// ObserveOperationDuration records how long one pipeline run took.
	ObserveOperationDuration(ctx context.Context, opType string, duration time.Duration)

	// AddInFlight tracks operations currently inside the pipeline.
	AddInFlight(ctx context.Context, delta int64)
}
