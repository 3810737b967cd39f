package provisioning

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores the active operation queue and the archive of
// terminal operations.
type Repository interface {
	// Save inserts or replaces an operation in the active queue.
	Save(ctx context.Context, op Operation) error

	// Delete removes an operation from the active queue.
	Delete(ctx context.Context, id uuid.UUID) error

	// Archive moves a terminal operation from the active queue into the
	// archive in a single step.
	Archive(ctx context.Context, op Operation) error

	// FindByID retrieves a queued operation or ErrOperationNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (Operation, error)

	// FindArchived retrieves an archived operation or ErrOperationNotFound.
	FindArchived(ctx context.Context, id uuid.UUID) (Operation, error)

	// FindBySystemAndUID lists queued operations for one target object,
	// oldest first.
	FindBySystemAndUID(ctx context.Context, systemID uuid.UUID, uid string) ([]Operation, error)

	// FindByState lists queued operations in the given result state, oldest
	// first, returning at most limit rows when limit is positive.
	FindByState(ctx context.Context, state State, limit int) ([]Operation, error)

	// FindRetryable lists queued EXCEPTION operations whose result code is
	// retryable, oldest first, returning at most limit rows when limit is
	// positive.
	FindRetryable(ctx context.Context, limit int) ([]Operation, error)
}
