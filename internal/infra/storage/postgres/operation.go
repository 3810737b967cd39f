package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/db"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/infra/storage"
)

var _ provisioning.Repository = (*operationStore)(nil)

// operationStore keeps the active queue in provisioning_operations and
// terminal operations in provisioning_archives.
type operationStore struct {
	q      *db.Queries
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewOperationStore creates a provisioning.Repository backed by PostgreSQL.
func NewOperationStore(pool *pgxpool.Pool, tracer trace.Tracer) provisioning.Repository {
	return &operationStore{q: db.New(pool), pool: pool, tracer: tracer}
}

// Save inserts or replaces the queued row of op.
func (s *operationStore) Save(ctx context.Context, op provisioning.Operation) error {
	attrs := storage.DBAttributes(
		attribute.String("operation.id", op.ID.String()),
		attribute.String("operation.state", string(op.Result.State)),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.Save", attrs, func(ctx context.Context) error {
		params, err := toUpsertParams(op)
		if err != nil {
			return err
		}
		if err := s.q.UpsertOperation(ctx, params); err != nil {
			return fmt.Errorf("failed to upsert operation %s: %w", op.ID, err)
		}
		return nil
	})
}

// Delete removes a queued operation.
func (s *operationStore) Delete(ctx context.Context, id uuid.UUID) error {
	attrs := storage.DBAttributes(attribute.String("operation.id", id.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.Delete", attrs, func(ctx context.Context) error {
		n, err := s.q.DeleteOperation(ctx, pgUUID(id))
		if err != nil {
			return fmt.Errorf("failed to delete operation %s: %w", id, err)
		}
		if n == 0 {
			return provisioning.ErrOperationNotFound
		}
		return nil
	})
}

// Archive copies op into the archive and removes it from the queue in one
// transaction.
func (s *operationStore) Archive(ctx context.Context, op provisioning.Operation) error {
	attrs := storage.DBAttributes(
		attribute.String("operation.id", op.ID.String()),
		attribute.String("operation.state", string(op.Result.State)),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.Archive", attrs, func(ctx context.Context) error {
		params, err := toUpsertParams(op)
		if err != nil {
			return err
		}
		return storage.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			q := s.q.WithTx(tx)
			if err := q.ArchiveOperation(ctx, db.ArchiveOperationParams(params)); err != nil {
				return fmt.Errorf("failed to archive operation %s: %w", op.ID, err)
			}
			if _, err := q.DeleteOperation(ctx, params.ID); err != nil {
				return fmt.Errorf("failed to dequeue operation %s: %w", op.ID, err)
			}
			return nil
		})
	})
}

// FindByID retrieves a queued operation.
func (s *operationStore) FindByID(ctx context.Context, id uuid.UUID) (provisioning.Operation, error) {
	attrs := storage.DBAttributes(attribute.String("operation.id", id.String()))

	var row db.ProvisioningOperation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.FindByID", attrs, func(ctx context.Context) error {
		var err error
		row, err = s.q.FindOperationByID(ctx, pgUUID(id))
		if errors.Is(err, pgx.ErrNoRows) {
			return provisioning.ErrOperationNotFound
		}
		return err
	})
	if err != nil {
		return provisioning.Operation{}, err
	}
	return operationFromRow(row)
}

// FindArchived retrieves an archived operation.
func (s *operationStore) FindArchived(ctx context.Context, id uuid.UUID) (provisioning.Operation, error) {
	attrs := storage.DBAttributes(attribute.String("operation.id", id.String()))

	var row db.ProvisioningArchive
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.FindArchived", attrs, func(ctx context.Context) error {
		var err error
		row, err = s.q.FindArchivedOperationByID(ctx, pgUUID(id))
		if errors.Is(err, pgx.ErrNoRows) {
			return provisioning.ErrOperationNotFound
		}
		return err
	})
	if err != nil {
		return provisioning.Operation{}, err
	}
	return operationFromRow(db.ProvisioningOperation{
		ID:              row.ID,
		SystemID:        row.SystemID,
		EntityType:      row.EntityType,
		EntityID:        row.EntityID,
		SystemEntityUid: row.SystemEntityUid,
		OperationType:   row.OperationType,
		Context:         row.Context,
		ResultState:     row.ResultState,
		ResultCode:      row.ResultCode,
		ResultModel:     row.ResultModel,
		ResultCause:     row.ResultCause,
		ResultAt:        row.ResultAt,
		TransactionID:   row.TransactionID,
		SuspendedAt:     row.SuspendedAt,
		Attempts:        row.Attempts,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	})
}

// FindBySystemAndUID lists queued operations of one target object.
func (s *operationStore) FindBySystemAndUID(ctx context.Context, systemID uuid.UUID, uid string) ([]provisioning.Operation, error) {
	attrs := storage.DBAttributes(attribute.String("system.id", systemID.String()))

	var rows []db.ProvisioningOperation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.FindBySystemAndUID", attrs, func(ctx context.Context) error {
		var err error
		rows, err = s.q.FindOperationsBySystemAndUID(ctx, db.FindOperationsBySystemAndUIDParams{
			SystemID:        pgUUID(systemID),
			SystemEntityUid: uid,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return operationsFromRows(rows)
}

// FindByState lists queued operations in state, oldest first.
func (s *operationStore) FindByState(ctx context.Context, state provisioning.State, limit int) ([]provisioning.Operation, error) {
	attrs := storage.DBAttributes(
		attribute.String("operation.state", string(state)),
		attribute.Int("limit", limit),
	)

	var rows []db.ProvisioningOperation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.FindByState", attrs, func(ctx context.Context) error {
		var err error
		rows, err = s.q.FindOperationsByState(ctx, db.FindOperationsByStateParams{
			ResultState: db.ResultState(state),
			MaxRows:     int32(max(limit, 0)),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return operationsFromRows(rows)
}

// FindRetryable lists queued EXCEPTION operations with a retryable code,
// oldest first.
func (s *operationStore) FindRetryable(ctx context.Context, limit int) ([]provisioning.Operation, error) {
	retryable := provisioning.RetryableCodes()
	codes := make([]string, len(retryable))
	for i, c := range retryable {
		codes[i] = string(c)
	}
	attrs := storage.DBAttributes(attribute.Int("limit", limit))

	var rows []db.ProvisioningOperation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "operationStore.FindRetryable", attrs, func(ctx context.Context) error {
		var err error
		rows, err = s.q.FindRetryableOperations(ctx, db.FindRetryableOperationsParams{
			RetryableCodes: codes,
			MaxRows:        int32(max(limit, 0)),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return operationsFromRows(rows)
}

func toUpsertParams(op provisioning.Operation) (db.UpsertOperationParams, error) {
	ctxJSON, err := json.Marshal(op.Context)
	if err != nil {
		return db.UpsertOperationParams{}, fmt.Errorf("failed to encode context of operation %s: %w", op.ID, err)
	}

	return db.UpsertOperationParams{
		ID:              pgUUID(op.ID),
		SystemID:        pgUUID(op.SystemID),
		EntityType:      db.EntityType(op.EntityType),
		EntityID:        op.EntityID,
		SystemEntityUid: op.SystemEntityUID,
		OperationType:   db.OperationType(op.Type),
		Context:         ctxJSON,
		ResultState:     db.ResultState(op.Result.State),
		ResultCode:      string(op.Result.Code),
		ResultModel:     op.Result.Model,
		ResultCause:     op.Result.Cause,
		ResultAt:        pgTime(op.Result.CreatedAt),
		TransactionID:   pgUUID(op.TransactionID),
		SuspendedAt:     op.SuspendedAt,
		Attempts:        int32(op.Attempts),
		CreatedAt:       pgTime(orNow(op.CreatedAt)),
		UpdatedAt:       pgTime(orNow(op.UpdatedAt)),
	}, nil
}

func operationFromRow(row db.ProvisioningOperation) (provisioning.Operation, error) {
	var opCtx provisioning.Context
	if len(row.Context) > 0 {
		if err := json.Unmarshal(row.Context, &opCtx); err != nil {
			return provisioning.Operation{}, fmt.Errorf("failed to decode operation context: %w", err)
		}
	}

	opType, err := provisioning.ParseOperationType(string(row.OperationType))
	if err != nil {
		return provisioning.Operation{}, err
	}

	return provisioning.Operation{
		ID:              fromPgUUID(row.ID),
		SystemID:        fromPgUUID(row.SystemID),
		EntityType:      provisioning.EntityType(row.EntityType),
		EntityID:        row.EntityID,
		SystemEntityUID: row.SystemEntityUid,
		Type:            opType,
		Context:         opCtx,
		Result: provisioning.Result{
			State:     provisioning.State(row.ResultState),
			Code:      provisioning.Code(row.ResultCode),
			Model:     row.ResultModel,
			Cause:     row.ResultCause,
			CreatedAt: fromPgTime(row.ResultAt),
		},
		TransactionID: fromPgUUID(row.TransactionID),
		SuspendedAt:   row.SuspendedAt,
		Attempts:      int(row.Attempts),
		CreatedAt:     fromPgTime(row.CreatedAt),
		UpdatedAt:     fromPgTime(row.UpdatedAt),
	}, nil
}

func operationsFromRows(rows []db.ProvisioningOperation) ([]provisioning.Operation, error) {
	ops := make([]provisioning.Operation, 0, len(rows))
	for _, row := range rows {
		op, err := operationFromRow(row)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
