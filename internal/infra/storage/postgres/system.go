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
	"github.com/ahrav/provisioner/internal/domain/connector"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	"github.com/ahrav/provisioner/internal/infra/storage"
)

var _ system.Repository = (*systemStore)(nil)

type systemStore struct {
	q      *db.Queries
	tracer trace.Tracer
}

// NewSystemStore creates a system.Repository backed by PostgreSQL.
func NewSystemStore(pool *pgxpool.Pool, tracer trace.Tracer) system.Repository {
	return &systemStore{q: db.New(pool), tracer: tracer}
}

// FindByID retrieves a system by ID.
func (s *systemStore) FindByID(ctx context.Context, id uuid.UUID) (system.System, error) {
	attrs := storage.DBAttributes(attribute.String("system.id", id.String()))

	var row db.SysSystem
	err := storage.ExecuteAndTrace(ctx, s.tracer, "systemStore.FindByID", attrs, func(ctx context.Context) error {
		var err error
		row, err = s.q.FindSystemByID(ctx, pgUUID(id))
		if errors.Is(err, pgx.ErrNoRows) {
			return system.ErrSystemNotFound
		}
		return err
	})
	if err != nil {
		return system.System{}, err
	}

	cfg := connector.Config{}
	if len(row.ConnectorConfig) > 0 {
		if err := json.Unmarshal(row.ConnectorConfig, &cfg); err != nil {
			return system.System{}, fmt.Errorf("failed to decode connector config of system %s: %w", id, err)
		}
	}

	return system.System{
		ID:                   fromPgUUID(row.ID),
		Name:                 row.Name,
		ConnectorKey:         connector.Key(row.ConnectorKey),
		ConnectorConfig:      cfg,
		Disabled:             row.Disabled,
		DisabledProvisioning: row.DisabledProvisioning,
		Readonly:             row.Readonly,
		Blocked: system.BlockedOperation{
			CreateBlocked: row.CreateBlocked,
			UpdateBlocked: row.UpdateBlocked,
			DeleteBlocked: row.DeleteBlocked,
		},
		ApprovalDefinition: row.ApprovalDefinition,
		UpdatedAt:          fromPgTime(row.UpdatedAt),
	}, nil
}

// Save inserts or replaces a system.
func (s *systemStore) Save(ctx context.Context, sys system.System) error {
	attrs := storage.DBAttributes(attribute.String("system.id", sys.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "systemStore.Save", attrs, func(ctx context.Context) error {
		cfg := sys.ConnectorConfig
		if cfg == nil {
			cfg = connector.Config{}
		}
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode connector config of system %s: %w", sys.ID, err)
		}

		return s.q.UpsertSystem(ctx, db.UpsertSystemParams{
			ID:                   pgUUID(sys.ID),
			Name:                 sys.Name,
			ConnectorKey:         string(sys.ConnectorKey),
			ConnectorConfig:      cfgJSON,
			Disabled:             sys.Disabled,
			DisabledProvisioning: sys.DisabledProvisioning,
			Readonly:             sys.Readonly,
			CreateBlocked:        sys.Blocked.CreateBlocked,
			UpdateBlocked:        sys.Blocked.UpdateBlocked,
			DeleteBlocked:        sys.Blocked.DeleteBlocked,
			ApprovalDefinition:   sys.ApprovalDefinition,
		})
	})
}

// SetBlocked updates a single block bit. Types without a block bit are
// ignored.
func (s *systemStore) SetBlocked(ctx context.Context, id uuid.UUID, t provisioning.OperationType, blocked bool) error {
	if t != provisioning.OpCreate && t != provisioning.OpUpdate && t != provisioning.OpDelete {
		return nil
	}

	attrs := storage.DBAttributes(
		attribute.String("system.id", id.String()),
		attribute.String("operation.type", string(t)),
		attribute.Bool("blocked", blocked),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "systemStore.SetBlocked", attrs, func(ctx context.Context) error {
		n, err := s.q.SetSystemBlocked(ctx, db.SetSystemBlockedParams{
			OperationType: db.OperationType(t),
			Blocked:       blocked,
			ID:            pgUUID(id),
		})
		if err != nil {
			return fmt.Errorf("failed to set block bit on system %s: %w", id, err)
		}
		if n == 0 {
			return system.ErrSystemNotFound
		}
		return nil
	})
}
