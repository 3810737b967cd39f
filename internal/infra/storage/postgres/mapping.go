package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/db"
	"github.com/ahrav/provisioner/internal/domain/mapping"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/infra/storage"
)

var _ mapping.Resolver = (*MappingStore)(nil)

// MappingStore persists mapping sets and compiles their scripted
// transforms on load.
type MappingStore struct {
	q        *db.Queries
	pool     *pgxpool.Pool
	compiler mapping.Compiler
	tracer   trace.Tracer
}

// NewMappingStore creates a mapping store. compiler may be nil when no
// mapping carries a script.
func NewMappingStore(pool *pgxpool.Pool, compiler mapping.Compiler, tracer trace.Tracer) *MappingStore {
	return &MappingStore{q: db.New(pool), pool: pool, compiler: compiler, tracer: tracer}
}

// FindActive returns the active sets of a system and entity type with
// their mappings in order. A script that does not compile is reported as
// a transform configuration error.
func (s *MappingStore) FindActive(ctx context.Context, systemID uuid.UUID, entityType provisioning.EntityType) ([]mapping.Set, error) {
	attrs := storage.DBAttributes(
		attribute.String("system.id", systemID.String()),
		attribute.String("entity.type", string(entityType)),
	)

	var sets []mapping.Set
	err := storage.ExecuteAndTrace(ctx, s.tracer, "mappingStore.FindActive", attrs, func(ctx context.Context) error {
		rows, err := s.q.FindActiveMappingSets(ctx, db.FindActiveMappingSetsParams{
			SystemID:   pgUUID(systemID),
			EntityType: db.EntityType(entityType),
		})
		if err != nil {
			return fmt.Errorf("failed to find mapping sets: %w", err)
		}

		for _, row := range rows {
			mappingRows, err := s.q.FindAttributeMappings(ctx, row.ID)
			if err != nil {
				return fmt.Errorf("failed to find attribute mappings of set %s: %w", fromPgUUID(row.ID), err)
			}
			set := mapping.Set{
				ID:          fromPgUUID(row.ID),
				SystemID:    fromPgUUID(row.SystemID),
				EntityType:  provisioning.EntityType(row.EntityType),
				ObjectClass: row.ObjectClass,
				Active:      row.Active,
			}
			for _, m := range mappingRows {
				am, err := s.attributeMapping(m)
				if err != nil {
					return err
				}
				set.Mappings = append(set.Mappings, am)
			}
			sets = append(sets, set)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *MappingStore) attributeMapping(row db.AttributeMapping) (mapping.AttributeMapping, error) {
	am := mapping.AttributeMapping{
		SchemaAttributeID: fromPgUUID(row.SchemaAttributeID),
		Name:              row.Name,
		IdmAttribute:      row.IdmAttribute,
		UID:               row.IsUid,
		Createable:        row.Createable,
		Updateable:        row.Updateable,
		ReturnedByDefault: row.ReturnedByDefault,
		Multivalued:       row.Multivalued,
		Script: mapping.Script{
			ToConnector:   row.ToConnectorScript,
			FromConnector: row.FromConnectorScript,
		},
	}
	if am.Script.IsZero() {
		return am, nil
	}
	if s.compiler == nil {
		return am, provisioning.Errorf(provisioning.CodeTransformFailed,
			"mapping %s has a script but no transform compiler is configured", am.Name)
	}

	tr, err := s.compiler.Compile(am.Name, am.Script)
	if err != nil {
		return am, provisioning.NewError(provisioning.CodeTransformFailed, err)
	}
	am.Transform = tr
	return am, nil
}

// Save inserts or replaces a set and all its mappings in one transaction.
func (s *MappingStore) Save(ctx context.Context, set mapping.Set) error {
	attrs := storage.DBAttributes(attribute.String("mapping_set.id", set.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "mappingStore.Save", attrs, func(ctx context.Context) error {
		return storage.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			q := s.q.WithTx(tx)
			setID := pgUUID(set.ID)
			if err := q.UpsertMappingSet(ctx, db.UpsertMappingSetParams{
				ID:          setID,
				SystemID:    pgUUID(set.SystemID),
				EntityType:  db.EntityType(set.EntityType),
				ObjectClass: set.ObjectClass,
				Active:      set.Active,
			}); err != nil {
				return fmt.Errorf("failed to save mapping set %s: %w", set.ID, err)
			}
			if err := q.DeleteAttributeMappings(ctx, setID); err != nil {
				return fmt.Errorf("failed to clear mappings of set %s: %w", set.ID, err)
			}

			for i, m := range set.Mappings {
				var schemaID pgtype.UUID
				if m.SchemaAttributeID != uuid.Nil {
					schemaID = pgUUID(m.SchemaAttributeID)
				}
				if err := q.InsertAttributeMapping(ctx, db.InsertAttributeMappingParams{
					MappingSetID:        setID,
					Position:            int32(i),
					SchemaAttributeID:   schemaID,
					Name:                m.Name,
					IdmAttribute:        m.IdmAttribute,
					IsUid:               m.UID,
					Createable:          m.Createable,
					Updateable:          m.Updateable,
					ReturnedByDefault:   m.ReturnedByDefault,
					Multivalued:         m.Multivalued,
					ToConnectorScript:   m.Script.ToConnector,
					FromConnectorScript: m.Script.FromConnector,
				}); err != nil {
					return fmt.Errorf("failed to save mapping %s: %w", m.Name, err)
				}
			}
			return nil
		})
	})
}
