package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/db"
	"github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/infra/storage"
)

var (
	_ breaker.ConfigRepository  = (*BreakerStore)(nil)
	_ breaker.WindowStore       = (*BreakerStore)(nil)
	_ breaker.RecipientResolver = (*BreakerStore)(nil)
)

// BreakerStore persists break configs, their recipients and the per-system
// windows. Window updates lock the window row for the length of the
// transaction, so concurrent checks on one system are serialized across
// processes.
type BreakerStore struct {
	q      *db.Queries
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewBreakerStore creates a breaker store backed by PostgreSQL.
func NewBreakerStore(pool *pgxpool.Pool, tracer trace.Tracer) *BreakerStore {
	return &BreakerStore{q: db.New(pool), pool: pool, tracer: tracer}
}

// Find returns the config of a system and operation type.
func (s *BreakerStore) Find(ctx context.Context, systemID uuid.UUID, t provisioning.OperationType) (breaker.Config, error) {
	attrs := storage.DBAttributes(
		attribute.String("system.id", systemID.String()),
		attribute.String("operation.type", string(t)),
	)

	var row db.BreakConfig
	err := storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.Find", attrs, func(ctx context.Context) error {
		var err error
		row, err = s.q.FindBreakConfig(ctx, db.FindBreakConfigParams{
			SystemID:      pgUUID(systemID),
			OperationType: db.OperationType(t),
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return breaker.ErrConfigNotFound
		}
		return err
	})
	if err != nil {
		return breaker.Config{}, err
	}

	return breaker.Config{
		ID:            fromPgUUID(row.ID),
		SystemID:      fromPgUUID(row.SystemID),
		OperationType: provisioning.OperationType(row.OperationType),
		Period:        time.Duration(row.PeriodMs) * time.Millisecond,
		WarningLimit:  fromPgInt4(row.WarningLimit),
		DisableLimit:  fromPgInt4(row.DisableLimit),
		Disabled:      row.Disabled,
	}, nil
}

// Save validates and stores cfg. A system holds one config per type.
func (s *BreakerStore) Save(ctx context.Context, cfg breaker.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	attrs := storage.DBAttributes(attribute.String("config.id", cfg.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.Save", attrs, func(ctx context.Context) error {
		return s.q.UpsertBreakConfig(ctx, db.UpsertBreakConfigParams{
			ID:            pgUUID(cfg.ID),
			SystemID:      pgUUID(cfg.SystemID),
			OperationType: db.OperationType(cfg.OperationType),
			PeriodMs:      cfg.Period.Milliseconds(),
			WarningLimit:  pgInt4(cfg.WarningLimit),
			DisableLimit:  pgInt4(cfg.DisableLimit),
			Disabled:      cfg.Disabled,
		})
	})
}

// Recipients returns the escalation recipients of a config.
func (s *BreakerStore) Recipients(ctx context.Context, configID uuid.UUID) ([]string, error) {
	attrs := storage.DBAttributes(attribute.String("config.id", configID.String()))

	var recipients []string
	err := storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.Recipients", attrs, func(ctx context.Context) error {
		var err error
		recipients, err = s.q.FindBreakRecipients(ctx, pgUUID(configID))
		return err
	})
	return recipients, err
}

// SetRecipients replaces the escalation recipients of a config.
func (s *BreakerStore) SetRecipients(ctx context.Context, configID uuid.UUID, recipients ...string) error {
	attrs := storage.DBAttributes(
		attribute.String("config.id", configID.String()),
		attribute.Int("recipients", len(recipients)),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.SetRecipients", attrs, func(ctx context.Context) error {
		return storage.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			q := s.q.WithTx(tx)
			id := pgUUID(configID)
			if err := q.DeleteBreakRecipients(ctx, id); err != nil {
				return fmt.Errorf("failed to clear recipients of config %s: %w", configID, err)
			}
			for _, r := range recipients {
				if err := q.InsertBreakRecipient(ctx, db.InsertBreakRecipientParams{ConfigID: id, Recipient: r}); err != nil {
					return fmt.Errorf("failed to add recipient to config %s: %w", configID, err)
				}
			}
			return nil
		})
	})
}

// Load returns the stored window of a system or an empty one.
func (s *BreakerStore) Load(ctx context.Context, systemID uuid.UUID) (breaker.Window, error) {
	attrs := storage.DBAttributes(attribute.String("system.id", systemID.String()))

	w := breaker.NewWindow(systemID)
	err := storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.Load", attrs, func(ctx context.Context) error {
		row, err := s.q.FindBreakWindow(ctx, pgUUID(systemID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		return decodeEntries(row.Entries, &w)
	})
	if err != nil {
		return breaker.Window{}, err
	}
	return w, nil
}

// Store replaces the stored window.
func (s *BreakerStore) Store(ctx context.Context, w breaker.Window) error {
	attrs := storage.DBAttributes(
		attribute.String("system.id", w.SystemID.String()),
		attribute.Int("entries", len(w.Entries)),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.Store", attrs, func(ctx context.Context) error {
		return upsertWindow(ctx, s.q, w)
	})
}

// Update loads the window with a row lock, applies fn and stores the
// result in the same transaction.
func (s *BreakerStore) Update(ctx context.Context, systemID uuid.UUID, fn func(w *breaker.Window) error) error {
	attrs := storage.DBAttributes(attribute.String("system.id", systemID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "breakerStore.Update", attrs, func(ctx context.Context) error {
		return storage.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			q := s.q.WithTx(tx)
			id := pgUUID(systemID)
			if err := q.EnsureBreakWindow(ctx, id); err != nil {
				return fmt.Errorf("failed to create window of system %s: %w", systemID, err)
			}
			row, err := q.LockBreakWindow(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to lock window of system %s: %w", systemID, err)
			}

			w := breaker.NewWindow(systemID)
			if err := decodeEntries(row.Entries, &w); err != nil {
				return err
			}
			if err := fn(&w); err != nil {
				return err
			}
			return upsertWindow(ctx, q, w)
		})
	})
}

func decodeEntries(raw []byte, w *breaker.Window) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &w.Entries); err != nil {
		return fmt.Errorf("failed to decode window of system %s: %w", w.SystemID, err)
	}
	return nil
}

func upsertWindow(ctx context.Context, q *db.Queries, w breaker.Window) error {
	entries := w.Entries
	if entries == nil {
		entries = []breaker.Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode window of system %s: %w", w.SystemID, err)
	}
	return q.UpsertBreakWindow(ctx, db.UpsertBreakWindowParams{SystemID: pgUUID(w.SystemID), Entries: raw})
}
