package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
)

func TestOperationStore_QueueAndArchive(t *testing.T) {
	ctx := context.Background()
	store := NewOperationStore()
	systemID := uuid.New()

	first, err := provisioning.NewOperation(provisioning.OpUpdate, systemID, provisioning.EntityIdentity, "alice", "uid-1", nil)
	require.NoError(t, err)
	second, err := provisioning.NewOperation(provisioning.OpUpdate, systemID, provisioning.EntityIdentity, "alice", "uid-1", nil)
	require.NoError(t, err)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second = second.WithResult(provisioning.NewResult(provisioning.StateException, provisioning.CodeTargetUpdateFailed, ""))

	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, first))

	ops, err := store.FindBySystemAndUID(ctx, systemID, "uid-1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, first.ID, ops[0].ID, "oldest first")

	failed, err := store.FindByState(ctx, provisioning.StateException, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, second.ID, failed[0].ID)

	require.NoError(t, store.Archive(ctx, first))
	_, err = store.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, provisioning.ErrOperationNotFound)
	archived, err := store.FindArchived(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, archived.ID)
	assert.Equal(t, 1, store.Len())

	assert.ErrorIs(t, store.Delete(ctx, first.ID), provisioning.ErrOperationNotFound)
}

func TestOperationStore_FindRetryable(t *testing.T) {
	ctx := context.Background()
	store := NewOperationStore()
	systemID := uuid.New()
	base := time.Now().UTC()

	codes := []provisioning.Code{
		provisioning.CodeMappingNotFound,
		provisioning.CodeTransformFailed,
		provisioning.CodeTargetTimeout,
	}
	var ids []uuid.UUID
	for i, code := range codes {
		op, err := provisioning.NewOperation(provisioning.OpCreate, systemID, provisioning.EntityIdentity, "alice", "", nil)
		require.NoError(t, err)
		op.CreatedAt = base.Add(time.Duration(i) * time.Second)
		op = op.WithResult(provisioning.NewResult(provisioning.StateException, code, ""))
		require.NoError(t, store.Save(ctx, op))
		ids = append(ids, op.ID)
	}

	ops, err := store.FindRetryable(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, ids[2], ops[0].ID)
}

func TestSystemStore_SetBlocked(t *testing.T) {
	ctx := context.Background()
	sys := system.System{ID: uuid.New(), Name: "ldap"}
	store := NewSystemStore(sys)

	require.NoError(t, store.SetBlocked(ctx, sys.ID, provisioning.OpUpdate, true))
	got, err := store.FindByID(ctx, sys.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked(provisioning.OpUpdate))
	assert.False(t, got.IsBlocked(provisioning.OpCreate))

	assert.ErrorIs(t, store.SetBlocked(ctx, uuid.New(), provisioning.OpUpdate, true), system.ErrSystemNotFound)
}

func TestBreakerStore_UpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewBreakerStore()
	systemID := uuid.New()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, systemID, func(w *breaker.Window) error {
				w.Append(provisioning.OpUpdate, int64(i))
				return nil
			})
		}()
	}
	wg.Wait()

	w, err := store.Load(ctx, systemID)
	require.NoError(t, err)
	assert.Equal(t, 50, w.Count(provisioning.OpUpdate, 0))
}

func TestBreakerStore_ConfigValidation(t *testing.T) {
	ctx := context.Background()
	store := NewBreakerStore()
	cfg := breaker.Config{
		ID:            uuid.New(),
		SystemID:      uuid.New(),
		OperationType: provisioning.OpUpdate,
		Period:        time.Minute,
		WarningLimit:  breaker.Limit(5),
		DisableLimit:  breaker.Limit(3),
	}

	assert.ErrorIs(t, store.Save(ctx, cfg), breaker.ErrInvalidConfig)

	cfg.DisableLimit = breaker.Limit(10)
	require.NoError(t, store.Save(ctx, cfg))
	got, err := store.Find(ctx, cfg.SystemID, provisioning.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = store.Find(ctx, cfg.SystemID, provisioning.OpCreate)
	assert.ErrorIs(t, err, breaker.ErrConfigNotFound)
}
