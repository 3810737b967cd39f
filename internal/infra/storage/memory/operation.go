// Package memory provides in-process implementations of the provisioning
// repositories. They back local runs and application tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// OperationStore keeps the active queue and the archive in maps.
type OperationStore struct {
	mu       sync.RWMutex
	queue    map[uuid.UUID]provisioning.Operation
	archived map[uuid.UUID]provisioning.Operation
}

var _ provisioning.Repository = (*OperationStore)(nil)

// NewOperationStore creates an empty operation store.
func NewOperationStore() *OperationStore {
	return &OperationStore{
		queue:    make(map[uuid.UUID]provisioning.Operation),
		archived: make(map[uuid.UUID]provisioning.Operation),
	}
}

func (s *OperationStore) Save(_ context.Context, op provisioning.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[op.ID] = op.Clone()
	return nil
}

func (s *OperationStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[id]; !ok {
		return provisioning.ErrOperationNotFound
	}
	delete(s.queue, id)
	return nil
}

func (s *OperationStore) Archive(_ context.Context, op provisioning.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, op.ID)
	s.archived[op.ID] = op.Clone()
	return nil
}

func (s *OperationStore) FindByID(_ context.Context, id uuid.UUID) (provisioning.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.queue[id]
	if !ok {
		return provisioning.Operation{}, provisioning.ErrOperationNotFound
	}
	return op.Clone(), nil
}

func (s *OperationStore) FindArchived(_ context.Context, id uuid.UUID) (provisioning.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.archived[id]
	if !ok {
		return provisioning.Operation{}, provisioning.ErrOperationNotFound
	}
	return op.Clone(), nil
}

func (s *OperationStore) FindBySystemAndUID(_ context.Context, systemID uuid.UUID, uid string) ([]provisioning.Operation, error) {
	return s.filter(func(op provisioning.Operation) bool {
		return op.SystemID == systemID && op.SystemEntityUID == uid
	}, 0), nil
}

func (s *OperationStore) FindByState(_ context.Context, state provisioning.State, limit int) ([]provisioning.Operation, error) {
	return s.filter(func(op provisioning.Operation) bool { return op.Result.State == state }, limit), nil
}

func (s *OperationStore) FindRetryable(_ context.Context, limit int) ([]provisioning.Operation, error) {
	return s.filter(provisioning.Operation.IsRetryable, limit), nil
}

// Len returns the size of the active queue.
func (s *OperationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

func (s *OperationStore) filter(keep func(provisioning.Operation) bool, limit int) []provisioning.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []provisioning.Operation
	for _, op := range s.queue {
		if keep(op) {
			out = append(out, op.Clone())
		}
	}
	slices.SortFunc(out, func(a, b provisioning.Operation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
