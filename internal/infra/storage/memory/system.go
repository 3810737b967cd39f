package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
)

// SystemStore keeps target systems in a map.
type SystemStore struct {
	mu      sync.RWMutex
	systems map[uuid.UUID]system.System
}

var _ system.Repository = (*SystemStore)(nil)

// NewSystemStore creates a store seeded with systems.
func NewSystemStore(systems ...system.System) *SystemStore {
	s := &SystemStore{systems: make(map[uuid.UUID]system.System, len(systems))}
	for _, sys := range systems {
		s.systems[sys.ID] = sys
	}
	return s
}

func (s *SystemStore) FindByID(_ context.Context, id uuid.UUID) (system.System, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sys, ok := s.systems[id]
	if !ok {
		return system.System{}, system.ErrSystemNotFound
	}
	return sys, nil
}

func (s *SystemStore) Save(_ context.Context, sys system.System) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sys.UpdatedAt = time.Now().UTC()
	s.systems[sys.ID] = sys
	return nil
}

func (s *SystemStore) SetBlocked(_ context.Context, id uuid.UUID, t provisioning.OperationType, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sys, ok := s.systems[id]
	if !ok {
		return system.ErrSystemNotFound
	}
	s.systems[id] = sys.SetBlocked(t, blocked)
	return nil
}
