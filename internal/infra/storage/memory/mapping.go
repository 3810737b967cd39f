package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/mapping"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// MappingStore keeps mapping sets in registration order.
type MappingStore struct {
	mu   sync.RWMutex
	sets []mapping.Set
}

var _ mapping.Resolver = (*MappingStore)(nil)

// NewMappingStore creates a store seeded with sets.
func NewMappingStore(sets ...mapping.Set) *MappingStore {
	return &MappingStore{sets: sets}
}

// Add registers a mapping set.
func (s *MappingStore) Add(set mapping.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, set)
}

func (s *MappingStore) FindActive(_ context.Context, systemID uuid.UUID, entityType provisioning.EntityType) ([]mapping.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []mapping.Set
	for _, set := range s.sets {
		if set.Active && set.SystemID == systemID && set.EntityType == entityType {
			out = append(out, set)
		}
	}
	return out, nil
}
