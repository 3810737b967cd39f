package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

type configKey struct {
	systemID uuid.UUID
	opType   provisioning.OperationType
}

// BreakerStore keeps break configs, their recipients and the per system
// windows.
type BreakerStore struct {
	mu         sync.RWMutex
	configs    map[configKey]breaker.Config
	recipients map[uuid.UUID][]string
	windows    map[uuid.UUID]breaker.Window
	// locks serializes Update per system.
	locks map[uuid.UUID]*sync.Mutex
}

var (
	_ breaker.ConfigRepository  = (*BreakerStore)(nil)
	_ breaker.WindowStore       = (*BreakerStore)(nil)
	_ breaker.RecipientResolver = (*BreakerStore)(nil)
)

// NewBreakerStore creates an empty store.
func NewBreakerStore() *BreakerStore {
	return &BreakerStore{
		configs:    make(map[configKey]breaker.Config),
		recipients: make(map[uuid.UUID][]string),
		windows:    make(map[uuid.UUID]breaker.Window),
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *BreakerStore) Find(_ context.Context, systemID uuid.UUID, t provisioning.OperationType) (breaker.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[configKey{systemID, t}]
	if !ok {
		return breaker.Config{}, breaker.ErrConfigNotFound
	}
	return cfg, nil
}

func (s *BreakerStore) Save(_ context.Context, cfg breaker.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[configKey{cfg.SystemID, cfg.OperationType}] = cfg
	return nil
}

// SetRecipients replaces the recipients of a config.
func (s *BreakerStore) SetRecipients(configID uuid.UUID, recipients ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[configID] = slices.Clone(recipients)
}

func (s *BreakerStore) Recipients(_ context.Context, configID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.recipients[configID]), nil
}

func (s *BreakerStore) Load(_ context.Context, systemID uuid.UUID) (breaker.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[systemID]
	if !ok {
		return breaker.NewWindow(systemID), nil
	}
	return w.Clone(), nil
}

func (s *BreakerStore) Store(_ context.Context, w breaker.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.SystemID] = w.Clone()
	return nil
}

func (s *BreakerStore) Update(ctx context.Context, systemID uuid.UUID, fn func(w *breaker.Window) error) error {
	lock := s.systemLock(systemID)
	lock.Lock()
	defer lock.Unlock()

	w, err := s.Load(ctx, systemID)
	if err != nil {
		return err
	}
	if err := fn(&w); err != nil {
		return err
	}
	return s.Store(ctx, w)
}

func (s *BreakerStore) systemLock(systemID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[systemID]
	if !ok {
		lock = new(sync.Mutex)
		s.locks[systemID] = lock
	}
	return lock
}
