package memory

import (
	"context"
	"sync"

	audit "landregistry/pkg/platform/audit"
)

type entityKey struct {
	entityType audit.EntityType
	entityID   string
}

// InMemoryStore keeps audit entries per entity. Append order is preserved.
type InMemoryStore struct {
	mu       sync.RWMutex
	byEntity map[entityKey][]audit.Event
	all      []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[entityKey][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEntity = make(map[entityKey][]audit.Event)
	s.all = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entityType: event.EntityType, entityID: event.EntityID}
	s.byEntity[key] = append(s.byEntity[key], event)
	s.all = append(s.all, event)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := entityKey{entityType: entityType, entityID: entityID}
	return append([]audit.Event{}, s.byEntity[key]...), nil
}

// ListRecent returns the most recent N events across all entities.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.all) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.all[start:]...), nil
}
