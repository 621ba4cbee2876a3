package store

import (
	"context"
	"sync"

	"landregistry/internal/dispute/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemory keeps disputes in process memory.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.DisputeID]*models.Dispute
	byProperty map[id.PropertyID][]id.DisputeID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.DisputeID]*models.Dispute),
		byProperty: make(map[id.PropertyID][]id.DisputeID),
	}
}

func clone(d *models.Dispute) *models.Dispute {
	cp := *d
	cp.Timeline = append([]models.TimelineEntry(nil), d.Timeline...)
	if d.Resolution != nil {
		res := *d.Resolution
		cp.Resolution = &res
	}
	return &cp
}

func (s *InMemory) Create(_ context.Context, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[d.ID] = clone(d)
	s.byProperty[d.PropertyID] = append(s.byProperty[d.PropertyID], d.ID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, disputeID id.DisputeID) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[disputeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

// Execute runs validate-then-mutate atomically under the store lock.
func (s *InMemory) Execute(
	_ context.Context,
	disputeID id.DisputeID,
	validate func(*models.Dispute) error,
	mutate func(*models.Dispute),
) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[disputeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(d); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(d)
	}
	return clone(d), nil
}

func (s *InMemory) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProperty[propertyID]
	out := make([]*models.Dispute, 0, len(ids))
	for _, disputeID := range ids {
		out = append(out, clone(s.byID[disputeID]))
	}
	return out, nil
}

func (s *InMemory) ListByDisputant(_ context.Context, disputant id.ActorID) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Dispute
	for _, d := range s.byID {
		if d.Disputant == disputant {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Dispute, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, clone(d))
	}
	return out, nil
}
