package store

import (
	"context"
	"sync"

	"landregistry/internal/transfer/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemory keeps transfers in process memory.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.TransferID]*models.Transfer
	byProperty map[id.PropertyID][]id.TransferID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.TransferID]*models.Transfer),
		byProperty: make(map[id.PropertyID][]id.TransferID),
	}
}

func clone(t *models.Transfer) *models.Transfer {
	cp := *t
	if t.DecidedAt != nil {
		at := *t.DecidedAt
		cp.DecidedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	cp.DocumentDecisions = append([]models.DocumentDecision(nil), t.DocumentDecisions...)
	cp.ComplianceChecks = append([]models.ComplianceCheck(nil), t.ComplianceChecks...)
	return &cp
}

// Create inserts the transfer. The single-open-transfer rule is re-checked
// under the same lock as the insert, mirroring the partial unique index the
// SQL store relies on, so racing initiations cannot both land.
func (s *InMemory) Create(_ context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[t.ID]; exists {
		return sentinel.ErrConflict
	}
	if !t.Status.IsTerminal() {
		for _, existing := range s.byProperty[t.PropertyID] {
			if !s.byID[existing].Status.IsTerminal() {
				return sentinel.ErrConflict
			}
		}
	}
	s.byID[t.ID] = clone(t)
	s.byProperty[t.PropertyID] = append(s.byProperty[t.PropertyID], t.ID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, transferID id.TransferID) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[transferID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(t), nil
}

// HasOpenTransfer reports whether the property already has a transfer that is
// not yet terminal.
func (s *InMemory) HasOpenTransfer(_ context.Context, propertyID id.PropertyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, transferID := range s.byProperty[propertyID] {
		if !s.byID[transferID].Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

// Execute runs validate-then-mutate atomically under the store lock.
func (s *InMemory) Execute(
	_ context.Context,
	transferID id.TransferID,
	validate func(*models.Transfer) error,
	mutate func(*models.Transfer),
) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[transferID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(t); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(t)
	}
	return clone(t), nil
}

func (s *InMemory) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProperty[propertyID]
	out := make([]*models.Transfer, 0, len(ids))
	for _, transferID := range ids {
		out = append(out, clone(s.byID[transferID]))
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transfer, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, clone(t))
	}
	return out, nil
}
