package store

import (
	"context"
	"sync"

	"landregistry/internal/payment/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemory keeps payments in process memory, indexed by id and by scope.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.PaymentID]*models.Payment
	byProperty map[id.PropertyID][]id.PaymentID
	byTransfer map[id.TransferID][]id.PaymentID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.PaymentID]*models.Payment),
		byProperty: make(map[id.PropertyID][]id.PaymentID),
		byTransfer: make(map[id.TransferID][]id.PaymentID),
	}
}

func clone(p *models.Payment) *models.Payment {
	cp := *p
	if p.VerifiedAt != nil {
		t := *p.VerifiedAt
		cp.VerifiedAt = &t
	}
	if p.MethodDetails != nil {
		cp.MethodDetails = append([]byte(nil), p.MethodDetails...)
	}
	return &cp
}

func (s *InMemory) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[p.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[p.ID] = clone(p)
	if !p.PropertyID.IsNil() {
		s.byProperty[p.PropertyID] = append(s.byProperty[p.PropertyID], p.ID)
	}
	if !p.TransferID.IsNil() {
		s.byTransfer[p.TransferID] = append(s.byTransfer[p.TransferID], p.ID)
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

// Execute runs validate-then-mutate atomically under the store lock.
func (s *InMemory) Execute(
	_ context.Context,
	paymentID id.PaymentID,
	validate func(*models.Payment) error,
	mutate func(*models.Payment),
) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(p); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(p)
	}
	return clone(p), nil
}

func (s *InMemory) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProperty[propertyID]
	out := make([]*models.Payment, 0, len(ids))
	for _, paymentID := range ids {
		out = append(out, clone(s.byID[paymentID]))
	}
	return out, nil
}

func (s *InMemory) ListByTransfer(_ context.Context, transferID id.TransferID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTransfer[transferID]
	out := make([]*models.Payment, 0, len(ids))
	for _, paymentID := range ids {
		out = append(out, clone(s.byID[paymentID]))
	}
	return out, nil
}
