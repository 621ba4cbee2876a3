package store

import (
	"context"
	"sync"

	"landregistry/internal/document/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemory keeps documents in process memory, indexed by id and by owning
// property.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.DocumentID]*models.Document
	byProperty map[id.PropertyID][]id.DocumentID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.DocumentID]*models.Document),
		byProperty: make(map[id.PropertyID][]id.DocumentID),
	}
}

func clone(doc *models.Document) *models.Document {
	cp := *doc
	if doc.ReviewedAt != nil {
		t := *doc.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

func (s *InMemory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[doc.ID] = clone(doc)
	s.byProperty[doc.PropertyID] = append(s.byProperty[doc.PropertyID], doc.ID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(doc), nil
}

// Execute runs validate-then-mutate atomically under the store lock.
func (s *InMemory) Execute(
	_ context.Context,
	documentID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.byID[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(doc); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(doc)
	}
	return clone(doc), nil
}

func (s *InMemory) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProperty[propertyID]
	out := make([]*models.Document, 0, len(ids))
	for _, documentID := range ids {
		out = append(out, clone(s.byID[documentID]))
	}
	return out, nil
}
