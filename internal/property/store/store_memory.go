package store

import (
	"context"
	"sync"

	"landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemory keeps property applications in process memory. Execute holds the
// store lock across validate and mutate so concurrent transitions on the same
// application cannot interleave.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.PropertyID]*models.PropertyApplication
	byPlot map[string]id.PropertyID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.PropertyID]*models.PropertyApplication),
		byPlot: make(map[string]id.PropertyID),
	}
}

func clone(app *models.PropertyApplication) *models.PropertyApplication {
	cp := *app
	if app.DecidedAt != nil {
		t := *app.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

// CreateIfPlotAvailable inserts the application unless its normalized plot
// number is already taken. Returns sentinel.ErrConflict on collision.
func (s *InMemory) CreateIfPlotAvailable(_ context.Context, app *models.PropertyApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizedPlotNumber(app.PlotNumber)
	if _, taken := s.byPlot[key]; taken {
		return sentinel.ErrConflict
	}
	s.byPlot[key] = app.ID
	s.byID[app.ID] = clone(app)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, propertyID id.PropertyID) (*models.PropertyApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.byID[propertyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(app), nil
}

func (s *InMemory) FindByPlotNumber(_ context.Context, plotNumber string) (*models.PropertyApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	propertyID, ok := s.byPlot[models.NormalizedPlotNumber(plotNumber)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[propertyID]), nil
}

// Execute runs validate-then-mutate atomically under the store lock and
// returns the updated application. The callbacks see the live record; mutate
// runs only when validate succeeds.
func (s *InMemory) Execute(
	_ context.Context,
	propertyID id.PropertyID,
	validate func(*models.PropertyApplication) error,
	mutate func(*models.PropertyApplication),
) (*models.PropertyApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.byID[propertyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(app); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(app)
	}
	return clone(app), nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner id.ActorID) ([]*models.PropertyApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PropertyApplication
	for _, app := range s.byID {
		if app.Owner == owner {
			out = append(out, clone(app))
		}
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.PropertyApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PropertyApplication, 0, len(s.byID))
	for _, app := range s.byID {
		out = append(out, clone(app))
	}
	return out, nil
}
