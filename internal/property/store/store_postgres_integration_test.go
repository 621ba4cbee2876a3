//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/property/models"
	"landregistry/internal/property/store"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/testutil/containers"
)

func newApplication(t *testing.T, plot string) *models.PropertyApplication {
	t.Helper()
	app, err := models.NewPropertyApplication(
		id.NewPropertyID(),
		id.NewActorID(),
		plot,
		models.Location{Kebele: "05", SubCity: "Bole"},
		240.5,
		models.TypeResidential,
		time.Now().UTC().Truncate(time.Microsecond),
	)
	require.NoError(t, err)
	return app
}

func TestPostgresPlotUniquenessIsCaseInsensitive(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations")
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()

	require.NoError(t, s.CreateIfPlotAvailable(ctx, newApplication(t, "AA-001234")))

	err := s.CreateIfPlotAvailable(ctx, newApplication(t, "aa-001234"))
	require.ErrorIs(t, err, sentinel.ErrConflict)

	found, err := s.FindByPlotNumber(ctx, "  AA-001234 ")
	require.NoError(t, err)
	assert.Equal(t, "AA-001234", found.PlotNumber)
}

func TestPostgresExecuteRoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations")
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()

	app := newApplication(t, "AA-002000")
	require.NoError(t, s.CreateIfPlotAvailable(ctx, app))

	updated, err := s.Execute(ctx, app.ID,
		func(a *models.PropertyApplication) error { return nil },
		func(a *models.PropertyApplication) {
			a.ApplyRecomputation(true, false, true, time.Now().UTC())
		})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentsValidated, updated.Status)

	reread, err := s.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, reread.DocumentsValidated)
	assert.Equal(t, models.StatusDocumentsValidated, reread.Status)
}

func TestPostgresExecuteNotFound(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations")
	s := store.NewPostgres(pg.DB)

	_, err := s.Execute(context.Background(), id.NewPropertyID(), nil, nil)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

// Execute takes the row under FOR UPDATE, so concurrent read-modify-write
// cycles on one application serialize instead of losing updates.
func TestPostgresExecuteSerializesWriters(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../migrations")
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()

	app := newApplication(t, "AA-003000")
	require.NoError(t, s.CreateIfPlotAvailable(ctx, app))

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Execute(ctx, app.ID, nil, func(a *models.PropertyApplication) {
				a.DecisionNotes += "x"
				a.UpdatedAt = time.Now().UTC()
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := s.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, final.DecisionNotes, writers)
}
