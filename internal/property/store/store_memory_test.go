package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"landregistry/internal/property/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
)

func seedApplication(t *testing.T, s *InMemory, plot string) *models.PropertyApplication {
	t.Helper()
	app, err := models.NewPropertyApplication(
		id.NewPropertyID(), id.NewActorID(), plot,
		models.Location{Kebele: "05", SubCity: "Bole"}, 250, models.TypeResidential, time.Now(),
	)
	require.NoError(t, err)
	require.NoError(t, s.CreateIfPlotAvailable(context.Background(), app))
	return app
}

func TestInMemory_CreateIfPlotAvailable(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedApplication(t, s, "AA-000123")

	t.Run("duplicate plot conflicts", func(t *testing.T) {
		dup, err := models.NewPropertyApplication(
			id.NewPropertyID(), id.NewActorID(), "AA-000123",
			models.Location{}, 100, models.TypeCommercial, time.Now(),
		)
		require.NoError(t, err)
		assert.ErrorIs(t, s.CreateIfPlotAvailable(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("uniqueness is case-insensitive", func(t *testing.T) {
		dup, err := models.NewPropertyApplication(
			id.NewPropertyID(), id.NewActorID(), "aa-000123",
			models.Location{}, 100, models.TypeCommercial, time.Now(),
		)
		require.NoError(t, err)
		assert.ErrorIs(t, s.CreateIfPlotAvailable(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("distinct plot admitted", func(t *testing.T) {
		other, err := models.NewPropertyApplication(
			id.NewPropertyID(), id.NewActorID(), "AA-000124",
			models.Location{}, 100, models.TypeCommercial, time.Now(),
		)
		require.NoError(t, err)
		assert.NoError(t, s.CreateIfPlotAvailable(ctx, other))
	})
}

func TestInMemory_FindByID(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	app := seedApplication(t, s, "AA-1")

	t.Run("found", func(t *testing.T) {
		got, err := s.FindByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, app.PlotNumber, got.PlotNumber)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := s.FindByID(ctx, id.NewPropertyID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("returned copy does not alias the stored record", func(t *testing.T) {
		got, err := s.FindByID(ctx, app.ID)
		require.NoError(t, err)
		got.Status = models.StatusApproved

		again, err := s.FindByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, again.Status)
	})
}

func TestInMemory_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("validation failure leaves record untouched", func(t *testing.T) {
		s := NewInMemory()
		app := seedApplication(t, s, "AA-2")

		_, err := s.Execute(ctx, app.ID,
			func(a *models.PropertyApplication) error {
				return dErrors.New(dErrors.CodePreconditionFailed, "nope")
			},
			func(a *models.PropertyApplication) { a.Status = models.StatusApproved },
		)
		require.Error(t, err)

		got, err := s.FindByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("missing id", func(t *testing.T) {
		s := NewInMemory()
		_, err := s.Execute(ctx, id.NewPropertyID(), nil, nil)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("concurrent transitions admit exactly one winner", func(t *testing.T) {
		s := NewInMemory()
		app := seedApplication(t, s, "AA-3")

		var g errgroup.Group
		results := make(chan error, 16)
		for i := 0; i < 16; i++ {
			g.Go(func() error {
				_, err := s.Execute(ctx, app.ID,
					func(a *models.PropertyApplication) error { return a.CanReject() },
					func(a *models.PropertyApplication) {
						a.ApplyRejection(id.NewActorID(), "duplicate filing", time.Now())
					},
				)
				results <- err
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(results)

		var wins int
		for err := range results {
			if err == nil {
				wins++
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func TestInMemory_ListByOwner(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	app := seedApplication(t, s, "AA-4")
	seedApplication(t, s, "AA-5")

	mine, err := s.ListByOwner(ctx, app.Owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, app.ID, mine[0].ID)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
