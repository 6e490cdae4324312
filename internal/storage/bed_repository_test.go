package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunMigrations(db))
	require.NoError(t, NewBedRepository(db).EnsureBeds(context.Background()))
	return db
}

func newSeededBedRepo(t *testing.T) *BedRepository {
	t.Helper()
	repo := NewBedRepository(newTestDB(t))
	require.NoError(t, repo.EnsureBeds(context.Background()))
	return repo
}

func TestEnsureBedsCreatesFullInventory(t *testing.T) {
	repo := newSeededBedRepo(t)
	ctx := context.Background()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TotalBeds, n)

	beds, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, beds, models.TotalBeds)
	for i, b := range beds {
		assert.Equal(t, i+1, b.BedID)
		assert.Equal(t, models.BedAvailable, b.Status)
	}
}

func TestEnsureBedsIsIdempotent(t *testing.T) {
	repo := newSeededBedRepo(t)
	ctx := context.Background()

	// Mutate one bed, then re-run the seed: it must not overwrite.
	require.NoError(t, repo.Transition(ctx, nil, 42, models.BedAvailable, models.BedHeld))
	require.NoError(t, repo.EnsureBeds(ctx))

	status, err := repo.GetStatus(ctx, nil, 42)
	require.NoError(t, err)
	assert.Equal(t, models.BedHeld, status)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TotalBeds, n)
}

func TestTransitionCAS(t *testing.T) {
	repo := newSeededBedRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Transition(ctx, nil, 1, models.BedAvailable, models.BedHeld))

	// A second writer expecting available must lose.
	err := repo.Transition(ctx, nil, 1, models.BedAvailable, models.BedHeld)
	assert.ErrorIs(t, err, ErrTransitionConflict)

	// Unknown beds are not conflicts.
	err = repo.Transition(ctx, nil, 999, models.BedAvailable, models.BedHeld)
	assert.ErrorIs(t, err, ErrBedNotFound)
}

func TestFirstAvailablePrefersLowestID(t *testing.T) {
	repo := newSeededBedRepo(t)
	ctx := context.Background()

	id, err := repo.FirstAvailable(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	require.NoError(t, repo.Transition(ctx, nil, 1, models.BedAvailable, models.BedOccupied))
	require.NoError(t, repo.Transition(ctx, nil, 2, models.BedAvailable, models.BedHeld))

	id, err = repo.FirstAvailable(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestSummaryCountsSumToTotal(t *testing.T) {
	repo := newSeededBedRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Transition(ctx, nil, 1, models.BedAvailable, models.BedHeld))
	require.NoError(t, repo.Transition(ctx, nil, 2, models.BedAvailable, models.BedOccupied))

	s, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Held)
	assert.Equal(t, 1, s.Occupied)
	assert.Equal(t, models.TotalBeds-2, s.Available)
	assert.Equal(t, models.TotalBeds, s.Available+s.Held+s.Occupied)
}
