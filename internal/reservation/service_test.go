package reservation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

func newTestService(t *testing.T, hold time.Duration) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db))

	beds := storage.NewBedRepository(db)
	require.NoError(t, beds.EnsureBeds(context.Background()))

	svc := NewService(db, beds, storage.NewReservationRepository(db), nil, hold, 8)
	return svc, db
}

func createParams() CreateParams {
	return CreateParams{
		CallerName: "John Smith",
		Situation:  "eviction",
		Language:   "en",
	}
}

func TestCreateHappyPath(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)
	assert.Equal(t, 1, res.BedID)
	assert.NotEmpty(t, res.Code)
	assert.Equal(t, models.ReservationActive, res.Status)
	assert.Equal(t, res.CreatedAt.Add(3*time.Hour), res.ExpiresAt)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Held)
	assert.Equal(t, models.TotalBeds-1, summary.Available)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].BedID)
}

func TestCreateRequiresCallerName(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)

	_, err := svc.Create(context.Background(), CreateParams{Situation: "eviction"})
	assert.ErrorIs(t, err, ErrValidation)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TotalBeds, summary.Available)
}

func TestCheckIn(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	require.NoError(t, svc.CheckIn(ctx, res.Code, res.BedID))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Occupied)
	assert.Equal(t, models.TotalBeds-1, summary.Available)

	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedIn, r.Status)
	require.NotNil(t, r.TerminalAt)
}

func TestCheckInBedMismatch(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	err = svc.CheckIn(ctx, res.Code, res.BedID+1)
	assert.ErrorIs(t, err, ErrBedMismatch)

	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, r.Status)
}

func TestCancelReleasesBed(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, res.Code))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TotalBeds, summary.Available)

	// Idempotent: cancelling again is a no-op, not an error.
	require.NoError(t, svc.Cancel(ctx, res.Code))

	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, r.Status)
}

func TestCancelAfterCheckInConflicts(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)
	require.NoError(t, svc.CheckIn(ctx, res.Code, res.BedID))

	err = svc.Cancel(ctx, res.Code)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCheckInIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	require.NoError(t, svc.CheckIn(ctx, res.Code, res.BedID))
	require.NoError(t, svc.CheckIn(ctx, res.Code, res.BedID))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Occupied)
}

func TestCancelCheckInRace(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var cancelErr, checkInErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		cancelErr = svc.Cancel(ctx, res.Code)
	}()
	go func() {
		defer wg.Done()
		checkInErr = svc.CheckIn(ctx, res.Code, res.BedID)
	}()
	wg.Wait()

	// Exactly one wins; the loser sees a conflict.
	if cancelErr == nil {
		assert.ErrorIs(t, checkInErr, ErrConflict)
	} else {
		assert.NoError(t, checkInErr)
		assert.ErrorIs(t, cancelErr, ErrConflict)
	}

	// Final state is coherent either way.
	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	switch r.Status {
	case models.ReservationCancelled:
		assert.Equal(t, models.TotalBeds, summary.Available)
	case models.ReservationCheckedIn:
		assert.Equal(t, 1, summary.Occupied)
		assert.Equal(t, models.TotalBeds-1, summary.Available)
	default:
		t.Fatalf("unexpected terminal status %q", r.Status)
	}
}

func TestCheckOut(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)
	require.NoError(t, svc.CheckIn(ctx, res.Code, res.BedID))

	require.NoError(t, svc.CheckOut(ctx, res.BedID))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TotalBeds, summary.Available)

	// The reservation keeps its checked_in status; it already satisfied.
	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedIn, r.Status)
	require.NotNil(t, r.TerminalAt)

	// Idempotent: a second check-out is a no-op.
	require.NoError(t, svc.CheckOut(ctx, res.BedID))
}

func TestCheckOutHeldBedConflicts(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	err = svc.CheckOut(ctx, res.BedID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestNoCapacity(t *testing.T) {
	svc, db := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	// Fill the house directly.
	_, err := db.Exec(`UPDATE beds SET status = 'occupied'`)
	require.NoError(t, err)

	_, err = svc.Create(ctx, createParams())
	assert.ErrorIs(t, err, ErrNoCapacity)

	// No side effect: nothing was reserved.
	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAllocationDeterminismUnderQuiescence(t *testing.T) {
	svc, db := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	_, err := db.Exec(`UPDATE beds SET status = 'occupied'`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE beds SET status = 'available' WHERE bed_id IN (5, 9, 17)`)
	require.NoError(t, err)

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)
	assert.Equal(t, 5, res.BedID)
}

func TestConcurrentAllocationNeverDoubleBooks(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	const callers = 24
	results := make(chan *models.Reservation, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(ctx, createParams())
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	seenBeds := make(map[int]bool)
	seenCodes := make(map[string]bool)
	count := 0
	for res := range results {
		assert.False(t, seenBeds[res.BedID], "bed %d allocated twice", res.BedID)
		assert.False(t, seenCodes[res.Code], "code %s issued twice", res.Code)
		seenBeds[res.BedID] = true
		seenCodes[res.Code] = true
		count++
	}
	assert.Equal(t, callers, count)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, callers, summary.Held)
	assert.Equal(t, models.TotalBeds, summary.Available+summary.Held+summary.Occupied)
}

func TestWalkInCheckIn(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.CheckInWalkIn(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 10, res.BedID)
	assert.Equal(t, models.ReservationCheckedIn, res.Status)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Occupied)

	// A second walk-in on the same bed conflicts.
	_, err = svc.CheckInWalkIn(ctx, 10, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestManualHold(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Hold(ctx, 20))

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Held)

	// No shadow reservation backs a manual hold.
	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = svc.Hold(ctx, 20)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestVerifyInventory(t *testing.T) {
	svc, db := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.VerifyInventory(ctx))

	_, err := db.Exec(`DELETE FROM beds WHERE bed_id = 108`)
	require.NoError(t, err)
	assert.Error(t, svc.VerifyInventory(ctx))
}
