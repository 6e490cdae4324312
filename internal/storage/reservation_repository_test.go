package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

func makeReservation(code string, bedID int, createdAt time.Time) *models.Reservation {
	return &models.Reservation{
		ID:                GenerateID(),
		Code:              code,
		BedID:             bedID,
		CallerName:        "John Smith",
		Situation:         "eviction",
		PreferredLanguage: "en",
		Status:            models.ReservationActive,
		CreatedAt:         createdAt,
		ExpiresAt:         createdAt.Add(3 * time.Hour),
	}
}

func TestInsertRejectsDuplicateCode(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, nil, makeReservation("BM-0001", 1, now)))
	err := repo.Insert(ctx, nil, makeReservation("BM-0001", 2, now))
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestGetByCode(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, nil, makeReservation("BM-0002", 7, now)))

	r, err := repo.GetByCode(ctx, nil, "BM-0002")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 7, r.BedID)
	assert.Equal(t, models.ReservationActive, r.Status)
	assert.Nil(t, r.TerminalAt)

	missing, err := repo.GetByCode(ctx, nil, "BM-9999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListActiveOrdersByCreationThenCode(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Insert(ctx, nil, makeReservation("BM-0300", 3, base.Add(2*time.Second))))
	require.NoError(t, repo.Insert(ctx, nil, makeReservation("BM-0200", 2, base.Add(time.Second))))
	require.NoError(t, repo.Insert(ctx, nil, makeReservation("BM-0100", 1, base.Add(time.Second))))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "BM-0100", active[0].Code)
	assert.Equal(t, "BM-0200", active[1].Code)
	assert.Equal(t, "BM-0300", active[2].Code)
}

func TestListExpiringBefore(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	overdue := makeReservation("BM-0400", 4, now.Add(-4*time.Hour))
	fresh := makeReservation("BM-0500", 5, now)
	require.NoError(t, repo.Insert(ctx, nil, overdue))
	require.NoError(t, repo.Insert(ctx, nil, fresh))

	expiring, err := repo.ListExpiringBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "BM-0400", expiring[0].Code)
}

func TestUpdateStatusCAS(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, nil, makeReservation("BM-0600", 6, now)))

	terminal := now.Add(time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, nil, "BM-0600", models.ReservationActive, models.ReservationCheckedIn, &terminal))

	// The losing writer sees a conflict, not silent success.
	err := repo.UpdateStatus(ctx, nil, "BM-0600", models.ReservationActive, models.ReservationCancelled, &terminal)
	assert.ErrorIs(t, err, ErrStatusConflict)

	r, err := repo.GetByCode(ctx, nil, "BM-0600")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedIn, r.Status)
	require.NotNil(t, r.TerminalAt)
}
