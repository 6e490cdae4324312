package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

func TestExpireOverdueReleasesBeds(t *testing.T) {
	// A negative hold makes the reservation overdue the moment it exists.
	svc, _ := newTestService(t, -time.Minute)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	count, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationExpired, r.Status)
	require.NotNil(t, r.TerminalAt)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TotalBeds, summary.Available)
}

func TestExpireOverdueIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, -time.Minute)
	ctx := context.Background()

	_, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	count, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A second sweep with no new expirations is a no-op.
	count, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpireLeavesFreshHoldsAlone(t *testing.T) {
	svc, _ := newTestService(t, 3*time.Hour)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	count, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, r.Status)
}

func TestExpireLosesToCheckIn(t *testing.T) {
	svc, _ := newTestService(t, -time.Minute)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	// Check-in wins first; the sweep must leave its effect in place.
	require.NoError(t, svc.CheckIn(ctx, res.Code, res.BedID))

	count, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedIn, r.Status)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Occupied)
}

func TestSchedulerSweepsOnStart(t *testing.T) {
	svc, _ := newTestService(t, -time.Minute)
	ctx := context.Background()

	res, err := svc.Create(ctx, createParams())
	require.NoError(t, err)

	sched := NewScheduler(svc, 30*time.Second)
	require.NoError(t, sched.Start())
	defer sched.Stop()

	// Start performs an immediate sweep, so the backlog is already clear.
	r, err := svc.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationExpired, r.Status)
}
