package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bethesda-shelter/backend/internal/config"
	"github.com/bethesda-shelter/backend/internal/reservation"
)

func newTestSession(t *testing.T) (*Session, *reservation.Service) {
	t.Helper()
	router, _ := newTestRouter(t)

	classifier := NewClassifier(config.DefaultKeywords())
	s := NewSession("call-1", "hash-1", classifier, router, nil, 20*time.Second)
	return s, router.service
}

func TestBedFlowEndToEnd(t *testing.T) {
	s, svc := newTestSession(t)
	ctx := context.Background()

	reply, done := s.HandleUtterance(ctx, "Do you have any beds available tonight?")
	assert.False(t, done)
	assert.Contains(t, reply, "108")
	assert.Equal(t, StateBedName, s.State())

	reply, done = s.HandleUtterance(ctx, "John")
	assert.False(t, done)
	assert.Equal(t, StateBedSituation, s.State())
	assert.NotEmpty(t, reply)

	_, done = s.HandleUtterance(ctx, "I was evicted last week")
	assert.False(t, done)
	assert.Equal(t, StateBedNeeds, s.State())

	_, done = s.HandleUtterance(ctx, "none")
	assert.False(t, done)
	assert.Equal(t, StateBedConfirm, s.State())

	reply, done = s.HandleUtterance(ctx, "Yes please")
	assert.False(t, done)
	assert.Contains(t, reply, "BM-")

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].BedID)
	assert.Equal(t, "John", active[0].CallerName)

	reply, done = s.HandleUtterance(ctx, "goodbye")
	assert.True(t, done)
	assert.NotEmpty(t, reply)
}

func TestExactlyOnceReservationPerSession(t *testing.T) {
	s, svc := newTestSession(t)
	ctx := context.Background()

	s.HandleUtterance(ctx, "I need a bed")
	s.HandleUtterance(ctx, "John")
	s.HandleUtterance(ctx, "evicted")
	s.HandleUtterance(ctx, "none")
	reply, _ := s.HandleUtterance(ctx, "yes")
	assert.Contains(t, reply, "BM-")

	// Asking again within the same session must not allocate a second bed.
	reply, _ = s.HandleUtterance(ctx, "I need a bed")
	assert.NotEmpty(t, reply)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCrisisPreemptsBedFlow(t *testing.T) {
	s, svc := newTestSession(t)
	ctx := context.Background()

	s.HandleUtterance(ctx, "I need a bed")
	assert.Equal(t, StateBedName, s.State())

	// Crisis preempts mid-flow, in the caller's language, and the call ends
	// with no reservation.
	reply, done := s.HandleUtterance(ctx, "I want to kill myself")
	assert.True(t, done)
	assert.Contains(t, reply, "988")

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSpanishCrisisRouting(t *testing.T) {
	s, svc := newTestSession(t)
	ctx := context.Background()

	reply, done := s.HandleUtterance(ctx, "Quiero matarme.")
	assert.True(t, done)
	assert.Equal(t, "es", s.Language())
	assert.Contains(t, reply, "988")
	assert.Contains(t, reply, "crisis")

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSpanishShelterNeedIsNotCrisis(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	reply, done := s.HandleUtterance(ctx, "Necesito una cama, estoy sin hogar")
	assert.False(t, done)
	assert.Equal(t, "es", s.Language())
	assert.Equal(t, StateBedName, s.State())
	assert.Contains(t, reply, "108")
}

func TestDecliningConfirmationReservesNothing(t *testing.T) {
	s, svc := newTestSession(t)
	ctx := context.Background()

	s.HandleUtterance(ctx, "I need a bed")
	s.HandleUtterance(ctx, "John")
	s.HandleUtterance(ctx, "evicted")
	s.HandleUtterance(ctx, "none")
	_, done := s.HandleUtterance(ctx, "no thanks")
	assert.False(t, done)
	assert.Equal(t, StateClassify, s.State())

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestChapelFlowEndToEnd(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, done := s.HandleUtterance(ctx, "I'd like to book a chapel service for our group")
	assert.False(t, done)
	assert.Equal(t, StateChapelDate, s.State())

	// A Saturday is re-elicited, not booked.
	s.HandleUtterance(ctx, "2026-08-08")
	s.HandleUtterance(ctx, "10:00")
	s.HandleUtterance(ctx, "Grace Choir")
	reply, done := s.HandleUtterance(ctx, "Ann Lee 555-0100")
	assert.False(t, done)
	assert.Equal(t, StateChapelDate, s.State())
	assert.NotContains(t, reply, "booked for")

	// A Monday goes through.
	s.HandleUtterance(ctx, "2026-08-10")
	s.HandleUtterance(ctx, "10:00")
	s.HandleUtterance(ctx, "Grace Choir")
	reply, done = s.HandleUtterance(ctx, "Ann Lee 555-0100")
	assert.False(t, done)
	assert.Contains(t, reply, "2026-08-10")
	assert.Contains(t, reply, "10:00")
}

func TestVolunteerFlowEndToEnd(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, done := s.HandleUtterance(ctx, "I'd like to volunteer at the shelter")
	assert.False(t, done)
	assert.Equal(t, StateVolunteerName, s.State())

	s.HandleUtterance(ctx, "Mary Jones")
	s.HandleUtterance(ctx, "555-0142")
	s.HandleUtterance(ctx, "weekends and monday evenings")
	reply, done := s.HandleUtterance(ctx, "meals, mentoring")
	assert.False(t, done)
	assert.NotEmpty(t, reply)
	assert.True(t, s.volCommitted)
}

func TestDonationProvidesInfo(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	reply, done := s.HandleUtterance(ctx, "I'd like to donate some clothes")
	assert.False(t, done)
	assert.Contains(t, reply, "611 Reily Street")
	assert.Equal(t, StateClassify, s.State())
}

func TestIdleTimeoutEndsRun(t *testing.T) {
	s, _ := newTestSession(t)
	s.idleTimeout = 50 * time.Millisecond

	tr := newFakeTransport("call-1")
	doneCh := make(chan struct{})
	go func() {
		s.Run(context.Background(), tr)
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end on idle timeout")
	}
	assert.NotEmpty(t, tr.spoken())
}

func TestHangupCancelsRun(t *testing.T) {
	s, _ := newTestSession(t)

	tr := newFakeTransport("call-2")
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		s.Run(ctx, tr)
		close(doneCh)
	}()

	cancel()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end on hangup")
	}
}

// fakeTransport is an in-memory telephony boundary for tests.
type fakeTransport struct {
	id string
	in chan Utterance

	mu  sync.Mutex
	out []string
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{
		id: id,
		in: make(chan Utterance, 8),
	}
}

func (f *fakeTransport) SessionID() string            { return f.id }
func (f *fakeTransport) CallerHash() string           { return "hash" }
func (f *fakeTransport) Utterances() <-chan Utterance { return f.in }

func (f *fakeTransport) Say(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, text)
	return nil
}

func (f *fakeTransport) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.out...)
}
