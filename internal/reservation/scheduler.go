package reservation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/metrics"
)

// Scheduler drives the expiration sweep: a pull-based periodic loop rather
// than per-reservation timers. One coarse-grained loop survives restarts
// without state and tolerates clock adjustments; worst-case lateness is one
// tick, which is negligible against a multi-hour hold.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	tick    time.Duration

	// sweeping guards against pileup: a tick that fires while the
	// previous sweep is still running is skipped.
	sweeping atomic.Bool
}

// NewScheduler creates the expiration scheduler.
func NewScheduler(service *Service, tick time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		service: service,
		tick:    tick,
	}
}

// Start sweeps once immediately to clear any backlog from downtime, then
// begins the periodic loop.
func (s *Scheduler) Start() error {
	s.sweep()

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.tick), s.sweep)
	if err != nil {
		return fmt.Errorf("scheduling expiration sweep: %w", err)
	}
	s.cron.Start()
	log.Info().Dur("tick", s.tick).Msg("expiration scheduler started")
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("expiration scheduler stopped")
}

// sweep runs one pass over the overdue reservations.
func (s *Scheduler) sweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		metrics.ExpirationSweepsSkipped.Inc()
		log.Warn().Msg("expiration tick overran, skipping")
		return
	}
	defer s.sweeping.Store(false)

	count, err := s.service.ExpireOverdue(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("expiration sweep failed")
		return
	}
	metrics.ExpirationSweeps.Inc()
	if count > 0 {
		log.Info().Int("expired", count).Msg("expiration sweep released beds")
	}
}
