package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/storage"
)

// Maintenance runs the slow housekeeping jobs: a morning summary for staff
// and the privacy-driven retention cleanup of call logs and terminated
// reservations.
type Maintenance struct {
	cron          *cron.Cron
	service       *Service
	reservations  *storage.ReservationRepository
	callLogs      *storage.CallLogRepository
	retentionDays int
}

// NewMaintenance creates the maintenance job runner.
func NewMaintenance(service *Service, reservations *storage.ReservationRepository, callLogs *storage.CallLogRepository, retentionDays int) *Maintenance {
	return &Maintenance{
		cron:          cron.New(),
		service:       service,
		reservations:  reservations,
		callLogs:      callLogs,
		retentionDays: retentionDays,
	}
}

// Start registers the jobs: daily summary at 7am, cleanup Sunday 2am.
func (m *Maintenance) Start() error {
	if _, err := m.cron.AddFunc("0 7 * * *", m.dailySummary); err != nil {
		return fmt.Errorf("scheduling daily summary: %w", err)
	}
	if _, err := m.cron.AddFunc("0 2 * * 0", m.cleanup); err != nil {
		return fmt.Errorf("scheduling cleanup: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop gracefully shuts down the job runner.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// dailySummary logs the last day's activity for the morning shift.
func (m *Maintenance) dailySummary() {
	ctx := context.Background()
	since := time.Now().UTC().Add(-24 * time.Hour)

	summary, err := m.service.Summary(ctx)
	if err != nil {
		log.Error().Err(err).Msg("daily summary: bed counts")
		return
	}
	created, err := m.reservations.CountCreatedSince(ctx, since)
	if err != nil {
		log.Error().Err(err).Msg("daily summary: reservation count")
		return
	}
	calls, err := m.callLogs.CountSince(ctx, since)
	if err != nil {
		log.Error().Err(err).Msg("daily summary: call count")
		return
	}

	log.Info().
		Int("available", summary.Available).
		Int("held", summary.Held).
		Int("occupied", summary.Occupied).
		Int("reservations_created", created).
		Int("calls", calls).
		Msg("daily summary")
}

// cleanup deletes aged-out call logs and terminated reservations.
func (m *Maintenance) cleanup() {
	ctx := context.Background()
	cutoff := time.Now().UTC().AddDate(0, 0, -m.retentionDays)

	callsDeleted, err := m.callLogs.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("cleanup: call logs")
	}
	resDeleted, err := m.reservations.DeleteTerminatedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("cleanup: reservations")
	}

	log.Info().
		Int64("call_logs_deleted", callsDeleted).
		Int64("reservations_deleted", resDeleted).
		Msg("retention cleanup complete")
}
