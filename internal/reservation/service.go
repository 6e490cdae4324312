package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/metrics"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
	"github.com/bethesda-shelter/backend/internal/websocket"
)

// codeInsertRetries bounds confirmation-code collision retries inside one
// allocation attempt.
const codeInsertRetries = 5

// CreateParams carries the caller details for a new reservation.
type CreateParams struct {
	CallerHash string
	CallerName string
	Situation  string
	Needs      string
	Language   string
}

// Service is the public reservation API. Every multi-step mutation runs
// inside one transaction with the service mutex held, so the registry and
// the store can never disagree at an observable point. The mutex is never
// held across a network or model call.
type Service struct {
	mu sync.Mutex

	db           *storage.DB
	beds         *storage.BedRepository
	reservations *storage.ReservationRepository

	broadcaster *websocket.EventBroadcaster

	holdDuration time.Duration
	retryMax     int
}

// NewService creates the reservation service. hub may be nil in tests.
func NewService(db *storage.DB, beds *storage.BedRepository, reservations *storage.ReservationRepository, hub *websocket.Hub, holdDuration time.Duration, retryMax int) *Service {
	var broadcaster *websocket.EventBroadcaster
	if hub != nil {
		broadcaster = websocket.NewEventBroadcaster(hub)
	}
	return &Service{
		db:           db,
		beds:         beds,
		reservations: reservations,
		broadcaster:  broadcaster,
		holdDuration: holdDuration,
		retryMax:     retryMax,
	}
}

// Create atomically picks the lowest-numbered available bed and installs an
// active reservation on it. Returns ErrNoCapacity when the house is full and
// ErrConflict when racing writers win the same bed more than retryMax times.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Reservation, error) {
	if strings.TrimSpace(p.CallerName) == "" {
		return nil, fmt.Errorf("%w: caller name is required", ErrValidation)
	}
	if p.Language == "" {
		p.Language = "en"
	}

	var res *models.Reservation
	for attempt := 0; ; attempt++ {
		r, err := s.allocateOnce(ctx, p)
		if err == nil {
			res = r
			break
		}
		if errors.Is(err, ErrNoCapacity) {
			metrics.AllocationNoCapacity.Inc()
			return nil, ErrNoCapacity
		}
		if errors.Is(err, storage.ErrTransitionConflict) {
			metrics.AllocationConflicts.Inc()
			if attempt >= s.retryMax {
				return nil, ErrConflict
			}
			// Tiny jitter so racing callers don't reconverge in lockstep.
			time.Sleep(time.Duration(rand.Intn(4)+1) * time.Millisecond)
			continue
		}
		return nil, err
	}

	metrics.ReservationsCreated.Inc()
	log.Info().Str("code", res.Code).Int("bed_id", res.BedID).
		Time("expires_at", res.ExpiresAt).Msg("reservation created")

	if s.broadcaster != nil {
		s.broadcaster.ReservationCreated(res)
		s.broadcaster.BedStatusChanged(res.BedID, models.BedAvailable, models.BedHeld)
	}
	s.refreshBedMetrics(ctx)
	return res, nil
}

// allocateOnce runs one allocation attempt as a single critical section.
// Any failure rolls the whole attempt back; no partial effect is visible.
func (s *Service) allocateOnce(ctx context.Context, p CreateParams) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res *models.Reservation
	err := s.db.Transaction(func(tx *sql.Tx) error {
		bedID, err := s.beds.FirstAvailable(ctx, tx)
		if err == storage.ErrBedNotFound {
			return ErrNoCapacity
		}
		if err != nil {
			return err
		}

		// Re-verify and take the bed in one compare-and-set.
		if err := s.beds.Transition(ctx, tx, bedID, models.BedAvailable, models.BedHeld); err != nil {
			return err
		}

		now := time.Now().UTC()
		r := &models.Reservation{
			ID:                storage.GenerateID(),
			BedID:             bedID,
			CallerHash:        p.CallerHash,
			CallerName:        p.CallerName,
			Situation:         p.Situation,
			Needs:             p.Needs,
			PreferredLanguage: p.Language,
			Status:            models.ReservationActive,
			CreatedAt:         now,
			ExpiresAt:         now.Add(s.holdDuration),
		}

		for i := 0; i < codeInsertRetries; i++ {
			r.Code = GenerateCode()
			err = s.reservations.Insert(ctx, tx, r)
			if err == nil {
				break
			}
			if err != storage.ErrDuplicateCode {
				return err
			}
		}
		if err != nil {
			return fmt.Errorf("generating unique confirmation code: %w", err)
		}

		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel moves an active reservation to cancelled and releases its bed.
// Cancelling an already-cancelled reservation is a no-op; a reservation
// that reached a different terminal state returns ErrConflict.
func (s *Service) Cancel(ctx context.Context, code string) error {
	s.mu.Lock()

	var cancelled *models.Reservation
	err := s.db.Transaction(func(tx *sql.Tx) error {
		r, err := s.reservations.GetByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrNotFound
		}
		switch r.Status {
		case models.ReservationCancelled:
			return nil // already done
		case models.ReservationCheckedIn, models.ReservationExpired:
			return ErrConflict
		}

		now := time.Now().UTC()
		if err := s.reservations.UpdateStatus(ctx, tx, code, models.ReservationActive, models.ReservationCancelled, &now); err != nil {
			if err == storage.ErrStatusConflict {
				return ErrConflict
			}
			return err
		}
		if err := s.beds.Transition(ctx, tx, r.BedID, models.BedHeld, models.BedAvailable); err != nil {
			if err == storage.ErrTransitionConflict {
				return ErrConflict
			}
			return err
		}

		r.Status = models.ReservationCancelled
		r.TerminalAt = &now
		cancelled = r
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if cancelled == nil {
		return nil
	}

	log.Info().Str("code", code).Int("bed_id", cancelled.BedID).Msg("reservation cancelled")
	if s.broadcaster != nil {
		s.broadcaster.ReservationCancelled(cancelled)
		s.broadcaster.BedStatusChanged(cancelled.BedID, models.BedHeld, models.BedAvailable)
	}
	s.refreshBedMetrics(ctx)
	return nil
}

// CheckIn converts an active reservation into occupancy of its bed.
// Fails with ErrBedMismatch when bedID is not the reserved bed, ErrExpired
// when the hold already lapsed, and ErrConflict when a racing cancel or
// expiration won. Checking in twice is a no-op.
func (s *Service) CheckIn(ctx context.Context, code string, bedID int) error {
	s.mu.Lock()

	var checkedIn *models.Reservation
	err := s.db.Transaction(func(tx *sql.Tx) error {
		r, err := s.reservations.GetByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrNotFound
		}
		if r.BedID != bedID {
			return ErrBedMismatch
		}
		switch r.Status {
		case models.ReservationCheckedIn:
			return nil // already done
		case models.ReservationExpired:
			return ErrExpired
		case models.ReservationCancelled:
			return ErrConflict
		}

		now := time.Now().UTC()
		if err := s.reservations.UpdateStatus(ctx, tx, code, models.ReservationActive, models.ReservationCheckedIn, &now); err != nil {
			if err == storage.ErrStatusConflict {
				return ErrConflict
			}
			return err
		}
		if err := s.beds.Transition(ctx, tx, r.BedID, models.BedHeld, models.BedOccupied); err != nil {
			if err == storage.ErrTransitionConflict {
				return ErrConflict
			}
			return err
		}

		r.Status = models.ReservationCheckedIn
		r.TerminalAt = &now
		checkedIn = r
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if checkedIn == nil {
		return nil
	}

	log.Info().Str("code", code).Int("bed_id", bedID).Msg("guest checked in")
	if s.broadcaster != nil {
		s.broadcaster.ReservationCheckedIn(checkedIn)
		s.broadcaster.BedStatusChanged(bedID, models.BedHeld, models.BedOccupied)
	}
	s.refreshBedMetrics(ctx)
	return nil
}

// CheckInWalkIn occupies an available bed without a prior reservation,
// recording a checked_in reservation inline so the dashboard and history
// stay coherent.
func (s *Service) CheckInWalkIn(ctx context.Context, bedID int, callerName string) (*models.Reservation, error) {
	if callerName == "" {
		callerName = "Walk-in"
	}
	s.mu.Lock()

	var res *models.Reservation
	err := s.db.Transaction(func(tx *sql.Tx) error {
		status, err := s.beds.GetStatus(ctx, tx, bedID)
		if err != nil {
			if err == storage.ErrBedNotFound {
				return ErrNotFound
			}
			return err
		}
		if status != models.BedAvailable {
			return ErrConflict
		}
		if err := s.beds.Transition(ctx, tx, bedID, models.BedAvailable, models.BedOccupied); err != nil {
			if err == storage.ErrTransitionConflict {
				return ErrConflict
			}
			return err
		}

		now := time.Now().UTC()
		r := &models.Reservation{
			ID:                storage.GenerateID(),
			Code:              GenerateCode(),
			BedID:             bedID,
			CallerName:        callerName,
			Situation:         "Checked in at front desk",
			PreferredLanguage: "en",
			Status:            models.ReservationCheckedIn,
			CreatedAt:         now,
			ExpiresAt:         now.Add(s.holdDuration),
			TerminalAt:        &now,
		}
		if err := s.reservations.Insert(ctx, tx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	log.Info().Int("bed_id", bedID).Msg("walk-in checked in")
	if s.broadcaster != nil {
		s.broadcaster.ReservationCheckedIn(res)
		s.broadcaster.BedStatusChanged(bedID, models.BedAvailable, models.BedOccupied)
	}
	s.refreshBedMetrics(ctx)
	return res, nil
}

// CheckOut releases an occupied bed. The associated checked_in reservation
// keeps its status (it has already satisfied) and receives a terminal
// timestamp. Checking out an already-available bed is a no-op; a held bed
// returns ErrConflict.
func (s *Service) CheckOut(ctx context.Context, bedID int) error {
	s.mu.Lock()

	var released bool
	err := s.db.Transaction(func(tx *sql.Tx) error {
		status, err := s.beds.GetStatus(ctx, tx, bedID)
		if err != nil {
			if err == storage.ErrBedNotFound {
				return ErrNotFound
			}
			return err
		}
		switch status {
		case models.BedAvailable:
			return nil // already done
		case models.BedHeld:
			return ErrConflict
		}

		if err := s.beds.Transition(ctx, tx, bedID, models.BedOccupied, models.BedAvailable); err != nil {
			if err == storage.ErrTransitionConflict {
				return ErrConflict
			}
			return err
		}

		r, err := s.reservations.GetCheckedInByBed(ctx, tx, bedID)
		if err != nil {
			return err
		}
		if r != nil {
			if err := s.reservations.SetTerminalAt(ctx, tx, r.Code, time.Now().UTC()); err != nil {
				return err
			}
		}
		released = true
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if !released {
		return nil
	}

	log.Info().Int("bed_id", bedID).Msg("guest checked out")
	if s.broadcaster != nil {
		s.broadcaster.BedStatusChanged(bedID, models.BedOccupied, models.BedAvailable)
	}
	s.refreshBedMetrics(ctx)
	return nil
}

// Hold manually transitions an available bed to held without a reservation.
// Staff use this to set a bed aside; the bed carries no shadow reservation.
// No service operation releases a manual hold: CheckOut returns ErrConflict
// for a held bed, and the expiration sweep only visits reservations.
func (s *Service) Hold(ctx context.Context, bedID int) error {
	s.mu.Lock()

	err := s.db.Transaction(func(tx *sql.Tx) error {
		if err := s.beds.Transition(ctx, tx, bedID, models.BedAvailable, models.BedHeld); err != nil {
			switch err {
			case storage.ErrBedNotFound:
				return ErrNotFound
			case storage.ErrTransitionConflict:
				return ErrConflict
			}
			return err
		}
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return err
	}

	log.Info().Int("bed_id", bedID).Msg("bed manually held")
	if s.broadcaster != nil {
		s.broadcaster.BedStatusChanged(bedID, models.BedAvailable, models.BedHeld)
	}
	s.refreshBedMetrics(ctx)
	return nil
}

// Expire moves one overdue active reservation to expired and releases its
// bed. A racing check-in or cancel winning first is not an error: the sweep
// leaves the winner's effect in place.
func (s *Service) Expire(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()

	var expired *models.Reservation
	err := s.db.Transaction(func(tx *sql.Tx) error {
		r, err := s.reservations.GetByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if r == nil || r.Status != models.ReservationActive {
			return nil // winner already terminal, leave it
		}

		now := time.Now().UTC()
		if err := s.reservations.UpdateStatus(ctx, tx, code, models.ReservationActive, models.ReservationExpired, &now); err != nil {
			if err == storage.ErrStatusConflict {
				return nil
			}
			return err
		}
		if err := s.beds.Transition(ctx, tx, r.BedID, models.BedHeld, models.BedAvailable); err != nil {
			if err == storage.ErrTransitionConflict {
				// Both expiration and another terminal path claim this
				// bed: an invariant breach worth shouting about, but the
				// reservation CAS above already decided the winner.
				log.Error().Str("code", code).Int("bed_id", r.BedID).
					Msg("expired reservation found bed not held")
				return nil
			}
			return err
		}

		r.Status = models.ReservationExpired
		r.TerminalAt = &now
		expired = r
		return nil
	})
	s.mu.Unlock()

	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}

	metrics.ReservationsExpired.Inc()
	log.Info().Str("code", code).Int("bed_id", expired.BedID).Msg("reservation expired")
	if s.broadcaster != nil {
		s.broadcaster.ReservationExpired(expired)
		s.broadcaster.BedStatusChanged(expired.BedID, models.BedHeld, models.BedAvailable)
	}
	s.refreshBedMetrics(ctx)
	return true, nil
}

// ExpireOverdue sweeps every active reservation past its deadline.
// Returns the number expired. Idempotent: a second sweep with no new
// expirations is a no-op.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.reservations.ListExpiringBefore(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range overdue {
		ok, err := s.Expire(ctx, overdue[i].Code)
		if err != nil {
			log.Error().Err(err).Str("code", overdue[i].Code).Msg("expiring reservation")
			continue
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// Get returns a reservation by confirmation code, or ErrNotFound.
func (s *Service) Get(ctx context.Context, code string) (*models.Reservation, error) {
	r, err := s.reservations.GetByCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// ListActive returns all active reservations in creation order.
func (s *Service) ListActive(ctx context.Context) ([]models.Reservation, error) {
	return s.reservations.ListActive(ctx)
}

// Summary returns the bed counts per status.
func (s *Service) Summary(ctx context.Context) (models.BedSummary, error) {
	return s.beds.Summary(ctx)
}

// AvailableCount returns the number of available beds.
func (s *Service) AvailableCount(ctx context.Context) (int, error) {
	return s.beds.AvailableCount(ctx)
}

// Snapshot returns the full bed list.
func (s *Service) Snapshot(ctx context.Context) ([]models.Bed, error) {
	return s.beds.Snapshot(ctx)
}

// VerifyInventory checks the capacity invariant. Called at startup, where
// a violation is fatal, and available for diagnostics at runtime, where it
// is loud but non-fatal so the shelter keeps serving.
func (s *Service) VerifyInventory(ctx context.Context) error {
	n, err := s.beds.Count(ctx)
	if err != nil {
		return err
	}
	if n != models.TotalBeds {
		return fmt.Errorf("bed inventory invariant violated: have %d beds, want %d", n, models.TotalBeds)
	}
	return nil
}

// refreshBedMetrics updates the per-status gauges; failures only log.
func (s *Service) refreshBedMetrics(ctx context.Context) {
	summary, err := s.beds.Summary(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refreshing bed metrics")
		return
	}
	metrics.SetBedSummary(summary.Available, summary.Held, summary.Occupied)
}
