package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// ErrTransitionConflict is returned by Transition when the bed's current
// status does not match the expected `from` status. Racing writers see this
// and retry or give up; it is the registry's only concurrency signal.
var ErrTransitionConflict = fmt.Errorf("bed status transition conflict")

// ErrBedNotFound is returned for bed ids outside the fixed inventory.
var ErrBedNotFound = fmt.Errorf("bed not found")

// BedRepository owns the fixed 108-row bed table. It is the only writer of
// bed status; higher layers mutate exclusively through Transition.
type BedRepository struct {
	BaseRepository
}

// NewBedRepository creates a new bed repository.
func NewBedRepository(db *DB) *BedRepository {
	return &BedRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// EnsureBeds idempotently creates beds 1..TotalBeds with status available.
// Existing rows are never overwritten, so restarts preserve state.
func (r *BedRepository) EnsureBeds(ctx context.Context) error {
	for id := 1; id <= models.TotalBeds; id++ {
		_, err := r.DB().ExecContext(ctx, `
			INSERT OR IGNORE INTO beds (bed_id, status, updated_at)
			VALUES (?, 'available', CURRENT_TIMESTAMP)
		`, id)
		if err != nil {
			return fmt.Errorf("seeding bed %d: %w", id, err)
		}
	}
	return nil
}

// Count returns the total number of bed rows. Startup treats any value
// other than TotalBeds as a fatal invariant violation.
func (r *BedRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM beds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting beds: %w", err)
	}
	return n, nil
}

// Snapshot returns a consistent list of all beds ordered by id.
func (r *BedRepository) Snapshot(ctx context.Context) ([]models.Bed, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT bed_id, status, updated_at FROM beds ORDER BY bed_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying beds: %w", err)
	}
	defer rows.Close()

	var beds []models.Bed
	for rows.Next() {
		var b models.Bed
		if err := rows.Scan(&b.BedID, &b.Status, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning bed: %w", err)
		}
		beds = append(beds, b)
	}
	return beds, rows.Err()
}

// Summary returns the per-status counts. The three counts always sum to
// the fixed total.
func (r *BedRepository) Summary(ctx context.Context) (models.BedSummary, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT status, COUNT(*) FROM beds GROUP BY status
	`)
	if err != nil {
		return models.BedSummary{}, fmt.Errorf("querying bed summary: %w", err)
	}
	defer rows.Close()

	s := models.BedSummary{Total: models.TotalBeds}
	for rows.Next() {
		var status models.BedStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.BedSummary{}, fmt.Errorf("scanning bed summary: %w", err)
		}
		switch status {
		case models.BedAvailable:
			s.Available = count
		case models.BedHeld:
			s.Held = count
		case models.BedOccupied:
			s.Occupied = count
		}
	}
	return s, rows.Err()
}

// GetStatus returns the current status of a bed.
func (r *BedRepository) GetStatus(ctx context.Context, q Queryable, bedID int) (models.BedStatus, error) {
	if q == nil {
		q = r.DB()
	}
	var status models.BedStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM beds WHERE bed_id = ?`, bedID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrBedNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying bed %d: %w", bedID, err)
	}
	return status, nil
}

// FirstAvailable returns the lowest-numbered available bed id, or
// ErrBedNotFound when the house is full. Lowest-id keeps allocations
// deterministic and occupancy concentrated in a stable range.
func (r *BedRepository) FirstAvailable(ctx context.Context, q Queryable) (int, error) {
	if q == nil {
		q = r.DB()
	}
	var id int
	err := q.QueryRowContext(ctx, `
		SELECT bed_id FROM beds WHERE status = 'available' ORDER BY bed_id LIMIT 1
	`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrBedNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying first available bed: %w", err)
	}
	return id, nil
}

// AvailableCount returns the number of available beds.
func (r *BedRepository) AvailableCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM beds WHERE status = 'available'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting available beds: %w", err)
	}
	return n, nil
}

// Transition performs a compare-and-set status change. It fails with
// ErrTransitionConflict when the bed's current status differs from `from`,
// and ErrBedNotFound for unknown ids. Total ordering of a bed's transitions
// follows from this single UPDATE.
func (r *BedRepository) Transition(ctx context.Context, q Queryable, bedID int, from, to models.BedStatus) error {
	if q == nil {
		q = r.DB()
	}
	res, err := q.ExecContext(ctx, `
		UPDATE beds SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE bed_id = ? AND status = ?
	`, to, bedID, from)
	if err != nil {
		return fmt.Errorf("transitioning bed %d %s->%s: %w", bedID, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning bed %d: %w", bedID, err)
	}
	if n == 0 {
		// Distinguish a missing bed from a status mismatch.
		if _, serr := r.GetStatus(ctx, q, bedID); serr == ErrBedNotFound {
			return ErrBedNotFound
		}
		return ErrTransitionConflict
	}
	return nil
}
