package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// ErrDuplicateCode is returned by Insert when the confirmation code is
// already taken. The allocation engine retries with a fresh code.
var ErrDuplicateCode = fmt.Errorf("duplicate confirmation code")

// ErrStatusConflict is returned by UpdateStatus when the reservation's
// current status does not match the expected one.
var ErrStatusConflict = fmt.Errorf("reservation status conflict")

const reservationColumns = `
	id, code, bed_id, caller_hash, caller_name, situation, needs,
	preferred_language, status, created_at, expires_at, terminal_at
`

// ReservationRepository provides data access for reservations.
type ReservationRepository struct {
	BaseRepository
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert stores a new reservation. Fails with ErrDuplicateCode when the
// confirmation code collides with an existing row.
func (r *ReservationRepository) Insert(ctx context.Context, q Queryable, res *models.Reservation) error {
	if q == nil {
		q = r.DB()
	}
	var exists int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE code = ?`, res.Code).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking code uniqueness: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateCode
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.ID, res.Code, res.BedID, res.CallerHash, res.CallerName,
		res.Situation, res.Needs, res.PreferredLanguage, res.Status,
		res.CreatedAt, res.ExpiresAt, res.TerminalAt,
	)
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}
	return nil
}

// GetByCode retrieves a reservation by its confirmation code.
// Returns nil when no row matches.
func (r *ReservationRepository) GetByCode(ctx context.Context, q Queryable, code string) (*models.Reservation, error) {
	if q == nil {
		q = r.DB()
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE code = ?
	`, code)
	return scanReservation(row)
}

// GetActiveByBed retrieves the active reservation on a bed, or nil.
// A bed in held status has exactly one of these.
func (r *ReservationRepository) GetActiveByBed(ctx context.Context, q Queryable, bedID int) (*models.Reservation, error) {
	if q == nil {
		q = r.DB()
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE bed_id = ? AND status = 'active'
	`, bedID)
	return scanReservation(row)
}

// GetCheckedInByBed retrieves the most recent checked_in reservation on a
// bed, or nil.
func (r *ReservationRepository) GetCheckedInByBed(ctx context.Context, q Queryable, bedID int) (*models.Reservation, error) {
	if q == nil {
		q = r.DB()
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE bed_id = ? AND status = 'checked_in'
		ORDER BY created_at DESC, code DESC LIMIT 1
	`, bedID)
	return scanReservation(row)
}

// ListActive returns all active reservations in creation order, code as
// tiebreaker.
func (r *ReservationRepository) ListActive(ctx context.Context) ([]models.Reservation, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'active'
		ORDER BY created_at, code
	`)
	if err != nil {
		return nil, fmt.Errorf("querying active reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// ListExpiringBefore returns active reservations whose hold deadline is
// before t, in creation order. Backed by the (status, expires_at) index so
// the sweep stays cheap.
func (r *ReservationRepository) ListExpiringBefore(ctx context.Context, t time.Time) ([]models.Reservation, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'active' AND expires_at < ?
		ORDER BY created_at, code
	`, t)
	if err != nil {
		return nil, fmt.Errorf("querying expiring reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// CountCreatedSince returns how many reservations were created at or after t.
func (r *ReservationRepository) CountCreatedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations WHERE created_at >= ?
	`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting reservations: %w", err)
	}
	return n, nil
}

// UpdateStatus performs a compare-and-set lifecycle transition. The terminal
// timestamp is recorded alongside; pass nil to leave it unset. Fails with
// ErrStatusConflict when the current status differs from expected, which is
// how racing check-in/cancel/expire resolve to exactly one winner.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, q Queryable, code string, expected, next models.ReservationStatus, terminalAt *time.Time) error {
	if q == nil {
		q = r.DB()
	}
	res, err := q.ExecContext(ctx, `
		UPDATE reservations SET status = ?, terminal_at = ?
		WHERE code = ? AND status = ?
	`, next, terminalAt, code, expected)
	if err != nil {
		return fmt.Errorf("updating reservation %s: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating reservation %s: %w", code, err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// SetTerminalAt records a terminal timestamp without changing status.
// Used by check-out, which closes a checked_in reservation that has
// already satisfied.
func (r *ReservationRepository) SetTerminalAt(ctx context.Context, q Queryable, code string, at time.Time) error {
	if q == nil {
		q = r.DB()
	}
	_, err := q.ExecContext(ctx, `
		UPDATE reservations SET terminal_at = ? WHERE code = ?
	`, at, code)
	if err != nil {
		return fmt.Errorf("closing reservation %s: %w", code, err)
	}
	return nil
}

// DeleteTerminatedBefore removes expired and cancelled rows older than the
// cutoff. Checked-in history is kept.
func (r *ReservationRepository) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB().ExecContext(ctx, `
		DELETE FROM reservations
		WHERE created_at < ? AND status IN ('expired', 'cancelled')
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old reservations: %w", err)
	}
	return res.RowsAffected()
}

func scanReservation(row *sql.Row) (*models.Reservation, error) {
	res := &models.Reservation{}
	err := row.Scan(
		&res.ID, &res.Code, &res.BedID, &res.CallerHash, &res.CallerName,
		&res.Situation, &res.Needs, &res.PreferredLanguage, &res.Status,
		&res.CreatedAt, &res.ExpiresAt, &res.TerminalAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reservation: %w", err)
	}
	return res, nil
}

func scanReservations(rows *sql.Rows) ([]models.Reservation, error) {
	var out []models.Reservation
	for rows.Next() {
		var res models.Reservation
		err := rows.Scan(
			&res.ID, &res.Code, &res.BedID, &res.CallerHash, &res.CallerName,
			&res.Situation, &res.Needs, &res.PreferredLanguage, &res.Status,
			&res.CreatedAt, &res.ExpiresAt, &res.TerminalAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
