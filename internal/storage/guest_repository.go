package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// GuestRepository provides data access for guest records.
type GuestRepository struct {
	BaseRepository
}

// NewGuestRepository creates a new guest repository.
func NewGuestRepository(db *DB) *GuestRepository {
	return &GuestRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new guest record.
func (r *GuestRepository) Create(ctx context.Context, g *models.Guest) error {
	g.CreatedAt = r.Now()
	g.UpdatedAt = g.CreatedAt
	if g.CheckInDate.IsZero() {
		g.CheckInDate = g.CreatedAt
	}

	res, err := r.DB().ExecContext(ctx, `
		INSERT INTO guests (
			bed_id, first_name, last_name, phone, check_in_date,
			discharged_at, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.BedID, g.FirstName, g.LastName, g.Phone, g.CheckInDate,
		g.Discharged, g.Notes, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting guest: %w", err)
	}
	g.ID, err = res.LastInsertId()
	return err
}

// GetByID retrieves a guest, or nil when not found.
func (r *GuestRepository) GetByID(ctx context.Context, id int64) (*models.Guest, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, bed_id, first_name, last_name, phone, check_in_date,
		       discharged_at, notes, created_at, updated_at
		FROM guests WHERE id = ?
	`, id)
	return scanGuest(row)
}

// GetByBed retrieves the guest assigned to a bed, or nil.
func (r *GuestRepository) GetByBed(ctx context.Context, bedID int) (*models.Guest, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, bed_id, first_name, last_name, phone, check_in_date,
		       discharged_at, notes, created_at, updated_at
		FROM guests WHERE bed_id = ?
	`, bedID)
	return scanGuest(row)
}

// AssignBed attaches a guest to a bed. The unique index on bed_id enforces
// at most one guest per bed.
func (r *GuestRepository) AssignBed(ctx context.Context, guestID int64, bedID int) error {
	res, err := r.DB().ExecContext(ctx, `
		UPDATE guests SET bed_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, bedID, guestID)
	if err != nil {
		return fmt.Errorf("assigning guest %d to bed %d: %w", guestID, bedID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UnassignBed detaches any guest from a bed, recording the discharge time.
func (r *GuestRepository) UnassignBed(ctx context.Context, bedID int) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE guests
		SET bed_id = NULL, discharged_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE bed_id = ?
	`, bedID)
	if err != nil {
		return fmt.Errorf("unassigning bed %d: %w", bedID, err)
	}
	return nil
}

func scanGuest(row *sql.Row) (*models.Guest, error) {
	g := &models.Guest{}
	err := row.Scan(
		&g.ID, &g.BedID, &g.FirstName, &g.LastName, &g.Phone,
		&g.CheckInDate, &g.Discharged, &g.Notes, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning guest: %w", err)
	}
	return g, nil
}
