package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// ErrSlotTaken is returned when a non-cancelled chapel service already
// occupies the requested date and time.
var ErrSlotTaken = fmt.Errorf("chapel slot already booked")

const chapelColumns = `
	id, date, time, group_name, contact_name, contact_phone, contact_email,
	notes, status, created_at, updated_at
`

// ChapelRepository provides data access for chapel service bookings.
type ChapelRepository struct {
	BaseRepository
}

// NewChapelRepository creates a new chapel repository.
func NewChapelRepository(db *DB) *ChapelRepository {
	return &ChapelRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new chapel service. Fails with ErrSlotTaken when another
// non-cancelled booking holds the same date+time.
func (r *ChapelRepository) Create(ctx context.Context, svc *models.ChapelService) error {
	svc.CreatedAt = r.Now()
	svc.UpdatedAt = svc.CreatedAt

	return r.Transaction(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM chapel_services
			WHERE date = ? AND time = ? AND status != 'cancelled'
		`, svc.Date, svc.Time).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking chapel slot: %w", err)
		}
		if exists > 0 {
			return ErrSlotTaken
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO chapel_services (
				date, time, group_name, contact_name, contact_phone,
				contact_email, notes, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			svc.Date, svc.Time, svc.GroupName, svc.ContactName, svc.ContactPhone,
			svc.ContactEmail, svc.Notes, svc.Status, svc.CreatedAt, svc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting chapel service: %w", err)
		}
		svc.ID, err = res.LastInsertId()
		return err
	})
}

// GetByID retrieves a chapel service, or nil when not found.
func (r *ChapelRepository) GetByID(ctx context.Context, id int64) (*models.ChapelService, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+chapelColumns+` FROM chapel_services WHERE id = ?
	`, id)
	return scanChapel(row)
}

// List returns all chapel services ordered by date then time.
func (r *ChapelRepository) List(ctx context.Context) ([]models.ChapelService, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+chapelColumns+` FROM chapel_services ORDER BY date, time
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chapel services: %w", err)
	}
	defer rows.Close()

	var out []models.ChapelService
	for rows.Next() {
		var svc models.ChapelService
		if err := scanChapelRow(rows.Scan, &svc); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// UpdateStatus moves a chapel service to a new status.
func (r *ChapelRepository) UpdateStatus(ctx context.Context, id int64, status models.ChapelStatus) error {
	res, err := r.DB().ExecContext(ctx, `
		UPDATE chapel_services SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("updating chapel service %d: %w", id, err)
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

// Delete removes a chapel service.
func (r *ChapelRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB().ExecContext(ctx, `DELETE FROM chapel_services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting chapel service %d: %w", id, err)
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

func scanChapel(row *sql.Row) (*models.ChapelService, error) {
	svc := &models.ChapelService{}
	err := row.Scan(
		&svc.ID, &svc.Date, &svc.Time, &svc.GroupName, &svc.ContactName,
		&svc.ContactPhone, &svc.ContactEmail, &svc.Notes, &svc.Status,
		&svc.CreatedAt, &svc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chapel service: %w", err)
	}
	return svc, nil
}

func scanChapelRow(scan func(dest ...any) error, svc *models.ChapelService) error {
	err := scan(
		&svc.ID, &svc.Date, &svc.Time, &svc.GroupName, &svc.ContactName,
		&svc.ContactPhone, &svc.ContactEmail, &svc.Notes, &svc.Status,
		&svc.CreatedAt, &svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scanning chapel service: %w", err)
	}
	return nil
}
