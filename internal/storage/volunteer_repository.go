package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// VolunteerRepository provides data access for volunteers. Availability and
// interests are JSON arrays in the database.
type VolunteerRepository struct {
	BaseRepository
}

// NewVolunteerRepository creates a new volunteer repository.
func NewVolunteerRepository(db *DB) *VolunteerRepository {
	return &VolunteerRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new volunteer record.
func (r *VolunteerRepository) Create(ctx context.Context, v *models.Volunteer) error {
	v.CreatedAt = r.Now()
	v.UpdatedAt = v.CreatedAt
	if v.Status == "" {
		v.Status = models.VolunteerPending
	}

	availability, err := json.Marshal(sliceOrEmpty(v.Availability))
	if err != nil {
		return fmt.Errorf("encoding availability: %w", err)
	}
	interests, err := json.Marshal(sliceOrEmpty(v.Interests))
	if err != nil {
		return fmt.Errorf("encoding interests: %w", err)
	}

	res, err := r.DB().ExecContext(ctx, `
		INSERT INTO volunteers (
			name, phone, email, availability, interests, notes, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.Name, v.Phone, v.Email, string(availability), string(interests),
		v.Notes, v.Status, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting volunteer: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

// GetByID retrieves a volunteer, or nil when not found.
func (r *VolunteerRepository) GetByID(ctx context.Context, id int64) (*models.Volunteer, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, name, phone, email, availability, interests, notes, status,
		       created_at, updated_at
		FROM volunteers WHERE id = ?
	`, id)

	v := &models.Volunteer{}
	var availability, interests string
	err := row.Scan(
		&v.ID, &v.Name, &v.Phone, &v.Email, &availability, &interests,
		&v.Notes, &v.Status, &v.CreatedAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning volunteer: %w", err)
	}
	if err := decodeStringSlice(availability, &v.Availability); err != nil {
		return nil, err
	}
	if err := decodeStringSlice(interests, &v.Interests); err != nil {
		return nil, err
	}
	return v, nil
}

// List returns all volunteers ordered by name.
func (r *VolunteerRepository) List(ctx context.Context) ([]models.Volunteer, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, name, phone, email, availability, interests, notes, status,
		       created_at, updated_at
		FROM volunteers ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying volunteers: %w", err)
	}
	defer rows.Close()

	var out []models.Volunteer
	for rows.Next() {
		var v models.Volunteer
		var availability, interests string
		err := rows.Scan(
			&v.ID, &v.Name, &v.Phone, &v.Email, &availability, &interests,
			&v.Notes, &v.Status, &v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning volunteer: %w", err)
		}
		if err := decodeStringSlice(availability, &v.Availability); err != nil {
			return nil, err
		}
		if err := decodeStringSlice(interests, &v.Interests); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateStatus moves a volunteer to a new status.
func (r *VolunteerRepository) UpdateStatus(ctx context.Context, id int64, status models.VolunteerStatus) error {
	res, err := r.DB().ExecContext(ctx, `
		UPDATE volunteers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("updating volunteer %d: %w", id, err)
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

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func decodeStringSlice(raw string, dst *[]string) error {
	if raw == "" {
		*dst = []string{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decoding string list: %w", err)
	}
	return nil
}
