package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// CallLogRepository provides data access for call logs.
type CallLogRepository struct {
	BaseRepository
}

// NewCallLogRepository creates a new call log repository.
func NewCallLogRepository(db *DB) *CallLogRepository {
	return &CallLogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a call log row. Duplicate call SIDs are ignored so a
// session can safely log once per call even across reconnects.
func (r *CallLogRepository) Create(ctx context.Context, l *models.CallLog) error {
	l.CreatedAt = r.Now()
	res, err := r.DB().ExecContext(ctx, `
		INSERT OR IGNORE INTO call_logs (
			call_sid, caller_hash, intent, summary, reservation_id,
			risk_flag, duration_seconds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.CallSID, l.CallerHash, l.Intent, l.Summary, l.ReservationID,
		l.RiskFlag, l.DurationSeconds, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting call log: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

// CountSince returns the number of calls logged at or after t.
func (r *CallLogRepository) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM call_logs WHERE created_at >= ?
	`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting call logs: %w", err)
	}
	return n, nil
}

// DeleteBefore removes call logs older than the cutoff. Retention is
// privacy-driven: logs age out, they are not archived.
func (r *CallLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB().ExecContext(ctx, `
		DELETE FROM call_logs WHERE created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old call logs: %w", err)
	}
	return res.RowsAffected()
}
