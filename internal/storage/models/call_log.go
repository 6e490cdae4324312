package models

import (
	"time"
)

// CallLog is the per-call record kept for staff review. Caller identity is
// a hash from the telephony bridge; raw numbers and audio are never stored.
// Rows are deleted by the retention job after the configured window.
type CallLog struct {
	ID              int64     `json:"id"`
	CallSID         string    `json:"call_sid"`
	CallerHash      string    `json:"-"`
	Intent          string    `json:"intent,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	ReservationID   string    `json:"reservation_id,omitempty"`
	RiskFlag        string    `json:"risk_flag,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
