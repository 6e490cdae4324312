package models

import (
	"time"
)

// Guest is a resident record attached to an occupied bed via the
// assign endpoint. At most one guest per bed.
type Guest struct {
	ID          int64      `json:"id"`
	BedID       *int       `json:"bed_id,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone,omitempty"`
	CheckInDate time.Time  `json:"check_in_date"`
	Discharged  *time.Time `json:"discharged_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
