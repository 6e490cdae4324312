package models

import (
	"time"
)

// VolunteerStatus is the closed set of volunteer states.
type VolunteerStatus string

const (
	VolunteerPending  VolunteerStatus = "pending"
	VolunteerActive   VolunteerStatus = "active"
	VolunteerInactive VolunteerStatus = "inactive"
)

// Valid reports whether s is a known volunteer status.
func (s VolunteerStatus) Valid() bool {
	switch s {
	case VolunteerPending, VolunteerActive, VolunteerInactive:
		return true
	}
	return false
}

// Volunteer is a registered volunteer. Availability and Interests are
// stored as JSON arrays in the database.
type Volunteer struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Phone        string          `json:"phone"`
	Email        string          `json:"email,omitempty"`
	Availability []string        `json:"availability"`
	Interests    []string        `json:"interests"`
	Notes        string          `json:"notes,omitempty"`
	Status       VolunteerStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
