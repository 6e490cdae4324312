// Package models defines the persistent data types for the shelter engine.
package models

import (
	"time"
)

// TotalBeds is the fixed size of the shelter's bed inventory.
// The beds table holds exactly this many rows at all times.
const TotalBeds = 108

// BedStatus is the closed set of bed states.
type BedStatus string

// Bed status constants. Serialized lowercase on the wire and in the database.
const (
	BedAvailable BedStatus = "available" // No reservation, open for allocation
	BedHeld      BedStatus = "held"      // Reserved, awaiting check-in
	BedOccupied  BedStatus = "occupied"  // Guest checked in
)

// Valid reports whether s is one of the three known bed states.
func (s BedStatus) Valid() bool {
	switch s {
	case BedAvailable, BedHeld, BedOccupied:
		return true
	}
	return false
}

// Bed is one of the 108 sleeping slots. The registry is the only writer
// of Status; everything else goes through its compare-and-set transition.
type Bed struct {
	BedID     int       `json:"bed_id"`
	Status    BedStatus `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BedSummary is the aggregate view served by GET /api/beds/.
type BedSummary struct {
	Available int `json:"available"`
	Held      int `json:"held"`
	Occupied  int `json:"occupied"`
	Total     int `json:"total"`
}
