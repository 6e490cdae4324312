// Package reservation implements the bed allocation engine: the reservation
// lifecycle, the concurrency-safe allocation protocol, and the expiration
// scheduler.
package reservation

import (
	"errors"
)

// Error kinds surfaced by the service. The HTTP layer and the voice tool
// router map these to status codes and spoken responses; everything else
// wraps as internal.
var (
	// ErrNoCapacity means allocation found zero available beds. No state
	// was changed.
	ErrNoCapacity = errors.New("no beds available")

	// ErrConflict means a compare-and-set lost to a racing writer and
	// retries were exhausted.
	ErrConflict = errors.New("conflicting update")

	// ErrNotFound means the reservation code or bed id has no record.
	ErrNotFound = errors.New("not found")

	// ErrExpired means the operation targeted a reservation past its
	// hold deadline.
	ErrExpired = errors.New("reservation expired")

	// ErrBedMismatch means check-in named a bed other than the one the
	// reservation holds.
	ErrBedMismatch = errors.New("reservation does not match bed")

	// ErrValidation means the input was rejected before any state change.
	ErrValidation = errors.New("invalid input")
)
