// internal/capacity/errors.go

package capacity

import "errors"

var (
	// ErrInsufficientCapacity means the reservation does not fit in the
	// remaining headroom. Transient: the matcher retries other candidates.
	ErrInsufficientCapacity = errors.New("insufficient capacity for reservation")

	// ErrUnknownToken guards idempotency. A token that was already released
	// or belongs to another ledger is a non-fatal warning, not a crash.
	ErrUnknownToken = errors.New("reservation token unknown to this ledger")

	// ErrInvalidReservation rejects non-positive weight or volume.
	ErrInvalidReservation = errors.New("reservation weight and volume must be positive")
)
