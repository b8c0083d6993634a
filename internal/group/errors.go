// internal/group/errors.go

package group

import "errors"

var (
	// ErrGroupLocked protects the state machine: once locked for departure,
	// membership and capacity are frozen.
	ErrGroupLocked = errors.New("group is locked for departure")

	// ErrGroupNotLocked rejects a departure on a group that was never locked.
	ErrGroupNotLocked = errors.New("group is not locked, cannot depart")

	// ErrGroupNotOpen covers joins and leaves attempted on departed,
	// archived or cancelled groups.
	ErrGroupNotOpen = errors.New("group is not open for membership changes")

	// ErrGroupNotDeparted rejects archiving before the tracking handoff.
	ErrGroupNotDeparted = errors.New("group has not departed, cannot archive")

	// ErrBelowMinimumParticipants is the business-rule rejection on a lock
	// attempt that would commit an underfilled departure.
	ErrBelowMinimumParticipants = errors.New("group is below minimum participants")

	// ErrNotAParticipant is the idempotent no-op signal on a double leave.
	// Callers treat it as a warning, never as fatal.
	ErrNotAParticipant = errors.New("shipment is not a participant of this group")

	// ErrAlreadyParticipant guards against the same shipment joining twice.
	ErrAlreadyParticipant = errors.New("shipment already participates in this group")

	// ErrIncompatibleCargo is the policy rejection for LOW compatibility.
	// Surfaced for an explicit override decision, never auto-retried on the
	// same group.
	ErrIncompatibleCargo = errors.New("cargo is incompatible with existing participants")
)
