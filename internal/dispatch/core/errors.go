package core

import "errors"

// Domain error taxonomy. All of these are returned to the immediate caller;
// none are thrown across component boundaries as panics.
var (
	// ErrNotFound means the referenced order or vehicle does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoAvailableVehicle means no connected idle vehicle could serve a
	// launch. Recoverable: the order is failed and may be re-queued.
	ErrNoAvailableVehicle = errors.New("no available vehicle")

	// ErrLinkError means the vehicle control capability was unreachable.
	// The vehicle is marked Disconnected; its mission state is preserved
	// and the next poll cycle retries automatically.
	ErrLinkError = errors.New("vehicle link error")

	// ErrCommandRejected means the vehicle control capability refused a
	// command. Surfaced to the caller; never silently retried.
	ErrCommandRejected = errors.New("command rejected")

	// ErrInvalidState means the caller attempted an operation that violates
	// a precondition. Rejected synchronously with no side effect.
	ErrInvalidState = errors.New("invalid state")
)
