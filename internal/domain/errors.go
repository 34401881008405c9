package domain

import "errors"

// Sentinel errors forming the core taxonomy. Callers classify failures with
// errors.Is; the HTTP adapter translates them into status codes, the core
// never does.
var (
	// ErrNotFound signals a missing item, card, or review.
	ErrNotFound = errors.New("not found")

	// ErrValidation signals an out-of-range priority or a malformed filter.
	ErrValidation = errors.New("validation error")

	// ErrInvalidRating signals a rating outside the resolved strategy's domain.
	ErrInvalidRating = errors.New("invalid rating")

	// ErrUnknownSchedulerType signals that no strategy is registered for an
	// item's declared type. Not recoverable by retry.
	ErrUnknownSchedulerType = errors.New("unknown scheduler type")

	// ErrConflict signals a stale version detected during an optimistic
	// update or sync.
	ErrConflict = errors.New("conflict")

	// ErrStorage tags underlying persistence failures.
	ErrStorage = errors.New("storage failure")
)
