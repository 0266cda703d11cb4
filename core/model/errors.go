package model

import "errors"

// Error kinds surfaced to callers. Handlers match them with errors.Is and map
// them to transport-level codes; core packages wrap them with context via
// fmt.Errorf and %w.
var (
	// ErrValidation indicates bad or missing caller input.
	ErrValidation = errors.New("validation error")
	// ErrInvalidStateTransition indicates an illegal assignment state change,
	// including a lost conditional-update race.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrCannotCancelCompleted blocks cancellation of an accepted assignment
	// whose schedule date has already passed.
	ErrCannotCancelCompleted = errors.New("cannot cancel completed assignment")
	// ErrQuotaExceeded indicates the daily provider call quota is spent.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrProviderUnavailable signals a systemic provider outage, as opposed to
	// a single skipped pair.
	ErrProviderUnavailable = errors.New("distance provider unavailable")
	// ErrNotFound indicates an unknown schedule, instructor or unit reference.
	ErrNotFound = errors.New("not found")
)
