package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLimitExceeded indicates the owner already has the maximum number of
	// in-progress tasks.
	ErrLimitExceeded = errors.New("in progress limit reached")

	// ErrMissingReason indicates a transition into the blocked state was
	// requested without a reason.
	ErrMissingReason = errors.New("blocked reason required")

	// ErrNotFound indicates the entity does not exist or is not owned by the
	// caller.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
