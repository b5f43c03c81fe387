package course

import (
	"errors"
	"fmt"
)

var ErrCourseNotFound = errors.New("course not found")

type StateReason string

const (
	ReasonNotActive StateReason = "NOT_ACTIVE"
	ReasonExhausted StateReason = "EXHAUSTED"
	ReasonExpired   StateReason = "EXPIRED"
	ReasonNotOwned  StateReason = "NOT_OWNED"
)

// StateError means the course cannot back the requested session.
type StateError struct {
	Reason    StateReason
	Remaining int
}

func (e *StateError) Error() string {
	return fmt.Sprintf("course unusable: %s (remaining %d)", e.Reason, e.Remaining)
}
