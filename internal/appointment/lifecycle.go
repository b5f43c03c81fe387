package appointment

import "fmt"

// Transition is a requested status change.
type Transition string

const (
	TransitionConfirm  Transition = "CONFIRM"
	TransitionStart    Transition = "START"
	TransitionComplete Transition = "COMPLETE"
	TransitionCancel   Transition = "CANCEL"
	TransitionNoShow   Transition = "NO_SHOW"
	TransitionReverse  Transition = "REVERSE"
)

var AllStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

var AllTransitions = []Transition{
	TransitionConfirm, TransitionStart, TransitionComplete,
	TransitionCancel, TransitionNoShow, TransitionReverse,
}

// transitions is the full appointment state machine. COMPLETE on a
// completed appointment is a retry and maps to itself. CANCEL is accepted
// from COMPLETED so an accepted referral's session can be returned.
var transitions = map[Status]map[Transition]Status{
	StatusScheduled: {
		TransitionConfirm:  StatusConfirmed,
		TransitionStart:    StatusInProgress,
		TransitionComplete: StatusCompleted,
		TransitionCancel:   StatusCancelled,
		TransitionNoShow:   StatusNoShow,
	},
	StatusConfirmed: {
		TransitionStart:    StatusInProgress,
		TransitionComplete: StatusCompleted,
		TransitionCancel:   StatusCancelled,
		TransitionNoShow:   StatusNoShow,
	},
	StatusInProgress: {
		TransitionComplete: StatusCompleted,
		TransitionCancel:   StatusCancelled,
		TransitionNoShow:   StatusNoShow,
	},
	StatusCompleted: {
		TransitionComplete: StatusCompleted,
		TransitionCancel:   StatusCancelled,
		TransitionReverse:  StatusScheduled,
	},
	StatusCancelled: {},
	StatusNoShow:    {},
}

// Next returns the status reached from current by t.
func Next(current Status, t Transition) (Status, error) {
	edges, ok := transitions[current]
	if !ok {
		return current, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}
	next, ok := edges[t]
	if !ok {
		return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, current)
	}
	return next, nil
}

func reschedulable(s Status) bool {
	return s == StatusScheduled || s == StatusConfirmed
}
