package referral

import "fmt"

// NextStatus is the referral state machine. changed is false when the case
// is already in the target state, which makes repeated triggers harmless.
func NextStatus(current Status, t Trigger) (next Status, changed bool, err error) {
	switch t {
	case TriggerCompleted:
		switch current {
		case StatusPending:
			return StatusAccepted, true, nil
		case StatusAccepted:
			return StatusAccepted, false, nil
		}
	case TriggerReversed:
		switch current {
		case StatusAccepted:
			return StatusPending, true, nil
		case StatusPending:
			return StatusPending, false, nil
		}
	case TriggerCancelled:
		switch current {
		case StatusPending, StatusAccepted:
			return StatusCancelled, true, nil
		case StatusCancelled:
			return StatusCancelled, false, nil
		}
	default:
		return current, false, fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, t)
	}
	return current, false, fmt.Errorf("%w: %s on %s case", ErrInvalidTransition, t, current)
}
