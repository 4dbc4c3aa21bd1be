package geofence

import "fmt"

// Classify maps a raw platform signal to a TransitionEvent.
//
// Outcomes:
//   - raw.HasError: a PlatformApiError carrying the platform's status verbatim
//   - transition other than ENTER or EXIT (dwell included): ErrClassificationDropped
//   - otherwise the event with ids in platform order; an empty list is kept
//
// Neither failure is retried. The caller logs and drops the signal.
func Classify(raw RawSignal) (TransitionEvent, error) {
	if raw.HasError {
		return TransitionEvent{}, FromStatus(raw.ErrorCode, "")
	}

	var t TransitionType
	switch raw.Transition {
	case PlatformEnter:
		t = TransitionEnter
	case PlatformExit:
		t = TransitionExit
	default:
		return TransitionEvent{}, &Error{
			Kind:    ClassificationDropped,
			Code:    CodeUnknownTransition,
			Message: fmt.Sprintf("transition code %d is not ENTER or EXIT", raw.Transition),
		}
	}

	ids := make([]string, len(raw.TriggeringIDs))
	copy(ids, raw.TriggeringIDs)

	return TransitionEvent{IDs: ids, Type: t}, nil
}
