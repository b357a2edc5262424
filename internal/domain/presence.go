package domain

import "errors"

// PresenceState is derived from an assignment and its latest check; it is
// never stored.
type PresenceState int

const (
	StateUnregistered PresenceState = iota
	StateRegisteredOut
	StateRegisteredIn
)

// Transition rejections. Each maps to exactly one row of the transition table.
var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrAlreadyCheckedIn  = errors.New("already checked in")
	ErrInvalidSequence   = errors.New("check-out requires a preceding check-in")
	ErrUnknownAction     = errors.New("unknown check action")
)

func (s PresenceState) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegisteredOut:
		return "REGISTERED_OUT"
	case StateRegisteredIn:
		return "REGISTERED_IN"
	}
	return "UNKNOWN"
}

// MarshalText renders the state name in JSON payloads.
func (s PresenceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeriveState computes the presence state. last is the assignment's most
// recent check by (timestamp, id), nil when the history is empty.
func DeriveState(assignment *EventStaff, last *Check) PresenceState {
	if !assignment.Registered() {
		return StateUnregistered
	}
	if last != nil && last.Action == CheckActionCheckIn {
		return StateRegisteredIn
	}
	return StateRegisteredOut
}

// Apply returns the next state for action, or the rejection for it.
func (s PresenceState) Apply(action CheckAction) (PresenceState, error) {
	switch s {
	case StateUnregistered:
		switch action {
		case CheckActionRegistration:
			return StateRegisteredOut, nil
		case CheckActionCheckIn, CheckActionCheckOut:
			return s, ErrNotRegistered
		}
	case StateRegisteredOut:
		switch action {
		case CheckActionRegistration:
			return s, ErrAlreadyRegistered
		case CheckActionCheckIn:
			return StateRegisteredIn, nil
		case CheckActionCheckOut:
			return s, ErrInvalidSequence
		}
	case StateRegisteredIn:
		switch action {
		case CheckActionRegistration:
			return s, ErrAlreadyRegistered
		case CheckActionCheckIn:
			return s, ErrAlreadyCheckedIn
		case CheckActionCheckOut:
			return StateRegisteredOut, nil
		}
	}
	return s, ErrUnknownAction
}
