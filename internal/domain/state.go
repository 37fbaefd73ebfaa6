package domain

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle position of a transaction. Exactly four states are
// legal; the transition function below is the only way to move between them,
// so a record can never be simultaneously consumed and canceled.
type State int

const (
	StateCreated State = iota
	StateEnacted
	StateConsumed
	StateCanceled
)

// String returns the persisted wire form of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateEnacted:
		return "enacted"
	case StateConsumed:
		return "consumed"
	case StateCanceled:
		return "canceled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState maps the persisted form back to a State.
func ParseState(s string) (State, error) {
	switch s {
	case "created":
		return StateCreated, nil
	case "enacted":
		return StateEnacted, nil
	case "consumed":
		return StateConsumed, nil
	case "canceled":
		return StateCanceled, nil
	}
	return 0, fmt.Errorf("unknown transaction state %q", s)
}

// MarshalJSON emits the wire form, matching the state column in the store.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateConsumed || s == StateCanceled
}

// Enacted reports whether the hold has been placed. Terminal states imply a
// prior enact except for cancel-before-enact, which the coordinator handles
// before the record ever reaches Enacted.
func (s State) Enacted() bool {
	return s == StateEnacted || s == StateConsumed
}

// Transition validates a requested state change. Legal moves:
//
//	Created -> Enacted
//	Created -> Canceled   (cancel-before-enact)
//	Enacted -> Consumed
//	Enacted -> Canceled
//
// Everything else is rejected. Callers treat a rejection as a protocol
// violation by whoever requested the phase.
func (s State) Transition(to State) (State, error) {
	switch s {
	case StateCreated:
		if to == StateEnacted || to == StateCanceled {
			return to, nil
		}
	case StateEnacted:
		if to == StateConsumed || to == StateCanceled {
			return to, nil
		}
	case StateConsumed, StateCanceled:
		// terminal; nothing is legal
	default:
		return 0, fmt.Errorf("invalid source state %v", s)
	}
	return 0, fmt.Errorf("illegal transition from %v to %v", s, to)
}
