package outbox

import (
	"errors"
	"fmt"
	"slices"

	"github.com/matheus3301/outpost/internal/store"
)

// State is the lifecycle state of an outbox entry.
type State string

const (
	Pending State = "PENDING"
	Sent    State = "SENT"
	Failed  State = "FAILED"
)

// ErrInvalidTransition is returned by Transition for moves the table forbids.
var ErrInvalidTransition = errors.New("outbox: invalid transition")

// transitions defines allowed entry moves. Sent is terminal.
var transitions = map[State][]State{
	Pending: {Sent, Failed},
	Failed:  {Pending},
	Sent:    {},
}

// Transition checks that an entry may move from one state to another.
func Transition(from, to State) error {
	if !slices.Contains(transitions[from], to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// StateOf maps a persisted status to its lifecycle state.
func StateOf(s store.EntryStatus) State {
	switch s {
	case store.StatusFailed:
		return Failed
	default:
		return Pending
	}
}
