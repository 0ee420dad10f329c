package fsm

import (
	"errors"
	"fmt"
)

var (
	ErrStateNameRequired   = errors.New("fsm: state name is required")
	ErrHandlerRequired     = errors.New("fsm: transition handler name is required")
	ErrDuplicateState      = errors.New("fsm: state already registered")
	ErrDuplicateStateName  = errors.New("fsm: state name already registered")
	ErrDuplicateTransition = errors.New("fsm: transition already registered")
	ErrUnknownState        = errors.New("fsm: unknown state")
	ErrNoNextState         = errors.New("fsm: no next state")
	ErrNoPreviousState     = errors.New("fsm: no previous state")
	ErrNoConversation      = errors.New("fsm: event has no conversation")
	ErrNoExecution         = errors.New("fsm: no execution context")
	ErrNoMachine           = errors.New("fsm: no state machine in context")
)

// NoNextStateError reports that no transition is registered for the
// current state, handler and direction.
type NoNextStateError struct {
	State     string
	Handler   string
	Direction string
}

func (e *NoNextStateError) Error() string {
	if e.Direction == "" {
		return fmt.Sprintf("fsm: no next state from %q for handler %q", e.State, e.Handler)
	}
	return fmt.Sprintf("fsm: no next state from %q for handler %q in direction %q", e.State, e.Handler, e.Direction)
}

func (e *NoNextStateError) Is(target error) bool { return target == ErrNoNextState }

// NoPreviousStateError reports an attempt to go back from the first state
// of a history.
type NoPreviousStateError struct {
	State string
}

func (e *NoPreviousStateError) Error() string {
	return fmt.Sprintf("fsm: no previous state before %q", e.State)
}

func (e *NoPreviousStateError) Is(target error) bool { return target == ErrNoPreviousState }
