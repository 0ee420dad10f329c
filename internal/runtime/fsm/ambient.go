package fsm

import (
	"context"

	"github.com/drblury/botflow/internal/runtime/handlers"
	"github.com/drblury/botflow/storage"
)

type machineKey struct{}

// WithMachine returns a child context carrying m. The dispatcher binds its
// machine this way so handlers can use the package-level helpers.
func WithMachine(ctx context.Context, m *Machine) context.Context {
	return context.WithValue(ctx, machineKey{}, m)
}

// MachineFrom returns the machine bound to ctx.
func MachineFrom(ctx context.Context) (*Machine, bool) {
	m, ok := ctx.Value(machineKey{}).(*Machine)
	return m, ok && m != nil
}

func ambient(ctx context.Context) (*Machine, *handlers.ExecutionContext, storage.Key, error) {
	m, ok := MachineFrom(ctx)
	if !ok {
		return nil, nil, storage.Key{}, ErrNoMachine
	}
	exec, ok := handlers.ExecutionFrom(ctx)
	if !ok {
		return nil, nil, storage.Key{}, ErrNoExecution
	}
	key, err := m.StorageKey(exec.Key)
	if err != nil {
		return nil, nil, storage.Key{}, err
	}
	return m, exec, key, nil
}

// Current returns the state of the conversation being processed.
func Current(ctx context.Context) (*State, error) {
	m, _, key, err := ambient(ctx)
	if err != nil {
		return nil, err
	}
	return m.State(ctx, key)
}

// Next follows the transition registered for the current state and the
// running handler in the given direction ("" for none).
func Next(ctx context.Context, direction string) error {
	m, exec, key, err := ambient(ctx)
	if err != nil {
		return err
	}
	return m.SetNextState(ctx, key, exec.Event, exec.Handler, direction)
}

// Previous returns the conversation being processed to its previous state.
func Previous(ctx context.Context) error {
	m, exec, key, err := ambient(ctx)
	if err != nil {
		return err
	}
	return m.SetPreviousState(ctx, key, exec.Event)
}

// Set moves the conversation being processed to state.
func Set(ctx context.Context, state *State) error {
	m, exec, key, err := ambient(ctx)
	if err != nil {
		return err
	}
	return m.SetState(ctx, key, state, exec.Event)
}

// Reset re-runs the hooks of the current state.
func Reset(ctx context.Context, withExit bool) error {
	m, exec, key, err := ambient(ctx)
	if err != nil {
		return err
	}
	return m.ResetState(ctx, key, exec.Event, withExit)
}

// In reports whether the conversation being processed is in state. It is a
// convenient building block for filter.Custom predicates.
func In(ctx context.Context, state *State) bool {
	current, err := Current(ctx)
	return err == nil && current == state
}
