// Package fsm implements the per-conversation state machine handlers use to
// run multi-step dialogs. States and transitions are registered at setup;
// each conversation's history is persisted through a storage.Store and
// reloaded on every operation.
package fsm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/update"
	"github.com/drblury/botflow/storage"
)

// Hook runs when a conversation enters or leaves a state. A returned error
// aborts the transition before the history is saved.
type Hook func(ctx context.Context, event *update.Event) error

// State is a named dialog step. States are compared by pointer; names must
// also be unique within a machine.
type State struct {
	Name    string
	OnEnter Hook
	OnExit  Hook
}

func (s *State) enter(ctx context.Context, event *update.Event) error {
	if s.OnEnter == nil {
		return nil
	}
	if err := s.OnEnter(ctx, event); err != nil {
		return fmt.Errorf("fsm: enter %s: %w", s.Name, err)
	}
	return nil
}

func (s *State) exit(ctx context.Context, event *update.Event) error {
	if s.OnExit == nil {
		return nil
	}
	if err := s.OnExit(ctx, event); err != nil {
		return fmt.Errorf("fsm: exit %s: %w", s.Name, err)
	}
	return nil
}

// Scope selects whether the actor is part of the storage key.
type Scope int

const (
	// ScopeActor keeps one history per user within a conversation.
	ScopeActor Scope = iota
	// ScopeConversation shares one history between all users of a chat.
	ScopeConversation
)

// ParseScope maps a configuration value onto a Scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "", "actor":
		return ScopeActor, nil
	case "conversation":
		return ScopeConversation, nil
	}
	return ScopeActor, fmt.Errorf("fsm: unsupported scope %q", s)
}

type transitionKey struct {
	source    *State
	handler   string
	direction string
}

// Option configures a Machine.
type Option func(*Machine)

func WithScope(scope Scope) Option {
	return func(m *Machine) { m.scope = scope }
}

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Machine holds the state and transition tables and moves conversations
// between states.
type Machine struct {
	mu          sync.RWMutex
	initial     *State
	states      map[*State]struct{}
	byName      map[string]*State
	transitions map[transitionKey]*State

	store  storage.Store
	scope  Scope
	logger loggingpkg.ServiceLogger
}

// New creates a machine whose histories start at initial.
func New(initial *State, store storage.Store, opts ...Option) (*Machine, error) {
	if store == nil {
		return nil, errspkg.ErrStorageRequired
	}
	if initial == nil {
		return nil, fmt.Errorf("%w: initial state", ErrUnknownState)
	}

	m := &Machine{
		initial:     initial,
		states:      make(map[*State]struct{}),
		byName:      make(map[string]*State),
		transitions: make(map[transitionKey]*State),
		store:       store,
		logger:      loggingpkg.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.AddState(initial); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) Initial() *State { return m.initial }

func (m *Machine) Scope() Scope { return m.scope }

// AddState registers s. It fails when s itself or another state with the
// same name is already registered.
func (m *Machine) AddState(s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addStateLocked(s)
}

func (m *Machine) addStateLocked(s *State) error {
	if s == nil || strings.TrimSpace(s.Name) == "" {
		return ErrStateNameRequired
	}
	if _, ok := m.states[s]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateState, s.Name)
	}
	if _, ok := m.byName[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStateName, s.Name)
	}
	m.states[s] = struct{}{}
	m.byName[s.Name] = s
	return nil
}

// AddTransition maps (source, handler, direction) to destination,
// registering either state when it is new. Direction may be empty.
func (m *Machine) AddTransition(source, destination *State, handler, direction string) error {
	if strings.TrimSpace(handler) == "" {
		return ErrHandlerRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range []*State{source, destination} {
		if s == nil {
			return ErrStateNameRequired
		}
		if _, ok := m.states[s]; ok {
			continue
		}
		if err := m.addStateLocked(s); err != nil {
			return err
		}
	}

	key := transitionKey{source: source, handler: handler, direction: direction}
	if existing, ok := m.transitions[key]; ok {
		return fmt.Errorf("%w: %s --%s/%s--> %s", ErrDuplicateTransition, source.Name, handler, direction, existing.Name)
	}
	m.transitions[key] = destination
	return nil
}

// Lookup returns the registered state called name.
func (m *Machine) Lookup(name string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byName[name]
	return s, ok
}

// States returns the registered state names.
func (m *Machine) States() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	return names
}

// StorageKey derives the storage key of an update according to the
// machine's scope.
func (m *Machine) StorageKey(key update.Key) (storage.Key, error) {
	if !key.HasConversation {
		return storage.Key{}, ErrNoConversation
	}
	sk := storage.Key{ConversationID: key.ConversationID}
	if m.scope == ScopeActor && key.HasActor {
		sk.ActorID = key.ActorID
		sk.HasActor = true
	}
	return sk, nil
}

// History loads the magazine stored under key.
func (m *Machine) History(ctx context.Context, key storage.Key) (Magazine, error) {
	names, err := m.store.Load(ctx, key)
	if err != nil {
		return Magazine{}, fmt.Errorf("fsm: load %s: %w", key, err)
	}
	return MagazineFrom(names, m.initial.Name), nil
}

func (m *Machine) resolve(name string) (*State, error) {
	s, ok := m.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, name)
	}
	return s, nil
}

// State returns the current state of the conversation under key.
func (m *Machine) State(ctx context.Context, key storage.Key) (*State, error) {
	mag, err := m.History(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.resolve(mag.Current())
}

// SetNextState follows the transition registered for the current state,
// the handler and direction. Without one it fails with *NoNextStateError
// and leaves the history untouched.
func (m *Machine) SetNextState(ctx context.Context, key storage.Key, event *update.Event, handler, direction string) error {
	mag, err := m.History(ctx, key)
	if err != nil {
		return err
	}
	source, err := m.resolve(mag.Current())
	if err != nil {
		return err
	}

	m.mu.RLock()
	destination, ok := m.transitions[transitionKey{source: source, handler: handler, direction: direction}]
	m.mu.RUnlock()
	if !ok {
		return &NoNextStateError{State: source.Name, Handler: handler, Direction: direction}
	}

	return m.transition(ctx, key, mag, source, destination, event)
}

// SetPreviousState moves back to the state visited before the current one.
func (m *Machine) SetPreviousState(ctx context.Context, key storage.Key, event *update.Event) error {
	mag, err := m.History(ctx, key)
	if err != nil {
		return err
	}
	previous, ok := mag.Previous()
	if !ok {
		return &NoPreviousStateError{State: mag.Current()}
	}

	source, err := m.resolve(mag.Current())
	if err != nil {
		return err
	}
	destination, err := m.resolve(previous)
	if err != nil {
		return err
	}
	return m.transition(ctx, key, mag, source, destination, event)
}

// SetState moves to an explicit registered state regardless of the
// transition table.
func (m *Machine) SetState(ctx context.Context, key storage.Key, state *State, event *update.Event) error {
	if state == nil {
		return ErrStateNameRequired
	}
	m.mu.RLock()
	_, registered := m.states[state]
	m.mu.RUnlock()
	if !registered {
		return fmt.Errorf("%w: %s", ErrUnknownState, state.Name)
	}

	mag, err := m.History(ctx, key)
	if err != nil {
		return err
	}
	source, err := m.resolve(mag.Current())
	if err != nil {
		return err
	}
	return m.transition(ctx, key, mag, source, state, event)
}

// ResetState runs the current state's exit hook (when withExit is set) and
// then its enter hook, leaving the history unchanged.
func (m *Machine) ResetState(ctx context.Context, key storage.Key, event *update.Event, withExit bool) error {
	current, err := m.State(ctx, key)
	if err != nil {
		return err
	}
	if withExit {
		if err := current.exit(ctx, event); err != nil {
			return err
		}
	}
	return current.enter(ctx, event)
}

// Overwrite replaces the stored history with names without running hooks.
// It is meant for operator tooling; every name must be registered.
func (m *Machine) Overwrite(ctx context.Context, key storage.Key, names []string) error {
	for _, name := range names {
		if _, err := m.resolve(name); err != nil {
			return err
		}
	}
	mag := MagazineFrom(names, m.initial.Name)
	if err := m.store.Save(ctx, key, mag.Names()); err != nil {
		return fmt.Errorf("fsm: save %s: %w", key, err)
	}
	return nil
}

func (m *Machine) transition(ctx context.Context, key storage.Key, mag Magazine, source, destination *State, event *update.Event) error {
	if err := source.exit(ctx, event); err != nil {
		return err
	}
	if err := destination.enter(ctx, event); err != nil {
		return err
	}

	next := mag.Push(destination.Name)
	if err := m.store.Save(ctx, key, next.Names()); err != nil {
		return fmt.Errorf("fsm: save %s: %w", key, err)
	}

	m.logger.Debug("State changed", loggingpkg.LogFields{
		"key":   key.String(),
		"from":  source.Name,
		"to":    destination.Name,
		"depth": next.Len(),
	})
	return nil
}
