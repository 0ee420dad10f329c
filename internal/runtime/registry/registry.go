// Package registry keeps the handlers of a dispatcher in registration order
// and picks the first one whose filter matches an update.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/filter"
	"github.com/drblury/botflow/internal/runtime/handlers"
	"github.com/drblury/botflow/internal/runtime/update"
)

// Entry is a registered update handler.
type Entry struct {
	Name    string
	Kind    update.Kind
	Handler handlers.Handler
	Filter  filter.Expr
}

// ErrorEntry is a registered error handler.
type ErrorEntry struct {
	Name    string
	Handler handlers.ErrorHandler
	Filter  filter.Expr
}

// Registry maps each update kind to its ordered handler list and keeps a
// separate ordered list of error handlers. Earlier registrations win.
type Registry struct {
	mu     sync.RWMutex
	byKind map[update.Kind][]Entry
	errs   []ErrorEntry
	names  map[string]struct{}
}

func New() *Registry {
	return &Registry{
		byKind: make(map[update.Kind][]Entry),
		names:  make(map[string]struct{}),
	}
}

// Register appends a handler for kind. Names are shared with error handlers
// and must be unique; they identify the handler in state transitions.
func (r *Registry) Register(name string, kind update.Kind, h handlers.Handler, expr filter.Expr) error {
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: kind %q", errspkg.ErrUnsupportedUpdate, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.claimLocked(name); err != nil {
		return err
	}
	r.byKind[kind] = append(r.byKind[kind], Entry{Name: name, Kind: kind, Handler: h, Filter: expr})
	return nil
}

// RegisterError appends an error handler.
func (r *Registry) RegisterError(name string, h handlers.ErrorHandler, expr filter.Expr) error {
	if h == nil {
		return errspkg.ErrHandlerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.claimLocked(name); err != nil {
		return err
	}
	r.errs = append(r.errs, ErrorEntry{Name: name, Handler: h, Filter: expr})
	return nil
}

func (r *Registry) claimLocked(name string) error {
	if strings.TrimSpace(name) == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("%w: %s", errspkg.ErrDuplicateHandler, name)
	}
	r.names[name] = struct{}{}
	return nil
}

// Match returns the first handler registered for the event's kind whose
// filter accepts it. Predicate values are extracted at most once per call.
// A panicking predicate stops the search with a *errors.FilterPanicError.
func (r *Registry) Match(ctx context.Context, event *update.Event) (Entry, bool, error) {
	r.mu.RLock()
	entries := r.byKind[event.Kind()]
	r.mu.RUnlock()

	in := filter.Input{Ctx: ctx, Event: event}
	memo := filter.NewMemo()
	for _, entry := range entries {
		matched, err := evaluate(entry.Name, entry.Filter, in, memo)
		if err != nil {
			return Entry{}, false, err
		}
		if matched {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

// MatchError returns the first error handler whose filter accepts err
// raised while processing event.
func (r *Registry) MatchError(ctx context.Context, err error, event *update.Event) (ErrorEntry, bool, error) {
	r.mu.RLock()
	entries := r.errs
	r.mu.RUnlock()

	in := filter.Input{Ctx: ctx, Event: event, Err: err}
	memo := filter.NewMemo()
	for _, entry := range entries {
		matched, evalErr := evaluate(entry.Name, entry.Filter, in, memo)
		if evalErr != nil {
			return ErrorEntry{}, false, evalErr
		}
		if matched {
			return entry, true, nil
		}
	}
	return ErrorEntry{}, false, nil
}

func evaluate(name string, expr filter.Expr, in filter.Input, memo *filter.Memo) (matched bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &errspkg.FilterPanicError{Handler: name, Value: v}
		}
	}()
	return expr.Eval(in, memo), nil
}

// Entries returns the handlers of kind in priority order.
func (r *Registry) Entries(kind update.Kind) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.byKind[kind]...)
}

// ErrorEntries returns the error handlers in priority order.
func (r *Registry) ErrorEntries() []ErrorEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ErrorEntry(nil), r.errs...)
}

// Has reports whether name is registered as a handler or error handler.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}
