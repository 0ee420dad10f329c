package handlers

import (
	"context"

	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/update"
)

// ExecutionContext describes the update a worker is currently processing.
// Handlers and the state machine's convenience wrappers read it to find the
// conversation, the actor and the handler that triggered a transition.
// Once a worker publishes an ExecutionContext it is never modified; the
// worker publishes a derived copy when the running handler changes.
type ExecutionContext struct {
	EventID string
	Event   *update.Event
	Kind    update.Kind
	Key     update.Key
	// Handler is the registered name of the handler being run.
	Handler string
	// Err is set while an error handler runs.
	Err    error
	Logger loggingpkg.ServiceLogger
}

// Running returns a copy of e naming handler as the one being run and err as
// the error it handles.
func (e *ExecutionContext) Running(handler string, err error) *ExecutionContext {
	next := *e
	next.Handler = handler
	next.Err = err
	return &next
}

type executionKey struct{}

// WithExecution returns a child context carrying exec.
func WithExecution(ctx context.Context, exec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionKey{}, exec)
}

// ExecutionFrom returns the execution context stored by the dispatcher.
func ExecutionFrom(ctx context.Context) (*ExecutionContext, bool) {
	exec, ok := ctx.Value(executionKey{}).(*ExecutionContext)
	return exec, ok && exec != nil
}

// LoggerFrom returns the logger bound to the current execution, enriched with
// the event identifiers, or a no-op logger outside of dispatch.
func LoggerFrom(ctx context.Context) loggingpkg.ServiceLogger {
	exec, ok := ExecutionFrom(ctx)
	if !ok || exec.Logger == nil {
		return loggingpkg.Nop()
	}
	return exec.Logger.With(loggingpkg.LogFields{
		"event_id": exec.EventID,
		"handler":  exec.Handler,
		"kind":     string(exec.Kind),
	})
}
