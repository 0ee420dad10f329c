package runtime

import (
	"time"

	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/update"
)

// DispatchContext provides information about one dispatch attempt to hooks.
type DispatchContext struct {
	// EventID is the ULID assigned to the update when it was queued.
	EventID string
	Kind    update.Kind
	Key     update.Key
	// Handler is the name of the handler processing the update. It is empty
	// in OnNoMatch.
	Handler string
	// Worker is the index of the worker running the attempt.
	Worker int
	// StartedAt is when the worker took the update from the queue.
	StartedAt time.Time
	// Duration is how long the handler took (only set in OnDispatchDone and
	// OnDispatchError).
	Duration time.Duration
	// QueueLag is the time the update waited between Submit and Take.
	QueueLag time.Duration
}

// DispatchHooks defines callbacks for the dispatch lifecycle.
// All hooks are optional - nil hooks are simply not called.
type DispatchHooks struct {
	// OnDispatchStart is called after a handler matched and before it runs.
	OnDispatchStart func(ctx DispatchContext)

	// OnDispatchDone is called when the handler returned nil.
	OnDispatchDone func(ctx DispatchContext)

	// OnDispatchError is called when the handler failed. handled reports
	// whether an error handler accepted the error.
	OnDispatchError func(ctx DispatchContext, err error, handled bool)

	// OnNoMatch is called when no handler's filter matched the update.
	OnNoMatch func(ctx DispatchContext)
}

// Merge combines two DispatchHooks, creating a new DispatchHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: chainHooks(h.OnDispatchStart, other.OnDispatchStart),
		OnDispatchDone:  chainHooks(h.OnDispatchDone, other.OnDispatchDone),
		OnDispatchError: chainErrorHooks(h.OnDispatchError, other.OnDispatchError),
		OnNoMatch:       chainHooks(h.OnNoMatch, other.OnNoMatch),
	}
}

func chainHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error, bool)) func(DispatchContext, error, bool) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error, handled bool) {
		a(ctx, err, handled)
		b(ctx, err, handled)
	}
}

func (h DispatchHooks) start(ctx DispatchContext) {
	if h.OnDispatchStart != nil {
		h.OnDispatchStart(ctx)
	}
}

func (h DispatchHooks) done(ctx DispatchContext) {
	if h.OnDispatchDone != nil {
		h.OnDispatchDone(ctx)
	}
}

func (h DispatchHooks) failed(ctx DispatchContext, err error, handled bool) {
	if h.OnDispatchError != nil {
		h.OnDispatchError(ctx, err, handled)
	}
}

func (h DispatchHooks) noMatch(ctx DispatchContext) {
	if h.OnNoMatch != nil {
		h.OnNoMatch(ctx)
	}
}

// LoggingHooks returns pre-built hooks that log dispatch lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			logger.Debug("Dispatch started", loggingpkg.LogFields{
				"event_id":     ctx.EventID,
				"handler":      ctx.Handler,
				"kind":         string(ctx.Kind),
				"key":          ctx.Key.String(),
				"queue_lag_ms": ctx.QueueLag.Milliseconds(),
			})
		},
		OnDispatchDone: func(ctx DispatchContext) {
			logger.Info("Dispatch completed", loggingpkg.LogFields{
				"event_id":    ctx.EventID,
				"handler":     ctx.Handler,
				"kind":        string(ctx.Kind),
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnDispatchError: func(ctx DispatchContext, err error, handled bool) {
			logger.Error("Dispatch failed", err, loggingpkg.LogFields{
				"event_id":    ctx.EventID,
				"handler":     ctx.Handler,
				"kind":        string(ctx.Kind),
				"duration_ms": ctx.Duration.Milliseconds(),
				"handled":     handled,
			})
		},
		OnNoMatch: func(ctx DispatchContext) {
			logger.Debug("No handler matched", loggingpkg.LogFields{
				"event_id": ctx.EventID,
				"kind":     string(ctx.Kind),
				"key":      ctx.Key.String(),
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on unhandled
// dispatch errors.
func AlertingHooks(alertFunc func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{
		OnDispatchError: func(ctx DispatchContext, err error, handled bool) {
			if !handled {
				alertFunc(ctx, err)
			}
		},
	}
}
