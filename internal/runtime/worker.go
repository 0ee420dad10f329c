package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/fsm"
	"github.com/drblury/botflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/queue"
)

// Worker takes events from the dispatcher's queue one at a time. Its
// current cell holds the execution context of the event being processed
// and is cleared before the next Take.
type Worker struct {
	id      int
	d       *Dispatcher
	current atomic.Pointer[handlers.ExecutionContext]
}

func (w *Worker) ID() int { return w.id }

// Current returns the execution context of the event the worker is
// processing, if any. The returned value is a snapshot and is safe to read
// from any goroutine.
func (w *Worker) Current() (*handlers.ExecutionContext, bool) {
	exec := w.current.Load()
	return exec, exec != nil
}

func (w *Worker) run(ctx context.Context) error {
	// Handlers keep running when ctx is cancelled so that the event in
	// flight completes and its conversation is released.
	handlerCtx := context.WithoutCancel(ctx)
	for {
		item, err := w.d.queue.Take(ctx)
		if err != nil {
			if errors.Is(err, errspkg.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.process(handlerCtx, item)
	}
}

func (w *Worker) process(ctx context.Context, item *queue.Queued) {
	d := w.d
	defer d.queue.Complete(item)

	startedAt := time.Now()
	if d.machine != nil {
		ctx = fsm.WithMachine(ctx, d.machine)
	}
	exec := &handlers.ExecutionContext{
		EventID: item.ID,
		Event:   item.Event,
		Kind:    item.Kind,
		Key:     item.Key,
		Logger:  d.Logger,
	}
	defer w.current.Store(nil)

	hookCtx := DispatchContext{
		EventID:   item.ID,
		Kind:      item.Kind,
		Key:       item.Key,
		Worker:    w.id,
		StartedAt: startedAt,
		QueueLag:  startedAt.Sub(item.EnqueuedAt),
	}

	entry, ok, err := d.registry.Match(w.enter(ctx, exec), item.Event)
	if err != nil {
		hookCtx.Duration = time.Since(startedAt)
		w.fail(ctx, exec, item, hookCtx, err)
		return
	}
	if !ok {
		d.hooks.noMatch(hookCtx)
		d.metrics.processed(item.Kind, OutcomeUnmatched)
		return
	}

	exec = exec.Running(entry.Name, nil)
	hctx := w.enter(ctx, exec)
	hookCtx.Handler = entry.Name
	d.hooks.start(hookCtx)

	err = d.recordStats(entry.Name, func() error {
		return d.pipeline(hctx, &Dispatch{Handler: entry.Name, Item: item, Worker: w.id, handler: entry.Handler})
	})
	hookCtx.Duration = time.Since(startedAt)

	if err == nil {
		d.hooks.done(hookCtx)
		d.metrics.processed(item.Kind, OutcomeHandled)
		return
	}
	w.fail(ctx, exec, item, hookCtx, err)
}

// enter publishes exec as the worker's current execution and returns ctx
// carrying it. exec must not be modified afterwards.
func (w *Worker) enter(ctx context.Context, exec *handlers.ExecutionContext) context.Context {
	w.current.Store(exec)
	return handlers.WithExecution(ctx, exec)
}

func (w *Worker) fail(ctx context.Context, exec *handlers.ExecutionContext, item *queue.Queued, hookCtx DispatchContext, err error) {
	handled := w.handleError(ctx, exec, item, err)
	w.d.hooks.failed(hookCtx, err, handled)
	if handled {
		w.d.metrics.processed(item.Kind, OutcomeRecovered)
	} else {
		w.d.metrics.processed(item.Kind, OutcomeFailed)
	}
}

// handleError runs the first error handler whose filter matches err. It
// reports whether one ran and returned nil.
func (w *Worker) handleError(ctx context.Context, exec *handlers.ExecutionContext, item *queue.Queued, err error) bool {
	d := w.d
	fields := loggingpkg.LogFields{
		"event_id": item.ID,
		"handler":  exec.Handler,
		"kind":     string(item.Kind),
		"key":      item.Key.String(),
	}

	entry, ok, matchErr := d.registry.MatchError(handlers.WithExecution(ctx, exec), err, item.Event)
	if matchErr != nil {
		d.Logger.Error("Error handler filter failed", errors.Join(err, matchErr), fields)
		return false
	}
	if !ok {
		d.Logger.Error("Unhandled dispatch error", err, fields)
		return false
	}

	hctx := w.enter(ctx, exec.Running(entry.Name, err))
	herr := d.recordStats(entry.Name, func() error {
		return d.pipeline(hctx, &Dispatch{Handler: entry.Name, Item: item, Err: err, Worker: w.id, errorHandler: entry.Handler})
	})
	if herr != nil {
		fields["error_handler"] = entry.Name
		d.Logger.Error("Error handler failed", errors.Join(err, herr), fields)
		return false
	}
	return true
}
