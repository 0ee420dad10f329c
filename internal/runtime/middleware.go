package runtime

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/queue"
	"github.com/drblury/botflow/internal/runtime/update"
)

const tracerName = "github.com/drblury/botflow"

// Dispatch is one handler or error handler invocation as seen by the
// middleware chain.
type Dispatch struct {
	// Handler is the registered name of the handler being invoked.
	Handler string
	Item    *queue.Queued
	// Err is the error being handled when an error handler runs.
	Err    error
	Worker int

	handler      handlers.Handler
	errorHandler handlers.ErrorHandler
}

func (d *Dispatch) Event() *update.Event { return d.Item.Event }

// IsErrorHandler reports whether the dispatch invokes an error handler.
func (d *Dispatch) IsErrorHandler() bool { return d.Err != nil }

// HandlerFunc runs a dispatch.
type HandlerFunc func(ctx context.Context, d *Dispatch) error

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// MiddlewareBuilder constructs a middleware using the provided dispatcher.
// Returning a nil middleware skips the registration.
type MiddlewareBuilder func(*Dispatcher) (Middleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Dispatcher.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain used by NewDispatcher.
// The first registration is the outermost.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		TracerMiddleware(),
		LogDispatchMiddleware(nil),
		MetricsMiddleware(),
		TimeoutMiddleware(0),
		RecovererMiddleware(),
	}
}

// TracerMiddleware wraps every handler invocation in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(d *Dispatcher) (Middleware, error) {
			return tracerMiddleware(otel.Tracer(tracerName)), nil
		},
	}
}

// LogDispatchMiddleware logs the payload of every dispatched update at debug level.
func LogDispatchMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_dispatch",
		Builder: func(d *Dispatcher) (Middleware, error) {
			l := logger
			if l == nil {
				l = d.Logger
			}
			if l == nil {
				return nil, errors.New("log dispatch middleware requires a logger")
			}
			return logDispatchMiddleware(l), nil
		},
	}
}

// MetricsMiddleware records handler durations in the dispatcher's metrics.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(d *Dispatcher) (Middleware, error) {
			return metricsMiddleware(d.metrics), nil
		},
	}
}

// TimeoutMiddleware bounds every handler invocation with a context deadline.
// A zero timeout falls back to Config.HandlerTimeout; when both are zero the
// middleware is skipped. Handlers must honour ctx for the deadline to take
// effect: the worker keeps the conversation occupied until the handler
// actually returns.
func TimeoutMiddleware(timeout time.Duration) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "timeout",
		Builder: func(d *Dispatcher) (Middleware, error) {
			t := timeout
			if t <= 0 && d.Conf != nil {
				t = d.Conf.HandlerTimeout
			}
			if t <= 0 {
				return nil, nil
			}
			return timeoutMiddleware(t), nil
		},
	}
}

// RecovererMiddleware converts handler panics into *errors.HandlerPanicError
// so they reach the error handlers instead of killing the worker.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "recoverer",
		Builder: func(d *Dispatcher) (Middleware, error) {
			return recovererMiddleware(d.Logger), nil
		},
	}
}

// RegisterMiddleware appends a middleware to the chain. It must be called
// before Run.
func (d *Dispatcher) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if d.started.Load() {
		return errspkg.ErrRegistrationAfterStart
	}

	var mw Middleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(d)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	d.middlewares = append(d.middlewares, mw)
	return nil
}

// chain wraps h with every registered middleware, the first registered
// being the outermost.
func chain(h HandlerFunc, middlewares []Middleware) HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func tracerMiddleware(tracer trace.Tracer) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, d *Dispatch) error {
			ctx, span := tracer.Start(ctx, "Dispatch "+d.Handler, trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()

			span.SetAttributes(
				attribute.String("botflow.event_id", d.Item.ID),
				attribute.String("botflow.update_kind", string(d.Item.Kind)),
				attribute.String("botflow.key", d.Item.Key.String()),
				attribute.String("botflow.handler", d.Handler),
				attribute.Bool("botflow.error_handler", d.IsErrorHandler()),
				attribute.Int("botflow.worker", d.Worker),
			)

			err := next(ctx, d)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

func logDispatchMiddleware(logger loggingpkg.ServiceLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, d *Dispatch) error {
			fields := loggingpkg.LogFields{
				"event_id": d.Item.ID,
				"handler":  d.Handler,
				"kind":     string(d.Item.Kind),
				"key":      d.Item.Key.String(),
			}
			if d.IsErrorHandler() {
				fields["error"] = d.Err.Error()
			}
			if payload, err := d.Event().JSON(); err == nil {
				fields["payload"] = string(payload)
			}
			logger.Debug("Dispatching update", fields)
			return next(ctx, d)
		}
	}
}

func metricsMiddleware(m *DispatchMetrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, d *Dispatch) error {
			start := time.Now()
			err := next(ctx, d)
			m.observe(d.Handler, time.Since(start))
			return err
		}
	}
}

func timeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, d *Dispatch) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, d)
		}
	}
}

func recovererMiddleware(logger loggingpkg.ServiceLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, d *Dispatch) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &errspkg.HandlerPanicError{Handler: d.Handler, Value: r}
					if logger != nil {
						logger.Error("Handler panicked", err, loggingpkg.LogFields{
							"event_id": d.Item.ID,
							"handler":  d.Handler,
							"stack":    string(debug.Stack()),
						})
					}
				}
			}()
			return next(ctx, d)
		}
	}
}
