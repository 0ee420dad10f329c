package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/queue"
	"github.com/drblury/botflow/internal/runtime/update"
)

func testDispatch(t *testing.T) *Dispatch {
	t.Helper()
	event := update.New(textMessage(1, 2, "hello"))
	return &Dispatch{
		Handler: "echo",
		Item:    &queue.Queued{ID: "evt-1", Event: event, Kind: event.Kind(), Key: event.Key()},
	}
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, d *Dispatch) error {
				calls = append(calls, name+".before")
				err := next(ctx, d)
				calls = append(calls, name+".after")
				return err
			}
		}
	}

	h := chain(func(ctx context.Context, d *Dispatch) error {
		calls = append(calls, "handler")
		return nil
	}, []Middleware{mark("outer"), mark("inner")})

	require.NoError(t, h(context.Background(), testDispatch(t)))
	assert.Equal(t, []string{"outer.before", "inner.before", "handler", "inner.after", "outer.after"}, calls)
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := timeoutMiddleware(time.Minute)(func(ctx context.Context, d *Dispatch) error {
		deadline, ok = ctx.Deadline()
		return nil
	})

	require.NoError(t, h(context.Background(), testDispatch(t)))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestTimeoutMiddlewareRegistration(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{DisableDefaultMiddlewares: true})

	require.NoError(t, d.RegisterMiddleware(TimeoutMiddleware(0)))
	assert.Empty(t, d.middlewares, "no timeout configured")

	d.Conf.HandlerTimeout = time.Second
	require.NoError(t, d.RegisterMiddleware(TimeoutMiddleware(0)))
	assert.Len(t, d.middlewares, 1)
}

func TestRecovererMiddleware(t *testing.T) {
	logger := newRecordingLogger()
	h := recovererMiddleware(logger)(func(ctx context.Context, d *Dispatch) error {
		panic("oops")
	})

	err := h(context.Background(), testDispatch(t))

	var panicErr *errspkg.HandlerPanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "echo", panicErr.Handler)
	entry, ok := logger.find("Handler panicked")
	require.True(t, ok)
	assert.Contains(t, entry.fields["stack"], "runtime/debug")
}

func TestRecovererMiddlewarePassesErrors(t *testing.T) {
	boom := errors.New("boom")
	h := recovererMiddleware(nil)(func(ctx context.Context, d *Dispatch) error { return boom })

	assert.ErrorIs(t, h(context.Background(), testDispatch(t)), boom)
}

func TestTracerMiddlewareStartsSpan(t *testing.T) {
	var span trace.Span
	h := tracerMiddleware(noop.NewTracerProvider().Tracer("test"))(func(ctx context.Context, d *Dispatch) error {
		span = trace.SpanFromContext(ctx)
		return errors.New("failed")
	})

	err := h(context.Background(), testDispatch(t))
	assert.Error(t, err)
	require.NotNil(t, span)
}

func TestLogDispatchMiddleware(t *testing.T) {
	logger := newRecordingLogger()
	dispatch := testDispatch(t)
	dispatch.Err = errors.New("previous")

	h := logDispatchMiddleware(logger)(func(ctx context.Context, d *Dispatch) error { return nil })
	require.NoError(t, h(context.Background(), dispatch))

	entry, ok := logger.find("Dispatching update")
	require.True(t, ok)
	assert.Equal(t, "echo", entry.fields["handler"])
	assert.Equal(t, "previous", entry.fields["error"])
	assert.Contains(t, entry.fields["payload"], "hello")
}

func TestRegisterMiddlewareValidation(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{DisableDefaultMiddlewares: true})

	assert.Error(t, d.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}))

	require.NoError(t, d.RegisterMiddleware(MiddlewareRegistration{
		Builder: func(*Dispatcher) (Middleware, error) { return nil, nil },
	}))
	assert.Empty(t, d.middlewares)
}

func TestCustomMiddlewareRunsInsideDefaults(t *testing.T) {
	var sawExecution bool
	d := newTestDispatcher(t, 1, Dependencies{Middlewares: []MiddlewareRegistration{{
		Name: "inspect",
		Middleware: func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, dispatch *Dispatch) error {
				sawExecution = dispatch.Handler == "echo" && !dispatch.IsErrorHandler()
				return next(ctx, dispatch)
			}
		},
	}}})
	assert.Len(t, d.middlewares, len(DefaultMiddlewares()))

	registerEcho(t, d)
	_, _ = d.SubmitUpdate(textMessage(1, 1, "x"))
	start(t, d)
	shutdown(t, d)

	assert.True(t, sawExecution)
}
