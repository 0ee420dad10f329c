package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/botflow/internal/runtime/config"
	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/filter"
	"github.com/drblury/botflow/internal/runtime/fsm"
	"github.com/drblury/botflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/update"
	"github.com/drblury/botflow/storage/memory"
)

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(nil, loggingpkg.Nop(), Dependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewDispatcher(configpkg.Default(), nil, Dependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestNewDispatcherDefaults(t *testing.T) {
	d := newTestDispatcher(t, 0, Dependencies{})

	assert.Len(t, d.Workers(), configpkg.DefaultWorkers)
	for i, w := range d.Workers() {
		assert.Equal(t, i, w.ID())
	}
	assert.Len(t, d.middlewares, len(DefaultMiddlewares())-1, "timeout is skipped without HandlerTimeout")
	assert.NotNil(t, d.PrometheusRegistry())
	assert.Nil(t, d.Machine())
}

func TestNewDispatcherSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	d, err := NewDispatcher(testConfig(1), loggingpkg.Nop(), Dependencies{Registry: reg})
	require.NoError(t, err)
	assert.Same(t, reg, d.PrometheusRegistry())

	// Registering the same collectors again is tolerated.
	require.NoError(t, d.Metrics().Register(reg))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "botflow_queue_ready")
	assert.NotContains(t, names, "go_goroutines", "runtime collectors are only added to the default registry")
}

func TestNewDispatcherMiddlewareBuilderError(t *testing.T) {
	_, err := NewDispatcher(testConfig(1), loggingpkg.Nop(), Dependencies{
		Middlewares: []MiddlewareRegistration{{
			Name:    "broken",
			Builder: func(*Dispatcher) (Middleware, error) { return nil, errors.New("boom") },
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "boom")
}

func TestSubmitValidation(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})

	_, err := d.Submit(nil)
	assert.ErrorIs(t, err, errspkg.ErrUnsupportedUpdate)

	_, err = d.SubmitUpdate(telego.Update{UpdateID: 1})
	assert.ErrorIs(t, err, errspkg.ErrUnsupportedUpdate)

	item, err := d.SubmitUpdate(textMessage(1, 1, "hi"))
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, update.KindMessage, item.Kind)
	assert.Equal(t, 1, d.QueueStats().Ready)
}

// Two updates of one conversation are never processed together and keep
// their order, while another conversation proceeds in between.
func TestDispatcherOrdersPerConversation(t *testing.T) {
	d := newTestDispatcher(t, 2, Dependencies{})

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	otherDone := make(chan struct{})
	var timedOut atomic.Bool
	require.NoError(t, d.Register("echo", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		text, _ := event.Text()
		record("start:" + text)
		if text == "a1" {
			// a1 only finishes once b1, queued after it, has been handled.
			select {
			case <-otherDone:
			case <-time.After(3 * time.Second):
				timedOut.Store(true)
			}
		}
		if text == "b1" {
			close(otherDone)
		}
		record("end:" + text)
		return nil
	}), filter.Expr{}))

	_, err := d.SubmitUpdate(textMessage(100, 1, "a1"))
	require.NoError(t, err)
	_, err = d.SubmitUpdate(textMessage(200, 2, "b1"))
	require.NoError(t, err)
	_, err = d.SubmitUpdate(textMessage(100, 1, "a2"))
	require.NoError(t, err)

	start(t, d)
	shutdown(t, d)

	require.False(t, timedOut.Load(), "conversations did not run in parallel")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 6)
	assert.Less(t, indexOf(order, "end:b1"), indexOf(order, "end:a1"))
	assert.Less(t, indexOf(order, "end:a1"), indexOf(order, "start:a2"))
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestDispatcherFirstMatchWins(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})

	var calls []string
	var mu sync.Mutex
	handler := func(name string) handlers.Handler {
		return handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
			exec, ok := handlers.ExecutionFrom(ctx)
			assert.True(t, ok)
			mu.Lock()
			calls = append(calls, name+"="+exec.Handler)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, d.Register("help", update.KindMessage, handler("help"), filter.Lit(filter.Command{Names: []string{"help"}})))
	require.NoError(t, d.Register("any", update.KindMessage, handler("any"), filter.Expr{}))
	require.NoError(t, d.Register("also_any", update.KindMessage, handler("also_any"), filter.Expr{}))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "/help"))
	_, _ = d.SubmitUpdate(textMessage(1, 1, "hello"))

	start(t, d)
	shutdown(t, d)

	assert.Equal(t, []string{"help=help", "any=any"}, calls)
}

func TestDispatcherNoMatch(t *testing.T) {
	var noMatch atomic.Int32
	d := newTestDispatcher(t, 1, Dependencies{Hooks: DispatchHooks{
		OnNoMatch: func(ctx DispatchContext) {
			assert.Empty(t, ctx.Handler)
			noMatch.Add(1)
		},
	}})
	require.NoError(t, d.Register("only_callbacks", update.KindCallbackQuery, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return nil
	}), filter.Expr{}))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "hello"))
	start(t, d)
	shutdown(t, d)

	assert.Equal(t, int32(1), noMatch.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeUnmatched)))
}

func TestDispatcherErrorHandler(t *testing.T) {
	boom := errors.New("boom")
	var (
		gotErr     error
		gotHandler string
		handled    atomic.Bool
	)
	d := newTestDispatcher(t, 1, Dependencies{Hooks: DispatchHooks{
		OnDispatchError: func(ctx DispatchContext, err error, ok bool) {
			assert.Equal(t, "fails", ctx.Handler)
			handled.Store(ok)
		},
	}})

	require.NoError(t, d.Register("fails", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return boom
	}), filter.Expr{}))
	require.NoError(t, d.RegisterError("other_errors", handlers.ErrorHandlerFunc(func(context.Context, error, *update.Event) error {
		t.Error("filter should not match")
		return nil
	}), filter.Lit(filter.ErrorIs{Target: context.Canceled})))
	require.NoError(t, d.RegisterError("on_boom", handlers.ErrorHandlerFunc(func(ctx context.Context, err error, event *update.Event) error {
		exec, _ := handlers.ExecutionFrom(ctx)
		gotErr = exec.Err
		gotHandler = exec.Handler
		return nil
	}), filter.Lit(filter.ErrorIs{Target: boom})))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "hello"))
	start(t, d)
	shutdown(t, d)

	assert.ErrorIs(t, gotErr, boom)
	assert.Equal(t, "on_boom", gotHandler)
	assert.True(t, handled.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeRecovered)))

	stats := statsByName(d)
	assert.Equal(t, uint64(1), stats["fails"].EventsFailed)
	assert.Equal(t, uint64(1), stats["on_boom"].EventsProcessed)
	assert.Equal(t, uint64(0), stats["on_boom"].EventsFailed)
}

func statsByName(d *Dispatcher) map[string]HandlerStats {
	out := make(map[string]HandlerStats)
	for _, h := range d.Handlers() {
		out[h.Name] = h.Stats.Snapshot()
	}
	return out
}

func TestDispatcherUnhandledError(t *testing.T) {
	logger := newRecordingLogger()
	d, err := NewDispatcher(testConfig(1), logger, Dependencies{})
	require.NoError(t, err)

	var alerts atomic.Int32
	d.hooks = AlertingHooks(func(ctx DispatchContext, err error) { alerts.Add(1) })

	require.NoError(t, d.Register("fails", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return errors.New("nobody handles this")
	}), filter.Expr{}))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "hello"))
	start(t, d)
	shutdown(t, d)

	entry, ok := logger.find("Unhandled dispatch error")
	require.True(t, ok)
	assert.EqualError(t, entry.err, "nobody handles this")
	assert.Equal(t, "fails", entry.fields["handler"])
	assert.Equal(t, int32(1), alerts.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeFailed)))
}

func TestDispatcherFailingErrorHandler(t *testing.T) {
	logger := newRecordingLogger()
	d, err := NewDispatcher(testConfig(1), logger, Dependencies{})
	require.NoError(t, err)

	require.NoError(t, d.Register("fails", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return errors.New("first")
	}), filter.Expr{}))
	require.NoError(t, d.RegisterError("also_fails", handlers.ErrorHandlerFunc(func(context.Context, error, *update.Event) error {
		return errors.New("second")
	}), filter.Expr{}))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "hello"))
	start(t, d)
	shutdown(t, d)

	entry, ok := logger.find("Error handler failed")
	require.True(t, ok)
	assert.ErrorContains(t, entry.err, "first")
	assert.ErrorContains(t, entry.err, "second")
	assert.Equal(t, "also_fails", entry.fields["error_handler"])
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeFailed)))
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})

	var panicErr *errspkg.HandlerPanicError
	var processed atomic.Int32
	require.NoError(t, d.Register("panics", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		if text, _ := event.Text(); text == "explode" {
			panic("kaboom")
		}
		processed.Add(1)
		return nil
	}), filter.Expr{}))
	require.NoError(t, d.RegisterError("on_panic", handlers.ErrorHandlerFunc(func(ctx context.Context, err error, event *update.Event) error {
		errors.As(err, &panicErr)
		return nil
	}), filter.Expr{}))

	// The conversation is released after the panic, so the next update runs.
	_, _ = d.SubmitUpdate(textMessage(1, 1, "explode"))
	_, _ = d.SubmitUpdate(textMessage(1, 1, "after"))
	start(t, d)
	shutdown(t, d)

	require.NotNil(t, panicErr)
	assert.Equal(t, "panics", panicErr.Handler)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.Equal(t, int32(1), processed.Load())
	assert.Equal(t, uint64(1), statsByName(d)["panics"].Errors.Panic)
	assert.Equal(t, 0, d.QueueStats().Conversations)
}

func TestDispatcherRunTwice(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})
	start(t, d)

	assert.ErrorIs(t, d.Run(context.Background()), errspkg.ErrDispatcherRunning)
}

func TestRegistrationAfterStart(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})
	start(t, d)

	noop := handlers.HandlerFunc(func(context.Context, *update.Event) error { return nil })
	assert.ErrorIs(t, d.Register("late", update.KindMessage, noop, filter.Expr{}), errspkg.ErrRegistrationAfterStart)
	assert.ErrorIs(t, d.RegisterError("late", handlers.ErrorHandlerFunc(func(context.Context, error, *update.Event) error { return nil }), filter.Expr{}), errspkg.ErrRegistrationAfterStart)
	assert.ErrorIs(t, d.RegisterMiddleware(MiddlewareRegistration{Middleware: func(next HandlerFunc) HandlerFunc { return next }}), errspkg.ErrRegistrationAfterStart)
	assert.ErrorIs(t, d.UseStateMachine(nil), errspkg.ErrRegistrationAfterStart)
}

func TestRegisterDuplicateName(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})
	noop := handlers.HandlerFunc(func(context.Context, *update.Event) error { return nil })

	require.NoError(t, d.Register("start", update.KindMessage, noop, filter.Expr{}))
	assert.ErrorIs(t, d.Register("start", update.KindCallbackQuery, noop, filter.Expr{}), errspkg.ErrDuplicateHandler)
	assert.Len(t, d.Handlers(), 1)
}

func TestShutdownDrainsQueue(t *testing.T) {
	d := newTestDispatcher(t, 3, Dependencies{})

	var processed atomic.Int32
	require.NoError(t, d.Register("slow", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		time.Sleep(2 * time.Millisecond)
		processed.Add(1)
		return nil
	}), filter.Expr{}))

	start(t, d)
	for i := 0; i < 30; i++ {
		_, err := d.SubmitUpdate(textMessage(int64(i%4+1), 1, "x"))
		require.NoError(t, err)
	}
	shutdown(t, d)

	assert.Equal(t, int32(30), processed.Load())
	assert.Equal(t, 0, d.QueueStats().Ready)

	_, err := d.SubmitUpdate(textMessage(1, 1, "too late"))
	assert.ErrorIs(t, err, errspkg.ErrQueueClosed)
}

func TestShutdownWithoutRun(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})
	shutdown(t, d)
}

func TestShutdownTimesOut(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})
	release := make(chan struct{})
	require.NoError(t, d.Register("stuck", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		<-release
		return nil
	}), filter.Expr{}))
	start(t, d)
	defer close(release)

	_, _ = d.SubmitUpdate(textMessage(1, 1, "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}

func TestRunCancelFinishesCurrentEvent(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})

	entered := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, d.Register("long", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		close(entered)
		time.Sleep(20 * time.Millisecond)
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}), filter.Expr{}))
	_, _ = d.SubmitUpdate(textMessage(1, 1, "x"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	<-entered
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.False(t, sawCancel.Load(), "handler context is not cancelled with Run")
	assert.Equal(t, uint64(1), statsByName(d)["long"].EventsProcessed)
	assert.Equal(t, 0, d.QueueStats().InFlight)
}

func TestDispatcherStateMachine(t *testing.T) {
	idle := &fsm.State{Name: "idle"}
	askName := &fsm.State{Name: "ask_name"}
	m, err := fsm.New(idle, memory.New())
	require.NoError(t, err)
	require.NoError(t, m.AddState(askName))
	require.NoError(t, m.AddTransition(idle, askName, "begin", ""))

	d := newTestDispatcher(t, 2, Dependencies{Machine: m})

	var greeted atomic.Int32
	require.NoError(t, d.Register("begin", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		return fsm.Next(ctx, "")
	}), filter.Lit(fsm.InState{States: []*fsm.State{idle}})))
	require.NoError(t, d.Register("name", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		greeted.Add(1)
		return nil
	}), filter.Lit(fsm.InState{States: []*fsm.State{askName}})))

	_, _ = d.SubmitUpdate(textMessage(5, 9, "/start"))
	_, _ = d.SubmitUpdate(textMessage(5, 9, "Ada"))
	start(t, d)
	shutdown(t, d)

	assert.Equal(t, int32(1), greeted.Load())
	key, err := m.StorageKey(update.Key{ConversationID: 5, HasConversation: true, ActorID: 9, HasActor: true})
	require.NoError(t, err)
	state, err := m.State(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "ask_name", state.Name)
}

func TestDispatcherNavigationErrorsAreClassified(t *testing.T) {
	only := &fsm.State{Name: "only"}
	m, err := fsm.New(only, memory.New())
	require.NoError(t, err)

	d := newTestDispatcher(t, 1, Dependencies{})
	require.NoError(t, d.UseStateMachine(m))
	require.NoError(t, d.Register("nowhere", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		return fsm.Next(ctx, "")
	}), filter.Expr{}))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "x"))
	start(t, d)
	shutdown(t, d)

	stats := statsByName(d)
	assert.Equal(t, uint64(1), stats["nowhere"].Errors.Navigation)
	assert.Contains(t, stats["nowhere"].Errors.LastError, "only")
}

func TestWorkerCurrent(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})
	w := d.Workers()[0]

	var seen *handlers.ExecutionContext
	require.NoError(t, d.Register("inspect", update.KindMessage, handlers.HandlerFunc(func(ctx context.Context, event *update.Event) error {
		seen, _ = w.Current()
		return nil
	}), filter.Expr{}))

	_, ok := w.Current()
	assert.False(t, ok)

	item, err := d.SubmitUpdate(textMessage(3, 4, "x"))
	require.NoError(t, err)
	start(t, d)
	shutdown(t, d)

	require.NotNil(t, seen)
	assert.Equal(t, item.ID, seen.EventID)
	assert.Equal(t, "inspect", seen.Handler)
	assert.Equal(t, int64(3), seen.Key.ConversationID)
	_, ok = w.Current()
	assert.False(t, ok, "cleared after processing")
}

func TestWorkerCurrentIsStableWhileErrorHandlersRun(t *testing.T) {
	const events = 50
	d := newTestDispatcher(t, 1, Dependencies{})
	w := d.Workers()[0]
	boom := errors.New("boom")

	var recovered atomic.Int32
	require.NoError(t, d.Register("fails", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return boom
	}), filter.Expr{}))
	require.NoError(t, d.RegisterError("recover", handlers.ErrorHandlerFunc(func(ctx context.Context, err error, event *update.Event) error {
		exec, ok := handlers.ExecutionFrom(ctx)
		assert.True(t, ok)
		assert.Equal(t, "recover", exec.Handler)
		assert.ErrorIs(t, exec.Err, boom)
		current, _ := w.Current()
		assert.Same(t, exec, current)
		recovered.Add(1)
		return nil
	}), filter.Expr{}))

	stop := make(chan struct{})
	seen := make(map[string]bool)
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if exec, ok := w.Current(); ok {
				seen[exec.Handler] = true
				if exec.Handler == "recover" {
					assert.ErrorIs(t, exec.Err, boom)
				}
			}
		}
	}()

	for i := 0; i < events; i++ {
		_, err := d.SubmitUpdate(textMessage(int64(i%3+1), 1, "x"))
		require.NoError(t, err)
	}
	start(t, d)
	shutdown(t, d)
	close(stop)
	readers.Wait()

	assert.Equal(t, int32(events), recovered.Load())
	for name := range seen {
		assert.Contains(t, []string{"", "fails", "recover"}, name)
	}
}

func TestDispatcherRecoversPanickingFilters(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})

	explode := filter.Lit(filter.Custom{Name: "explode", Fn: func(in filter.Input) bool {
		if text, _ := in.Event.Text(); text == "explode" {
			panic("bad filter")
		}
		return false
	}})
	var handled atomic.Int32
	require.NoError(t, d.Register("fragile", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return nil
	}), explode))
	registerEcho(t, d)

	var panicErr *errspkg.FilterPanicError
	require.NoError(t, d.RegisterError("on_filter_panic", handlers.ErrorHandlerFunc(func(ctx context.Context, err error, event *update.Event) error {
		errors.As(err, &panicErr)
		handled.Add(1)
		return nil
	}), filter.Expr{}))

	// The worker survives and the conversation is released for the next update.
	_, _ = d.SubmitUpdate(textMessage(1, 1, "explode"))
	_, _ = d.SubmitUpdate(textMessage(1, 1, "fine"))
	start(t, d)
	shutdown(t, d)

	require.NotNil(t, panicErr)
	assert.Equal(t, "fragile", panicErr.Handler)
	assert.Equal(t, "bad filter", panicErr.Value)
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, uint64(1), statsByName(d)["echo"].EventsProcessed)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeRecovered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeHandled)))
	assert.Equal(t, 0, d.QueueStats().Conversations)
}

func TestDispatcherPanickingErrorFilterIsLogged(t *testing.T) {
	logger := newRecordingLogger()
	d, err := NewDispatcher(testConfig(1), logger, Dependencies{})
	require.NoError(t, err)

	require.NoError(t, d.Register("fails", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return errors.New("first")
	}), filter.Expr{}))
	require.NoError(t, d.RegisterError("fragile_errors", handlers.ErrorHandlerFunc(func(context.Context, error, *update.Event) error {
		t.Error("error handler must not run")
		return nil
	}), filter.Lit(filter.Custom{Name: "explode", Fn: func(filter.Input) bool { panic("bad filter") }})))

	_, _ = d.SubmitUpdate(textMessage(1, 1, "hello"))
	start(t, d)
	shutdown(t, d)

	entry, ok := logger.find("Error handler filter failed")
	require.True(t, ok)
	assert.ErrorContains(t, entry.err, "first")
	var panicErr *errspkg.FilterPanicError
	assert.ErrorAs(t, entry.err, &panicErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.processedTotal.WithLabelValues("message", OutcomeFailed)))
}

func TestRegisterErrorIsWithoutTarget(t *testing.T) {
	d := newTestDispatcher(t, 1, Dependencies{})

	require.NotPanics(t, func() {
		require.NoError(t, d.RegisterError("no_target", handlers.ErrorHandlerFunc(func(context.Context, error, *update.Event) error {
			return nil
		}), filter.Lit(filter.ErrorIs{})))
	})
	assert.Equal(t, "error_is(nil)", d.Handlers()[0].Filter)
}
