package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/mymmrac/telego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/botflow/internal/runtime/config"
	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/filter"
	"github.com/drblury/botflow/internal/runtime/fsm"
	"github.com/drblury/botflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/queue"
	"github.com/drblury/botflow/internal/runtime/registry"
	"github.com/drblury/botflow/internal/runtime/update"
)

// Dependencies holds the optional collaborators that the Dispatcher can use.
// Leave fields zero to get the defaults.
type Dependencies struct {
	Hooks                     DispatchHooks
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	// Machine is bound to every handler context so fsm.Next and friends work.
	Machine *fsm.Machine
	// Registry receives the dispatcher's collectors. A fresh registry with Go
	// runtime and process collectors is created when nil.
	Registry        *prometheus.Registry
	ErrorClassifier ErrorClassifier
}

// Dispatcher owns the event queue, the handler registry and a fixed pool of
// workers. Updates arrive through Submit or through ingress subscribers and
// are handed to the first handler whose filter matches.
type Dispatcher struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	queue    *queue.Queue
	registry *registry.Registry
	machine  *fsm.Machine
	hooks    DispatchHooks
	workers  []*Worker

	middlewares []Middleware
	pipeline    HandlerFunc

	metrics      *DispatchMetrics
	promRegistry *prometheus.Registry

	errorClassifier ErrorClassifier

	handlers   []*HandlerInfo
	stats      map[string]*HandlerStats
	handlersMu sync.RWMutex

	router    *message.Router
	ingresses atomic.Int32

	httpServers   map[int]*httpServer
	httpServersMu sync.Mutex

	started atomic.Bool
	done    chan struct{}
}

// NewDispatcher constructs a Dispatcher for the supplied configuration.
// Register handlers on the returned Dispatcher before calling Run.
func NewDispatcher(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Dispatcher, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	log.Info("Creating dispatcher", loggingpkg.LogFields{
		"workers": conf.Workers,
		"config":  conf.String(),
	})

	q := queue.New()
	d := &Dispatcher{
		Conf:            conf,
		Logger:          log,
		queue:           q,
		registry:        registry.New(),
		machine:         deps.Machine,
		hooks:           deps.Hooks,
		metrics:         NewDispatchMetrics(q),
		promRegistry:    deps.Registry,
		errorClassifier: deps.ErrorClassifier,
		stats:           make(map[string]*HandlerStats),
		done:            make(chan struct{}),
	}
	if d.errorClassifier == nil {
		d.errorClassifier = defaultErrorClassifier
	}
	if d.promRegistry == nil {
		d.promRegistry = prometheus.NewRegistry()
		d.promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if err := d.metrics.Register(d.promRegistry); err != nil {
		return nil, err
	}

	workers := conf.Workers
	if workers <= 0 {
		workers = configpkg.DefaultWorkers
	}
	for i := 0; i < workers; i++ {
		d.workers = append(d.workers, &Worker{id: i, d: d})
	}

	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(correlationIDMiddleware, middleware.Recoverer)
	d.router = router

	if err := d.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) registerConfiguredMiddlewares(deps Dependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := d.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return errors.Join(errors.New("failed to register middleware "+name), err)
		}
	}
	return nil
}

// Register adds an update handler for kind. Handlers are tried in
// registration order; the first whose filter matches wins.
func (d *Dispatcher) Register(name string, kind update.Kind, h handlers.Handler, expr filter.Expr) error {
	if d.started.Load() {
		return errspkg.ErrRegistrationAfterStart
	}
	if err := d.registry.Register(name, kind, h, expr); err != nil {
		return err
	}
	d.trackHandler(&HandlerInfo{Name: name, Kind: kind, Filter: expr.String()})
	return nil
}

// RegisterError adds an error handler. It runs when a handler fails and its
// filter matches the error and the update.
func (d *Dispatcher) RegisterError(name string, h handlers.ErrorHandler, expr filter.Expr) error {
	if d.started.Load() {
		return errspkg.ErrRegistrationAfterStart
	}
	if err := d.registry.RegisterError(name, h, expr); err != nil {
		return err
	}
	d.trackHandler(&HandlerInfo{Name: name, ErrorHandler: true, Filter: expr.String()})
	return nil
}

func (d *Dispatcher) trackHandler(info *HandlerInfo) {
	info.Stats = newHandlerStats()
	d.handlersMu.Lock()
	d.handlers = append(d.handlers, info)
	d.stats[info.Name] = info.Stats
	d.handlersMu.Unlock()
}

// UseStateMachine binds m to every handler context.
func (d *Dispatcher) UseStateMachine(m *fsm.Machine) error {
	if d.started.Load() {
		return errspkg.ErrRegistrationAfterStart
	}
	d.machine = m
	return nil
}

func (d *Dispatcher) Machine() *fsm.Machine { return d.machine }

// Handlers returns the registered handlers in registration order.
func (d *Dispatcher) Handlers() []*HandlerInfo {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	out := make([]*HandlerInfo, len(d.handlers))
	copy(out, d.handlers)
	return out
}

// Workers returns the worker pool.
func (d *Dispatcher) Workers() []*Worker { return d.workers }

func (d *Dispatcher) QueueStats() queue.Stats { return d.queue.Stats() }

func (d *Dispatcher) Metrics() *DispatchMetrics { return d.metrics }

// PrometheusRegistry returns the registry holding the dispatcher's collectors.
func (d *Dispatcher) PrometheusRegistry() *prometheus.Registry { return d.promRegistry }

// Submit queues an event for dispatch.
func (d *Dispatcher) Submit(event *update.Event) (*queue.Queued, error) {
	if event == nil {
		return nil, errspkg.ErrUnsupportedUpdate
	}
	item, err := d.queue.Submit(event)
	if err != nil {
		return nil, err
	}
	d.metrics.submitted(item.Kind)
	return item, nil
}

// SubmitUpdate wraps u in an Event and queues it.
func (d *Dispatcher) SubmitUpdate(u telego.Update) (*queue.Queued, error) {
	return d.Submit(update.New(u))
}

// Run starts the workers and every attached ingress and blocks until ctx
// is cancelled or Shutdown completes. Workers finish the event they are
// processing before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errspkg.ErrDispatcherRunning
	}
	defer close(d.done)

	d.pipeline = chain(invokeHandler, d.middlewares)
	d.startHTTPServers()
	defer d.stopHTTPServers()

	d.Logger.Info("Starting dispatcher", loggingpkg.LogFields{
		"workers":   len(d.workers),
		"handlers":  len(d.Handlers()),
		"ingresses": d.ingresses.Load(),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error { return w.run(gctx) })
	}
	if d.ingresses.Load() > 0 {
		g.Go(func() error { return d.router.Run(gctx) })
	}
	return g.Wait()
}

// Shutdown stops the ingresses, waits until every queued event has been
// processed and then stops the workers.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.started.Load() && d.ingresses.Load() > 0 {
		if err := d.router.Close(); err != nil {
			d.Logger.Error("Failed to close ingress router", err, nil)
		}
	}

	drainErr := d.queue.Drain(ctx)
	d.queue.Close()
	if drainErr != nil {
		return drainErr
	}

	if !d.started.Load() {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func invokeHandler(ctx context.Context, d *Dispatch) error {
	if d.errorHandler != nil {
		return d.errorHandler.ProcessError(ctx, d.Err, d.Event())
	}
	return d.handler.Process(ctx, d.Event())
}

func (d *Dispatcher) recordStats(name string, dispatch func() error) error {
	start := time.Now()
	err := dispatch()
	duration := time.Since(start)

	d.handlersMu.RLock()
	stats := d.stats[name]
	d.handlersMu.RUnlock()
	if stats != nil {
		stats.record(duration, err, d.errorClassifier)
	}
	return err
}
