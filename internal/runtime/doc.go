/*
Package runtime provides the dispatch core of botflow.

# Architecture Overview

Telegram updates enter a Dispatcher either directly through Submit or from a
Watermill subscriber (AddIngress, Consume). Every update is classified,
assigned a conversation key and queued. A fixed pool of workers takes updates
from the queue, runs the first handler whose filter matches and, when that
handler fails, the first matching error handler. Updates that share a
conversation are processed one at a time in arrival order; updates for
different conversations run in parallel.

# Package Structure

## Dispatcher (dispatcher.go, worker.go)

The Dispatcher wires together:
  - the event queue and the worker pool
  - the handler registry
  - the middleware chain
  - dispatch hooks and Prometheus metrics
  - an optional state machine bound to every handler context
  - HTTP servers for metrics and introspection

## Ingestion (ingest.go)

Watermill subscribers carrying JSON-encoded updates are attached to the
dispatcher's router. Undecodable payloads are acknowledged, logged and counted.

## Middleware (middleware.go)

Every handler and error handler invocation passes through the chain:
  - Tracer: OpenTelemetry span per dispatch
  - LogDispatch: debug logging of the update payload
  - Metrics: handler duration histogram
  - Timeout: context deadline from Config.HandlerTimeout
  - Recoverer: turns panics into HandlerPanicError

## Stats & Monitoring (stats.go, metrics.go, http.go)

Per-handler statistics (latency percentiles, throughput, error categories)
are served on /api/handlers, queue depth on /api/queue and the Prometheus
registry on /metrics.

# Sub-packages

  - config/: configuration loading and validation
  - errors/: sentinel errors and error types
  - filter/: filter expressions, predicates and the per-dispatch memo
  - fsm/: the persisted state machine and its ambient helpers
  - handlers/: handler interfaces and the execution context
  - ids/: ULID event ids
  - jsoncodec/: JSON marshaling
  - logging/: logger interface and adapters
  - metadata/: transport metadata helpers
  - queue/: the per-conversation ordered event queue
  - registry/: handler registration and matching
  - update/: update classification and conversation keys

# Usage Example

	d, err := botflow.NewDispatcher(cfg, logger, botflow.Dependencies{Machine: machine})
	if err != nil {
		return err
	}

	_ = d.Register("start", botflow.KindMessage, botflow.HandlerFunc(onStart),
		botflow.Lit(botflow.Command{Names: []string{"start"}}))

	in, err := ingress.Build(ctx, cfg, botflow.NewWatermillAdapter(logger))
	if err != nil {
		return err
	}
	_ = d.AddIngress(in.Name, in.Subscriber, in.Topic)

	return d.Run(ctx)
*/
package runtime
