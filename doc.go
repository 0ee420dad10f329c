// Package botflow dispatches Telegram bot updates to handlers.
//
// Updates arrive from an ingress (long polling, a webhook, or any Watermill
// subscriber such as Kafka, RabbitMQ, NATS JetStream or a file) or are
// submitted directly. Each update is classified by kind, keyed by the
// conversation it belongs to and queued. A fixed pool of workers takes
// updates from the queue and hands each one to the first registered handler
// whose filter expression matches. Updates of one conversation are never
// processed concurrently and keep their arrival order; different
// conversations proceed in parallel.
//
// # Filters
//
// Filters are boolean expressions over predicates: Lit, And, Or and Not
// combine built-in predicates such as Command, Text, ChatType and
// CallbackData. Every extraction is computed at most once per dispatch, so
// a large handler set sharing predicates stays cheap to evaluate.
//
// # State machine
//
// A Machine keeps one state history (a bounded "magazine") per conversation
// or per user, persisted in a storage backend from the storage package
// (memory, jsonfile, sqlite, postgres or natskv). Handlers navigate with
// Next, Previous, Set and Reset without passing keys around: the worker
// binds the current event and the machine to the handler context.
//
// # Errors
//
// A handler error goes to the first error handler whose filter matches,
// ErrorIs being the usual predicate. Errors nobody handles are logged, and
// AlertingHooks reports them to a callback.
//
// # Observability
//
// Dispatches are traced with OpenTelemetry, timed in Prometheus histograms
// and counted per handler. When Config.MetricsEnabled is set, /metrics,
// /api/handlers and /api/queue are served on Config.MetricsPort.
package botflow
