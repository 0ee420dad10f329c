package runtime

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/botflow/internal/runtime/queue"
	"github.com/drblury/botflow/internal/runtime/update"
)

const metricsNamespace = "botflow"

// Outcome labels of events_processed_total.
const (
	OutcomeHandled   = "handled"
	OutcomeRecovered = "recovered"
	OutcomeFailed    = "failed"
	OutcomeUnmatched = "unmatched"
)

// DispatchMetrics holds the Prometheus collectors of a Dispatcher.
type DispatchMetrics struct {
	submittedTotal    *prometheus.CounterVec
	processedTotal    *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	decodeErrorsTotal prometheus.Counter

	queueReady    prometheus.GaugeFunc
	queueInFlight prometheus.GaugeFunc
	conversations prometheus.GaugeFunc
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newQueueGauge(name, help string, q *queue.Queue, read func(queue.Stats) int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		},
		func() float64 { return float64(read(q.Stats())) },
	)
}

// NewDispatchMetrics creates the collectors. Queue gauges are computed from
// q on every scrape.
func NewDispatchMetrics(q *queue.Queue) *DispatchMetrics {
	return &DispatchMetrics{
		submittedTotal: newCounterVec("events_submitted_total", "Total number of updates accepted by the event queue", []string{"kind"}),
		processedTotal: newCounterVec("events_processed_total", "Total number of updates taken by a worker, by outcome", []string{"kind", "outcome"}),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "handler_duration_seconds",
				Help:      "Time spent inside handlers and error handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		decodeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingress_decode_errors_total",
			Help:      "Total number of ingress messages dropped because they were not valid updates",
		}),
		queueReady:    newQueueGauge("queue_ready", "Number of updates ready to be taken by a worker", q, func(s queue.Stats) int { return s.Ready }),
		queueInFlight: newQueueGauge("queue_in_flight", "Number of updates currently being processed", q, func(s queue.Stats) int { return s.InFlight }),
		conversations: newQueueGauge("conversations_active", "Number of conversations with an update ready or in flight", q, func(s queue.Stats) int { return s.Conversations }),
	}
}

// Register registers the collectors. Collectors that are already registered
// are not an error.
func (m *DispatchMetrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.submittedTotal,
		m.processedTotal,
		m.handlerDuration,
		m.decodeErrorsTotal,
		m.queueReady,
		m.queueInFlight,
		m.conversations,
	}

	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

func (m *DispatchMetrics) submitted(kind update.Kind) {
	m.submittedTotal.WithLabelValues(string(kind)).Inc()
}

func (m *DispatchMetrics) processed(kind update.Kind, outcome string) {
	m.processedTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (m *DispatchMetrics) observe(handler string, d time.Duration) {
	m.handlerDuration.WithLabelValues(handler).Observe(d.Seconds())
}

func (m *DispatchMetrics) decodeError() {
	m.decodeErrorsTotal.Inc()
}
