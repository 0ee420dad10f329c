package runtime

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/botflow/internal/runtime/queue"
	"github.com/drblury/botflow/internal/runtime/update"
)

func TestDispatchMetricsCounters(t *testing.T) {
	m := NewDispatchMetrics(queue.New())

	m.submitted(update.KindMessage)
	m.submitted(update.KindMessage)
	m.processed(update.KindCallbackQuery, OutcomeFailed)
	m.decodeError()
	m.observe("echo", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submittedTotal.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processedTotal.WithLabelValues("callback_query", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrorsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.handlerDuration))
}

func TestDispatchMetricsQueueGauges(t *testing.T) {
	q := queue.New()
	m := NewDispatchMetrics(q)

	_, err := q.Submit(update.New(textMessage(1, 1, "a")))
	require.NoError(t, err)
	_, err = q.Submit(update.New(textMessage(1, 1, "b")))
	require.NoError(t, err)
	_, err = q.Submit(update.New(textMessage(2, 1, "c")))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queueReady))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueInFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.conversations))
}

func TestDispatchMetricsExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(queue.New())
	require.NoError(t, m.Register(reg))
	m.submitted(update.KindMessage)

	expected := `
# HELP botflow_events_submitted_total Total number of updates accepted by the event queue
# TYPE botflow_events_submitted_total counter
botflow_events_submitted_total{kind="message"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "botflow_events_submitted_total"))
}
