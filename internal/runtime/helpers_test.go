package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/botflow/internal/runtime/config"
	"github.com/drblury/botflow/internal/runtime/filter"
	"github.com/drblury/botflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/update"
)

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

// recordingLogger keeps every entry so tests can assert on them.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
	l.mu.Unlock()
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	return &recordingLogger{mu: l.mu, entries: l.entries, fields: fields}
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record("trace", msg, nil, fields)
}

func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range *l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func testConfig(workers int) *configpkg.Config {
	cfg := configpkg.Default()
	cfg.Workers = workers
	return cfg
}

func newTestDispatcher(t *testing.T, workers int, deps Dependencies) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(testConfig(workers), loggingpkg.Nop(), deps)
	require.NoError(t, err)
	return d
}

// registerEcho registers a message handler named "echo" that accepts every
// message.
func registerEcho(t *testing.T, d *Dispatcher) {
	t.Helper()
	require.NoError(t, d.Register("echo", update.KindMessage, handlers.HandlerFunc(func(context.Context, *update.Event) error {
		return nil
	}), filter.Expr{}))
}

// start runs d in the background and shuts it down when the test ends.
func start(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	require.Eventually(t, d.started.Load, time.Second, time.Millisecond)

	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = d.Shutdown(shutdownCtx)
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})
}

func shutdown(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func textMessage(chatID, userID int64, text string) telego.Update {
	return telego.Update{
		Message: &telego.Message{
			Chat: telego.Chat{ID: chatID, Type: telego.ChatTypePrivate},
			From: &telego.User{ID: userID},
			Text: text,
		},
	}
}

func callback(chatID, userID int64, data string) telego.Update {
	return telego.Update{
		CallbackQuery: &telego.CallbackQuery{
			ID:   "cb",
			From: telego.User{ID: userID},
			Data: data,
			Message: &telego.Message{
				Chat: telego.Chat{ID: chatID, Type: telego.ChatTypePrivate},
			},
		},
	}
}
