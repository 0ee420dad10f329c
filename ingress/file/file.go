// Package file provides an ingress over a JSON-lines file. Every line is
// either a record written by Publisher or a bare Telegram update as returned
// by getUpdates, which makes the file usable both as a replay log and as
// hand-written test input.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/tidwall/gjson"

	"github.com/drblury/botflow/ingress"
	"github.com/drblury/botflow/internal/runtime/jsoncodec"
)

// Name is the name used to register this ingress.
const Name = "file"

// PollInterval is how long the subscriber waits for the file to grow.
var PollInterval = 50 * time.Millisecond

// ErrInvalidPayload is returned by Publish for payloads that are not JSON.
var ErrInvalidPayload = errors.New("file ingress payload must be JSON")

func init() {
	ingress.Register(Name, Build, ingress.FileCapabilities)
}

// Build creates a file ingress over cfg.GetIngressFile().
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	path := cfg.GetIngressFile()
	if path == "" {
		return ingress.Ingress{}, fmt.Errorf("file: ingress file is required")
	}
	return ingress.Ingress{
		Name:       Name,
		Publisher:  NewPublisher(path),
		Subscriber: NewSubscriber(path, logger),
		Topic:      cfg.GetUpdatesTopic(),
	}, nil
}

func Capabilities() ingress.Capabilities {
	return ingress.FileCapabilities
}

// record is one line of the file.
type record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Update   json.RawMessage   `json:"update"`
}

// Publisher appends records to the file.
type Publisher struct {
	path string
	mu   sync.Mutex
}

func NewPublisher(path string) *Publisher {
	return &Publisher{path: path}
}

// Publish appends one line per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, msg := range messages {
		if !jsoncodec.Valid(msg.Payload) {
			return fmt.Errorf("%w: message %s", ErrInvalidPayload, msg.UUID)
		}
		line, err := jsoncodec.Marshal(record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Update:   json.RawMessage(msg.Payload),
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (p *Publisher) Close() error {
	return nil
}

// Subscriber reads the file from the start and then follows it as it grows.
// A line is only passed when the previous one has been acked; a nacked line
// is delivered again.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	closeOnce sync.Once
	closed    chan struct{}
}

func NewSubscriber(path string, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{path: path, logger: logger, closed: make(chan struct{})}
}

// Subscribe delivers the lines addressed to topic. Bare updates are
// delivered to every topic.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer f.Close()
		s.follow(ctx, f, out, topic)
	}()
	return out, nil
}

func (s *Subscriber) follow(ctx context.Context, f *os.File, out chan<- *message.Message, topic string) {
	reader := bufio.NewReader(f)
	var pending []byte
	lineNo := 0

	for {
		chunk, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			s.logger.Error("Failed to read ingress file", err, watermill.LogFields{"path": s.path})
			return
		}
		pending = append(pending, chunk...)

		if errors.Is(err, io.EOF) {
			if !s.wait(ctx) {
				return
			}
			continue
		}

		line := pending
		pending = nil
		lineNo++

		msg, ok := s.decode(line, topic, lineNo)
		if !ok {
			continue
		}
		if !s.deliver(ctx, out, msg) {
			return
		}
	}
}

func (s *Subscriber) decode(line []byte, topic string, lineNo int) (*message.Message, bool) {
	if len(line) == 0 || (len(line) == 1 && line[0] == '\n') {
		return nil, false
	}

	if gjson.GetBytes(line, "update_id").Exists() {
		id := gjson.GetBytes(line, "update_id").Int()
		msg := message.NewMessage("update-"+strconv.FormatInt(id, 10), line)
		msg.Metadata.Set("botflow_file_line", strconv.Itoa(lineNo))
		return msg, true
	}

	var rec record
	if err := jsoncodec.Unmarshal(line, &rec); err != nil {
		s.logger.Error("Skipping malformed ingress line", err, watermill.LogFields{"path": s.path, "line": lineNo})
		return nil, false
	}
	if rec.Topic != topic {
		return nil, false
	}

	msg := message.NewMessage(rec.UUID, []byte(rec.Update))
	for k, v := range rec.Metadata {
		msg.Metadata.Set(k, v)
	}
	return msg, true
}

// deliver passes msg on and waits for its ack, redelivering a copy on nack.
func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, msg *message.Message) bool {
	for {
		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		case <-s.closed:
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			s.logger.Debug("Redelivering nacked update", watermill.LogFields{"uuid": msg.UUID})
			msg = msg.Copy()
			if !s.wait(ctx) {
				return false
			}
		case <-ctx.Done():
			return false
		case <-s.closed:
			return false
		}
	}
}

func (s *Subscriber) wait(ctx context.Context) bool {
	timer := time.NewTimer(PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closed:
		return false
	}
}

// Close stops every subscription.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
