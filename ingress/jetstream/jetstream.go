// Package jetstream provides a NATS JetStream ingress. Updates are stored in
// a stream, so they survive dispatcher restarts and are redelivered until
// acked.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/drblury/botflow/ingress"
)

// Name is the name used to register this ingress.
const Name = "jetstream"

const (
	DefaultStreamName = "BOTFLOW"
	DefaultMaxDeliver = 5
	DefaultAckWait    = 30 * time.Second
	// DefaultMaxAge bounds how long undelivered updates are kept. Telegram
	// itself only keeps unconfirmed updates for a day.
	DefaultMaxAge = 24 * time.Hour

	fetchBatch = 10
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("jetstream ingress is closed")

func init() {
	ingress.Register(Name, Build, ingress.JetStreamCapabilities)
}

// Build creates a new JetStream ingress from the NATS URL in cfg.
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	js, err := New(Config{URL: cfg.GetNATSURL()}, logger)
	if err != nil {
		return ingress.Ingress{}, err
	}
	return ingress.Ingress{
		Name:       Name,
		Publisher:  js,
		Subscriber: js,
		Topic:      cfg.GetUpdatesTopic(),
	}, nil
}

func Capabilities() ingress.Capabilities {
	return ingress.JetStreamCapabilities
}

// Config holds JetStream specific settings.
type Config struct {
	URL string

	// StreamName defaults to DefaultStreamName. The stream captures every
	// subject below "<StreamName>.".
	StreamName string
	MaxDeliver int
	AckWait    time.Duration
	MaxAge     time.Duration
	Replicas   int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Ingress implements message.Publisher and message.Subscriber on top of a
// JetStream stream.
type Ingress struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subscriptions []*nats.Subscription
	subMu         sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// New connects to NATS and makes sure the stream exists.
func New(cfg Config, logger watermill.LoggerAdapter) (*Ingress, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	in := &Ingress{
		nc:     nc,
		js:     js,
		config: cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	if err := in.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return in, nil
}

func (in *Ingress) ensureStream() error {
	streamCfg := &nats.StreamConfig{
		Name:     in.config.StreamName,
		Subjects: []string{in.config.StreamName + ".>"},
		MaxAge:   in.config.MaxAge,
		Replicas: in.config.Replicas,
		// Telegram update ids are unique per bot, so a window covering
		// webhook retries removes duplicates at publish time.
		Duplicates: 2 * time.Minute,
	}

	if _, err := in.js.AddStream(streamCfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return err
		}
		if _, err := in.js.UpdateStream(streamCfg); err != nil {
			in.logger.Info("Keeping existing JetStream stream", watermill.LogFields{
				"stream": in.config.StreamName,
				"reason": err.Error(),
			})
		}
	}
	return nil
}

// Publish stores messages in the stream. The message uuid is sent as the
// Nats-Msg-Id so retried publishes are deduplicated.
func (in *Ingress) Publish(topic string, messages ...*message.Message) error {
	if in.isClosed() {
		return ErrClosed
	}

	subject := in.subject(topic)
	for _, msg := range messages {
		headers := nats.Header{}
		for k, v := range msg.Metadata {
			headers.Set(k, v)
		}
		headers.Set(nats.MsgIdHdr, msg.UUID)

		if _, err := in.js.PublishMsg(&nats.Msg{Subject: subject, Data: msg.Payload, Header: headers}); err != nil {
			return fmt.Errorf("failed to publish to JetStream: %w", err)
		}
	}
	return nil
}

// Subscribe pulls updates for topic through a durable consumer shared by
// every dispatcher replica.
func (in *Ingress) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if in.isClosed() {
		return nil, ErrClosed
	}

	subject := in.subject(topic)
	consumer := ConsumerName(topic)

	consumerCfg := &nats.ConsumerConfig{
		Durable:       consumer,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    in.config.MaxDeliver,
		AckWait:       in.config.AckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
	if _, err := in.js.AddConsumer(in.config.StreamName, consumerCfg); err != nil {
		if _, err := in.js.UpdateConsumer(in.config.StreamName, consumerCfg); err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := in.js.PullSubscribe(subject, consumer, nats.Bind(in.config.StreamName, consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	in.subMu.Lock()
	in.subscriptions = append(in.subscriptions, sub)
	in.subMu.Unlock()

	output := make(chan *message.Message)
	go in.fetch(ctx, sub, output, topic)
	return output, nil
}

func (in *Ingress) fetch(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer close(output)

	for {
		select {
		case <-ctx.Done():
			return
		case <-in.closed:
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if in.isClosed() {
				return
			}
			in.logger.Error("Failed to fetch updates", err, watermill.LogFields{"topic": topic})
			continue
		}

		for _, natsMsg := range msgs {
			msg := toMessage(natsMsg)
			select {
			case output <- msg:
			case <-ctx.Done():
				return
			}

			select {
			case <-msg.Acked():
				if err := natsMsg.Ack(); err != nil {
					in.logger.Error("Failed to ack", err, watermill.LogFields{"uuid": msg.UUID})
				}
			case <-msg.Nacked():
				if err := natsMsg.Nak(); err != nil {
					in.logger.Error("Failed to nak", err, watermill.LogFields{"uuid": msg.UUID})
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func toMessage(natsMsg *nats.Msg) *message.Message {
	id := natsMsg.Header.Get(nats.MsgIdHdr)
	if id == "" {
		id = uuid.NewString()
	}

	msg := message.NewMessage(id, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if k == nats.MsgIdHdr || len(v) == 0 {
			continue
		}
		msg.Metadata.Set(k, v[0])
	}
	return msg
}

func (in *Ingress) subject(topic string) string {
	return in.config.StreamName + "." + topic
}

// ConsumerName derives the durable consumer name for topic. Durable names
// cannot contain dots, spaces or wildcards.
func ConsumerName(topic string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return "botflow_" + r.Replace(topic)
}

func (in *Ingress) isClosed() bool {
	select {
	case <-in.closed:
		return true
	default:
		return false
	}
}

// Close stops every subscription and the NATS connection.
func (in *Ingress) Close() error {
	in.closeOnce.Do(func() {
		close(in.closed)

		in.subMu.Lock()
		for _, sub := range in.subscriptions {
			_ = sub.Unsubscribe()
		}
		in.subscriptions = nil
		in.subMu.Unlock()

		in.nc.Close()
	})
	return nil
}
