// Package ingresstest provides stand-ins for ingress backend tests.
package ingresstest

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config is a settable ingress.Config.
type Config struct {
	Ingress            string
	UpdatesTopic       string
	TelegramToken      string
	WebhookSecret      string
	KafkaBrokers       []string
	KafkaConsumerGroup string
	RabbitMQURL        string
	NATSURL            string
	HTTPServerAddress  string
	IngressFile        string
}

func (c *Config) GetIngress() string               { return c.Ingress }
func (c *Config) GetUpdatesTopic() string          { return c.UpdatesTopic }
func (c *Config) GetTelegramToken() string         { return c.TelegramToken }
func (c *Config) GetTelegramWebhookSecret() string { return c.WebhookSecret }
func (c *Config) GetKafkaBrokers() []string        { return c.KafkaBrokers }
func (c *Config) GetKafkaConsumerGroup() string    { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string           { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string               { return c.NATSURL }
func (c *Config) GetHTTPServerAddress() string     { return c.HTTPServerAddress }
func (c *Config) GetIngressFile() string           { return c.IngressFile }

// Publisher records published messages.
type Publisher struct {
	mu       sync.Mutex
	Messages []*message.Message
	Closed   bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, messages...)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Subscriber hands out a channel per Subscribe call and counts closes.
type Subscriber struct {
	mu      sync.Mutex
	Topics  []string
	Closes  int
	Channel chan *message.Message
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Topics = append(s.Topics, topic)
	if s.Channel == nil {
		s.Channel = make(chan *message.Message)
	}
	return s.Channel, nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return nil
}

// PubSub is both a Publisher and a Subscriber.
type PubSub struct {
	Subscriber
	Published []*message.Message
}

func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, messages...)
	return nil
}
