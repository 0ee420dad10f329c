// Package http provides a Telegram webhook ingress. Telegram POSTs each
// update to "<HTTPServerAddress>/<UpdatesTopic>"; the request is answered
// once the update has been queued, or with an error status so Telegram
// retries it.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/botflow/ingress"
)

// Name is the name used to register this ingress.
const Name = "http"

// SecretHeader carries the secret_token passed to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// MaxBodyBytes bounds the size of a single webhook request.
const MaxBodyBytes = 1 << 20

var (
	ErrInvalidSecret = errors.New("webhook secret token mismatch")
	ErrEmptyBody     = errors.New("webhook request has no body")
)

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	ingress.Register(Name, Build, ingress.HTTPCapabilities)
}

// Build creates a webhook ingress listening on cfg.GetHTTPServerAddress().
// The server starts with the first Subscribe.
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	sub, err := SubscriberFactory(
		cfg.GetHTTPServerAddress(),
		http.SubscriberConfig{
			UnmarshalMessageFunc: UnmarshalUpdate(cfg.GetTelegramWebhookSecret()),
		},
		logger,
	)
	if err != nil {
		return ingress.Ingress{}, err
	}

	return ingress.Ingress{
		Name:       Name,
		Subscriber: newWebhookSubscriber(sub, logger),
		Topic:      WebhookPath(cfg.GetUpdatesTopic()),
	}, nil
}

func Capabilities() ingress.Capabilities {
	return ingress.HTTPCapabilities
}

// WebhookPath turns an updates topic into the route the subscriber serves.
func WebhookPath(topic string) string {
	return "/" + strings.TrimPrefix(topic, "/")
}

// UnmarshalUpdate builds the request decoder. When secret is not empty the
// request must carry it in SecretHeader.
func UnmarshalUpdate(secret string) http.UnmarshalMessageFunc {
	return func(topic string, r *nethttp.Request) (*message.Message, error) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			return nil, ErrInvalidSecret
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read webhook body: %w", err)
		}
		if len(body) == 0 {
			return nil, ErrEmptyBody
		}
		return ingress.NewMessage(body, Name), nil
	}
}

// webhookSubscriber starts the HTTP server once the first route is
// registered.
type webhookSubscriber struct {
	message.Subscriber
	start  func() error
	once   sync.Once
	logger watermill.LoggerAdapter
}

func newWebhookSubscriber(sub message.Subscriber, logger watermill.LoggerAdapter) *webhookSubscriber {
	ws := &webhookSubscriber{Subscriber: sub, logger: logger}
	if s, ok := sub.(*http.Subscriber); ok {
		ws.start = s.StartHTTPServer
	}
	return ws
}

func (s *webhookSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		if s.start == nil {
			return
		}
		go func() {
			if err := s.start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				s.logger.Error("Webhook server stopped", err, nil)
			}
		}()
	})
	return messages, nil
}
