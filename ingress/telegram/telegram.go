// Package telegram provides an ingress that polls the Bot API with
// getUpdates. It is the simplest way to run a bot: no webhook, no broker.
package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mymmrac/telego"

	"github.com/drblury/botflow/ingress"
)

// Name is the name used to register this ingress.
const Name = "telegram"

const (
	// DefaultPollTimeout is the long polling timeout in seconds.
	DefaultPollTimeout = 30
	// DefaultRetryDelay is the pause after a failed getUpdates call.
	DefaultRetryDelay = 3 * time.Second
)

// UpdatesGetter is the part of *telego.Bot the poller needs.
type UpdatesGetter interface {
	GetUpdates(ctx context.Context, params *telego.GetUpdatesParams) ([]telego.Update, error)
}

// BotFactory allows overriding the bot creation for testing.
var BotFactory = func(token string) (UpdatesGetter, error) {
	return telego.NewBot(token, telego.WithDiscardLogger())
}

func init() {
	ingress.Register(Name, Build, ingress.TelegramCapabilities)
}

// Build creates a long polling ingress for the bot token in cfg.
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	bot, err := BotFactory(cfg.GetTelegramToken())
	if err != nil {
		return ingress.Ingress{}, err
	}
	return ingress.Ingress{
		Name:       Name,
		Subscriber: NewPoller(bot, logger),
		Topic:      cfg.GetUpdatesTopic(),
	}, nil
}

func Capabilities() ingress.Capabilities {
	return ingress.TelegramCapabilities
}

// Poller is a message.Subscriber over getUpdates. The topic passed to
// Subscribe is ignored: a bot has exactly one update stream.
type Poller struct {
	bot    UpdatesGetter
	logger watermill.LoggerAdapter

	// Timeout is the long polling timeout in seconds.
	Timeout        int
	RetryDelay     time.Duration
	AllowedUpdates []string

	mu     sync.Mutex
	offset int

	closeOnce sync.Once
	closed    chan struct{}
}

func NewPoller(bot UpdatesGetter, logger watermill.LoggerAdapter) *Poller {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Poller{
		bot:        bot,
		logger:     logger,
		Timeout:    DefaultPollTimeout,
		RetryDelay: DefaultRetryDelay,
		closed:     make(chan struct{}),
	}
}

// Offset returns the id of the next update that will be requested.
func (p *Poller) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

func (p *Poller) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-p.closed:
		return nil, errors.New("telegram poller is closed")
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-p.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer cancel()
		p.poll(ctx, out)
	}()
	return out, nil
}

func (p *Poller) poll(ctx context.Context, out chan<- *message.Message) {
	for {
		updates, err := p.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
			Offset:         p.Offset(),
			Timeout:        p.Timeout,
			AllowedUpdates: p.AllowedUpdates,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("getUpdates failed", err, watermill.LogFields{"offset": p.Offset()})
			if !sleep(ctx, p.RetryDelay) {
				return
			}
			continue
		}

		for _, u := range updates {
			msg, err := ingress.EncodeUpdate(u, Name)
			if err != nil {
				p.logger.Error("Skipping update", err, watermill.LogFields{"update_id": u.UpdateID})
				p.advance(u.UpdateID)
				continue
			}
			if !p.deliver(ctx, out, msg) {
				return
			}
			p.advance(u.UpdateID)
		}
	}
}

func (p *Poller) advance(updateID int) {
	p.mu.Lock()
	if updateID >= p.offset {
		p.offset = updateID + 1
	}
	p.mu.Unlock()
}

// deliver passes msg on and waits for its ack, redelivering a copy on nack.
func (p *Poller) deliver(ctx context.Context, out chan<- *message.Message, msg *message.Message) bool {
	for {
		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			msg = msg.Copy()
			if !sleep(ctx, p.RetryDelay) {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

// Close stops polling. Updates that were not acked are fetched again by
// the next poller.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
