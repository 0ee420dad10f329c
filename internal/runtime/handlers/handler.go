package handlers

import (
	"context"

	"github.com/drblury/botflow/internal/runtime/update"
)

// Handler processes one routed update.
type Handler interface {
	Process(ctx context.Context, event *update.Event) error
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc func(ctx context.Context, event *update.Event) error

func (f HandlerFunc) Process(ctx context.Context, event *update.Event) error {
	return f(ctx, event)
}

// ErrorHandler processes the error a Handler (or a state hook it triggered)
// returned for an update.
type ErrorHandler interface {
	ProcessError(ctx context.Context, err error, event *update.Event) error
}

// ErrorHandlerFunc adapts a function into an ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, err error, event *update.Event) error

func (f ErrorHandlerFunc) ProcessError(ctx context.Context, err error, event *update.Event) error {
	return f(ctx, err, event)
}
