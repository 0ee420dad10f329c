package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrDispatcherRequired     = sterrors.New("botflow: dispatcher is required")
	ErrHandlerRequired        = sterrors.New("botflow: handler is required")
	ErrHandlerNameRequired    = sterrors.New("botflow: handler name is required")
	ErrDuplicateHandler       = sterrors.New("botflow: handler name already registered")
	ErrUnsupportedUpdate      = sterrors.New("botflow: update kind is not supported")
	ErrQueueClosed            = sterrors.New("botflow: event queue is closed")
	ErrSubscriberRequired     = sterrors.New("botflow: subscriber is required")
	ErrPublisherRequired      = sterrors.New("botflow: publisher is required")
	ErrTopicRequired          = sterrors.New("botflow: topic is required")
	ErrConfigRequired         = sterrors.New("botflow: configuration is required")
	ErrLoggerRequired         = sterrors.New("botflow: logger is required")
	ErrStorageRequired        = sterrors.New("botflow: state storage is required")
	ErrDispatcherRunning      = sterrors.New("botflow: dispatcher is already running")
	ErrRegistrationAfterStart = sterrors.New("botflow: handlers cannot be registered after Run")
)

// HandlerPanicError carries a value recovered from a panicking handler.
type HandlerPanicError struct {
	Handler string
	Value   any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("botflow: handler %q panicked: %v", e.Handler, e.Value)
}

// FilterPanicError carries a value recovered from a filter predicate that
// panicked while the registry evaluated Handler's filter.
type FilterPanicError struct {
	Handler string
	Value   any
}

func (e *FilterPanicError) Error() string {
	return fmt.Sprintf("botflow: filter of handler %q panicked: %v", e.Handler, e.Value)
}

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "botflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}
