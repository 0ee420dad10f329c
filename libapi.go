package botflow

import (
	runtimepkg "github.com/drblury/botflow/internal/runtime"
	configpkg "github.com/drblury/botflow/internal/runtime/config"
	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/filter"
	"github.com/drblury/botflow/internal/runtime/fsm"
	handlerpkg "github.com/drblury/botflow/internal/runtime/handlers"
	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/botflow/internal/runtime/metadata"
	"github.com/drblury/botflow/internal/runtime/update"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError

	Dispatcher             = runtimepkg.Dispatcher
	Dependencies           = runtimepkg.Dependencies
	Dispatch               = runtimepkg.Dispatch
	Middleware             = runtimepkg.Middleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	Worker                 = runtimepkg.Worker

	// Dispatch lifecycle hooks
	DispatchContext = runtimepkg.DispatchContext
	DispatchHooks   = runtimepkg.DispatchHooks

	HandlerInfo     = runtimepkg.HandlerInfo
	HandlerStats    = runtimepkg.HandlerStats
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	Event = update.Event
	Kind  = update.Kind
	Key   = update.Key

	Handler          = handlerpkg.Handler
	HandlerFunc      = handlerpkg.HandlerFunc
	ErrorHandler     = handlerpkg.ErrorHandler
	ErrorHandlerFunc = handlerpkg.ErrorHandlerFunc
	ExecutionContext = handlerpkg.ExecutionContext

	// Filters
	Expr         = filter.Expr
	Predicate    = filter.Predicate
	FilterInput  = filter.Input
	Text         = filter.Text
	TextPattern  = filter.TextPattern
	Command      = filter.Command
	ChatType     = filter.ChatType
	CallbackData = filter.CallbackData
	HasField     = filter.HasField
	FieldEquals  = filter.FieldEquals
	ErrorIs      = filter.ErrorIs
	Custom       = filter.Custom

	// State machine
	Machine              = fsm.Machine
	State                = fsm.State
	StateHook            = fsm.Hook
	Scope                = fsm.Scope
	MachineOption        = fsm.Option
	Magazine             = fsm.Magazine
	InState              = fsm.InState
	NoNextStateError     = fsm.NoNextStateError
	NoPreviousStateError = fsm.NoPreviousStateError

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	HandlerPanicError = errspkg.HandlerPanicError
)

var (
	NewDispatcher  = runtimepkg.NewDispatcher
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	TracerMiddleware      = runtimepkg.TracerMiddleware
	LogDispatchMiddleware = runtimepkg.LogDispatchMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	TimeoutMiddleware     = runtimepkg.TimeoutMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware

	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewEvent    = update.New
	DecodeEvent = update.Decode

	ExecutionFrom = handlerpkg.ExecutionFrom
	LoggerFrom    = handlerpkg.LoggerFrom

	Lit     = filter.Lit
	Not     = filter.Not
	And     = filter.And
	Or      = filter.Or
	NewMemo = filter.NewMemo

	NewMachine   = fsm.New
	WithScope    = fsm.WithScope
	WithLogger   = fsm.WithLogger
	ParseScope   = fsm.ParseScope
	CurrentState = fsm.Current
	Next         = fsm.Next
	Previous     = fsm.Previous
	SetState     = fsm.Set
	ResetState   = fsm.Reset
	In           = fsm.In

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewTextServiceLogger = loggingpkg.NewTextServiceLogger
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter
	NopLogger            = loggingpkg.Nop

	NewMetadata = metadatapkg.New

	ErrHandlerRequired        = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired    = errspkg.ErrHandlerNameRequired
	ErrDuplicateHandler       = errspkg.ErrDuplicateHandler
	ErrUnsupportedUpdate      = errspkg.ErrUnsupportedUpdate
	ErrQueueClosed            = errspkg.ErrQueueClosed
	ErrSubscriberRequired     = errspkg.ErrSubscriberRequired
	ErrPublisherRequired      = errspkg.ErrPublisherRequired
	ErrTopicRequired          = errspkg.ErrTopicRequired
	ErrConfigRequired         = errspkg.ErrConfigRequired
	ErrLoggerRequired         = errspkg.ErrLoggerRequired
	ErrStorageRequired        = errspkg.ErrStorageRequired
	ErrDispatcherRunning      = errspkg.ErrDispatcherRunning
	ErrRegistrationAfterStart = errspkg.ErrRegistrationAfterStart

	ErrNoNextState     = fsm.ErrNoNextState
	ErrNoPreviousState = fsm.ErrNoPreviousState
	ErrUnknownState    = fsm.ErrUnknownState
	ErrNoConversation  = fsm.ErrNoConversation
)

// Update kinds routed by the dispatcher.
const (
	KindMessage            = update.KindMessage
	KindEditedMessage      = update.KindEditedMessage
	KindChannelPost        = update.KindChannelPost
	KindEditedChannelPost  = update.KindEditedChannelPost
	KindCallbackQuery      = update.KindCallbackQuery
	KindInlineQuery        = update.KindInlineQuery
	KindChosenInlineResult = update.KindChosenInlineResult
	KindShippingQuery      = update.KindShippingQuery
	KindPreCheckoutQuery   = update.KindPreCheckoutQuery
	KindPoll               = update.KindPoll
	KindPollAnswer         = update.KindPollAnswer
	KindMyChatMember       = update.KindMyChatMember
	KindChatMember         = update.KindChatMember
	KindChatJoinRequest    = update.KindChatJoinRequest
)

// State machine scopes.
const (
	ScopeActor        = fsm.ScopeActor
	ScopeConversation = fsm.ScopeConversation
)

// Metadata keys set on events that arrive through an ingress.
const (
	MetadataKeySource        = metadatapkg.KeySource
	MetadataKeyMessageUUID   = metadatapkg.KeyMessageUUID
	MetadataKeyUpdateKind    = metadatapkg.KeyUpdateKind
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryNavigation = runtimepkg.ErrorCategoryNavigation
	ErrorCategoryTimeout    = runtimepkg.ErrorCategoryTimeout
	ErrorCategoryPanic      = runtimepkg.ErrorCategoryPanic
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

// Outcome labels of the botflow_events_processed_total metric.
const (
	OutcomeHandled   = runtimepkg.OutcomeHandled
	OutcomeRecovered = runtimepkg.OutcomeRecovered
	OutcomeFailed    = runtimepkg.OutcomeFailed
	OutcomeUnmatched = runtimepkg.OutcomeUnmatched
)
