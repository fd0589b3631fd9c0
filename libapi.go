package uskit

import (
	"context"

	"github.com/drblury/uskit/internal/runtime/auth"
	configpkg "github.com/drblury/uskit/internal/runtime/config"
	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	idspkg "github.com/drblury/uskit/internal/runtime/ids"
	jsoncodec "github.com/drblury/uskit/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
	"github.com/drblury/uskit/internal/runtime/query"
	"github.com/drblury/uskit/internal/runtime/session"
	"github.com/drblury/uskit/internal/runtime/telemetry"
	"github.com/drblury/uskit/internal/runtime/txn"
	"github.com/drblury/uskit/internal/runtime/wire"
	"github.com/drblury/uskit/transport"
	// Register the built-in transports.
	_ "github.com/drblury/uskit/transport/transports"
)

type (
	Config = configpkg.Config

	Session             = session.Session
	SessionDependencies = session.Dependencies
	Conn                = session.Conn

	Event    = events.Event
	Channel  = events.Channel
	Metadata = events.Metadata
	Fault    = events.Fault
	Handler  = events.Handler
	Emitter  = events.Emitter
	Router   = events.Router

	DeliveryHooks   = events.DeliveryHooks
	DeliveryContext = events.DeliveryContext

	Message   = wire.Message
	ColumnDef = wire.ColumnDef

	TxnClient     = txn.Client
	TxnOption     = txn.Option
	QueryClient   = query.Client
	QueryOption   = query.Option
	Table         = query.Table
	Mirror        = query.Mirror
	Row           = query.Row
	AuthProxy     = auth.Proxy
	AuthOption    = auth.Option
	AuthState     = auth.State
	Metrics       = telemetry.Metrics
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	UnmatchedResponseError = errspkg.UnmatchedResponseError
	HandlerError           = errspkg.HandlerError
	ConfigValidationError  = errspkg.ConfigValidationError

	Dialer                = transport.Dialer
	Link                  = transport.Link
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

// Well-known channels.
var (
	Submit = events.Submit
	Ack    = events.Ack
	Nack   = events.Nack
	Open   = events.Open
	Close  = events.Close
	Reset  = events.Reset
	Column = events.Column
	Insert = events.Insert
	Update = events.Update
	Delete = events.Delete

	ErrorChannel = session.ErrorChannel
)

// Event metadata keys.
const (
	MetaAddress     = events.MetaAddress
	MetaAttempt     = events.MetaAttempt
	MetaConnectedAt = events.MetaConnectedAt
	MetaReason      = events.MetaReason
	MetaDerived     = events.MetaDerived
	MetaRowID       = events.MetaRowID
	MetaChannel     = events.MetaChannel
)

// Login states of an AuthProxy.
const (
	AuthStateNoHistory     = auth.StateNoHistory
	AuthStateAwaiting      = auth.StateAwaiting
	AuthStateAuthenticated = auth.StateAuthenticated
	AuthStateRejected      = auth.StateRejected
)

const (
	UnmatchedDrop = configpkg.UnmatchedDrop
	UnmatchedLog  = configpkg.UnmatchedLog
	UnmatchedFail = configpkg.UnmatchedFail

	DefaultPageSize = query.DefaultPageSize
)

var (
	LoadConfig     = configpkg.Load
	ParseConfig    = configpkg.Parse
	ValidateConfig = configpkg.ValidateConfig

	NewEvent      = events.New
	NamedChannel  = events.Named
	NewRouter     = events.NewRouter
	DecodeContent = events.DecodeContent
	LoggingHooks  = events.LoggingHooks

	NewTxnClient  = txn.New
	WithTxnLogger = txn.WithLogger
	WithTxnTracer = txn.WithTracer
	WithTxnHooks  = txn.WithHooks
	ConnectWidget = txn.ConnectWidget

	NewQueryClient     = query.New
	WithPageSize       = query.WithPageSize
	WithQueryLogger    = query.WithLogger
	WithQueryAutoStart = query.WithAutoStart
	WithQueryHooks     = query.WithHooks
	ConnectTable       = query.ConnectTable
	NewMirror          = query.NewMirror
	RowID              = query.RowID

	NewAuthProxy    = auth.New
	WithAuthLogger  = auth.WithLogger
	WithAuthMetrics = auth.WithMetrics
	WithAuthHooks   = auth.WithHooks

	NewMetrics     = telemetry.NewMetrics
	MetricsHandler = telemetry.Handler

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter
	NopLogger            = loggingpkg.NopLogger

	NewMessageID = idspkg.NewMessageID

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	RegisterTransport = transport.RegisterWithCapabilities
	TransportNames    = transport.DefaultRegistry.Names
)

var (
	ErrConnRequired        = errspkg.ErrConnRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrMessageTypeRequired = errspkg.ErrMessageTypeRequired
	ErrLoginClientRequired = errspkg.ErrLoginClientRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrDialerRequired      = errspkg.ErrDialerRequired
	ErrNotConnected        = errspkg.ErrNotConnected
	ErrSessionClosed       = errspkg.ErrSessionClosed
	ErrAlreadyOpen         = errspkg.ErrAlreadyOpen
	ErrLinkClosed          = errspkg.ErrLinkClosed
)

// Typed adapts a handler that wants the event content decoded into T.
func Typed[T any](fn func(ctx context.Context, evt Event, content T) error) Handler {
	return events.Typed(fn)
}

// NewSession validates cfg and creates a session. Without deps.Dialer the
// dialer is built by the transport registered under cfg.Transport.
func NewSession(ctx context.Context, cfg Config, logger ServiceLogger, deps SessionDependencies) (*Session, error) {
	cfg = cfg.WithDefaults()
	if deps.Dialer == nil {
		if err := cfg.Validate(); err != nil {
			return nil, errspkg.NewConfigValidationError(err)
		}
		dialer, err := transport.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(loggingpkg.OrNop(logger)))
		if err != nil {
			return nil, err
		}
		deps.Dialer = dialer
	}
	return session.New(cfg, logger, deps)
}
