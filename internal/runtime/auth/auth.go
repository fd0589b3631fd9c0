// Package auth implements a session proxy that logs in through a transaction
// client, remembers the last credential submitted and submits it again every
// time the underlying connection reopens.
package auth

import (
	"context"
	"strconv"
	"sync"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
	"github.com/drblury/uskit/internal/runtime/session"
	"github.com/drblury/uskit/internal/runtime/telemetry"
	"github.com/drblury/uskit/internal/runtime/txn"
	"github.com/drblury/uskit/internal/runtime/wire"
)

// State is the login state of a Proxy.
type State int

const (
	// StateNoHistory: nothing was submitted yet.
	StateNoHistory State = iota
	// StateAwaiting: a credential was sent and its reply is outstanding.
	StateAwaiting
	// StateAuthenticated: the last credential was acknowledged.
	StateAuthenticated
	// StateRejected: the last credential was refused and forgotten.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateNoHistory:
		return "no_history"
	case StateAwaiting:
		return "awaiting"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// credential is the retained submit event, if any.
type credential struct {
	event events.Event
	ok    bool
}

// Proxy wraps a connection and owns its ack, nack, open and submit channels.
// Subscribers of those channels see login replies and a derived open that
// fires once a login is acknowledged. Every other channel is the base
// connection's.
type Proxy struct {
	base    session.Conn
	login   *txn.Client
	router  *events.Router
	logger  loggingpkg.ServiceLogger
	metrics *telemetry.Metrics

	mu       sync.Mutex
	state    State
	cred     credential
	lastOpen events.Metadata
}

var _ session.Conn = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*options)

type options struct {
	logger  loggingpkg.ServiceLogger
	metrics *telemetry.Metrics
	hooks   events.DeliveryHooks
}

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics exports state transitions and replays.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHooks installs delivery hooks on the proxy's own router.
func WithHooks(h events.DeliveryHooks) Option {
	return func(o *options) { o.hooks = o.hooks.Merge(h) }
}

// New creates a proxy over base that logs in through login. login is
// expected to be a client on base, not on the proxy.
func New(base session.Conn, login *txn.Client, opts ...Option) *Proxy {
	if base == nil {
		panic(errspkg.ErrConnRequired)
	}
	if login == nil {
		panic(errspkg.ErrLoginClientRequired)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := loggingpkg.OrNop(o.logger).With(loggingpkg.LogFields{
		"component":    "auth",
		"message_type": login.MessageType(),
	})

	p := &Proxy{
		base:    base,
		login:   login,
		router:  events.NewRouter(events.WithLogger(logger), events.WithHooks(o.hooks)),
		logger:  logger,
		metrics: o.metrics,
	}
	p.metrics.SetAuthState(login.MessageType(), int(StateNoHistory))

	p.router.On(events.Submit, func(ctx context.Context, evt events.Event) error {
		login.Trigger(ctx, evt)
		return nil
	})
	login.On(events.Ack, p.onAck)
	login.On(events.Nack, p.onNack)
	base.On(events.Open, p.onBaseOpen)
	return p
}

// State returns the current login state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// HasCredential reports whether a credential is retained for replay.
func (p *Proxy) HasCredential() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred.ok
}

// On registers h on the proxy for ack, nack, open and submit, and on the base
// connection for every other channel.
func (p *Proxy) On(ch events.Channel, h events.Handler) {
	if owned(ch) {
		p.router.On(ch, h)
		return
	}
	p.base.On(ch, h)
}

// Trigger submits credentials for submit events and handles ack and nack as
// login replies. Every other event is forwarded to the base connection.
func (p *Proxy) Trigger(ctx context.Context, evt events.Event) {
	switch evt.Channel {
	case events.Submit:
		p.submit(ctx, evt)
	case events.Ack:
		_ = p.onAck(ctx, evt)
	case events.Nack:
		_ = p.onNack(ctx, evt)
	default:
		p.base.Trigger(ctx, evt)
	}
}

func (p *Proxy) OnMessage(messageType string, h events.Handler) {
	p.base.OnMessage(messageType, h)
}

func (p *Proxy) Send(ctx context.Context, msg wire.Message) (string, error) {
	return p.base.Send(ctx, msg)
}

func (p *Proxy) submit(ctx context.Context, evt events.Event) {
	p.mu.Lock()
	p.cred = credential{event: evt, ok: true}
	p.setStateLocked(StateAwaiting)
	p.mu.Unlock()

	p.router.Trigger(ctx, evt)
}

func (p *Proxy) onAck(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	accepted := p.state == StateAwaiting
	if accepted {
		p.setStateLocked(StateAuthenticated)
	}
	md := p.lastOpen.Clone()
	p.mu.Unlock()

	p.router.Trigger(ctx, evt)
	if accepted {
		open := events.New(events.Open, evt.Content).
			WithMessageType(evt.MessageType).
			WithAllMetadata(md).
			WithMetadata(events.MetaDerived, true)
		p.router.Trigger(ctx, open)
	}
	return nil
}

func (p *Proxy) onNack(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	if p.state == StateAwaiting {
		p.cred = credential{}
		p.setStateLocked(StateRejected)
	}
	p.mu.Unlock()

	p.router.Trigger(ctx, evt)
	return nil
}

func (p *Proxy) onBaseOpen(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	p.lastOpen = evt.Metadata.Clone()
	cred := p.cred
	if cred.ok {
		p.setStateLocked(StateAwaiting)
	}
	p.mu.Unlock()

	if !cred.ok {
		return nil
	}
	p.metrics.Replay(p.login.MessageType())
	p.logger.Info("replaying credential", loggingpkg.LogFields{"address": evt.MetaString(events.MetaAddress)})
	p.router.Trigger(ctx, cred.event)
	return nil
}

func (p *Proxy) setStateLocked(s State) {
	if p.state == s {
		return
	}
	p.logger.Debug("login state changed", loggingpkg.LogFields{"from": p.state.String(), "to": s.String()})
	p.state = s
	p.metrics.SetAuthState(p.login.MessageType(), int(s))
}

func owned(ch events.Channel) bool {
	switch ch {
	case events.Ack, events.Nack, events.Open, events.Submit:
		return true
	}
	return false
}
