package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drblury/uskit/internal/runtime/config"
	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	idspkg "github.com/drblury/uskit/internal/runtime/ids"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
	"github.com/drblury/uskit/internal/runtime/telemetry"
	"github.com/drblury/uskit/internal/runtime/wire"
	"github.com/drblury/uskit/transport"
)

// Conn is the connection surface transaction clients, query clients and the
// auth proxy are built on.
type Conn interface {
	events.Emitter
	// OnMessage subscribes h to every inbound event correlated to
	// messageType: acks, nacks, snapshot and update pages.
	OnMessage(messageType string, h events.Handler)
	// Send writes msg and returns the MESSAGE_ID it was sent with.
	Send(ctx context.Context, msg wire.Message) (string, error)
}

const pendingCapacity = 1024

// ErrorChannel receives *errors.UnmatchedResponseError values when the
// unmatched-response policy is "fail".
var ErrorChannel = events.Named("error")

// Dependencies are the collaborators a Session needs besides its config.
type Dependencies struct {
	Dialer  transport.Dialer
	Metrics *telemetry.Metrics
	Hooks   events.DeliveryHooks
}

// Session is a reconnecting connection to one session address. It emits
// open when a link comes up and close when it goes down, and turns inbound
// frames into events.
type Session struct {
	cfg       config.Config
	logger    loggingpkg.ServiceLogger
	dialer    transport.Dialer
	metrics   *telemetry.Metrics
	router    *events.Router
	observers *events.Router
	// pending maps MESSAGE_IDs of recent sends to their message type so a
	// bare NACK can be routed through its REPLY_TO_ID.
	pending *lru.Cache[string, string]

	mu      sync.Mutex
	link    transport.Link
	address string
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// New creates a session. Zero config tunables take their defaults.
func New(cfg config.Config, logger loggingpkg.ServiceLogger, deps Dependencies) (*Session, error) {
	if deps.Dialer == nil {
		return nil, errspkg.ErrDialerRequired
	}
	logger = loggingpkg.OrNop(logger).With(loggingpkg.LogFields{"component": "session"})
	hooks := events.MetricsHooks(deps.Metrics).Merge(deps.Hooks)
	pending, err := lru.New[string, string](pendingCapacity)
	if err != nil {
		return nil, fmt.Errorf("session: pending requests: %w", err)
	}

	return &Session{
		cfg:       cfg.WithDefaults(),
		logger:    logger,
		dialer:    deps.Dialer,
		metrics:   deps.Metrics,
		router:    events.NewRouter(events.WithLogger(logger), events.WithHooks(hooks)),
		observers: events.NewRouter(events.WithLogger(logger), events.WithHooks(hooks)),
		pending:   pending,
	}, nil
}

func (s *Session) On(ch events.Channel, h events.Handler) {
	s.router.On(ch, h)
}

// Trigger emits evt to the session's own subscribers.
func (s *Session) Trigger(ctx context.Context, evt events.Event) {
	s.router.Trigger(ctx, evt)
}

func (s *Session) OnMessage(messageType string, h events.Handler) {
	s.observers.On(events.Named(messageType), h)
}

// Open starts the connection loop for address and returns immediately. The
// loop runs until Close is called or ctx is cancelled.
func (s *Session) Open(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errspkg.ErrSessionClosed
	}
	if s.done != nil {
		return errspkg.ErrAlreadyOpen
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.address = address
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, address, s.done)
	return nil
}

// Close stops the loop and closes the current link. It blocks until the loop
// has emitted its final close event.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done, link := s.cancel, s.done, s.link
	s.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if link != nil {
		err = link.Close()
	}
	if done != nil {
		<-done
	}
	return errors.Join(err, s.dialer.Close())
}

// Connected reports whether a link is currently up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

// Send assigns a MESSAGE_ID when msg has none, remembers its message type for
// reply correlation and writes it to the current link.
func (s *Session) Send(ctx context.Context, msg wire.Message) (string, error) {
	if msg.MessageType == "" {
		return "", errspkg.ErrMessageTypeRequired
	}

	s.mu.Lock()
	link, closed := s.link, s.closed
	s.mu.Unlock()
	if closed {
		return "", errspkg.ErrSessionClosed
	}
	if link == nil {
		return "", errspkg.ErrNotConnected
	}

	if msg.MessageID == "" {
		msg.MessageID = idspkg.NewMessageID()
	}
	frame, err := wire.Encode(msg)
	if err != nil {
		return "", err
	}

	s.pending.Add(msg.MessageID, msg.MessageType)
	if err := link.Send(ctx, frame); err != nil {
		s.pending.Remove(msg.MessageID)
		return "", fmt.Errorf("send %s: %w", msg.MessageType, err)
	}

	s.metrics.FrameSent(msg.MessageType)
	s.logger.Trace("frame sent", loggingpkg.LogFields{
		"message_type": msg.MessageType,
		"message_id":   msg.MessageID,
		"bytes":        len(frame),
	})
	return msg.MessageID, nil
}

func (s *Session) run(ctx context.Context, address string, done chan struct{}) {
	defer close(done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectInitialInterval
	bo.MaxInterval = s.cfg.ReconnectMaxInterval

	log := s.logger.With(loggingpkg.LogFields{"address": address})
	attempt := 0
	var failingSince time.Time

	for ctx.Err() == nil {
		attempt++
		link, err := s.dialer.Dial(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if failingSince.IsZero() {
				failingSince = time.Now()
			}
			if limit := s.cfg.ReconnectMaxElapsed; limit > 0 && time.Since(failingSince) > limit {
				log.Error("giving up reconnecting", err, loggingpkg.LogFields{"attempt": attempt})
				return
			}
			wait := bo.NextBackOff()
			log.Warn("dial failed", loggingpkg.LogFields{"attempt": attempt, "error": err.Error(), "retry_in": wait.String()})
			s.metrics.Reconnect(address)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		if !s.attach(link) {
			_ = link.Close()
			return
		}
		bo.Reset()
		failingSince = time.Time{}
		log.Info("connected", loggingpkg.LogFields{"attempt": attempt})

		s.router.Trigger(ctx, events.New(events.Open, nil).WithAllMetadata(events.Metadata{
			events.MetaAddress:     address,
			events.MetaAttempt:     attempt,
			events.MetaConnectedAt: time.Now(),
		}))

		reason := s.readLoop(ctx, link)
		s.detach(link)
		_ = link.Close()
		log.Info("disconnected", loggingpkg.LogFields{"reason": reason})

		s.router.Trigger(context.WithoutCancel(ctx), events.New(events.Close, nil).WithMetadata(events.MetaReason, reason))

		if ctx.Err() != nil {
			return
		}
		attempt = 0
		s.metrics.Reconnect(address)
		if !sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (s *Session) attach(link transport.Link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.link = link
	return true
}

func (s *Session) detach(link transport.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == link {
		s.link = nil
	}
}

func (s *Session) readLoop(ctx context.Context, link transport.Link) string {
	for {
		frame, err := link.Receive(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return "closed"
			case errors.Is(err, transport.ErrLinkClosed):
				return "link closed"
			default:
				return err.Error()
			}
		}
		s.dispatch(ctx, frame)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
