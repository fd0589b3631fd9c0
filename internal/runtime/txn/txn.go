// Package txn implements the transaction client: a fire-and-forget sender of
// one message type whose acks and nacks are re-emitted to local subscribers.
package txn

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	jsoncodec "github.com/drblury/uskit/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
	"github.com/drblury/uskit/internal/runtime/session"
	"github.com/drblury/uskit/internal/runtime/telemetry"
	"github.com/drblury/uskit/internal/runtime/wire"
)

// Client sends messages of a single type over a connection.
type Client struct {
	conn        session.Conn
	messageType string
	router      *events.Router
	logger      loggingpkg.ServiceLogger
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger loggingpkg.ServiceLogger
	tracer trace.Tracer
	hooks  events.DeliveryHooks
}

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer overrides the global OpenTelemetry tracer used for send spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithHooks installs delivery hooks on the client's local router.
func WithHooks(h events.DeliveryHooks) Option {
	return func(o *options) { o.hooks = o.hooks.Merge(h) }
}

// New creates a client for messageType on conn and starts relaying the
// replies conn correlates to that message type. It panics when conn is nil or
// messageType is empty.
func New(conn session.Conn, messageType string, opts ...Option) *Client {
	if conn == nil {
		panic(errspkg.ErrConnRequired)
	}
	if messageType == "" {
		panic(errspkg.ErrMessageTypeRequired)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := loggingpkg.OrNop(o.logger).With(loggingpkg.LogFields{
		"component":    "txn",
		"message_type": messageType,
	})

	c := &Client{
		conn:        conn,
		messageType: messageType,
		router:      events.NewRouter(events.WithLogger(logger), events.WithHooks(o.hooks)),
		logger:      logger,
		tracer:      o.tracer,
	}
	conn.OnMessage(messageType, c.relay)
	return c
}

func (c *Client) MessageType() string { return c.messageType }

func (c *Client) On(ch events.Channel, h events.Handler) {
	c.router.On(ch, h)
}

// Trigger submits the content of a submit event. Every other event is emitted
// to the client's own subscribers.
func (c *Client) Trigger(ctx context.Context, evt events.Event) {
	if evt.Channel != events.Submit {
		c.router.Trigger(ctx, evt)
		return
	}
	if _, err := c.Submit(ctx, evt.Content); err != nil {
		c.logger.Error("submit failed", err, nil)
	}
}

// Submit sends content and returns the MESSAGE_ID it was sent with. The
// outcome arrives later as an ack or nack event.
func (c *Client) Submit(ctx context.Context, content any) (string, error) {
	ctx, span := telemetry.StartSend(ctx, c.tracer, c.messageType)
	id, err := c.conn.Send(ctx, wire.Message{MessageType: c.messageType, Content: content})
	telemetry.EndSend(span, id, err)
	if err != nil {
		return "", err
	}
	c.logger.Debug("submitted", loggingpkg.LogFields{"message_id": id})
	return id, nil
}

// SubmitProto sends msg encoded with the protobuf JSON mapping.
func (c *Client) SubmitProto(ctx context.Context, msg proto.Message) (string, error) {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode %s content: %w", c.messageType, err)
	}
	var content map[string]any
	if err := jsoncodec.UnmarshalNumber(data, &content); err != nil {
		return "", fmt.Errorf("decode %s content: %w", c.messageType, err)
	}
	return c.Submit(ctx, content)
}

// relay re-emits replies to this client's message type. Pages and other
// verbs are not transaction replies and are ignored.
func (c *Client) relay(ctx context.Context, evt events.Event) error {
	switch evt.Channel {
	case events.Ack, events.Nack:
		c.router.Trigger(ctx, evt)
	}
	return nil
}

// ConnectWidget binds a widget to a transaction client. Events the widget
// emits on channel are submitted through client, with content taken from
// contentGetter when it is set. The client's acks and nacks are triggered
// back on the widget with metadata channel set to channel.
func ConnectWidget(widget events.Emitter, client *Client, channel events.Channel, contentGetter func() any) {
	tag := channel.String()
	widget.On(channel, func(ctx context.Context, evt events.Event) error {
		content := evt.Content
		if contentGetter != nil {
			content = contentGetter()
		}
		client.Trigger(ctx, evt.WithChannel(events.Submit).WithContent(content).WithMetadata(events.MetaChannel, tag))
		return nil
	})
	forward := func(ctx context.Context, evt events.Event) error {
		widget.Trigger(ctx, evt.WithMetadata(events.MetaChannel, tag))
		return nil
	}
	client.On(events.Ack, forward)
	client.On(events.Nack, forward)
}
