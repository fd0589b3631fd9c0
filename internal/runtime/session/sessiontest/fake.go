// Package sessiontest provides an in-memory session.Conn for client tests.
package sessiontest

import (
	"context"
	"strconv"
	"sync"

	"github.com/drblury/uskit/internal/runtime/events"
	"github.com/drblury/uskit/internal/runtime/session"
	"github.com/drblury/uskit/internal/runtime/wire"
)

var _ session.Conn = (*Conn)(nil)

// Conn records sent messages and lets tests inject replies the way a session
// would route them.
type Conn struct {
	router    *events.Router
	observers *events.Router

	mu      sync.Mutex
	sent    []wire.Message
	seq     int
	SendErr error
}

func NewConn() *Conn {
	return &Conn{router: events.NewRouter(), observers: events.NewRouter()}
}

func (c *Conn) On(ch events.Channel, h events.Handler) { c.router.On(ch, h) }

func (c *Conn) Trigger(ctx context.Context, evt events.Event) { c.router.Trigger(ctx, evt) }

func (c *Conn) OnMessage(messageType string, h events.Handler) {
	c.observers.On(events.Named(messageType), h)
}

// Send records msg and assigns sequential ids "1", "2", ...
func (c *Conn) Send(ctx context.Context, msg wire.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if msg.MessageID == "" {
		c.seq++
		msg.MessageID = strconv.Itoa(c.seq)
	}
	c.sent = append(c.sent, msg)
	return msg.MessageID, nil
}

// Sent returns a copy of every message sent so far.
func (c *Conn) Sent() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Message(nil), c.sent...)
}

// Last returns the most recently sent message.
func (c *Conn) Last() (wire.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return wire.Message{}, false
	}
	return c.sent[len(c.sent)-1], true
}

// Reply routes an inbound message for messageType to the session subscribers
// and the OnMessage observers, as a session does after decoding a frame.
func (c *Conn) Reply(ctx context.Context, messageType string, verb wire.Verb, content any, fault *events.Fault) events.Event {
	ch := events.Named(wire.Join(messageType, verb))
	switch verb {
	case wire.VerbAck:
		ch = events.Ack
	case wire.VerbNack:
		ch = events.Nack
	}
	evt := events.New(ch, content).WithMessageType(messageType).WithFault(fault)
	if last, ok := c.Last(); ok {
		evt.ReplyTo = last.MessageID
	}
	c.Deliver(ctx, evt)
	return evt
}

// Deliver routes evt to the session subscribers of its channel and to the
// observers of its message type.
func (c *Conn) Deliver(ctx context.Context, evt events.Event) {
	c.router.Trigger(ctx, evt)
	if evt.MessageType != "" {
		c.observers.Dispatch(ctx, events.Named(evt.MessageType), evt)
	}
}

// Open emits an open event carrying md.
func (c *Conn) Open(ctx context.Context, md events.Metadata) {
	c.router.Trigger(ctx, events.New(events.Open, nil).WithAllMetadata(md))
}

// Close emits a close event.
func (c *Conn) Close(ctx context.Context) {
	c.router.Trigger(ctx, events.New(events.Close, nil).WithMetadata(events.MetaReason, "closed"))
}
