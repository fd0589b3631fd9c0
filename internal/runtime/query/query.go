// Package query implements the query client. It starts a server-side query
// when the connection opens and turns the acknowledgement and the snapshot
// and update pages that follow into reset, column, insert, update and delete
// events.
package query

import (
	"context"
	"fmt"
	"sync"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
	"github.com/drblury/uskit/internal/runtime/session"
	"github.com/drblury/uskit/internal/runtime/wire"
)

// DefaultPageSize is the MAXCOUNT sent when no page size is configured.
const DefaultPageSize = 500

// Client follows one named query over a connection.
type Client struct {
	conn      session.Conn
	queryName string
	pageSize  int
	router    *events.Router
	logger    loggingpkg.ServiceLogger

	mu      sync.Mutex
	queryID string
}

// Option configures a Client.
type Option func(*options)

type options struct {
	pageSize  int
	logger    loggingpkg.ServiceLogger
	autoStart bool
	hooks     events.DeliveryHooks
}

// WithPageSize sets the MAXCOUNT requested per snapshot page.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAutoStart controls whether the query is requested on every open event
// of the connection. It defaults to true.
func WithAutoStart(enabled bool) Option {
	return func(o *options) { o.autoStart = enabled }
}

// WithHooks installs delivery hooks on the client's local router.
func WithHooks(h events.DeliveryHooks) Option {
	return func(o *options) { o.hooks = o.hooks.Merge(h) }
}

// New creates a query client for queryName on conn. It panics when conn is
// nil or queryName is empty.
func New(conn session.Conn, queryName string, opts ...Option) *Client {
	if conn == nil {
		panic(errspkg.ErrConnRequired)
	}
	if queryName == "" {
		panic(errspkg.ErrMessageTypeRequired)
	}
	o := options{pageSize: DefaultPageSize, autoStart: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	logger := loggingpkg.OrNop(o.logger).With(loggingpkg.LogFields{
		"component":  "query",
		"query_name": queryName,
	})

	c := &Client{
		conn:      conn,
		queryName: queryName,
		pageSize:  o.pageSize,
		router:    events.NewRouter(events.WithLogger(logger), events.WithHooks(o.hooks)),
		logger:    logger,
	}
	if o.autoStart {
		conn.On(events.Open, func(ctx context.Context, evt events.Event) error {
			return c.Start(ctx)
		})
	}
	conn.OnMessage(queryName, c.relay)
	return c
}

func (c *Client) QueryName() string { return c.queryName }

// QueryID returns the id the server assigned to the running query, or "" before
// the query was acknowledged.
func (c *Client) QueryID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryID
}

func (c *Client) On(ch events.Channel, h events.Handler) {
	c.router.On(ch, h)
}

// Trigger emits evt to the client's own subscribers.
func (c *Client) Trigger(ctx context.Context, evt events.Event) {
	c.router.Trigger(ctx, evt)
}

// Start requests the query. Any previous query id is forgotten.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.queryID = ""
	c.mu.Unlock()

	_, err := c.conn.Send(ctx, wire.Message{
		MessageType: c.queryName,
		Content:     wire.QueryRequest{MaxCount: c.pageSize},
	})
	if err != nil {
		return fmt.Errorf("start query %s: %w", c.queryName, err)
	}
	c.logger.Debug("query requested", loggingpkg.LogFields{"maxcount": c.pageSize})
	return nil
}

func (c *Client) relay(ctx context.Context, evt events.Event) error {
	switch evt.Channel.Kind() {
	case events.KindAck:
		return c.onAck(ctx, evt)
	case events.KindNack:
		c.router.Trigger(ctx, evt)
		return nil
	case events.KindReset, events.KindColumn, events.KindInsert, events.KindUpdate, events.KindDelete:
		// Session never routes these to a message type observer; they come
		// from Conn implementations that emit row events themselves.
		c.router.Trigger(ctx, evt)
		return nil
	}

	switch _, verb := wire.Split(evt.Channel.String()); verb {
	case wire.VerbSnapshot, wire.VerbUpdate:
		return c.onPage(ctx, evt)
	}
	return nil
}

// onAck relays the ack before decoding it, so ack subscribers see it even
// when the schema is malformed.
func (c *Client) onAck(ctx context.Context, evt events.Event) error {
	c.router.Trigger(ctx, evt)

	var ack wire.QueryAck
	if err := events.DecodeContent(evt, &ack); err != nil {
		return fmt.Errorf("decode ack of %s: %w", c.queryName, err)
	}
	c.mu.Lock()
	c.queryID = ack.QueryID
	c.mu.Unlock()

	c.router.Trigger(ctx, derive(evt, events.Reset, nil))
	for _, col := range ack.Schema {
		c.router.Trigger(ctx, derive(evt, events.Column, col))
	}
	return nil
}

func (c *Client) onPage(ctx context.Context, evt events.Event) error {
	var page wire.QueryPage
	if err := events.DecodeContent(evt, &page); err != nil {
		return err
	}

	c.emitRows(ctx, evt, events.Insert, page.Insert)
	c.emitRows(ctx, evt, events.Update, page.Update)
	c.emitRows(ctx, evt, events.Delete, page.Delete)

	if page.IsLast {
		return nil
	}
	queryID := page.QueryID
	if queryID == "" {
		queryID = c.QueryID()
	}
	_, err := c.conn.Send(ctx, wire.Message{
		MessageType: wire.Join(c.queryName, wire.VerbNext),
		Content:     wire.QueryNext{QueryID: queryID, MaxCount: c.pageSize},
	})
	if err != nil {
		return fmt.Errorf("request next page of %s: %w", c.queryName, err)
	}
	return nil
}

func (c *Client) emitRows(ctx context.Context, page events.Event, ch events.Channel, rows []map[string]any) {
	for _, row := range rows {
		out := derive(page, ch, row)
		if id, ok := wire.RowID(row); ok {
			out = out.WithMetadata(events.MetaRowID, id)
		} else {
			c.logger.Warn("row without id", loggingpkg.LogFields{"channel": ch.String()})
		}
		c.router.Trigger(ctx, out)
	}
}

func derive(src events.Event, ch events.Channel, content any) events.Event {
	out := events.New(ch, content)
	out.MessageType = src.MessageType
	out.ReplyTo = src.ReplyTo
	return out
}

// RowID returns the row id of a row event, from its metadata or, failing
// that, from its content.
func RowID(evt events.Event) (string, bool) {
	if id := evt.MetaString(events.MetaRowID); id != "" {
		return id, true
	}
	var row map[string]any
	if err := events.DecodeContent(evt, &row); err != nil || row == nil {
		return "", false
	}
	return wire.RowID(row)
}
