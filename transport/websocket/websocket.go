// Package websocket provides the default transport: one websocket connection
// per session address, opened against a configured base URL.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"

	"github.com/drblury/uskit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "websocket"

const (
	writeTimeout   = 10 * time.Second
	closeTimeout   = time.Second
	receiveBacklog = 16
)

// DialFunc allows overriding how connections are established for testing.
var DialFunc = func(ctx context.Context, target string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	return conn, err
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.WebSocketCapabilities)
}

// Build creates a websocket dialer for cfg's base URL.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Dialer, error) {
	raw := strings.TrimRight(cfg.GetWebSocketURL(), "/")
	if raw == "" {
		return nil, errors.New("websocket: base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("websocket: parse base URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket: unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Dialer{
		baseURL:   raw,
		keepAlive: cfg.GetKeepAlive(),
		logger:    logger,
		links:     make(map[*link]struct{}),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.WebSocketCapabilities
}

// Dialer opens websocket links. Closing it closes every link it opened.
type Dialer struct {
	baseURL   string
	keepAlive time.Duration
	logger    watermill.LoggerAdapter

	mu     sync.Mutex
	links  map[*link]struct{}
	closed bool
}

// URL returns the websocket URL for a session address.
func (d *Dialer) URL(address string) string {
	return d.baseURL + "/" + strings.TrimLeft(address, "/")
}

func (d *Dialer) Dial(ctx context.Context, address string) (transport.Link, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, transport.ErrLinkClosed
	}

	target := d.URL(address)
	conn, err := DialFunc(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial %s: %w", target, err)
	}
	d.logger.Debug("websocket connected", watermill.LogFields{"url": target})

	l := newLink(conn, d.keepAlive, d.logger, d.forget)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = l.Close()
		return nil, transport.ErrLinkClosed
	}
	d.links[l] = struct{}{}
	d.mu.Unlock()
	return l, nil
}

func (d *Dialer) Close() error {
	d.mu.Lock()
	d.closed = true
	links := make([]*link, 0, len(d.links))
	for l := range d.links {
		links = append(links, l)
	}
	d.mu.Unlock()

	var errs []error
	for _, l := range links {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

func (d *Dialer) forget(l *link) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.links, l)
}

type frame struct {
	data []byte
	err  error
}

type link struct {
	conn   *websocket.Conn
	logger watermill.LoggerAdapter
	onDone func(*link)

	writeMu   sync.Mutex
	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newLink(conn *websocket.Conn, keepAlive time.Duration, logger watermill.LoggerAdapter, onDone func(*link)) *link {
	l := &link{
		conn:   conn,
		logger: logger,
		onDone: onDone,
		frames: make(chan frame, receiveBacklog),
		done:   make(chan struct{}),
	}
	if keepAlive > 0 {
		// a missing pong within two intervals fails the pending read
		_ = conn.SetReadDeadline(time.Now().Add(2 * keepAlive))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * keepAlive))
		})
		go l.pingLoop(keepAlive)
	}
	go l.readPump()
	return l
}

func (l *link) Send(ctx context.Context, data []byte) error {
	select {
	case <-l.done:
		return transport.ErrLinkClosed
	default:
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(deadline)
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket: write: %w", err)
	}
	return nil
}

func (l *link) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-l.frames:
		if !ok {
			return nil, transport.ErrLinkClosed
		}
		return f.data, f.err
	}
}

func (l *link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		err = l.conn.Close()
		if l.onDone != nil {
			l.onDone(l)
		}
	})
	return err
}

func (l *link) readPump() {
	defer close(l.frames)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Debug("websocket closed by peer", nil)
				return
			}
			l.deliver(frame{err: fmt.Errorf("websocket: read: %w", err)})
			return
		}
		if !l.deliver(frame{data: data}) {
			return
		}
	}
}

func (l *link) deliver(f frame) bool {
	select {
	case l.frames <- f:
		return true
	case <-l.done:
		return false
	}
}

func (l *link) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				l.logger.Debug("websocket ping failed", watermill.LogFields{"error": err.Error()})
				return
			}
		}
	}
}
