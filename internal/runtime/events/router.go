package events

import (
	"context"
	"sync"
	"time"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
)

// Handler receives one event. A returned error is reported through the
// router's hooks and never stops delivery to the remaining handlers.
type Handler func(ctx context.Context, evt Event) error

// Emitter is the publish/subscribe surface shared by the router, the
// session, the clients and the auth proxy.
type Emitter interface {
	On(ch Channel, h Handler)
	Trigger(ctx context.Context, evt Event)
}

type subscriber struct {
	handler Handler
	async   bool
}

// Router maps channels to ordered subscriber lists and delivers events to
// them synchronously, in registration order.
type Router struct {
	mu     sync.RWMutex
	subs   map[Channel][]subscriber
	hooks  DeliveryHooks
	logger loggingpkg.ServiceLogger
	wg     sync.WaitGroup
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithHooks installs delivery hooks. Repeated options are merged.
func WithHooks(h DeliveryHooks) RouterOption {
	return func(r *Router) { r.hooks = r.hooks.Merge(h) }
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger loggingpkg.ServiceLogger) RouterOption {
	return func(r *Router) { r.logger = loggingpkg.OrNop(logger) }
}

func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subs:   make(map[Channel][]subscriber),
		logger: loggingpkg.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On appends h to the subscribers of ch. Registering the same handler twice
// delivers each event twice.
func (r *Router) On(ch Channel, h Handler) {
	r.add(ch, h, false)
}

// OnAsync appends h to the subscribers of ch. At its position in the fan-out
// the handler is launched on its own goroutine and Trigger moves on to the
// next subscriber without waiting.
func (r *Router) OnAsync(ch Channel, h Handler) {
	r.add(ch, h, true)
}

func (r *Router) add(ch Channel, h Handler, async bool) {
	if h == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[ch] = append(r.subs[ch], subscriber{handler: h, async: async})
}

// Trigger delivers evt to the subscribers of evt.Channel that were registered
// when Trigger started. Handlers added during delivery see the next event.
func (r *Router) Trigger(ctx context.Context, evt Event) {
	r.Dispatch(ctx, evt.Channel, evt)
}

// Dispatch delivers evt unchanged to the subscribers of key. The session uses
// it to fan events out by message type while keeping their channel.
func (r *Router) Dispatch(ctx context.Context, key Channel, evt Event) {
	r.mu.RLock()
	subs := r.subs[key]
	r.mu.RUnlock()

	// append never rewrites elements below the current length, so subs is a
	// stable snapshot.
	for i, sub := range subs {
		dctx := DeliveryContext{
			Channel:     evt.Channel,
			MessageType: evt.MessageType,
			Index:       i,
			Async:       sub.async,
			Context:     ctx,
		}
		dctx.StartedAt = time.Now()
		if r.hooks.OnDeliver != nil {
			r.hooks.OnDeliver(dctx)
		}
		if sub.async {
			started := make(chan struct{})
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				close(started)
				r.deliver(ctx, dctx, sub.handler, evt)
			}()
			<-started
			continue
		}
		r.deliver(ctx, dctx, sub.handler, evt)
	}
}

// deliver runs h and reports the outcome. OnDeliver has already fired.
func (r *Router) deliver(ctx context.Context, dctx DeliveryContext, h Handler, evt Event) {
	err := r.invoke(ctx, dctx, h, evt)
	dctx.Duration = time.Since(dctx.StartedAt)

	if err != nil {
		r.logger.Error("event handler failed", err, loggingpkg.LogFields{
			"channel":      evt.Channel.String(),
			"message_type": evt.MessageType,
			"handler":      dctx.Index,
			"async":        dctx.Async,
		})
		if r.hooks.OnError != nil {
			r.hooks.OnError(dctx, err)
		}
		return
	}
	if r.hooks.OnDelivered != nil {
		r.hooks.OnDelivered(dctx)
	}
}

func (r *Router) invoke(ctx context.Context, dctx DeliveryContext, h Handler, evt Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &errspkg.HandlerError{Channel: evt.Channel.String(), Index: dctx.Index, Panic: p}
		}
	}()
	if herr := h(ctx, evt); herr != nil {
		return &errspkg.HandlerError{Channel: evt.Channel.String(), Index: dctx.Index, Err: herr}
	}
	return nil
}

// Wait blocks until every handler launched through OnAsync has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Subscribers returns the number of handlers registered on ch.
func (r *Router) Subscribers(ch Channel) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[ch])
}
