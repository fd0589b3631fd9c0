package events

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
)

// DeliveryContext describes one handler invocation to hooks.
type DeliveryContext struct {
	// Channel the event was triggered on.
	Channel Channel
	// MessageType is the protocol message type the event correlates to, if any.
	MessageType string
	// Index is the handler's position in the channel's subscriber list.
	Index int
	// Async is set for handlers registered through OnAsync.
	Async bool
	// Context is the context passed to Trigger.
	Context context.Context
	// StartedAt is when the handler was invoked.
	StartedAt time.Time
	// Duration is how long the handler ran (only set in OnDelivered and OnError).
	Duration time.Duration
}

// DeliveryHooks defines callbacks around each handler invocation.
// All hooks are optional - nil hooks are simply not called.
type DeliveryHooks struct {
	OnDeliver   func(ctx DeliveryContext)
	OnDelivered func(ctx DeliveryContext)
	// OnError receives handler errors and recovered panics wrapped in
	// *errors.HandlerError.
	OnError func(ctx DeliveryContext, err error)
}

// Merge combines two DeliveryHooks. The hooks from other run after h.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnDeliver:   chainHooks(h.OnDeliver, other.OnDeliver),
		OnDelivered: chainHooks(h.OnDelivered, other.OnDelivered),
		OnError:     chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks returns hooks that trace successful deliveries. Handler
// failures are logged by the router itself.
func LoggingHooks(logger loggingpkg.ServiceLogger) DeliveryHooks {
	logger = loggingpkg.OrNop(logger)
	return DeliveryHooks{
		OnDelivered: func(ctx DeliveryContext) {
			logger.Trace("event delivered", loggingpkg.LogFields{
				"channel":      ctx.Channel.String(),
				"message_type": ctx.MessageType,
				"handler":      ctx.Index,
				"duration_ms":  ctx.Duration.Milliseconds(),
			})
		},
	}
}

// DeliveryRecorder receives delivery measurements. telemetry.Metrics
// implements it.
type DeliveryRecorder interface {
	RecordDelivery(channel string, d time.Duration)
	RecordHandlerError(channel string)
}

// MetricsHooks returns hooks that feed a DeliveryRecorder.
func MetricsHooks(rec DeliveryRecorder) DeliveryHooks {
	if rec == nil {
		return DeliveryHooks{}
	}
	return DeliveryHooks{
		OnDelivered: func(ctx DeliveryContext) {
			rec.RecordDelivery(ctx.Channel.String(), ctx.Duration)
		},
		OnError: func(ctx DeliveryContext, err error) {
			rec.RecordHandlerError(ctx.Channel.String())
		},
	}
}
