package events

import (
	"context"
	"fmt"
	"reflect"
	"time"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	jsoncodec "github.com/drblury/uskit/internal/runtime/jsoncodec"
)

// Well-known metadata keys.
const (
	MetaAddress     = "address"
	MetaAttempt     = "attempt"
	MetaConnectedAt = "connected_at"
	MetaReason      = "reason"
	MetaDerived     = "derived"
	MetaRowID       = "rowid"
	MetaChannel     = "channel"
	MetaError       = "error"
)

// Fault is the error payload carried by a nack.
type Fault struct {
	Code string
	Text string
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	if f.Code == "" {
		return f.Text
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Text)
}

// Event is an immutable value passed to handlers. The With helpers return
// modified copies and never touch the receiver's metadata.
type Event struct {
	Channel     Channel
	Content     any
	MessageType string
	MessageID   string
	ReplyTo     string
	Fault       *Fault
	Metadata    Metadata
	Time        time.Time
}

// New creates an event on ch stamped with the current time.
func New(ch Channel, content any) Event {
	return Event{Channel: ch, Content: content, Time: time.Now()}
}

func (e Event) WithChannel(ch Channel) Event {
	e.Channel = ch
	return e
}

func (e Event) WithContent(content any) Event {
	e.Content = content
	return e
}

func (e Event) WithMessageType(messageType string) Event {
	e.MessageType = messageType
	return e
}

func (e Event) WithFault(f *Fault) Event {
	e.Fault = f
	return e
}

// WithMetadata returns a copy carrying key=value in a fresh metadata map.
func (e Event) WithMetadata(key string, value any) Event {
	e.Metadata = e.Metadata.With(key, value)
	return e
}

// WithAllMetadata returns a copy carrying every entry of md on top of the
// existing metadata.
func (e Event) WithAllMetadata(md Metadata) Event {
	e.Metadata = e.Metadata.WithAll(md)
	return e
}

// Meta returns the metadata value stored under key.
func (e Event) Meta(key string) (any, bool) {
	v, ok := e.Metadata[key]
	return v, ok
}

// MetaString returns the string metadata value stored under key.
func (e Event) MetaString(key string) string {
	return e.Metadata.GetString(key)
}

// DecodeContent converts the event content into target, which must be a
// non-nil pointer. Content that already has the target type is assigned
// directly; anything else is re-encoded through the JSON codec.
func DecodeContent(evt Event, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode content: target must be a non-nil pointer, got %T", target)
	}
	if evt.Content == nil {
		return nil
	}
	cv := reflect.ValueOf(evt.Content)
	if cv.Type().AssignableTo(rv.Elem().Type()) {
		rv.Elem().Set(cv)
		return nil
	}
	if err := jsoncodec.Convert(evt.Content, target); err != nil {
		return fmt.Errorf("decode content of %q: %w", evt.Channel, err)
	}
	return nil
}

// Typed adapts a handler that expects content of type T.
func Typed[T any](fn func(ctx context.Context, evt Event, content T) error) Handler {
	if fn == nil {
		panic(errspkg.ErrHandlerRequired)
	}
	return func(ctx context.Context, evt Event) error {
		var content T
		if err := DecodeContent(evt, &content); err != nil {
			return err
		}
		return fn(ctx, evt, content)
	}
}
