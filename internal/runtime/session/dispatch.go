package session

import (
	"context"

	"github.com/drblury/uskit/internal/runtime/config"
	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	loggingpkg "github.com/drblury/uskit/internal/runtime/logging"
	"github.com/drblury/uskit/internal/runtime/wire"
)

// dispatch decodes one inbound frame and routes it to the session's
// subscribers and to the OnMessage observers of its message type.
func (s *Session) dispatch(ctx context.Context, frame []byte) {
	msg, err := wire.Decode(frame)
	if err != nil {
		s.logger.Warn("dropping undecodable frame", loggingpkg.LogFields{"error": err.Error(), "bytes": len(frame)})
		return
	}
	s.metrics.FrameReceived(msg.MessageType)
	s.logger.Trace("frame received", loggingpkg.LogFields{
		"message_type": msg.MessageType,
		"reply_to":     msg.ReplyTo,
	})

	base, verb := wire.Split(msg.MessageType)
	switch verb {
	case wire.VerbAck, wire.VerbNack:
		// a reply settles the request whether or not the server named it
		if sent := s.takePending(msg.ReplyTo); base == "" {
			base = sent
		}
	}

	evt := events.New(channelFor(verb, msg.MessageType), msg.Content)
	evt.MessageType = base
	evt.MessageID = msg.MessageID
	evt.ReplyTo = msg.ReplyTo
	if msg.Error != nil {
		evt.Fault = &events.Fault{Code: msg.Error.Code, Text: msg.Error.Text}
	}

	if base == "" {
		s.unmatched(ctx, &errspkg.UnmatchedResponseError{
			Reason:  errspkg.ReasonMissingMessageType,
			ReplyTo: msg.ReplyTo,
		})
		return
	}

	s.router.Trigger(ctx, evt)

	key := events.Named(base)
	if s.observers.Subscribers(key) == 0 {
		if verb != wire.VerbRequest {
			s.unmatched(ctx, &errspkg.UnmatchedResponseError{
				Reason:      errspkg.ReasonNoObserver,
				MessageType: base,
				ReplyTo:     msg.ReplyTo,
			})
		}
		return
	}
	s.observers.Dispatch(ctx, key, evt)
}

// channelFor maps a verb onto the event channel it is emitted on. Acks and
// nacks use the well-known channels; everything else keeps its full message
// type as a passthrough channel.
func channelFor(verb wire.Verb, messageType string) events.Channel {
	switch verb {
	case wire.VerbAck:
		return events.Ack
	case wire.VerbNack:
		return events.Nack
	default:
		return events.Named(messageType)
	}
}

func (s *Session) unmatched(ctx context.Context, err *errspkg.UnmatchedResponseError) {
	s.metrics.UnmatchedResponse(err.Reason)
	fields := loggingpkg.LogFields{
		"reason":       err.Reason,
		"message_type": err.MessageType,
		"reply_to":     err.ReplyTo,
	}
	switch s.cfg.UnmatchedResponses {
	case config.UnmatchedDrop:
	case config.UnmatchedFail:
		s.logger.Error("unmatched response", err, fields)
		s.router.Trigger(ctx, events.New(ErrorChannel, err).WithMessageType(err.MessageType))
	default:
		s.logger.Warn("unmatched response", fields)
	}
}

// takePending returns and forgets the message type sent with id.
func (s *Session) takePending(id string) string {
	if id == "" {
		return ""
	}
	messageType, ok := s.pending.Get(id)
	if ok {
		s.pending.Remove(id)
	}
	return messageType
}
