package transport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topics maps a session address onto the pair of topics a broker transport
// uses: Outbound carries client frames, Inbound carries server frames.
type Topics struct {
	OutboundSuffix string
	InboundSuffix  string
}

// TopicsFromConfig reads the suffixes from cfg, defaulting to ".c2s"/".s2c".
func TopicsFromConfig(cfg Config) Topics {
	t := Topics{OutboundSuffix: ".c2s", InboundSuffix: ".s2c"}
	if cfg == nil {
		return t
	}
	if s := cfg.GetOutboundSuffix(); s != "" {
		t.OutboundSuffix = s
	}
	if s := cfg.GetInboundSuffix(); s != "" {
		t.InboundSuffix = s
	}
	return t
}

// Reverse swaps the directions, giving the view of the server-side peer.
func (t Topics) Reverse() Topics {
	return Topics{OutboundSuffix: t.InboundSuffix, InboundSuffix: t.OutboundSuffix}
}

// Outbound returns the topic client frames for address are published to.
func (t Topics) Outbound(address string) string {
	return topicBase(address) + t.OutboundSuffix
}

// Inbound returns the topic server frames for address arrive on.
func (t Topics) Inbound(address string) string {
	return topicBase(address) + t.InboundSuffix
}

// topicBase turns "/chat/room" into "chat.room". Brokers reject slashes in
// topic names.
func topicBase(address string) string {
	base := strings.Trim(address, "/")
	if base == "" {
		return "uskit"
	}
	return strings.ReplaceAll(base, "/", ".")
}

// NewPubSubDialer adapts a Watermill publisher/subscriber pair into a Dialer.
// Closing the dialer closes both.
func NewPubSubDialer(pub message.Publisher, sub message.Subscriber, topics Topics) Dialer {
	return &pubSubDialer{pub: pub, sub: sub, topics: topics}
}

type pubSubDialer struct {
	pub    message.Publisher
	sub    message.Subscriber
	topics Topics

	closeOnce sync.Once
	closeErr  error
}

func (d *pubSubDialer) Dial(ctx context.Context, address string) (Link, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	msgs, err := d.sub.Subscribe(subCtx, d.topics.Inbound(address))
	if err != nil {
		cancel()
		return nil, err
	}
	return &pubSubLink{
		pub:    d.pub,
		topic:  d.topics.Outbound(address),
		msgs:   msgs,
		cancel: cancel,
		done:   subCtx.Done(),
	}, nil
}

func (d *pubSubDialer) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = errors.Join(d.pub.Close(), d.sub.Close())
	})
	return d.closeErr
}

type pubSubLink struct {
	pub    message.Publisher
	topic  string
	msgs   <-chan *message.Message
	cancel context.CancelFunc
	done   <-chan struct{}
}

func (l *pubSubLink) Send(ctx context.Context, frame []byte) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	msg := message.NewMessage(watermill.NewULID(), frame)
	msg.SetContext(ctx)
	return l.pub.Publish(l.topic, msg)
}

func (l *pubSubLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrLinkClosed
	case msg, ok := <-l.msgs:
		if !ok {
			return nil, ErrLinkClosed
		}
		msg.Ack()
		return msg.Payload, nil
	}
}

func (l *pubSubLink) Close() error {
	l.cancel()
	return nil
}
