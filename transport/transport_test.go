package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	topics := Topics{OutboundSuffix: ".c2s", InboundSuffix: ".s2c"}

	assert.Equal(t, "uchat.c2s", topics.Outbound("/uchat"))
	assert.Equal(t, "uchat.s2c", topics.Inbound("/uchat"))
	assert.Equal(t, "chat.room.s2c", topics.Inbound("/chat/room/"))
	assert.Equal(t, "uskit.c2s", topics.Outbound("/"))

	server := topics.Reverse()
	assert.Equal(t, topics.Inbound("/uchat"), server.Outbound("/uchat"))
	assert.Equal(t, topics.Outbound("/uchat"), server.Inbound("/uchat"))
}

func TestTopicsFromConfig(t *testing.T) {
	assert.Equal(t, Topics{OutboundSuffix: ".c2s", InboundSuffix: ".s2c"}, TopicsFromConfig(nil))
	assert.Equal(t, Topics{OutboundSuffix: ".up", InboundSuffix: ".s2c"}, TopicsFromConfig(&mockConfig{outbound: ".up"}))
}

func newChannelPair() (Dialer, Dialer) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	topics := Topics{OutboundSuffix: ".c2s", InboundSuffix: ".s2c"}
	client := NewPubSubDialer(pubSub, pubSub, topics)
	server := NewPubSubDialer(pubSub, pubSub, topics.Reverse())
	return client, server
}

func TestPubSubDialerRoundTrip(t *testing.T) {
	client, server := newChannelPair()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverLink, err := server.Dial(ctx, "/uchat")
	require.NoError(t, err)
	clientLink, err := client.Dial(ctx, "/uchat")
	require.NoError(t, err)

	require.NoError(t, clientLink.Send(ctx, []byte(`{"MESSAGE_TYPE":"LOGIN"}`)))
	frame, err := serverLink.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESSAGE_TYPE":"LOGIN"}`, string(frame))

	require.NoError(t, serverLink.Send(ctx, []byte(`{"MESSAGE_TYPE":"LOGIN_ACK"}`)))
	frame, err = clientLink.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"MESSAGE_TYPE":"LOGIN_ACK"}`, string(frame))
}

func TestPubSubLinkClose(t *testing.T) {
	client, _ := newChannelPair()
	defer client.Close()

	link, err := client.Dial(context.Background(), "/uchat")
	require.NoError(t, err)
	require.NoError(t, link.Close())

	_, err = link.Receive(context.Background())
	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.ErrorIs(t, link.Send(context.Background(), []byte("x")), ErrLinkClosed)
}

func TestPubSubLinkReceiveHonoursContext(t *testing.T) {
	client, _ := newChannelPair()
	defer client.Close()

	link, err := client.Dial(context.Background(), "/uchat")
	require.NoError(t, err)
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = link.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingSubscriber struct{ closed bool }

func (f *failingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return nil, errors.New("subscribe failed")
}

func (f *failingSubscriber) Close() error {
	f.closed = true
	return nil
}

type closingPublisher struct{ err error }

func (c *closingPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (c *closingPublisher) Close() error                                             { return c.err }

func TestPubSubDialerErrors(t *testing.T) {
	pubErr := errors.New("publisher close failed")
	sub := &failingSubscriber{}
	d := NewPubSubDialer(&closingPublisher{err: pubErr}, sub, Topics{})

	_, err := d.Dial(context.Background(), "/uchat")
	assert.EqualError(t, err, "subscribe failed")

	assert.ErrorIs(t, d.Close(), pubErr)
	assert.True(t, sub.closed)
	// second close returns the same result without closing again
	assert.ErrorIs(t, d.Close(), pubErr)
}
