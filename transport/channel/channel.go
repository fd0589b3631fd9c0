// Package channel provides an in-memory transport built on Watermill's Go
// channel pub/sub. It is meant for tests and local development, where the
// session server runs in the same process.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/uskit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a dialer over a fresh Go channel pub/sub.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Dialer, error) {
	pub, sub := Factory(gochannel.Config{}, logger)
	return transport.NewPubSubDialer(pub, sub, transport.TopicsFromConfig(cfg)), nil
}

// NewPair returns a client dialer and a server dialer that share one Go
// channel pub/sub, so frames sent by either side reach the other.
func NewPair(cfg transport.Config, logger watermill.LoggerAdapter) (client, server transport.Dialer) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: 64}, logger)
	topics := transport.TopicsFromConfig(cfg)
	return transport.NewPubSubDialer(pub, sub, topics), transport.NewPubSubDialer(pub, sub, topics.Reverse())
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
