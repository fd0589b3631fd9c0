// Package transport defines the link abstraction a session runs over. Each
// implementation (websocket, nats, kafka, etc.) lives in its own sub-package
// and registers itself with the transport registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
)

// ErrLinkClosed is returned by Link.Receive once the link has been closed,
// locally or by the peer.
var ErrLinkClosed = errspkg.ErrLinkClosed

// Link is one established, bidirectional frame stream. Send may be called
// concurrently with Receive; Receive is called from a single goroutine.
type Link interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer establishes links to a session address such as "/uchat".
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
	Close() error
}

// Builder is the function signature for creating a dialer from config.
// Each transport package provides a Builder that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Dialer, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string

	// WebSocket
	GetWebSocketURL() string
	GetKeepAlive() time.Duration

	// Broker topic mapping
	GetOutboundSuffix() string
	GetInboundSuffix() string

	// Kafka
	GetKafkaBrokers() []string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by dialers that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
