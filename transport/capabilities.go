package transport

// Capabilities describes the features supported by a transport backend.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// Bidirectional indicates a single connection carries frames both ways.
	// Broker transports emulate this with a topic pair per address.
	Bidirectional bool

	// SupportsOrdering indicates frames are delivered in the order sent.
	SupportsOrdering bool

	// DurableDelivery indicates frames sent while no peer is listening are
	// retained by the backend.
	DurableDelivery bool

	// RequiresBroker indicates the transport talks to an intermediary rather
	// than directly to the session server.
	RequiresBroker bool

	// MaxMessageSize is the maximum frame size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// PreservesReplyOrder reports whether an ack can never overtake the
// snapshot page that preceded it. Query mirrors assume this.
func (c Capabilities) PreservesReplyOrder() bool {
	return c.SupportsOrdering
}

// Predefined capability sets for the built-in transports.
var (
	WebSocketCapabilities = Capabilities{
		Name:             "websocket",
		Bidirectional:    true,
		SupportsOrdering: true,
	}

	// ChannelCapabilities for the in-process Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
	}

	NATSCapabilities = Capabilities{
		Name:             "nats",
		SupportsOrdering: true,
		RequiresBroker:   true,
		MaxMessageSize:   1048576, // Default 1MB
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		DurableDelivery:  true,
		RequiresBroker:   true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		DurableDelivery:  true,
		RequiresBroker:   true,
		MaxMessageSize:   1048576, // Default 1MB
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}

	AWSCapabilities = Capabilities{
		Name:            "aws",
		DurableDelivery: true,
		RequiresBroker:  true,
		MaxMessageSize:  262144, // 256KB
	}
)
