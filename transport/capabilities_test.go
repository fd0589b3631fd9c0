package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredefinedCapabilities(t *testing.T) {
	tests := []struct {
		caps           Capabilities
		name           string
		bidirectional  bool
		requiresBroker bool
	}{
		{WebSocketCapabilities, "websocket", true, false},
		{ChannelCapabilities, "channel", false, false},
		{NATSCapabilities, "nats", false, true},
		{RabbitMQCapabilities, "rabbitmq", false, true},
		{KafkaCapabilities, "kafka", false, true},
		{HTTPCapabilities, "http", false, false},
		{AWSCapabilities, "aws", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.caps.Name)
			assert.Equal(t, tt.bidirectional, tt.caps.Bidirectional)
			assert.Equal(t, tt.requiresBroker, tt.caps.RequiresBroker)
		})
	}
}

func TestCapabilities_PreservesReplyOrder(t *testing.T) {
	assert.True(t, WebSocketCapabilities.PreservesReplyOrder())
	assert.True(t, KafkaCapabilities.PreservesReplyOrder())
	assert.False(t, HTTPCapabilities.PreservesReplyOrder())
	assert.False(t, AWSCapabilities.PreservesReplyOrder())
}
