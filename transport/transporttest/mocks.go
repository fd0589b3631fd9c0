// Package transporttest provides recording Watermill publishers and
// subscribers for transport tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher records the topics and payloads it is asked to publish.
type Publisher struct {
	mu       sync.Mutex
	Topics   []string
	Payloads [][]byte
	Closed   bool
	Err      error
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	for _, msg := range messages {
		p.Topics = append(p.Topics, topic)
		p.Payloads = append(p.Payloads, msg.Payload)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Subscriber records subscribed topics and hands out Messages as the output
// channel of every subscription.
type Subscriber struct {
	mu       sync.Mutex
	Topics   []string
	Closed   bool
	Messages chan *message.Message
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Topics = append(s.Topics, topic)
	if s.Messages == nil {
		s.Messages = make(chan *message.Message, 16)
	}
	return s.Messages, nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
