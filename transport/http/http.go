// Package http provides an HTTP transport: client frames are POSTed to the
// server's publisher URL and server frames are POSTed back to a listener
// this process runs.
package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/uskit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates an HTTP dialer. The listener starts with the first Dial,
// once the inbound route is registered.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Dialer, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	publisherURL := cfg.GetHTTPPublisherURL()
	if publisherURL == "" {
		return nil, errors.New("http: publisher URL is required")
	}

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(publisherURL+topic, msg)
			},
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("http: create publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("http: create subscriber: %w", err)
	}

	return &dialer{
		Dialer:     transport.NewPubSubDialer(publisher, subscriber, transport.TopicsFromConfig(cfg)),
		subscriber: subscriber,
		logger:     logger,
	}, nil
}

type dialer struct {
	transport.Dialer
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	startOnce  sync.Once
}

func (d *dialer) Dial(ctx context.Context, address string) (transport.Link, error) {
	link, err := d.Dialer.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	d.startOnce.Do(func() {
		s, ok := d.subscriber.(*http.Subscriber)
		if !ok {
			return
		}
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				d.logger.Error("HTTP subscriber server stopped", err, nil)
			}
		}()
	})
	return link, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
