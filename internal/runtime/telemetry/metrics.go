package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uskit"

// Metrics holds the Prometheus collectors shared by the session, the clients
// and the auth proxy. A nil *Metrics is valid and records nothing.
type Metrics struct {
	mu sync.Mutex

	eventsDelivered    *prometheus.CounterVec
	deliverySeconds    *prometheus.HistogramVec
	handlerErrors      *prometheus.CounterVec
	framesSent         *prometheus.CounterVec
	framesReceived     *prometheus.CounterVec
	reconnects         *prometheus.CounterVec
	unmatchedResponses *prometheus.CounterVec
	replays            *prometheus.CounterVec
	authState          *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGaugeVec(subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewMetrics creates the collectors. They are not registered until Register
// is called. A nil registerer means prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:         registerer,
		eventsDelivered:    newCounterVec("router", "events_delivered_total", "Total number of handler invocations that completed", []string{"channel"}),
		deliverySeconds:    newHistogramVec("router", "delivery_seconds", "Handler execution time", []float64{.0005, .001, .005, .01, .05, .1, .5, 1}, []string{"channel"}),
		handlerErrors:      newCounterVec("router", "handler_errors_total", "Total number of handlers that returned an error or panicked", []string{"channel"}),
		framesSent:         newCounterVec("session", "frames_sent_total", "Total number of frames written to the link", []string{"message_type"}),
		framesReceived:     newCounterVec("session", "frames_received_total", "Total number of frames read from the link", []string{"message_type"}),
		reconnects:         newCounterVec("session", "reconnects_total", "Total number of reconnect attempts", []string{"address"}),
		unmatchedResponses: newCounterVec("session", "unmatched_responses_total", "Responses that could not be routed to a client", []string{"reason"}),
		replays:            newCounterVec("auth", "replays_total", "Credentials replayed after the connection reopened", []string{"message_type"}),
		authState:          newGaugeVec("auth", "state", "Current state of the authenticating proxy (0 no history, 1 awaiting, 2 authenticated, 3 rejected)", []string{"message_type"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.eventsDelivered,
		m.deliverySeconds,
		m.handlerErrors,
		m.framesSent,
		m.framesReceived,
		m.reconnects,
		m.unmatchedResponses,
		m.replays,
		m.authState,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordDelivery records one completed handler invocation.
func (m *Metrics) RecordDelivery(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(channel).Inc()
	m.deliverySeconds.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) RecordHandlerError(channel string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) FrameSent(messageType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(messageType).Inc()
}

func (m *Metrics) FrameReceived(messageType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(messageType).Inc()
}

func (m *Metrics) Reconnect(address string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(address).Inc()
}

func (m *Metrics) UnmatchedResponse(reason string) {
	if m == nil {
		return
	}
	m.unmatchedResponses.WithLabelValues(reason).Inc()
}

func (m *Metrics) Replay(messageType string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(messageType).Inc()
}

// SetAuthState exports the proxy state ordinal for the login message type.
func (m *Metrics) SetAuthState(messageType string, state int) {
	if m == nil {
		return
	}
	m.authState.WithLabelValues(messageType).Set(float64(state))
}

// Handler serves the metrics gathered by g. A nil gatherer means
// prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
