package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NoError(t, m.Register())

	m.RecordDelivery("ack", 2*time.Millisecond)
	m.RecordDelivery("ack", time.Millisecond)
	m.RecordHandlerError("open")
	m.FrameSent("LOGIN")
	m.FrameReceived("LOGIN_ACK")
	m.Reconnect("/uchat")
	m.UnmatchedResponse("no_observer")
	m.Replay("LOGIN")
	m.SetAuthState("LOGIN", 2)

	out := scrape(t, reg)
	for _, want := range []string{
		`uskit_router_events_delivered_total{channel="ack"} 2`,
		`uskit_router_handler_errors_total{channel="open"} 1`,
		`uskit_session_frames_sent_total{message_type="LOGIN"} 1`,
		`uskit_session_frames_received_total{message_type="LOGIN_ACK"} 1`,
		`uskit_session_reconnects_total{address="/uchat"} 1`,
		`uskit_session_unmatched_responses_total{reason="no_observer"} 1`,
		`uskit_auth_replays_total{message_type="LOGIN"} 1`,
		`uskit_auth_state{message_type="LOGIN"} 2`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestMetricsRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// a second instance against the same registry collides on every collector
	other := NewMetrics(reg)
	assert.NoError(t, other.Register())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Register())
	assert.NotPanics(t, func() {
		m.RecordDelivery("ack", time.Second)
		m.RecordHandlerError("ack")
		m.FrameSent("X")
		m.FrameReceived("X")
		m.Reconnect("/")
		m.UnmatchedResponse("r")
		m.Replay("LOGIN")
		m.SetAuthState("LOGIN", 1)
	})
}

func TestNilRegistererUsesDefault(t *testing.T) {
	m := NewMetrics(nil)
	assert.Equal(t, prometheus.DefaultRegisterer, m.registerer)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NoError(t, m.Register())
	m.FrameSent("TXN_CHAT")

	assert.Contains(t, scrape(t, reg), `uskit_session_frames_sent_total{message_type="TXN_CHAT"} 1`)
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestStartSendUsesProvidedTracer(t *testing.T) {
	tp := noop.NewTracerProvider()
	ctx, span := StartSend(context.Background(), tp.Tracer("test"), "TXN_CHAT")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	assert.Implements(t, (*trace.Span)(nil), span)
	assert.NotPanics(t, func() { EndSend(span, "01J", errors.New("boom")) })

	_, global := StartSend(context.Background(), nil, "LOGIN")
	assert.NotPanics(t, func() { EndSend(global, "", nil) })
}
