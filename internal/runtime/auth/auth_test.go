package auth

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	"github.com/drblury/uskit/internal/runtime/session/sessiontest"
	"github.com/drblury/uskit/internal/runtime/telemetry"
	"github.com/drblury/uskit/internal/runtime/txn"
	"github.com/drblury/uskit/internal/runtime/wire"
)

type fixture struct {
	conn  *sessiontest.Conn
	proxy *Proxy
	seen  *[]events.Event
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	conn := sessiontest.NewConn()
	proxy := New(conn, txn.New(conn, "LOGIN"), opts...)
	var seen []events.Event
	record := func(ctx context.Context, evt events.Event) error {
		seen = append(seen, evt)
		return nil
	}
	for _, ch := range []events.Channel{events.Ack, events.Nack, events.Open} {
		proxy.On(ch, record)
	}
	return fixture{conn: conn, proxy: proxy, seen: &seen}
}

func (f fixture) submit(user string) {
	f.proxy.Trigger(context.Background(), events.New(events.Submit, map[string]any{"USERNAME": user}))
}

func (f fixture) reply(verb wire.Verb) {
	var fault *events.Fault
	var content any = map[string]any{"USER": "ok"}
	if verb == wire.VerbNack {
		fault = &events.Fault{Code: "XSEC", Text: "Invalid credentials"}
		content = nil
	}
	f.conn.Reply(context.Background(), "LOGIN", verb, content, fault)
}

func (f fixture) logins() []wire.Message {
	var out []wire.Message
	for _, msg := range f.conn.Sent() {
		if msg.MessageType == "LOGIN" {
			out = append(out, msg)
		}
	}
	return out
}

func (f fixture) channels() []string {
	var out []string
	for _, evt := range *f.seen {
		out = append(out, evt.Channel.String())
	}
	return out
}

func TestNewValidatesArguments(t *testing.T) {
	conn := sessiontest.NewConn()
	assert.PanicsWithValue(t, errspkg.ErrConnRequired, func() { New(nil, txn.New(conn, "LOGIN")) })
	assert.PanicsWithValue(t, errspkg.ErrLoginClientRequired, func() { New(conn, nil) })
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no_history", StateNoHistory.String())
	assert.Equal(t, "awaiting", StateAwaiting.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestOpenWithoutHistoryStaysPassive(t *testing.T) {
	f := newFixture(t)
	f.conn.Open(context.Background(), events.Metadata{events.MetaAddress: "/uchat"})

	assert.Empty(t, f.conn.Sent())
	assert.Empty(t, *f.seen, "base open is not visible on the proxy")
	assert.Equal(t, StateNoHistory, f.proxy.State())
}

func TestAckEmitsAckThenDerivedOpen(t *testing.T) {
	f := newFixture(t)
	f.conn.Open(context.Background(), events.Metadata{events.MetaAddress: "/uchat", events.MetaAttempt: 1})

	f.submit("bob")
	require.Len(t, f.logins(), 1)
	assert.Equal(t, StateAwaiting, f.proxy.State())

	f.reply(wire.VerbAck)

	assert.Equal(t, []string{"ack", "open"}, f.channels())
	open := (*f.seen)[1]
	assert.Equal(t, map[string]any{"USER": "ok"}, open.Content)
	assert.Equal(t, "/uchat", open.MetaString(events.MetaAddress))
	derived, _ := open.Meta(events.MetaDerived)
	assert.Equal(t, true, derived)
	assert.Equal(t, StateAuthenticated, f.proxy.State())
	assert.True(t, f.proxy.HasCredential())
}

func TestLastSubmitWinsOnReplay(t *testing.T) {
	f := newFixture(t)
	f.conn.Open(context.Background(), nil)
	f.submit("first")
	f.submit("second")

	f.conn.Close(context.Background())
	f.conn.Open(context.Background(), nil)

	logins := f.logins()
	require.Len(t, logins, 3)
	assert.Equal(t, map[string]any{"USERNAME": "second"}, logins[2].Content)
}

func TestNackForgetsCredential(t *testing.T) {
	f := newFixture(t)
	f.conn.Open(context.Background(), nil)
	f.submit("mallory")
	f.reply(wire.VerbNack)

	assert.Equal(t, []string{"nack"}, f.channels())
	assert.Equal(t, StateRejected, f.proxy.State())
	assert.False(t, f.proxy.HasCredential())

	f.conn.Close(context.Background())
	f.conn.Open(context.Background(), nil)

	assert.Len(t, f.logins(), 1, "a rejected credential is never resent")
}

func TestExactlyOneReplayAfterReconnect(t *testing.T) {
	f := newFixture(t)
	f.conn.Open(context.Background(), nil)
	f.submit("bob")
	f.reply(wire.VerbAck)

	f.conn.Close(context.Background())
	f.conn.Open(context.Background(), events.Metadata{events.MetaAttempt: 2})

	logins := f.logins()
	require.Len(t, logins, 2)
	assert.Equal(t, logins[0].Content, logins[1].Content)
	assert.Equal(t, StateAwaiting, f.proxy.State())

	f.reply(wire.VerbAck)
	assert.Equal(t, []string{"ack", "open", "ack", "open"}, f.channels())
	attempt, _ := (*f.seen)[3].Meta(events.MetaAttempt)
	assert.Equal(t, 2, attempt)
	assert.Len(t, f.logins(), 2)
}

func TestRepliesOutsideAwaitingDoNotChangeState(t *testing.T) {
	f := newFixture(t)
	f.reply(wire.VerbAck)
	f.reply(wire.VerbNack)

	assert.Equal(t, []string{"ack", "nack"}, f.channels())
	assert.Equal(t, StateNoHistory, f.proxy.State())

	f.submit("bob")
	f.reply(wire.VerbAck)
	f.reply(wire.VerbNack)
	assert.Equal(t, StateAuthenticated, f.proxy.State())
	assert.True(t, f.proxy.HasCredential())
}

func TestRoutingDelegatesOtherChannels(t *testing.T) {
	f := newFixture(t)
	var closes, custom int
	f.proxy.On(events.Close, func(context.Context, events.Event) error { closes++; return nil })
	f.proxy.On(events.Named("typing"), func(context.Context, events.Event) error { custom++; return nil })

	f.conn.Close(context.Background())
	f.proxy.Trigger(context.Background(), events.New(events.Named("typing"), nil))

	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, custom)

	id, err := f.proxy.Send(context.Background(), wire.Message{MessageType: "TXN_CHAT"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

// Clients layered on the proxy start their queries on the derived open, so
// they run after every successful login.
func TestClientsOnProxyFollowLogin(t *testing.T) {
	f := newFixture(t)
	var starts int
	f.proxy.On(events.Open, func(context.Context, events.Event) error { starts++; return nil })

	f.conn.Open(context.Background(), nil)
	assert.Zero(t, starts)

	f.submit("bob")
	f.reply(wire.VerbAck)
	assert.Equal(t, 1, starts)

	f.conn.Close(context.Background())
	f.conn.Open(context.Background(), nil)
	assert.Equal(t, 1, starts, "base open alone does not reach proxy subscribers")
	f.reply(wire.VerbAck)
	assert.Equal(t, 2, starts)
}

func TestMetricsTrackStateAndReplays(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	require.NoError(t, metrics.Register())

	f := newFixture(t, WithMetrics(metrics))
	f.conn.Open(context.Background(), nil)
	f.submit("bob")
	f.reply(wire.VerbAck)
	f.conn.Close(context.Background())
	f.conn.Open(context.Background(), nil)

	srv := httptest.NewServer(telemetry.Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `uskit_auth_replays_total{message_type="LOGIN"} 1`)
	assert.Contains(t, string(body), `uskit_auth_state{message_type="LOGIN"} 1`)
}
