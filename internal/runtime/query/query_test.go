package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/uskit/internal/runtime/errors"
	"github.com/drblury/uskit/internal/runtime/events"
	"github.com/drblury/uskit/internal/runtime/session/sessiontest"
	"github.com/drblury/uskit/internal/runtime/wire"
)

func channels(c *Client) *[]string {
	var got []string
	record := func(ctx context.Context, evt events.Event) error {
		name := evt.Channel.String()
		if id := evt.MetaString(events.MetaRowID); id != "" {
			name += ":" + id
		}
		got = append(got, name)
		return nil
	}
	for _, ch := range []events.Channel{events.Ack, events.Nack, events.Reset, events.Column, events.Insert, events.Update, events.Delete} {
		c.On(ch, record)
	}
	return &got
}

func TestNewValidatesArguments(t *testing.T) {
	assert.PanicsWithValue(t, errspkg.ErrConnRequired, func() { New(nil, "QUERY_USER") })
	assert.PanicsWithValue(t, errspkg.ErrMessageTypeRequired, func() { New(sessiontest.NewConn(), "") })
}

func TestStartsOnOpen(t *testing.T) {
	conn := sessiontest.NewConn()
	New(conn, "QUERY_USER", WithPageSize(2))

	conn.Open(context.Background(), nil)

	sent := conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "QUERY_USER", sent[0].MessageType)
	assert.Equal(t, wire.QueryRequest{MaxCount: 2}, sent[0].Content)
}

func TestAutoStartDisabled(t *testing.T) {
	conn := sessiontest.NewConn()
	client := New(conn, "QUERY_USER", WithAutoStart(false), WithPageSize(-1))

	conn.Open(context.Background(), nil)
	assert.Empty(t, conn.Sent())

	require.NoError(t, client.Start(context.Background()))
	last, _ := conn.Last()
	assert.Equal(t, wire.QueryRequest{MaxCount: DefaultPageSize}, last.Content)
}

func TestAckEmitsAckResetAndColumns(t *testing.T) {
	conn := sessiontest.NewConn()
	client := New(conn, "QUERY_USER")
	got := channels(client)
	var cols []wire.ColumnDef
	client.On(events.Column, events.Typed(func(ctx context.Context, evt events.Event, col wire.ColumnDef) error {
		cols = append(cols, col)
		return nil
	}))

	conn.Reply(context.Background(), "QUERY_USER", wire.VerbAck, map[string]any{
		"QUERY_ID": "1|abc",
		"SCHEMA": []any{
			map[string]any{"name": "f_USER_ID", "title": "User ID", "type": "int"},
			map[string]any{"name": "f_NAME", "title": "Name", "type": "text"},
		},
	}, nil)

	assert.Equal(t, []string{"ack", "reset", "column", "column"}, *got)
	assert.Equal(t, "1|abc", client.QueryID())
	assert.Equal(t, []wire.ColumnDef{
		{Name: "f_USER_ID", Title: "User ID", Type: "int"},
		{Name: "f_NAME", Title: "Name", Type: "text"},
	}, cols)
}

func TestNackIsRelayed(t *testing.T) {
	conn := sessiontest.NewConn()
	client := New(conn, "QUERY_USER")
	got := channels(client)

	conn.Reply(context.Background(), "QUERY_USER", wire.VerbNack, nil, &events.Fault{Code: "XPRM", Text: "Query not allowed"})

	assert.Equal(t, []string{"nack"}, *got)
}

func TestMalformedAckIsStillRelayed(t *testing.T) {
	conn := sessiontest.NewConn()
	client := New(conn, "QUERY_USER")
	got := channels(client)

	conn.Reply(context.Background(), "QUERY_USER", wire.VerbAck, "not a query ack", nil)

	assert.Equal(t, []string{"ack"}, *got)
	assert.Empty(t, client.QueryID())
}

func TestPagesEmitRowsAndRequestNext(t *testing.T) {
	conn := sessiontest.NewConn()
	client := New(conn, "QUERY_USER", WithPageSize(2))
	got := channels(client)
	ctx := context.Background()

	conn.Reply(ctx, "QUERY_USER", wire.VerbAck, map[string]any{"QUERY_ID": "q1"}, nil)
	conn.Reply(ctx, "QUERY_USER", wire.VerbSnapshot, map[string]any{
		"QUERY_ID": "q1",
		"INSERT": []any{
			map[string]any{wire.RowIDField: json.Number("1"), "f_NAME": "ann"},
			map[string]any{wire.RowIDField: json.Number("2"), "f_NAME": "bob"},
		},
		"IS_LAST": false,
	}, nil)

	last, ok := conn.Last()
	require.True(t, ok)
	assert.Equal(t, "QUERY_USER_NEXT", last.MessageType)
	assert.Equal(t, wire.QueryNext{QueryID: "q1", MaxCount: 2}, last.Content)

	conn.Reply(ctx, "QUERY_USER", wire.VerbSnapshot, map[string]any{
		"QUERY_ID": "q1",
		"DELETE":   []any{map[string]any{wire.RowIDField: json.Number("1")}},
		"UPDATE":   []any{map[string]any{wire.RowIDField: json.Number("2"), "f_NAME": "bobby"}},
		"INSERT":   []any{map[string]any{wire.RowIDField: json.Number("3"), "f_NAME": "cat"}},
		"IS_LAST":  true,
	}, nil)

	assert.Equal(t, []string{
		"ack", "reset",
		"insert:1", "insert:2",
		"insert:3", "update:2", "delete:1",
	}, *got)
	assert.Len(t, conn.Sent(), 1, "a last page must not request more")
}

// Conn implementations other than Session may emit row events directly.
func TestPlainRowEventsAreForwarded(t *testing.T) {
	conn := sessiontest.NewConn()
	client := New(conn, "QUERY_USER")
	got := channels(client)

	conn.Trigger(context.Background(), events.New(events.Insert, nil))
	assert.Empty(t, *got, "events not addressed to the query are ignored")

	conn.Deliver(context.Background(), events.New(events.Reset, nil).WithMessageType("QUERY_USER"))
	conn.Deliver(context.Background(), events.New(events.Insert, nil).WithMessageType("QUERY_CHAT"))
	assert.Equal(t, []string{"reset"}, *got)
}

func TestRowIDFallsBackToContent(t *testing.T) {
	id, ok := RowID(events.New(events.Insert, map[string]any{wire.RowIDField: "7"}))
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	id, ok = RowID(events.New(events.Delete, nil).WithMetadata(events.MetaRowID, "9"))
	assert.True(t, ok)
	assert.Equal(t, "9", id)

	_, ok = RowID(events.New(events.Delete, "not a row"))
	assert.False(t, ok)
}
