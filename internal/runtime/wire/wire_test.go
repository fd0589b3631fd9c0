package wire

import (
	"encoding/json"
	"strings"
	"testing"

	jsoncodec "github.com/drblury/uskit/internal/runtime/jsoncodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		base string
		verb Verb
	}{
		{"LOGIN", "LOGIN", VerbRequest},
		{"LOGIN_ACK", "LOGIN", VerbAck},
		{"LOGIN_NACK", "LOGIN", VerbNack},
		{"TXN_USER_DELETE_ACK", "TXN_USER_DELETE", VerbAck},
		{"QUERY_USER_SNAPSHOT", "QUERY_USER", VerbSnapshot},
		{"QUERY_USER_UPDATE", "QUERY_USER", VerbUpdate},
		{"QUERY_USER_NEXT", "QUERY_USER", VerbNext},
		{"NACK", "", VerbNack},
		{"ACK", "", VerbAck},
		{"_ACK", "_ACK", VerbRequest},
		{"", "", VerbRequest},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, verb := Split(tt.in)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.verb, verb)
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "QUERY_USER_NEXT", Join("QUERY_USER", VerbNext))
	assert.Equal(t, "LOGIN", Join("LOGIN", VerbRequest))
	assert.Equal(t, "NACK", Join("", VerbNack))

	for v := VerbAck; v <= VerbNext; v++ {
		base, verb := Split(Join("TXN_CHAT", v))
		assert.Equal(t, "TXN_CHAT", base)
		assert.Equal(t, v, verb)
	}
	assert.Equal(t, "REQUEST", VerbRequest.String())
	assert.Equal(t, "SNAPSHOT", VerbSnapshot.String())
	assert.True(t, strings.HasPrefix(Verb(42).String(), "Verb("))
}

func TestEncodeUsesUppercaseEnvelope(t *testing.T) {
	data, err := Encode(Message{
		MessageType: "TXN_CHAT",
		MessageID:   "01J",
		Content:     map[string]any{"TEXT": "hello"},
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, jsoncodec.Unmarshal(data, &raw))
	assert.Equal(t, "TXN_CHAT", raw["MESSAGE_TYPE"])
	assert.Equal(t, "01J", raw["MESSAGE_ID"])
	assert.NotContains(t, raw, "REPLY_TO_ID")
	assert.NotContains(t, raw, "ERROR")
	assert.Equal(t, map[string]any{"TEXT": "hello"}, raw["CONTENT"])

	_, err = Encode(Message{})
	assert.Error(t, err)
}

func TestDecodeNack(t *testing.T) {
	msg, err := Decode([]byte(`{"MESSAGE_TYPE":"LOGIN_NACK","REPLY_TO_ID":"01J","ERROR":{"CODE":"XSEC","TEXT":"Invalid credentials"}}`))
	require.NoError(t, err)
	assert.Equal(t, "LOGIN_NACK", msg.MessageType)
	assert.Equal(t, "01J", msg.ReplyTo)
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrorInfo{Code: "XSEC", Text: "Invalid credentials"}, *msg.Error)

	_, err = Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecodeQueryPageKeepsRowIDs(t *testing.T) {
	msg, err := Decode([]byte(`{
		"MESSAGE_TYPE":"QUERY_USER_SNAPSHOT",
		"CONTENT":{"QUERY_ID":"q1","INSERT":[{"__rowid__":12345678901234567,"name":"bob"}],"IS_LAST":false}
	}`))
	require.NoError(t, err)

	var page QueryPage
	require.NoError(t, jsoncodec.Convert(msg.Content, &page))
	assert.Equal(t, "q1", page.QueryID)
	assert.False(t, page.IsLast)
	require.Len(t, page.Insert, 1)

	id, ok := RowID(page.Insert[0])
	require.True(t, ok)
	assert.Equal(t, "12345678901234567", id)
}

func TestRowID(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]any
		want string
		ok   bool
	}{
		{"string", map[string]any{RowIDField: "a:1"}, "a:1", true},
		{"number", map[string]any{RowIDField: json.Number("7")}, "7", true},
		{"int", map[string]any{RowIDField: 7}, "7", true},
		{"int64", map[string]any{RowIDField: int64(8)}, "8", true},
		{"float", map[string]any{RowIDField: 9.0}, "9", true},
		{"missing", map[string]any{"name": "x"}, "", false},
		{"nil", map[string]any{RowIDField: nil}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RowID(tt.row)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
