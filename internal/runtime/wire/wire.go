// Package wire defines the JSON envelope exchanged with the session server
// and the content shapes of query replies.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsoncodec "github.com/drblury/uskit/internal/runtime/jsoncodec"
)

// Message is one frame on the connection.
type Message struct {
	MessageType string     `json:"MESSAGE_TYPE"`
	MessageID   string     `json:"MESSAGE_ID,omitempty"`
	ReplyTo     string     `json:"REPLY_TO_ID,omitempty"`
	Content     any        `json:"CONTENT,omitempty"`
	Error       *ErrorInfo `json:"ERROR,omitempty"`
}

// ErrorInfo is the ERROR member of a negative reply.
type ErrorInfo struct {
	Code string `json:"CODE"`
	Text string `json:"TEXT"`
}

func Encode(msg Message) ([]byte, error) {
	if msg.MessageType == "" {
		return nil, fmt.Errorf("wire: encode: MESSAGE_TYPE is empty")
	}
	data, err := jsoncodec.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", msg.MessageType, err)
	}
	return data, nil
}

// Decode parses a frame. Numbers inside CONTENT decode as json.Number.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := jsoncodec.UnmarshalNumber(data, &msg); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}
	return msg, nil
}

// Verb is the role of a message, carried as a suffix of its message type.
type Verb uint8

const (
	VerbRequest Verb = iota
	VerbAck
	VerbNack
	VerbSnapshot
	VerbUpdate
	VerbNext
)

var verbSuffixes = [...]string{
	VerbRequest:  "",
	VerbAck:      "ACK",
	VerbNack:     "NACK",
	VerbSnapshot: "SNAPSHOT",
	VerbUpdate:   "UPDATE",
	VerbNext:     "NEXT",
}

func (v Verb) String() string {
	if v == VerbRequest {
		return "REQUEST"
	}
	if int(v) < len(verbSuffixes) {
		return verbSuffixes[v]
	}
	return "Verb(" + strconv.Itoa(int(v)) + ")"
}

// Split separates a message type into its base and verb. "TXN_CHAT_ACK"
// yields ("TXN_CHAT", VerbAck). A bare "NACK", sent by the server in reply to
// an unauthenticated request, yields ("", VerbNack). Types without a known
// suffix are requests.
func Split(messageType string) (string, Verb) {
	for v := VerbAck; int(v) < len(verbSuffixes); v++ {
		suffix := verbSuffixes[v]
		if messageType == suffix {
			return "", v
		}
		if base, ok := strings.CutSuffix(messageType, "_"+suffix); ok && base != "" {
			return base, v
		}
	}
	return messageType, VerbRequest
}

// Join is the inverse of Split.
func Join(base string, v Verb) string {
	if v == VerbRequest {
		return base
	}
	if base == "" {
		return verbSuffixes[v]
	}
	return base + "_" + verbSuffixes[v]
}

// RowIDField is the row member that identifies a row within a query.
const RowIDField = "__rowid__"

// ColumnDef describes one column of a query schema.
type ColumnDef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// QueryAck is the content of a positive reply to a query request.
type QueryAck struct {
	QueryID string      `json:"QUERY_ID"`
	Schema  []ColumnDef `json:"SCHEMA"`
}

// QueryPage is the content of a snapshot or update page.
type QueryPage struct {
	QueryID string           `json:"QUERY_ID"`
	Schema  []ColumnDef      `json:"SCHEMA,omitempty"`
	Insert  []map[string]any `json:"INSERT,omitempty"`
	Update  []map[string]any `json:"UPDATE,omitempty"`
	Delete  []map[string]any `json:"DELETE,omitempty"`
	IsLast  bool             `json:"IS_LAST"`
}

// QueryRequest is the content of a query request.
type QueryRequest struct {
	MaxCount int `json:"MAXCOUNT,omitempty"`
}

// QueryNext asks for the next snapshot page.
type QueryNext struct {
	QueryID  string `json:"QUERY_ID"`
	MaxCount int    `json:"MAXCOUNT,omitempty"`
}

// RowID extracts the row id of row as a string. Numeric ids keep their
// textual form.
func RowID(row map[string]any) (string, bool) {
	v, ok := row[RowIDField]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return fmt.Sprint(id), true
	}
}
