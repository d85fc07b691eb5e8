package wshub

import (
	"encoding/json"
	"fmt"
	"roomsync/internal/events"
	"roomsync/internal/snapshot"
	"strings"
)

// Server message types.
const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
	TypePing     = "ping"
	TypeResponse = "response"
	TypeError    = "error"
)

// Client message types.
const (
	TypeChatMessage = "chat_message"
	TypeGameStart   = "game_start"
	TypeGameReset   = "game_reset"
	TypeAction      = "action"
)

// Protocol error codes.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeInternal       = "INTERNAL_ERROR"
)

type SnapshotMessage struct {
	Type    string            `json:"type"`
	LastSeq uint64            `json:"last_seq"`
	Data    snapshot.RoomView `json:"data"`
}

type EventMessage struct {
	Type  string       `json:"type"`
	Seq   uint64       `json:"seq"`
	Event events.Event `json:"event"`
}

// PingMessage carries a unix timestamp in milliseconds.
type PingMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ResponseMessage struct {
	Type     string        `json:"type"`
	EventKey string        `json:"event_key"`
	Success  bool          `json:"success"`
	Error    *ErrorMessage `json:"error,omitempty"`
}

// ProtocolError rejects a client message before it reaches the room.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ClientMessage is a decoded and validated inbound message.
type ClientMessage struct {
	Type     string
	EventKey string
	Text     string
	Data     json.RawMessage
}

type envelope struct {
	Type     *string         `json:"type"`
	EventKey string          `json:"event_key"`
	Text     *string         `json:"text"`
	Data     json.RawMessage `json:"data"`
}

// DecodeClientMessage parses raw into a ClientMessage. On a validation error
// the returned message still carries whatever event_key could be read so the
// failure can be correlated.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// a malformed body may still name its key
		var key struct {
			EventKey string `json:"event_key"`
		}
		_ = json.Unmarshal(raw, &key)
		return ClientMessage{EventKey: key.EventKey}, &ProtocolError{Code: CodeInvalidMessage, Message: "message is not valid JSON for its type"}
	}

	msg := ClientMessage{EventKey: env.EventKey}
	if env.Type == nil {
		return msg, &ProtocolError{Code: CodeInvalidMessage, Message: "type field is required"}
	}
	msg.Type = *env.Type

	switch msg.Type {
	case TypePing, TypeGameStart, TypeGameReset:
	case TypeChatMessage:
		if env.Text == nil {
			return msg, &ProtocolError{Code: CodeInvalidMessage, Message: "text field is required"}
		}
		msg.Text = strings.TrimSpace(*env.Text)
		if msg.Text == "" {
			return msg, &ProtocolError{Code: CodeInvalidMessage, Message: "text must not be empty"}
		}
	case TypeAction:
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return msg, &ProtocolError{Code: CodeInvalidMessage, Message: "data field is required"}
		}
		msg.Data = env.Data
	default:
		return msg, &ProtocolError{Code: CodeUnknownType, Message: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
	return msg, nil
}
