package libraries

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type WebSocketMessageType string

const (
	WebSocketMessageTypeJoinRoom  WebSocketMessageType = "join_room"
	WebSocketMessageTypeLeaveRoom WebSocketMessageType = "leave_room"
	WebSocketMessageTypeChat      WebSocketMessageType = "chat"
	WebSocketMessageTypePing      WebSocketMessageType = "ping"
	WebSocketMessageTypePong      WebSocketMessageType = "pong"
)

// maxClientMsgIDLen bounds the optional id a client attaches to a chat.
const maxClientMsgIDLen = 128

// ErrMalformedMessage marks an inbound frame that cannot be dispatched.
var ErrMalformedMessage = errors.New("malformed message")

// RoomID identifies a room. On the wire it may be a JSON number or string;
// numeric ids are written back as numbers.
type RoomID string

func (r *RoomID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*r = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("roomId must be a string or number: %w", err)
		}
		*r = RoomID(n.String())
		return nil
	}
}

func (r RoomID) MarshalJSON() ([]byte, error) {
	if v, err := strconv.ParseUint(string(r), 10, 64); err == nil && strconv.FormatUint(v, 10) == string(r) {
		return []byte(string(r)), nil
	}
	return json.Marshal(string(r))
}

func (r RoomID) String() string { return string(r) }

// WebSocketMessage is an inbound client frame. ClientMsgID is an opaque id
// the sender may attach to a chat; it is copied into the fan-out frame so the
// sender can recognise its own edits.
type WebSocketMessage struct {
	Type        WebSocketMessageType `json:"type"`
	RoomID      RoomID               `json:"roomId,omitempty"`
	Message     json.RawMessage      `json:"message,omitempty"`
	ClientMsgID string               `json:"clientMsgId,omitempty"`
}

// ChatFrame is the fan-out frame sent to room members.
type ChatFrame struct {
	Type        WebSocketMessageType `json:"type"`
	Message     string               `json:"message"`
	RoomID      RoomID               `json:"roomId"`
	ClientMsgID string               `json:"clientMsgId,omitempty"`
}

// parseWebSocketMessage decodes and validates an inbound frame.
func parseWebSocketMessage(msg []byte) (*WebSocketMessage, error) {
	var m WebSocketMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch m.Type {
	case WebSocketMessageTypeJoinRoom, WebSocketMessageTypeLeaveRoom:
		if m.RoomID == "" {
			return nil, fmt.Errorf("%w: %s without roomId", ErrMalformedMessage, m.Type)
		}
	case WebSocketMessageTypeChat:
		if m.RoomID == "" {
			return nil, fmt.Errorf("%w: chat without roomId", ErrMalformedMessage)
		}
		if len(m.Message) == 0 || bytes.Equal(m.Message, []byte("null")) {
			return nil, fmt.Errorf("%w: chat without message", ErrMalformedMessage)
		}
		if len(m.ClientMsgID) > maxClientMsgIDLen {
			return nil, fmt.Errorf("%w: clientMsgId too long", ErrMalformedMessage)
		}
	case WebSocketMessageTypePing:
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	return &m, nil
}

// canonicalMessage returns the string form of a chat message: a JSON string
// is unwrapped, any other JSON value is compacted to its text.
func canonicalMessage(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return buf.String(), nil
}

// EncodeChatFrame renders the fan-out frame for one chat event.
func EncodeChatFrame(roomID RoomID, message string) ([]byte, error) {
	return EncodeChatFrameFrom(roomID, message, "")
}

// EncodeChatFrameFrom is EncodeChatFrame carrying the sender's message id.
func EncodeChatFrameFrom(roomID RoomID, message, clientMsgID string) ([]byte, error) {
	return json.Marshal(ChatFrame{Type: WebSocketMessageTypeChat, Message: message, RoomID: roomID, ClientMsgID: clientMsgID})
}
