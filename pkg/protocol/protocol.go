// Package protocol defines the wire contract between clients and the relay:
// a small envelope carrying an event name and a typed payload. Client
// commands are decoded into a closed set of command structs at the transport
// boundary; server events are encoded from typed payload structs.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Client -> server event names.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventMarkAsRead  = "markAsRead"
	EventTyping      = "typing"
)

// Server -> client event names.
const (
	EventOnlineUsers    = "onlineUsers"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventUserJoinedRoom = "userJoinedRoom"
	EventUserLeftRoom   = "userLeftRoom"
	EventReceiveMessage = "receiveMessage"
	EventMessagesRead   = "messagesRead"
	EventUserTyping     = "userTyping"
	EventError          = "error"
)

var (
	ErrMissingEvent = errors.New("message missing 'event' field")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the framing shared by both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command is the closed set of client commands. Each variant carries the
// fully decoded payload for its event.
type Command interface {
	command()
}

type JoinRoom struct {
	ConversationID string
}

type LeaveRoom struct {
	ConversationID string
}

type SendMessage struct {
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
}

type MarkAsRead struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func (JoinRoom) command()    {}
func (LeaveRoom) command()   {}
func (SendMessage) command() {}
func (MarkAsRead) command()  {}
func (Typing) command()      {}

// DecodeCommand sniffs the event name out of a raw frame and decodes the
// payload into the matching command variant. joinRoom and leaveRoom carry a
// bare string payload (the conversation id); the rest carry objects.
func DecodeCommand(raw []byte) (Command, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("malformed message frame")
	}
	event := gjson.GetBytes(raw, "event")
	if !event.Exists() || event.String() == "" {
		return nil, ErrMissingEvent
	}
	payload := []byte(gjson.GetBytes(raw, "payload").Raw)

	switch event.String() {
	case EventJoinRoom:
		id, err := decodeRoomID(payload)
		if err != nil {
			return nil, err
		}
		return JoinRoom{ConversationID: id}, nil
	case EventLeaveRoom:
		id, err := decodeRoomID(payload)
		if err != nil {
			return nil, err
		}
		return LeaveRoom{ConversationID: id}, nil
	case EventSendMessage:
		var cmd SendMessage
		if err := decodePayload(payload, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case EventMarkAsRead:
		var cmd MarkAsRead
		if err := decodePayload(payload, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case EventTyping:
		var cmd Typing
		if err := decodePayload(payload, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event.String())
	}
}

func decodeRoomID(payload []byte) (string, error) {
	var id string
	if err := decodePayload(payload, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("conversation id cannot be empty")
	}
	return id, nil
}

func decodePayload(payload []byte, v any) error {
	if len(payload) == 0 {
		return errors.New("message missing 'payload' field")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// Encode wraps a server event payload in the wire envelope.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// Server event payloads.

type OnlineUsersPayload struct {
	Users []string `json:"users"`
}

type UserPresencePayload struct {
	UserID string `json:"userId"`
}

type RoomPresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type MessagesReadPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
