package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeJoinLeaveRoom(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"event":"joinRoom","payload":"a_b"}`))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	join, ok := cmd.(JoinRoom)
	if !ok {
		t.Fatalf("Expected JoinRoom, got %T", cmd)
	}
	if join.ConversationID != "a_b" {
		t.Errorf("Expected conversation a_b, got %q", join.ConversationID)
	}

	cmd, err = DecodeCommand([]byte(`{"event":"leaveRoom","payload":"a_b"}`))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if _, ok := cmd.(LeaveRoom); !ok {
		t.Fatalf("Expected LeaveRoom, got %T", cmd)
	}
}

func TestDecodeSendMessage(t *testing.T) {
	raw := []byte(`{"event":"sendMessage","payload":{"receiverId":"u2","content":"hi","conversationId":"u1_u2"}}`)
	cmd, err := DecodeCommand(raw)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	send, ok := cmd.(SendMessage)
	if !ok {
		t.Fatalf("Expected SendMessage, got %T", cmd)
	}
	if send.ReceiverID != "u2" || send.Content != "hi" || send.ConversationID != "u1_u2" {
		t.Errorf("Unexpected decoded command: %+v", send)
	}
}

func TestDecodeMarkAsReadAndTyping(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"event":"markAsRead","payload":{"conversationId":"a_b","userId":"b"}}`))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	mark, ok := cmd.(MarkAsRead)
	if !ok || mark.ConversationID != "a_b" || mark.UserID != "b" {
		t.Errorf("Unexpected markAsRead decode: %T %+v", cmd, cmd)
	}

	cmd, err = DecodeCommand([]byte(`{"event":"typing","payload":{"conversationId":"a_b","isTyping":true}}`))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	typ, ok := cmd.(Typing)
	if !ok || !typ.IsTyping || typ.ConversationID != "a_b" {
		t.Errorf("Unexpected typing decode: %T %+v", cmd, cmd)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"event":`},
		{"missing event", `{"payload":"a_b"}`},
		{"empty event", `{"event":"","payload":"x"}`},
		{"missing payload", `{"event":"joinRoom"}`},
		{"empty room id", `{"event":"joinRoom","payload":""}`},
		{"wrong payload type", `{"event":"sendMessage","payload":"oops"}`},
	}
	for _, tc := range cases {
		if _, err := DecodeCommand([]byte(tc.raw)); err == nil {
			t.Errorf("%s: expected decode error", tc.name)
		}
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"event":"selfDestruct","payload":{}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("Expected ErrUnknownEvent, got %v", err)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	frame, err := Encode(EventUserTyping, UserTypingPayload{UserID: "u1", IsTyping: true})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("Encoded frame is not a valid envelope: %v", err)
	}
	if env.Event != EventUserTyping {
		t.Errorf("Expected event %q, got %q", EventUserTyping, env.Event)
	}
	var payload UserTypingPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Payload decode failed: %v", err)
	}
	if payload.UserID != "u1" || !payload.IsTyping {
		t.Errorf("Unexpected payload: %+v", payload)
	}
}
