package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestEncode_FlattensTypeDiscriminator(t *testing.T) {
	convID := uuid.New()
	payload, err := Encode(EventTypingStart, map[string]any{"channel_id": convID})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["type"] != string(EventTypingStart) {
		t.Errorf("type = %v, want %v", decoded["type"], EventTypingStart)
	}
	if decoded["channel_id"] != convID.String() {
		t.Errorf("channel_id = %v, want %v", decoded["channel_id"], convID)
	}
}

func TestClientMessage_UnmarshalSubscribeChannel(t *testing.T) {
	channelID := uuid.New()
	raw := `{"type":"subscribe_channel","channel_id":"` + channelID.String() + `"}`

	var msg ClientMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != ClientMsgSubscribeChannel {
		t.Errorf("Type = %q, want %q", msg.Type, ClientMsgSubscribeChannel)
	}
	if msg.ChannelID == nil || *msg.ChannelID != channelID {
		t.Errorf("ChannelID = %v, want %v", msg.ChannelID, channelID)
	}
}

func TestClientMessage_UnmarshalPing(t *testing.T) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"type":"ping"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != ClientMsgPing {
		t.Errorf("Type = %q, want %q", msg.Type, ClientMsgPing)
	}
}
