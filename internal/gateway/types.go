// Package gateway implements WSCore and EventDispatcher (§4.9-§4.10): the
// WebSocket connection lifecycle and the tagged-JSON event fan-out that
// HTTP handlers push through it. Wire message shapes are grounded on
// apps/server/src/ws/types.rs's tagged ClientMessage/ServerMessage enums,
// generalized from that server's guild/channel model to this spec's
// conversation/call/key-exchange event set.
package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ClientMessage is a tagged JSON frame received from a connected client.
type ClientMessage struct {
	Type      string     `json:"type"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Status    *string    `json:"status,omitempty"`
}

const (
	ClientMsgSubscribeChannel   = "subscribe_channel"
	ClientMsgUnsubscribeChannel = "unsubscribe_channel"
	ClientMsgTyping             = "typing"
	ClientMsgStopTyping         = "stop_typing"
	ClientMsgSubscribeUser      = "subscribe_user"
	ClientMsgUpdatePresence     = "update_presence"
	ClientMsgPing               = "ping"
)

// EventType enumerates every tagged server→client event, per §4.10.
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventMessageDeleted  EventType = "message_deleted"
	EventMessageEdited   EventType = "message_edited"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventTypingStart     EventType = "typing_start"
	EventTypingStop      EventType = "typing_stop"
	EventMemberJoined    EventType = "member_joined"
	EventMemberLeft      EventType = "member_left"
	EventChannelCreated  EventType = "channel_created"
	EventRoleUpdated     EventType = "role_updated"
	EventPresenceUpdate  EventType = "presence_update"
	EventCallOffer       EventType = "call_offer"
	EventCallAnswer      EventType = "call_answer"
	EventCallReject      EventType = "call_reject"
	EventCallEnd         EventType = "call_end"
	EventCallLeave       EventType = "call_leave"
	EventCallRejoin      EventType = "call_rejoin"
	EventCallCancel      EventType = "call_cancel"
	EventCallMediaReady  EventType = "call_media_ready"
	EventCallKeyComplete EventType = "call_key_complete"
	EventKeyExchange     EventType = "key_exchange"
	EventFriendRequest   EventType = "friend_request"
	EventFriendAccepted  EventType = "friend_accepted"
	EventError           EventType = "error"

	// ServerMsgPong replies to a client Ping; it is not a domain event
	// routed through EventDispatcher, only ever sent directly by WSCore.
	ServerMsgPong EventType = "pong"
)

// Envelope is the tagged JSON shape every server→client payload takes:
// {"type": "<event>", ...fields}. Handlers build the field payload as a
// map and Encode merges in the discriminator.
type Envelope struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"-"`
}

// MarshalJSON flattens Data alongside the type discriminator, matching the
// original's #[serde(tag = "type")] enum wire shape instead of nesting
// fields under a "data" key.
func (e Envelope) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		flat[k] = v
	}
	flat["type"] = e.Type
	return json.Marshal(flat)
}

// Encode renders the envelope to its wire string form for BoundedSend/Bus.
func Encode(eventType EventType, data map[string]any) (string, error) {
	b, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
