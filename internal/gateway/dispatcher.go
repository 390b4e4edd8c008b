package gateway

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/bus"
	"github.com/confide-gg/confide/internal/realtime"
)

// Dispatcher is the façade HTTP handlers call to fan an event out to both
// this node's SubscriptionManager (same-node recipients) and the Bus
// (cross-node recipients), per §4.10. It never blocks on delivery:
// SubscriptionManager sends are best-effort, and Bus.Publish logs and
// swallows its own failures.
type Dispatcher struct {
	subs   *realtime.SubscriptionManager
	bus    *bus.Bus
	logger *slog.Logger
}

func NewDispatcher(subs *realtime.SubscriptionManager, b *bus.Bus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, bus: b, logger: logger}
}

// ToUser delivers an event to one user's personal channel ("user:<id>"),
// used for anything addressed to a single recipient: key exchange,
// friend-request notifications, a DM's other participant.
func (d *Dispatcher) ToUser(userID uuid.UUID, eventType EventType, data map[string]any) {
	payload, err := Encode(eventType, data)
	if err != nil {
		d.logger.Error("encoding event", slog.String("event", string(eventType)), slog.String("error", err.Error()))
		return
	}

	d.subs.SendToUser(userID, payload)
	d.bus.Publish(UserChannel(userID), payload)
}

// ToConversation delivers an event to every subscriber of a conversation
// ("conv:<id>") on this node, and republishes it on the Bus so other
// nodes' node-local SubscriptionManagers re-materialize the fan-out for
// their own subscribed users.
func (d *Dispatcher) ToConversation(convID uuid.UUID, eventType EventType, data map[string]any, excludeUserID *uuid.UUID) {
	payload, err := Encode(eventType, data)
	if err != nil {
		d.logger.Error("encoding event", slog.String("event", string(eventType)), slog.String("error", err.Error()))
		return
	}

	d.subs.BroadcastToConversation(convID, payload, excludeUserID)
	d.bus.Publish(ConversationChannel(convID), payload)
}

// ToMembers delivers an event directly to an explicit member list (e.g.
// a freshly-read membership from the database) rather than relying on
// subscription state, used for events like member_joined where the new
// member isn't subscribed yet.
func (d *Dispatcher) ToMembers(memberIDs []uuid.UUID, eventType EventType, data map[string]any, excludeUserID *uuid.UUID) {
	payload, err := Encode(eventType, data)
	if err != nil {
		d.logger.Error("encoding event", slog.String("event", string(eventType)), slog.String("error", err.Error()))
		return
	}
	d.subs.BroadcastToMembers(memberIDs, payload, excludeUserID)
}

// PresenceUpdate notifies everyone watching userID's presence.
func (d *Dispatcher) PresenceUpdate(userID uuid.UUID, status string, online bool) {
	payload, err := Encode(EventPresenceUpdate, map[string]any{
		"user_id": userID,
		"status":  status,
		"online":  online,
	})
	if err != nil {
		d.logger.Error("encoding presence update", slog.String("error", err.Error()))
		return
	}
	d.subs.BroadcastPresenceUpdate(userID, payload)
}

// UserChannel and ConversationChannel are the Bus channel-naming
// conventions EventDispatcher and WSCore share.
func UserChannel(userID uuid.UUID) string         { return "user:" + userID.String() }
func ConversationChannel(convID uuid.UUID) string { return "conv:" + convID.String() }
