// Package realtime holds the in-process connection/fan-out state that lives
// on a single node: SubscriptionManager, ConnectionLimiter, and BoundedSend
// (§4.2-§4.4). None of this crosses node boundaries; cross-node delivery is
// the Bus's job (internal/bus).
package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/models"
)

// SubscriptionManager tracks, for a single node: which connections belong to
// which user, which users are subscribed to which conversation, who is
// watching whose presence, and who is currently online. A single RWMutex
// guards every map, so writers to any one map block readers of all of them.
type SubscriptionManager struct {
	logger *slog.Logger

	mu               sync.RWMutex
	userConnections  map[uuid.UUID][]*Outgoing
	conversationSubs map[uuid.UUID]map[uuid.UUID]struct{}
	userConversations map[uuid.UUID]map[uuid.UUID]struct{}
	presenceWatchers map[uuid.UUID]map[uuid.UUID]struct{}
	online           map[uuid.UUID]models.PresenceInfo

	activeConnections int
	activeUsers       int
	messagesDelivered uint64
}

func NewSubscriptionManager(logger *slog.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		logger:            logger,
		userConnections:   make(map[uuid.UUID][]*Outgoing),
		conversationSubs:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		userConversations: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		presenceWatchers:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		online:            make(map[uuid.UUID]models.PresenceInfo),
	}
}

// AddConnection registers a new live connection for userID.
func (m *SubscriptionManager) AddConnection(userID uuid.UUID, out *Outgoing) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.userConnections[userID]
	m.userConnections[userID] = append(existing, out)
	m.activeConnections++
	if len(existing) == 0 {
		m.activeUsers++
	}
}

// RemoveConnection removes one connection for userID, closes its outgoing
// queue (reaching the §4.4 Closed outcome for any in-flight BoundedSend),
// and unsubscribes it from every conversation if that was the user's last
// connection.
func (m *SubscriptionManager) RemoveConnection(userID uuid.UUID, out *Outgoing) {
	defer out.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.userConnections[userID]
	for i, c := range conns {
		if c == out {
			conns = append(conns[:i], conns[i+1:]...)
			m.activeConnections--
			break
		}
	}

	if len(conns) == 0 {
		delete(m.userConnections, userID)
		m.activeUsers--
		if convIDs, ok := m.userConversations[userID]; ok {
			for convID := range convIDs {
				if subs, ok := m.conversationSubs[convID]; ok {
					delete(subs, userID)
					if len(subs) == 0 {
						delete(m.conversationSubs, convID)
					}
				}
			}
			delete(m.userConversations, userID)
		}
		return
	}
	m.userConnections[userID] = conns
}

// SubscribeConversation marks userID as interested in events for convID.
func (m *SubscriptionManager) SubscribeConversation(userID, convID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conversationSubs[convID] == nil {
		m.conversationSubs[convID] = make(map[uuid.UUID]struct{})
	}
	m.conversationSubs[convID][userID] = struct{}{}

	if m.userConversations[userID] == nil {
		m.userConversations[userID] = make(map[uuid.UUID]struct{})
	}
	m.userConversations[userID][convID] = struct{}{}
}

// SubscribePresence marks watcherID as interested in watchedID's presence.
func (m *SubscriptionManager) SubscribePresence(watcherID, watchedID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.presenceWatchers[watchedID] == nil {
		m.presenceWatchers[watchedID] = make(map[uuid.UUID]struct{})
	}
	m.presenceWatchers[watchedID][watcherID] = struct{}{}
}

func (m *SubscriptionManager) SetOnline(userID uuid.UUID, info models.PresenceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = info
}

func (m *SubscriptionManager) SetOffline(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
}

func (m *SubscriptionManager) IsOnline(userID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.online[userID]
	return ok
}

func (m *SubscriptionManager) Presence(userID uuid.UUID) (models.PresenceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.online[userID]
	return p, ok
}

func (m *SubscriptionManager) OnlineUserIDs() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.online))
	for id := range m.online {
		ids = append(ids, id)
	}
	return ids
}

// SendToUser delivers msg to every connection belonging to userID on this
// node, best-effort: each connection gets the message through BoundedSend,
// and a connection whose channel stays full through its retries drops it.
func (m *SubscriptionManager) SendToUser(userID uuid.UUID, msg string) {
	m.mu.RLock()
	conns := append([]*Outgoing(nil), m.userConnections[userID]...)
	m.mu.RUnlock()

	for _, c := range conns {
		if BoundedSend(c, msg) == Sent {
			m.mu.Lock()
			m.messagesDelivered++
			m.mu.Unlock()
		}
	}
}

func (m *SubscriptionManager) SendToUsers(userIDs []uuid.UUID, msg string) {
	for _, id := range userIDs {
		m.SendToUser(id, msg)
	}
}

// BroadcastToConversation delivers msg to every subscriber of convID except
// excludeUserID (the sender, typically, to avoid an echo).
func (m *SubscriptionManager) BroadcastToConversation(convID uuid.UUID, msg string, excludeUserID *uuid.UUID) {
	m.mu.RLock()
	subs := m.conversationSubs[convID]
	ids := make([]uuid.UUID, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if excludeUserID != nil && id == *excludeUserID {
			continue
		}
		m.SendToUser(id, msg)
	}
}

// BroadcastToMembers delivers msg to an explicit member list except
// excludeUserID; used when the caller already has the membership (e.g. from
// a fresh DB read) rather than relying on subscription state.
func (m *SubscriptionManager) BroadcastToMembers(memberIDs []uuid.UUID, msg string, excludeUserID *uuid.UUID) {
	for _, id := range memberIDs {
		if excludeUserID != nil && id == *excludeUserID {
			continue
		}
		m.SendToUser(id, msg)
	}
}

func (m *SubscriptionManager) BroadcastPresenceUpdate(userID uuid.UUID, msg string) {
	m.mu.RLock()
	watchers := m.presenceWatchers[userID]
	ids := make([]uuid.UUID, 0, len(watchers))
	for id := range watchers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.SendToUser(id, msg)
	}
}

// Metrics is a point-in-time snapshot for health/diagnostic endpoints.
type Metrics struct {
	ActiveConnections int
	ActiveUsers       int
	MessagesDelivered uint64
}

func (m *SubscriptionManager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		ActiveConnections: m.activeConnections,
		ActiveUsers:       m.activeUsers,
		MessagesDelivered: m.messagesDelivered,
	}
}

func (m *SubscriptionManager) LogMetrics() {
	s := m.Metrics()
	m.logger.Info("subscription manager metrics",
		slog.Int("active_connections", s.ActiveConnections),
		slog.Int("active_users", s.ActiveUsers),
		slog.Uint64("messages_delivered", s.MessagesDelivered),
	)
}
