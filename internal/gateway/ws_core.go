package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/confide-gg/confide/internal/bus"
	"github.com/confide-gg/confide/internal/models"
	"github.com/confide-gg/confide/internal/realtime"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// Core drives one node's WebSocket connections: admission, registration,
// the outgoing/incoming pump pair, and teardown (§4.9).
type Core struct {
	subs       *realtime.SubscriptionManager
	limiter    *realtime.ConnectionLimiter
	bus        *bus.Bus
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewCore(subs *realtime.SubscriptionManager, limiter *realtime.ConnectionLimiter, b *bus.Bus, dispatcher *Dispatcher, logger *slog.Logger) *Core {
	return &Core{subs: subs, limiter: limiter, bus: b, dispatcher: dispatcher, logger: logger}
}

// Serve runs one connection's full lifecycle: admission, registration,
// pumps, and teardown. It blocks until the connection closes. Auth
// (step 1 of §4.9) has already happened by the time Serve is called —
// the caller resolves the token via authgate before upgrading.
func (c *Core) Serve(ctx context.Context, conn *websocket.Conn, userID uuid.UUID) {
	guard, appErr := c.limiter.TryAdd(userID)
	if appErr != nil {
		conn.Close(websocket.StatusInternalError, appErr.Message)
		return
	}
	defer guard.Release()

	out := realtime.NewChannel()
	c.subs.AddConnection(userID, out)
	defer c.subs.RemoveConnection(userID, out)

	if err := c.bus.Subscribe(ctx, UserChannel(userID)); err != nil {
		c.logger.Warn("subscribing connection to user channel", slog.String("error", err.Error()))
	}

	c.subs.SetOnline(userID, models.PresenceInfo{Status: models.PresenceOnline})
	c.dispatcher.PresenceUpdate(userID, string(models.PresenceOnline), true)
	defer func() {
		c.subs.SetOffline(userID)
		c.dispatcher.PresenceUpdate(userID, string(models.PresenceOffline), false)
	}()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.outgoingPump(pumpCtx, conn, out)
	}()

	c.incomingPump(pumpCtx, conn, userID)
	cancel()
	<-done
}

// outgoingPump drains the connection's bounded queue and forwards every
// payload as a text frame, in strict FIFO order (§4.9's ordering
// guarantee). It also pings on an interval so idle connections are
// detected and torn down.
func (c *Core) outgoingPump(ctx context.Context, conn *websocket.Conn, out *realtime.Outgoing) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out.Recv():
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, []byte(msg))
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// incomingPump reads frames, decodes tagged ClientMessages, and applies
// their (non-persistent) effects: subscription changes, typing fan-out,
// presence updates, and ping/pong.
func (c *Core) incomingPump(ctx context.Context, conn *websocket.Conn, userID uuid.UUID) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, pongWait)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("discarding malformed client message", slog.String("error", err.Error()))
			continue
		}

		c.handleClientMessage(ctx, conn, userID, msg)
	}
}

func (c *Core) handleClientMessage(ctx context.Context, conn *websocket.Conn, userID uuid.UUID, msg ClientMessage) {
	switch msg.Type {
	case ClientMsgSubscribeChannel:
		if msg.ChannelID != nil {
			c.subs.SubscribeConversation(userID, *msg.ChannelID)
		}
	case ClientMsgUnsubscribeChannel:
		// Subscriptions are cleaned up wholesale on disconnect; an
		// explicit unsubscribe while connected is a no-op bookkeeping
		// simplification callers rarely rely on, matching the original's
		// per-connection (not per-channel) teardown granularity.
	case ClientMsgSubscribeUser:
		if msg.UserID != nil {
			c.subs.SubscribePresence(userID, *msg.UserID)
		}
	case ClientMsgTyping:
		if msg.ChannelID != nil {
			c.dispatcher.ToConversation(*msg.ChannelID, EventTypingStart, map[string]any{
				"channel_id": msg.ChannelID,
				"user_id":    userID,
			}, &userID)
		}
	case ClientMsgStopTyping:
		if msg.ChannelID != nil {
			c.dispatcher.ToConversation(*msg.ChannelID, EventTypingStop, map[string]any{
				"channel_id": msg.ChannelID,
				"user_id":    userID,
			}, &userID)
		}
	case ClientMsgUpdatePresence:
		if msg.Status != nil {
			status := models.PresenceStatus(*msg.Status)
			c.subs.SetOnline(userID, models.PresenceInfo{Status: status})
			online := status != models.PresenceInvisible && status != models.PresenceOffline
			c.dispatcher.PresenceUpdate(userID, *msg.Status, online)
		}
	case ClientMsgPing:
		payload, err := json.Marshal(map[string]any{"type": ServerMsgPong})
		if err != nil {
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
	}
}

// RunBusRouter is the single per-node task that drains Bus.Run's output
// and re-materializes it as local SubscriptionManager deliveries: a
// message on "user:<id>" is sent to that user's local connections, and a
// message on "conv:<id>" is broadcast to that conversation's local
// subscribers. This is what lets each node's EventDispatcher publish
// once and have every node — including ones with zero subscribers for
// that event — simply drop it locally.
func RunBusRouter(ctx context.Context, b *bus.Bus, subs *realtime.SubscriptionManager, logger *slog.Logger) error {
	outgoing := make(chan bus.Message, 256)
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx, outgoing) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case msg := <-outgoing:
			routeBusMessage(subs, msg, logger)
		}
	}
}

func routeBusMessage(subs *realtime.SubscriptionManager, msg bus.Message, logger *slog.Logger) {
	switch {
	case strings.HasPrefix(msg.Channel, "user:"):
		userID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, "user:"))
		if err != nil {
			logger.Warn("bus message on malformed user channel", slog.String("channel", msg.Channel))
			return
		}
		subs.SendToUser(userID, msg.Payload)
	case strings.HasPrefix(msg.Channel, "conv:"):
		convID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, "conv:"))
		if err != nil {
			logger.Warn("bus message on malformed conversation channel", slog.String("channel", msg.Channel))
			return
		}
		subs.BroadcastToConversation(convID, msg.Payload, nil)
	default:
		logger.Warn("bus message on unrecognized channel", slog.String("channel", msg.Channel))
	}
}
