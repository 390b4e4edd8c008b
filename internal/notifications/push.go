// Package notifications implements best-effort Web Push delivery (§1 Domain
// Stack): when EventDispatcher fans a new_message event out to a user with
// zero live WebSocket connections, the community/central handler calls this
// package to wake a registered browser/device. The push payload is the
// opaque ciphertext envelope plus routing metadata only, matching the
// server's zero-plaintext-knowledge non-goal — this package never sees a
// decrypted message.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/confide-gg/confide/internal/store"
)

// Pusher sends Web Push notifications to every subscription registered for
// a recipient, logging (never failing the caller on) individual delivery
// errors — a dead push subscription must never block message delivery over
// the live WebSocket path.
type Pusher struct {
	vapidPublicKey  string
	vapidPrivateKey string
	subject         string
	logger          *slog.Logger
}

func New(vapidPublicKey, vapidPrivateKey, subject string, logger *slog.Logger) *Pusher {
	return &Pusher{vapidPublicKey: vapidPublicKey, vapidPrivateKey: vapidPrivateKey, subject: subject, logger: logger}
}

// Payload is the opaque routing envelope pushed to a sleeping client; it
// never contains plaintext message content, only enough for the client to
// know it should reconnect and fetch.
type Payload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// NotifyNewMessage pushes to every subscription userID has registered.
// Errors are logged and otherwise swallowed; push delivery is advisory.
func (p *Pusher) NotifyNewMessage(ctx context.Context, subs []store.PushSubscription, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("encoding push payload", slog.String("error", err.Error()))
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotification(body, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      p.subject,
			VAPIDPublicKey:  p.vapidPublicKey,
			VAPIDPrivateKey: p.vapidPrivateKey,
			TTL:             60,
		})
		if err != nil {
			p.logger.Warn("push delivery failed", slog.String("endpoint", sub.Endpoint), slog.String("error", err.Error()))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			p.logger.Warn("push endpoint rejected notification",
				slog.String("endpoint", sub.Endpoint), slog.Int("status", resp.StatusCode))
		}
	}
}
