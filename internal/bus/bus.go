// Package bus implements the cross-node publish/subscribe substrate (§4.1).
// It carries opaque UTF-8 payloads on string channel names between every
// node of a Central or community-server deployment, using NATS as the
// underlying transport the way the teacher's internal/events package wires
// up a NATS connection, but with the dynamic subscribe/run-loop shape of the
// original Rust implementation's Redis-backed pubsub (apps/central/src/ws/pubsub.rs)
// rather than fixed, compile-time subjects.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// subscribeRequestCapacity matches the original implementation's bounded
// request queue: a node with bursty new-subscription traffic backs off
// rather than growing unbounded.
const subscribeRequestCapacity = 32

// pollTimeout is how long the run loop waits for upstream traffic before
// looping back to check for new subscription requests.
const pollTimeout = 100 * time.Millisecond

// Message is one payload delivered to the outgoing queue passed to Run.
type Message struct {
	Channel string
	Payload string
}

type subscribeRequest struct {
	channel string
	done    chan error
}

// Bus is a single node's handle onto the pub/sub substrate. Subscribe and
// Publish are safe for concurrent use; Run must be driven by exactly one
// goroutine per Bus, matching §4.1's "single dedicated task per node".
type Bus struct {
	conn    *nats.Conn
	logger  *slog.Logger
	reqs    chan subscribeRequest
	mailbox chan Message
}

// New connects to the NATS server at the given URL.
func New(url string, logger *slog.Logger) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("confide-bus"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("bus disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("bus reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus at %s: %w", url, err)
	}

	return &Bus{
		conn:    nc,
		logger:  logger,
		reqs:    make(chan subscribeRequest, subscribeRequestCapacity),
		mailbox: make(chan Message, 1024),
	}, nil
}

// Subscribe dynamically subscribes this node to channel. It is safe to call
// concurrently with Run; the request is queued (capacity 32) and applied by
// the run loop. Blocks until the run loop has applied the request or ctx is
// done.
func (b *Bus) Subscribe(ctx context.Context, channel string) error {
	req := subscribeRequest{channel: channel, done: make(chan error, 1)}
	select {
	case b.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends payload (opaque UTF-8) to every subscriber of channel,
// across every node. Best-effort: publish failures are logged and do not
// propagate to the caller, matching §4.14 ("Bus publish failures: logged; in-process
// SubscriptionManager delivery still happens").
func (b *Bus) Publish(channel, payload string) {
	if err := b.conn.Publish(channel, []byte(payload)); err != nil {
		b.logger.Warn("bus publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

// Run is the long-lived task that drains subscription requests and forwards
// every delivered payload into outgoing until ctx is cancelled or the
// upstream connection closes (per §4.1, any upstream close terminates the
// task; the owner must restart it).
func (b *Bus) Run(ctx context.Context, outgoing chan<- Message) error {
	subs := make(map[string]*nats.Subscription)
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	for {
		// Drain any pending subscription requests first so a node with no
		// inbound traffic still accepts new subscriptions promptly.
		drained := true
		for drained {
			select {
			case req := <-b.reqs:
				b.applySubscribe(subs, req)
			default:
				drained = false
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.mailbox:
			if !ok {
				return fmt.Errorf("bus mailbox closed")
			}
			select {
			case outgoing <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-time.After(pollTimeout):
			if b.conn.IsClosed() {
				return fmt.Errorf("bus connection closed")
			}
		}
	}
}

func (b *Bus) applySubscribe(subs map[string]*nats.Subscription, req subscribeRequest) {
	if _, ok := subs[req.channel]; ok {
		req.done <- nil
		return
	}
	channel := req.channel
	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		select {
		case b.mailbox <- Message{Channel: channel, Payload: string(msg.Data)}:
		default:
			b.logger.Warn("bus mailbox full, dropping message", slog.String("channel", channel))
		}
	})
	if err != nil {
		req.done <- err
		return
	}
	subs[channel] = sub
	req.done <- nil
}

// Close closes the underlying connection without draining pending messages.
func (b *Bus) Close() {
	b.conn.Close()
}
