package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stockalert/stockalert/internal/database"
)

// DefaultRelayChannel is the Redis pub/sub channel used between instances
const DefaultRelayChannel = "stockalert:notifications"

const relayOutboxSize = 256

// envelope wraps a relayed notification with the instance that published it
type envelope struct {
	Origin       string                 `json:"origin"`
	Notification *database.Notification `json:"notification"`
}

// RedisRelay forwards notifications between service instances over Redis pub/sub.
// Each instance tags what it sends and ignores its own messages when they come back.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
	origin  string

	outbox    chan *database.Notification
	forwarded atomic.Int64
	received  atomic.Int64
	dropped   atomic.Int64
}

// NewRedisRelay creates a relay for hub; it does nothing until Run is called
func NewRedisRelay(client *redis.Client, hub *Hub, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		hub:     hub,
		channel: channel,
		origin:  uuid.New().String(),
		outbox:  make(chan *database.Notification, relayOutboxSize),
	}
}

// Origin returns this instance's relay identity
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Forward queues n for publication without blocking; a full queue drops it
func (r *RedisRelay) Forward(n *database.Notification) {
	select {
	case r.outbox <- n:
	default:
		r.dropped.Add(1)
		log.Printf("Warning: Relay: outbox full, notification %s not forwarded", n.ID)
	}
}

// Run subscribes to the relay channel and publishes queued notifications until ctx ends
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	log.Printf("Relay: subscribed to Redis channel %s (origin=%s)", r.channel, r.origin)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-r.outbox:
			if err := r.publish(ctx, n); err != nil {
				log.Printf("Warning: Relay: %v", err)
			}
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, n *database.Notification) error {
	payload, err := r.encode(n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}
	r.forwarded.Add(1)
	return nil
}

func (r *RedisRelay) encode(n *database.Notification) ([]byte, error) {
	payload, err := json.Marshal(envelope{Origin: r.origin, Notification: n})
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification %s: %w", n.ID, err)
	}
	return payload, nil
}

// handleMessage delivers a relayed notification locally unless this instance sent it
func (r *RedisRelay) handleMessage(payload string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("Warning: Relay: ignoring malformed message: %v", err)
		return false
	}
	if env.Origin == r.origin || env.Notification == nil {
		return false
	}
	r.received.Add(1)
	r.hub.Deliver(env.Notification)
	return true
}
