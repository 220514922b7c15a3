package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// relayBuffer bounds the events waiting for a Redis PUBLISH.
const relayBuffer = 256

// RedisBridge relays events between service instances over a Redis pub/sub
// channel. Locally published events are forwarded; events from other
// instances are delivered to the local bus.
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	bus     *Bus
	logger  *zap.Logger
	sub     *Subscription
	outbox  chan Event
}

// NewRedisBridge wires the bus to channel.
func NewRedisBridge(client redis.UniversalClient, channel string, bus *Bus, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		bus:     bus,
		logger:  logger.With(zap.String("component", "redis_bridge")),
		outbox:  make(chan Event, relayBuffer),
	}
}

// Start subscribes to the bus and to the Redis channel. It returns once the
// Redis subscription is confirmed; relaying stops when ctx is cancelled.
func (r *RedisBridge) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.sub = r.bus.SubscribeAll(r.forward)
	go r.drain(ctx)
	go r.consume(ctx, pubsub)

	r.logger.Info("relaying events", zap.String("channel", r.channel), zap.String("origin", r.bus.Origin()))
	return nil
}

// forward queues a local event for relay. It runs on the publish path with
// the bus lock held, so it never waits on Redis; when the outbox is full the
// event is dropped and other instances catch up through their own resync.
func (r *RedisBridge) forward(_ context.Context, event Event) error {
	if event.Origin != r.bus.Origin() {
		return nil
	}
	select {
	case r.outbox <- event:
	default:
		r.logger.Warn("relay outbox full, dropping event",
			zap.String("type", string(event.Type)), zap.Uint64("seq", event.Seq))
	}
	return nil
}

func (r *RedisBridge) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.outbox:
			r.publish(ctx, event)
		}
	}
}

func (r *RedisBridge) publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("relay encode failed", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("relay publish failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (r *RedisBridge) consume(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	if r.sub != nil {
		defer r.sub.Unsubscribe()
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(ctx, msg.Payload)
		}
	}
}

func (r *RedisBridge) handleMessage(ctx context.Context, payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.logger.Warn("dropping undecodable relay message", zap.Error(err))
		return
	}
	if event.Origin == r.bus.Origin() {
		return
	}
	r.bus.Deliver(ctx, event)
}
