package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 256

// RedisBroker implements Broker on Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a broker from a Redis URL.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroker{client: client}, nil
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Client exposes the underlying redis client for components that share
// the connection, such as the rate limiter.
func (b *RedisBroker) Client() *redis.Client {
	return b.client
}

// matchTopic returns the pub/sub topic for a match.
func matchTopic(matchID string) string {
	return fmt.Sprintf("match:%s", matchID)
}

// Channel returns the pub/sub channel for a match.
func (b *RedisBroker) Channel(matchID string) Channel {
	return &redisChannel{client: b.client, topic: matchTopic(matchID)}
}

type redisChannel struct {
	client *redis.Client
	topic  string
}

func (c *redisChannel) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.topic, data).Err()
}

func (c *redisChannel) Subscribe(ctx context.Context) (Subscription, error) {
	pubsub := c.client.Subscribe(ctx, c.topic)

	// Receive blocks until the server acknowledges the SUBSCRIBE, so a
	// successful return confirms the subscription is active.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, subscriptionBuffer),
	}
	go sub.pump(ctx)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.events)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
