package live

import (
	"context"
	"sync"
)

// MemoryBroker implements Broker in process memory. It backs tests and
// single-process deployments without Redis. Delivery matches the transport
// contract: at-most-once, slow subscribers drop events.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]*memoryChannel
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]*memoryChannel)}
}

// Channel returns the in-process channel for a match.
func (b *MemoryBroker) Channel(matchID string) Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic := matchTopic(matchID)
	if ch, ok := b.topics[topic]; ok {
		return ch
	}
	ch := &memoryChannel{}
	b.topics[topic] = ch
	return ch
}

type memoryChannel struct {
	mu   sync.Mutex
	subs []*memorySubscription
}

func (c *memoryChannel) Publish(_ context.Context, ev Event) error {
	c.mu.Lock()
	subs := make([]*memorySubscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.events <- ev:
		default:
			// best-effort: drop for slow subscribers
		}
	}
	return nil
}

func (c *memoryChannel) Subscribe(_ context.Context) (Subscription, error) {
	sub := &memorySubscription{
		channel: c,
		events:  make(chan Event, subscriptionBuffer),
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	channel *memoryChannel
	events  chan Event
	once    sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		c := s.channel
		c.mu.Lock()
		for i, sub := range c.subs {
			if sub == s {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		close(s.events)
	})
	return nil
}
