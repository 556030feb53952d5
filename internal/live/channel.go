// Package live provides the best-effort broadcast path for match output.
// Delivery is at-most-once: disconnected subscribers miss events, and the
// durable message log is the only source of record.
package live

import "context"

// Event names broadcast on a match topic.
const (
	EventAgentToken    = "agent-token"
	EventAgentFinal    = "agent-final"
	EventArenaComplete = "arena-complete"
)

// Event is one broadcast frame. agent-final carries only the message id;
// observers fetch the authoritative final text from the durable log so the
// two delivery paths cannot diverge on terminal state.
type Event struct {
	Type      string `json:"event"`
	MessageID string `json:"message_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Turn      int    `json:"turn"`
	Chunk     int    `json:"chunk"`
	Token     string `json:"token,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
}

// Channel is an ephemeral pub/sub topic scoped to one match.
type Channel interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns once the subscription is confirmed active. Callers
	// must not issue their backfill read before Subscribe returns, or events
	// delivered in the window between connect and read are lost.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one observer's attachment to a channel.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broker hands out per-match channels.
type Broker interface {
	Channel(matchID string) Channel
}
