package models

import "time"

// Kind classifies a fragment within a logical message.
type Kind string

const (
	KindToken  Kind = "token"
	KindFinal  Kind = "final"
	KindSystem Kind = "system"
)

// Role identifies which participant produced a message.
type Role string

const (
	RoleOffense Role = "offense"
	RoleDefense Role = "defense"
	RoleSystem  Role = "system"
)

// PreGameTurn marks system messages emitted before the first turn.
const PreGameTurn = -1

// Fragment is one unit of streamed text plus metadata. All fragments of a
// logical message share a MessageID; Chunk orders them within the message,
// Seq orders them within the match-wide write stream. ID is the insertion
// sequence assigned by the durable log and is the canonical backfill order.
type Fragment struct {
	ID        int64     `json:"id"`
	MatchID   string    `json:"match_id"`
	Agent     Role      `json:"agent"`
	MessageID string    `json:"message_id"`
	Turn      int       `json:"turn"`
	Chunk     int       `json:"chunk"`
	Seq       int       `json:"seq"`
	Kind      Kind      `json:"kind"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// IsTerminal reports whether this fragment seals its message.
func (f *Fragment) IsTerminal() bool {
	return f.Kind == KindFinal || f.Kind == KindSystem
}
