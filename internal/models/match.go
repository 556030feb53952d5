package models

import "time"

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchRunning   MatchStatus = "running"
	MatchCompleted MatchStatus = "completed"
	// MatchError records a match abandoned by a generation fault. The match
	// loop cannot recover mid-turn, so the failure is made durable instead
	// of leaving the record running forever.
	MatchError MatchStatus = "error"
)

// Winner values for a completed match.
const (
	WinnerOffense = "offense"
	WinnerDefense = "defense"
	WinnerTie     = "tie"
)

// Match is one bounded game between an offense and a defense gladiator.
// TargetWord is immutable for the lifetime of the match and must never be
// disclosed to the defense participant.
type Match struct {
	MatchID      string      `json:"match_id"`
	Status       MatchStatus `json:"status"`
	TargetWord   string      `json:"target_word,omitempty"`
	Winner       string      `json:"winner,omitempty"`
	WinnerReason string      `json:"winner_reason,omitempty"`
	TotalTurns   int         `json:"total_turns"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CreatedBy    string      `json:"created_by,omitempty"`
	OffenseID    string      `json:"offense_id,omitempty"`
	DefenseID    string      `json:"defense_id,omitempty"`
}
