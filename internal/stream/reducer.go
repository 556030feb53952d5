// Package stream reconstructs an ordered, deduplicated transcript from the
// two racing delivery paths: the durable log backfill and the live channel.
//
// The reducer is a pure function from (state, event) to state. Purity is
// what makes redelivery safe: at-least-once transports may hand the same
// event to the dispatch loop twice, and applying it twice must produce the
// same state as applying it once.
package stream

import (
	"strconv"
	"strings"

	"github.com/rsproule/llm-gladiators/internal/models"
)

// Status is the externally visible subscription state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusListening    Status = "listening"
	StatusDisconnected Status = "disconnected"
)

// Entry is one logical message in the transcript. Text accumulates, Done
// flips true exactly once, and OrderKey is never recomputed after first
// assignment.
type Entry struct {
	ID       string `json:"id"`
	Agent    string `json:"agent"`
	Text     string `json:"text"`
	Turn     int    `json:"turn"`
	Done     bool   `json:"done"`
	OrderKey int64  `json:"order"`
}

// State is the reducer state. Entries are ordered by OrderKey: backfill
// entries carry their log insertion sequence, entries first seen live are
// appended with the next session-monotonic key. The transcript is
// append/mutate-only: entries are never removed or reordered.
type State struct {
	Status    Status
	Entries   []Entry
	LastChunk map[string]int
	Processed map[string]struct{}
	Finalized map[string]struct{}

	// nextOrder seeds order keys for entries first seen on the live path.
	nextOrder int64
}

// NewState returns the initial reducer state.
func NewState() State {
	return State{
		Status:    StatusConnecting,
		LastChunk: map[string]int{},
		Processed: map[string]struct{}{},
		Finalized: map[string]struct{}{},
		nextOrder: 1,
	}
}

// Event is one reducer input.
type Event interface {
	isEvent()
}

// Connecting, Listening, and Disconnected are pure status transitions.
type (
	Connecting   struct{}
	Listening    struct{}
	Disconnected struct{}
)

// Backfill carries the one-time durable log read, rows in insertion order.
type Backfill struct {
	Rows []models.Fragment
}

// Token is one live token event.
type Token struct {
	MessageID string
	Agent     string
	Turn      int
	Chunk     int
	Token     string
}

// Final carries the authoritative final text for a message, fetched from
// the durable log by the dispatch loop (never trusted from the broadcast
// payload).
type Final struct {
	MessageID string
	Agent     string
	Turn      int
	Text      string
}

func (Connecting) isEvent()   {}
func (Listening) isEvent()    {}
func (Disconnected) isEvent() {}
func (Backfill) isEvent()     {}
func (Token) isEvent()        {}
func (Final) isEvent()        {}

// Apply produces the state after one event. The input state is never
// mutated; maps and the entry slice are copied on write.
func Apply(s State, ev Event) State {
	switch ev := ev.(type) {
	case Connecting:
		s.Status = StatusConnecting
		return s
	case Listening:
		s.Status = StatusListening
		return s
	case Disconnected:
		s.Status = StatusDisconnected
		return s
	case Backfill:
		return applyBackfill(s, ev)
	case Token:
		return applyToken(s, ev)
	case Final:
		return applyFinal(s, ev)
	default:
		return s
	}
}

func chunkKey(messageID string, chunk int) string {
	return messageID + ":" + strconv.Itoa(chunk)
}

// applyBackfill replaces the entry set with the grouped view of the durable
// log, preserving finalized flags accumulated from live events. Dedup and
// chunk-tracking state is kept so live events redelivered after the
// backfill stay rejected.
func applyBackfill(s State, ev Backfill) State {
	entries := make([]Entry, 0, len(ev.Rows))
	index := map[string]int{}
	finalized := copySet(s.Finalized)
	lastChunk := copyChunks(s.LastChunk)
	processed := copySet(s.Processed)

	for _, row := range ev.Rows {
		i, ok := index[row.MessageID]
		if !ok {
			// An entry first seen live keeps its original order key;
			// fresh entries derive theirs from the log insertion order.
			orderKey := row.ID
			if j := findEntry(s.Entries, row.MessageID); j != -1 {
				orderKey = s.Entries[j].OrderKey
			}
			entries = append(entries, Entry{
				ID:       row.MessageID,
				Agent:    string(row.Agent),
				Turn:     row.Turn,
				OrderKey: orderKey,
			})
			i = len(entries) - 1
			index[row.MessageID] = i
		}

		// Seed dedup state so live redelivery of chunks already in the
		// log is rejected rather than re-applied.
		processed[chunkKey(row.MessageID, row.Chunk)] = struct{}{}
		if last, ok := lastChunk[row.MessageID]; !ok || row.Chunk > last {
			lastChunk[row.MessageID] = row.Chunk
		}

		switch row.Kind {
		case models.KindFinal, models.KindSystem:
			// Finals are authoritative: overwrite whatever tokens
			// assembled.
			entries[i].Text = row.Token
			entries[i].Done = true
			finalized[row.MessageID] = struct{}{}
		default:
			if !entries[i].Done {
				entries[i].Text += appendDelta(entries[i].Text, row.Token)
			}
		}
	}

	// Carry over entries known only from live events that raced the
	// backfill query; a full replace must not clobber them.
	for _, e := range s.Entries {
		if _, ok := index[e.ID]; !ok {
			entries = append(entries, e)
		}
	}

	next := s.nextOrder
	for _, e := range entries {
		if e.OrderKey >= next {
			next = e.OrderKey + 1
		}
	}

	s.Entries = entries
	s.Finalized = finalized
	s.LastChunk = lastChunk
	s.Processed = processed
	s.nextOrder = next
	return s
}

// applyToken applies one live token. Rejected without effect when the
// (message, chunk) pair was already processed, the message is finalized, or
// the chunk is not strictly greater than the last chunk seen for the
// message.
func applyToken(s State, ev Token) State {
	key := chunkKey(ev.MessageID, ev.Chunk)
	if _, ok := s.Processed[key]; ok {
		return s
	}
	if _, ok := s.Finalized[ev.MessageID]; ok {
		return s
	}
	last, seen := s.LastChunk[ev.MessageID]
	if seen && ev.Chunk <= last {
		return s
	}

	entries := copyEntries(s.Entries)
	i := findEntry(entries, ev.MessageID)
	if i == -1 {
		// New messages always append: live arrival order approximates
		// causal order for unseen messages.
		entries = append(entries, Entry{
			ID:       ev.MessageID,
			Agent:    ev.Agent,
			Turn:     ev.Turn,
			OrderKey: s.nextOrder,
		})
		i = len(entries) - 1
		s.nextOrder++
	}
	if entries[i].Done {
		return s
	}

	entries[i].Text += appendDelta(entries[i].Text, ev.Token)

	s.Entries = entries
	s.LastChunk = copyChunks(s.LastChunk)
	s.LastChunk[ev.MessageID] = ev.Chunk
	s.Processed = copySet(s.Processed)
	s.Processed[key] = struct{}{}
	return s
}

// applyFinal seals a message with its authoritative text. Works whether or
// not the entry exists yet; an existing entry keeps its order key.
func applyFinal(s State, ev Final) State {
	entries := copyEntries(s.Entries)
	i := findEntry(entries, ev.MessageID)
	if i == -1 {
		entries = append(entries, Entry{
			ID:       ev.MessageID,
			OrderKey: s.nextOrder,
		})
		i = len(entries) - 1
		s.nextOrder++
	}

	entries[i].Agent = ev.Agent
	entries[i].Turn = ev.Turn
	entries[i].Text = ev.Text
	entries[i].Done = true

	s.Entries = entries
	s.Finalized = copySet(s.Finalized)
	s.Finalized[ev.MessageID] = struct{}{}
	return s
}

// appendDelta computes the suffix to append for an incoming frame. Some
// providers emit cumulative full-text frames instead of incremental deltas:
// if the frame extends the current text, only the new suffix is appended;
// if the current text already contains the frame (stale replay), nothing
// is appended.
func appendDelta(existing, frame string) string {
	if frame == "" {
		return ""
	}
	if strings.HasPrefix(frame, existing) {
		return frame[len(existing):]
	}
	if strings.HasPrefix(existing, frame) {
		return ""
	}
	return frame
}

func findEntry(entries []Entry, messageID string) int {
	for i := range entries {
		if entries[i].ID == messageID {
			return i
		}
	}
	return -1
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}

func copyChunks(chunks map[string]int) map[string]int {
	out := make(map[string]int, len(chunks))
	for k, v := range chunks {
		out[k] = v
	}
	return out
}
