package stream

import (
	"testing"

	"github.com/rsproule/llm-gladiators/internal/models"
)

func applyAll(s State, events ...Event) State {
	for _, ev := range events {
		s = Apply(s, ev)
	}
	return s
}

func entryByID(t *testing.T, s State, id string) Entry {
	t.Helper()
	i := findEntry(s.Entries, id)
	if i == -1 {
		t.Fatalf("entry %q not found", id)
	}
	return s.Entries[i]
}

func TestReducerStatusTransitions(t *testing.T) {
	s := NewState()
	if s.Status != StatusConnecting {
		t.Fatalf("initial status %q", s.Status)
	}
	s = Apply(s, Listening{})
	if s.Status != StatusListening {
		t.Fatalf("expected listening, got %q", s.Status)
	}
	s = Apply(s, Disconnected{})
	if s.Status != StatusDisconnected {
		t.Fatalf("expected disconnected, got %q", s.Status)
	}
}

func TestReducerTokenAccumulation(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "m1", Agent: "offense", Turn: 0, Chunk: 0, Token: "Hello "},
		Token{MessageID: "m1", Agent: "offense", Turn: 0, Chunk: 1, Token: "world"},
	)

	e := entryByID(t, s, "m1")
	if e.Text != "Hello world" {
		t.Fatalf("expected accumulated text, got %q", e.Text)
	}
	if e.Done {
		t.Fatal("entry done before final")
	}
}

// Redelivering the same chunk must be a no-op: the reducer is the dedup
// point for at-least-once transports.
func TestReducerDuplicateChunkRejected(t *testing.T) {
	tok := Token{MessageID: "m1", Agent: "offense", Chunk: 0, Token: "once"}
	s := applyAll(NewState(), tok, tok, tok)

	e := entryByID(t, s, "m1")
	if e.Text != "once" {
		t.Fatalf("duplicate chunk applied: %q", e.Text)
	}
}

func TestReducerOutOfOrderChunkRejected(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "m1", Chunk: 5, Token: "later"},
		Token{MessageID: "m1", Chunk: 3, Token: "earlier"},
	)

	e := entryByID(t, s, "m1")
	if e.Text != "later" {
		t.Fatalf("stale chunk applied: %q", e.Text)
	}
}

func TestReducerTokenAfterFinalRejected(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "m1", Chunk: 0, Token: "partial"},
		Final{MessageID: "m1", Agent: "offense", Text: "the whole thing"},
		Token{MessageID: "m1", Chunk: 1, Token: " straggler"},
	)

	e := entryByID(t, s, "m1")
	if e.Text != "the whole thing" {
		t.Fatalf("token applied after final: %q", e.Text)
	}
	if !e.Done {
		t.Fatal("entry not done after final")
	}
}

func TestReducerFinalOverwritesTokens(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "m1", Chunk: 0, Token: "strea"},
		Token{MessageID: "m1", Chunk: 1, Token: "ming"},
		Final{MessageID: "m1", Agent: "defense", Turn: 1, Text: "streaming, corrected"},
	)

	e := entryByID(t, s, "m1")
	if e.Text != "streaming, corrected" {
		t.Fatalf("final did not overwrite: %q", e.Text)
	}
	if e.Agent != "defense" || e.Turn != 1 {
		t.Fatalf("final metadata not applied: %+v", e)
	}
}

func TestReducerFinalForUnseenMessage(t *testing.T) {
	s := Apply(NewState(), Final{MessageID: "m9", Agent: "offense", Text: "complete"})

	e := entryByID(t, s, "m9")
	if !e.Done || e.Text != "complete" {
		t.Fatalf("final for unseen message mishandled: %+v", e)
	}
}

// Cumulative full-text frames extend rather than duplicate.
func TestReducerCumulativeFrames(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "m1", Chunk: 0, Token: "The qui"},
		Token{MessageID: "m1", Chunk: 1, Token: "The quick brown"},
		Token{MessageID: "m1", Chunk: 2, Token: "The quick brown fox"},
	)

	e := entryByID(t, s, "m1")
	if e.Text != "The quick brown fox" {
		t.Fatalf("cumulative frames duplicated text: %q", e.Text)
	}
}

func TestReducerMixedDeltaFrames(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "m1", Chunk: 0, Token: "abc"},
		Token{MessageID: "m1", Chunk: 1, Token: "def"},
	)
	if e := entryByID(t, s, "m1"); e.Text != "abcdef" {
		t.Fatalf("delta frames mishandled: %q", e.Text)
	}
}

func TestReducerBackfillGroupsByMessage(t *testing.T) {
	rows := []models.Fragment{
		{ID: 1, MessageID: "sys1", Agent: models.RoleSystem, Turn: -1, Chunk: 0, Kind: models.KindSystem, Token: "Match queued"},
		{ID: 2, MessageID: "m1", Agent: models.RoleOffense, Turn: 0, Chunk: 0, Kind: models.KindToken, Token: "Hel"},
		{ID: 3, MessageID: "m1", Agent: models.RoleOffense, Turn: 0, Chunk: 1, Kind: models.KindToken, Token: "lo"},
		{ID: 4, MessageID: "m1", Agent: models.RoleOffense, Turn: 0, Chunk: 2, Kind: models.KindFinal, Token: "Hello"},
		{ID: 5, MessageID: "m2", Agent: models.RoleDefense, Turn: 1, Chunk: 0, Kind: models.KindToken, Token: "Hi"},
	}
	s := Apply(NewState(), Backfill{Rows: rows})

	if len(s.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(s.Entries))
	}
	if sys := entryByID(t, s, "sys1"); !sys.Done || sys.Text != "Match queued" {
		t.Fatalf("system entry mishandled: %+v", sys)
	}
	m1 := entryByID(t, s, "m1")
	if !m1.Done || m1.Text != "Hello" {
		t.Fatalf("finalized entry mishandled: %+v", m1)
	}
	m2 := entryByID(t, s, "m2")
	if m2.Done || m2.Text != "Hi" {
		t.Fatalf("in-flight entry mishandled: %+v", m2)
	}

	// Order keys follow log insertion order.
	if !(s.Entries[0].OrderKey < s.Entries[1].OrderKey && s.Entries[1].OrderKey < s.Entries[2].OrderKey) {
		t.Fatalf("backfill order keys not monotone: %+v", s.Entries)
	}
}

// Live chunks already present in the backfill rows must be rejected when
// the transport redelivers them after the backfill lands.
func TestReducerBackfillSeedsDedup(t *testing.T) {
	rows := []models.Fragment{
		{ID: 1, MessageID: "m1", Agent: models.RoleOffense, Chunk: 0, Kind: models.KindToken, Token: "dup"},
	}
	s := applyAll(NewState(),
		Backfill{Rows: rows},
		Token{MessageID: "m1", Chunk: 0, Token: "dup"},
	)

	if e := entryByID(t, s, "m1"); e.Text != "dup" {
		t.Fatalf("backfilled chunk re-applied: %q", e.Text)
	}
}

// Entries first seen live survive a later backfill that does not contain
// them, and keep their original order keys when it does.
func TestReducerBackfillPreservesLiveEntries(t *testing.T) {
	s := applyAll(NewState(),
		Token{MessageID: "live-only", Agent: "offense", Chunk: 0, Token: "racing"},
		Token{MessageID: "m1", Agent: "offense", Chunk: 0, Token: "ignored"},
	)
	liveKey := entryByID(t, s, "m1").OrderKey

	rows := []models.Fragment{
		{ID: 100, MessageID: "m1", Agent: models.RoleOffense, Chunk: 0, Kind: models.KindToken, Token: "ignored"},
	}
	s = Apply(s, Backfill{Rows: rows})

	if e := entryByID(t, s, "live-only"); e.Text != "racing" {
		t.Fatalf("backfill clobbered live-only entry: %+v", e)
	}
	if e := entryByID(t, s, "m1"); e.OrderKey != liveKey {
		t.Fatalf("order key recomputed on backfill: %d != %d", e.OrderKey, liveKey)
	}
}

// Order keys are immutable once assigned and new live entries always sort
// after existing ones.
func TestReducerOrderKeyStability(t *testing.T) {
	rows := []models.Fragment{
		{ID: 7, MessageID: "m1", Agent: models.RoleOffense, Chunk: 0, Kind: models.KindFinal, Token: "first"},
		{ID: 9, MessageID: "m2", Agent: models.RoleDefense, Chunk: 0, Kind: models.KindFinal, Token: "second"},
	}
	s := Apply(NewState(), Backfill{Rows: rows})
	k1 := entryByID(t, s, "m1").OrderKey
	k2 := entryByID(t, s, "m2").OrderKey

	s = Apply(s, Token{MessageID: "m3", Agent: "offense", Chunk: 0, Token: "third"})
	k3 := entryByID(t, s, "m3").OrderKey

	if !(k1 < k2 && k2 < k3) {
		t.Fatalf("order keys not monotone: %d, %d, %d", k1, k2, k3)
	}

	// Applying more events never changes assigned keys.
	s = Apply(s, Final{MessageID: "m3", Agent: "offense", Text: "third, sealed"})
	if got := entryByID(t, s, "m3").OrderKey; got != k3 {
		t.Fatalf("order key changed on final: %d != %d", got, k3)
	}
}

// Purity: applying an event must not mutate the input state.
func TestReducerDoesNotMutateInput(t *testing.T) {
	base := applyAll(NewState(),
		Token{MessageID: "m1", Chunk: 0, Token: "orig"},
	)
	snapshotText := base.Entries[0].Text

	_ = Apply(base, Token{MessageID: "m1", Chunk: 1, Token: "inal"})
	_ = Apply(base, Final{MessageID: "m1", Text: "replaced"})

	if base.Entries[0].Text != snapshotText {
		t.Fatalf("input state mutated: %q", base.Entries[0].Text)
	}
	if _, ok := base.Finalized["m1"]; ok {
		t.Fatal("input finalized set mutated")
	}
	if base.LastChunk["m1"] != 0 {
		t.Fatalf("input chunk map mutated: %d", base.LastChunk["m1"])
	}
}

// Same event twice produces the same state as once.
func TestReducerIdempotentRedelivery(t *testing.T) {
	events := []Event{
		Token{MessageID: "m1", Agent: "offense", Chunk: 0, Token: "a"},
		Token{MessageID: "m1", Agent: "offense", Chunk: 1, Token: "b"},
		Final{MessageID: "m1", Agent: "offense", Text: "ab"},
	}

	once := applyAll(NewState(), events...)

	twice := NewState()
	for _, ev := range events {
		twice = Apply(twice, ev)
		twice = Apply(twice, ev)
	}

	if len(once.Entries) != len(twice.Entries) {
		t.Fatalf("entry counts differ: %d vs %d", len(once.Entries), len(twice.Entries))
	}
	for i := range once.Entries {
		if once.Entries[i] != twice.Entries[i] {
			t.Fatalf("entries differ at %d: %+v vs %+v", i, once.Entries[i], twice.Entries[i])
		}
	}
}

// The same fragment history delivered via backfill only, live only, or an
// interleaving of both must converge to the same transcript.
func TestReducerDeliveryPathEquivalence(t *testing.T) {
	rows := []models.Fragment{
		{ID: 1, MessageID: "m1", Agent: models.RoleOffense, Turn: 0, Chunk: 0, Kind: models.KindToken, Token: "Hel"},
		{ID: 2, MessageID: "m1", Agent: models.RoleOffense, Turn: 0, Chunk: 1, Kind: models.KindToken, Token: "lo"},
		{ID: 3, MessageID: "m1", Agent: models.RoleOffense, Turn: 0, Chunk: 2, Kind: models.KindFinal, Token: "Hello"},
		{ID: 4, MessageID: "m2", Agent: models.RoleDefense, Turn: 1, Chunk: 0, Kind: models.KindToken, Token: "Hi "},
		{ID: 5, MessageID: "m2", Agent: models.RoleDefense, Turn: 1, Chunk: 1, Kind: models.KindToken, Token: "there"},
		{ID: 6, MessageID: "m2", Agent: models.RoleDefense, Turn: 1, Chunk: 2, Kind: models.KindFinal, Token: "Hi there"},
	}
	liveEvents := func(rows []models.Fragment) []Event {
		var evs []Event
		for _, row := range rows {
			if row.Kind == models.KindFinal {
				evs = append(evs, Final{MessageID: row.MessageID, Agent: string(row.Agent), Turn: row.Turn, Text: row.Token})
			} else {
				evs = append(evs, Token{MessageID: row.MessageID, Agent: string(row.Agent), Turn: row.Turn, Chunk: row.Chunk, Token: row.Token})
			}
		}
		return evs
	}

	backfillOnly := Apply(NewState(), Backfill{Rows: rows})
	liveOnly := applyAll(NewState(), liveEvents(rows)...)
	interleaved := applyAll(NewState(), liveEvents(rows[:2])...)
	interleaved = Apply(interleaved, Backfill{Rows: rows[:4]})
	interleaved = applyAll(interleaved, liveEvents(rows[1:])...)

	check := func(name string, s State) {
		t.Helper()
		if len(s.Entries) != 2 {
			t.Fatalf("%s: expected 2 entries, got %d", name, len(s.Entries))
		}
		if s.Entries[0].ID != "m1" || s.Entries[1].ID != "m2" {
			t.Fatalf("%s: wrong relative order: %+v", name, s.Entries)
		}
		if s.Entries[0].Text != "Hello" || !s.Entries[0].Done {
			t.Fatalf("%s: m1 wrong: %+v", name, s.Entries[0])
		}
		if s.Entries[1].Text != "Hi there" || !s.Entries[1].Done {
			t.Fatalf("%s: m2 wrong: %+v", name, s.Entries[1])
		}
	}
	check("backfill-only", backfillOnly)
	check("live-only", liveOnly)
	check("interleaved", interleaved)
}

func TestAppendDelta(t *testing.T) {
	cases := []struct {
		existing, frame, want string
	}{
		{"", "abc", "abc"},
		{"abc", "def", "def"},
		{"abc", "abcdef", "def"},
		{"abcdef", "abc", ""},
		{"abc", "", ""},
	}
	for _, c := range cases {
		if got := appendDelta(c.existing, c.frame); got != c.want {
			t.Fatalf("appendDelta(%q, %q) = %q, want %q", c.existing, c.frame, got, c.want)
		}
	}
}
