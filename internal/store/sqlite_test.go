package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rsproule/llm-gladiators/internal/models"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func insertFragment(t *testing.T, s *SQLiteStore, f models.Fragment) models.Fragment {
	t.Helper()
	if err := s.InsertFragment(context.Background(), &f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestInsertFragmentAssignsSequence(t *testing.T) {
	s := testStore(t)

	a := insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleOffense, MessageID: "msg1", Kind: models.KindToken, Token: "a"})
	b := insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleOffense, MessageID: "msg1", Chunk: 1, Kind: models.KindToken, Token: "b"})

	if a.ID == 0 || b.ID == 0 {
		t.Fatal("insertion sequence not assigned")
	}
	if b.ID <= a.ID {
		t.Fatalf("insertion sequence not monotone: %d then %d", a.ID, b.ID)
	}
}

func TestListFragmentsInsertionOrder(t *testing.T) {
	s := testStore(t)

	insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleSystem, MessageID: "sys", Turn: -1, Kind: models.KindSystem, Token: "queued"})
	insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleOffense, MessageID: "msg1", Kind: models.KindFinal, Token: "hello"})
	insertFragment(t, s, models.Fragment{MatchID: "other", Agent: models.RoleOffense, MessageID: "msgX", Kind: models.KindFinal, Token: "noise"})
	insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleDefense, MessageID: "msg2", Turn: 1, Kind: models.KindFinal, Token: "hi"})

	rows, err := s.ListFragments(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].ID <= rows[i-1].ID {
			t.Fatalf("rows not in insertion order: %d after %d", rows[i].ID, rows[i-1].ID)
		}
	}
	if rows[0].MessageID != "sys" || rows[2].MessageID != "msg2" {
		t.Fatalf("unexpected row order: %+v", rows)
	}
}

func TestGetFinalFragment(t *testing.T) {
	s := testStore(t)

	insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleOffense, MessageID: "msg1", Kind: models.KindToken, Token: "partial"})
	if _, err := s.GetFinalFragment(context.Background(), "msg1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before final, got %v", err)
	}

	insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleOffense, MessageID: "msg1", Chunk: 1, Kind: models.KindFinal, Token: "the whole text"})

	f, err := s.GetFinalFragment(context.Background(), "msg1")
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != models.KindFinal || f.Token != "the whole text" {
		t.Fatalf("unexpected final: %+v", f)
	}
	if f.Agent != models.RoleOffense {
		t.Fatalf("agent not preserved: %q", f.Agent)
	}
}

func TestGetFinalFragmentSystemKind(t *testing.T) {
	s := testStore(t)
	insertFragment(t, s, models.Fragment{MatchID: "m1", Agent: models.RoleSystem, MessageID: "sys", Kind: models.KindSystem, Token: "announcement"})

	f, err := s.GetFinalFragment(context.Background(), "sys")
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != models.KindSystem {
		t.Fatalf("expected system kind, got %q", f.Kind)
	}
}

func TestMatchLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := &models.Match{MatchID: "m1", TargetWord: "volcano", OffenseID: "g1", DefenseID: "g2"}
	if err := s.CreateMatch(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.MatchRunning {
		t.Fatalf("expected running, got %q", got.Status)
	}
	if got.TargetWord != "volcano" {
		t.Fatalf("target word not stored: %q", got.TargetWord)
	}
	if got.CompletedAt != nil {
		t.Fatal("completed_at set on running match")
	}

	if err := s.CompleteMatch(ctx, "m1", models.WinnerDefense, "guessed it", 6); err != nil {
		t.Fatal(err)
	}

	got, err = s.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.MatchCompleted || got.Winner != models.WinnerDefense || got.TotalTurns != 6 {
		t.Fatalf("completion not recorded: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

// Termination is once-only: a second outcome write must not land.
func TestCompleteMatchOnlyOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateMatch(ctx, &models.Match{MatchID: "m1", TargetWord: "anchor"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteMatch(ctx, "m1", models.WinnerOffense, "first", 2); err != nil {
		t.Fatal(err)
	}

	if err := s.CompleteMatch(ctx, "m1", models.WinnerDefense, "second", 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second completion accepted: %v", err)
	}
	if err := s.FailMatch(ctx, "m1", "late fault"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fail after completion accepted: %v", err)
	}

	got, err := s.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Winner != models.WinnerOffense || got.TotalTurns != 2 {
		t.Fatalf("outcome overwritten: %+v", got)
	}
}

func TestFailMatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateMatch(ctx, &models.Match{MatchID: "m1", TargetWord: "anchor"}); err != nil {
		t.Fatal(err)
	}
	if err := s.FailMatch(ctx, "m1", "generation failed on turn 3"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.MatchError {
		t.Fatalf("expected error status, got %q", got.Status)
	}
	if got.Winner != "" {
		t.Fatalf("failed match has a winner: %q", got.Winner)
	}
}

func TestGetMatchNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetMatch(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGladiatorRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	g, err := s.CreateGladiator(ctx, "Maximus", "You are relentless.", "gpt-4o", "openai", "sk-test")
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "Maximus" || g.APIKey != "sk-test" {
		t.Fatalf("unexpected gladiator: %+v", g)
	}

	got, err := s.GetGladiator(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SystemPrompt != "You are relentless." {
		t.Fatalf("prompt not stored: %q", got.SystemPrompt)
	}

	list, err := s.ListGladiators(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 gladiator, got %d", len(list))
	}
}
