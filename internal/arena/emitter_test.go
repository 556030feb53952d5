package arena

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/models"
)

// logWriter records inserted fragments in order.
type logWriter struct {
	mu        sync.Mutex
	fragments []models.Fragment
	failNext  bool
}

func (w *logWriter) InsertFragment(_ context.Context, f *models.Fragment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext {
		w.failNext = false
		return errors.New("insert failed")
	}
	f.ID = int64(len(w.fragments) + 1)
	w.fragments = append(w.fragments, *f)
	return nil
}

// captureChannel records published events; Publish can be made to fail.
type captureChannel struct {
	mu     sync.Mutex
	events []live.Event
	err    error
}

func (c *captureChannel) Publish(_ context.Context, ev live.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *captureChannel) Subscribe(_ context.Context) (live.Subscription, error) {
	return nil, errors.New("not a subscribable channel")
}

func TestEmitterTokenBroadcastOnly(t *testing.T) {
	log := &logWriter{}
	ch := &captureChannel{}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{
		Turn:            3,
		Channel:         ch,
		BroadcastTokens: true,
	})

	if err := em.Token(context.Background(), "hello "); err != nil {
		t.Fatal(err)
	}
	if err := em.Token(context.Background(), "world"); err != nil {
		t.Fatal(err)
	}

	if len(log.fragments) != 0 {
		t.Fatalf("tokens persisted without PersistTokens: %d", len(log.fragments))
	}
	if len(ch.events) != 2 {
		t.Fatalf("expected 2 broadcast events, got %d", len(ch.events))
	}
	if ch.events[0].Chunk != 0 || ch.events[1].Chunk != 1 {
		t.Fatalf("chunk numbers not sequential: %d, %d", ch.events[0].Chunk, ch.events[1].Chunk)
	}
	if ch.events[0].Type != live.EventAgentToken {
		t.Fatalf("expected agent-token event, got %q", ch.events[0].Type)
	}
	if ch.events[1].Turn != 3 {
		t.Fatalf("expected turn 3, got %d", ch.events[1].Turn)
	}
}

func TestEmitterFinalIdempotent(t *testing.T) {
	log := &logWriter{}
	ch := &captureChannel{}
	em := NewEmitter(log, "m1", models.RoleDefense, EmitterOptions{Channel: ch})

	if err := em.Final(context.Background(), "the full text"); err != nil {
		t.Fatal(err)
	}
	if err := em.Final(context.Background(), "a different text"); err != nil {
		t.Fatal(err)
	}

	if len(log.fragments) != 1 {
		t.Fatalf("expected exactly 1 final fragment, got %d", len(log.fragments))
	}
	if log.fragments[0].Kind != models.KindFinal {
		t.Fatalf("expected final kind, got %q", log.fragments[0].Kind)
	}
	if log.fragments[0].Token != "the full text" {
		t.Fatalf("second final overwrote the first: %q", log.fragments[0].Token)
	}
	if len(ch.events) != 1 {
		t.Fatalf("expected exactly 1 final event, got %d", len(ch.events))
	}
}

// The final broadcast must not carry text: observers fetch it from the log.
func TestEmitterFinalEventCarriesOnlyID(t *testing.T) {
	log := &logWriter{}
	ch := &captureChannel{}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{Channel: ch})

	if err := em.Final(context.Background(), "secret payload"); err != nil {
		t.Fatal(err)
	}

	ev := ch.events[0]
	if ev.Type != live.EventAgentFinal {
		t.Fatalf("expected agent-final, got %q", ev.Type)
	}
	if ev.MessageID != em.ID() {
		t.Fatalf("expected message id %q, got %q", em.ID(), ev.MessageID)
	}
	if ev.Token != "" {
		t.Fatalf("final event leaked text: %q", ev.Token)
	}
}

func TestEmitterTokenAfterFinalNoOp(t *testing.T) {
	log := &logWriter{}
	ch := &captureChannel{}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{
		Channel:         ch,
		PersistTokens:   true,
		BroadcastTokens: true,
	})

	if err := em.Final(context.Background(), "done"); err != nil {
		t.Fatal(err)
	}
	if err := em.Token(context.Background(), "straggler"); err != nil {
		t.Fatal(err)
	}

	if len(log.fragments) != 1 {
		t.Fatalf("token after final was persisted: %d fragments", len(log.fragments))
	}
	if len(ch.events) != 1 {
		t.Fatalf("token after final was broadcast: %d events", len(ch.events))
	}
}

func TestEmitterPersistTokens(t *testing.T) {
	log := &logWriter{}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{PersistTokens: true})

	if err := em.Token(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := em.Final(context.Background(), "ab"); err != nil {
		t.Fatal(err)
	}

	if len(log.fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(log.fragments))
	}
	if log.fragments[0].Kind != models.KindToken || log.fragments[1].Kind != models.KindFinal {
		t.Fatalf("unexpected kinds: %q, %q", log.fragments[0].Kind, log.fragments[1].Kind)
	}
	if log.fragments[0].Chunk != 0 || log.fragments[1].Chunk != 1 {
		t.Fatalf("chunks not sequential: %d, %d", log.fragments[0].Chunk, log.fragments[1].Chunk)
	}
}

// Publish failures are swallowed: the live path is best-effort and must not
// fail the producing match.
func TestEmitterBroadcastFailureNotFatal(t *testing.T) {
	log := &logWriter{}
	ch := &captureChannel{err: errors.New("redis down")}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{
		Channel:         ch,
		BroadcastTokens: true,
	})

	if err := em.Token(context.Background(), "x"); err != nil {
		t.Fatalf("broadcast failure surfaced as error: %v", err)
	}
	if err := em.Final(context.Background(), "x"); err != nil {
		t.Fatalf("broadcast failure surfaced as error: %v", err)
	}
	if len(log.fragments) != 1 {
		t.Fatalf("final not persisted despite broadcast failure: %d", len(log.fragments))
	}
}

func TestEmitterPersistFailureSurfaces(t *testing.T) {
	log := &logWriter{failNext: true}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{})

	if err := em.Final(context.Background(), "x"); err == nil {
		t.Fatal("expected persist error")
	}
}

func TestEmitterSystemToken(t *testing.T) {
	log := &logWriter{}
	ch := &captureChannel{}
	em := NewEmitter(log, "m1", models.RoleSystem, EmitterOptions{
		Turn:    models.PreGameTurn,
		Channel: ch,
	})

	if err := em.SystemToken(context.Background(), "Match queued"); err != nil {
		t.Fatal(err)
	}

	if len(log.fragments) != 1 || log.fragments[0].Kind != models.KindSystem {
		t.Fatalf("system fragment not persisted: %+v", log.fragments)
	}
	if log.fragments[0].Turn != models.PreGameTurn {
		t.Fatalf("expected pre-game turn, got %d", log.fragments[0].Turn)
	}
	if len(ch.events) != 1 || ch.events[0].Agent != string(models.RoleSystem) {
		t.Fatalf("system event not broadcast: %+v", ch.events)
	}
}

func TestEmitterDistinctMessageIDs(t *testing.T) {
	log := &logWriter{}
	a := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{})
	b := NewEmitter(log, "m1", models.RoleDefense, EmitterOptions{})
	if a.ID() == b.ID() {
		t.Fatal("two emitters shared a message id")
	}
}

func TestEmitterStartSeqOffset(t *testing.T) {
	log := &logWriter{}
	em := NewEmitter(log, "m1", models.RoleOffense, EmitterOptions{
		StartSeq:      5,
		PersistTokens: true,
	})

	if err := em.Token(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if log.fragments[0].Seq != 5 {
		t.Fatalf("expected seq 5, got %d", log.fragments[0].Seq)
	}
	if log.fragments[0].Chunk != 0 {
		t.Fatalf("expected chunk 0, got %d", log.fragments[0].Chunk)
	}
}
