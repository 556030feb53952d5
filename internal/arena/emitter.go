package arena

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/metrics"
	"github.com/rsproule/llm-gladiators/internal/models"
	"github.com/rsproule/llm-gladiators/internal/store"
)

// EmitterOptions configures a per-message emitter.
type EmitterOptions struct {
	// Turn is the round number recorded on every fragment.
	Turn int
	// MessageID overrides the generated identifier. Used when a message is
	// pre-announced outside the orchestrator (e.g. the queued system message)
	// and the caller owns the identifier.
	MessageID string
	// StartSeq offsets the match-wide sequence counter.
	StartSeq int
	// SourceID tags broadcast events with the producing run.
	SourceID string
	// Channel receives broadcast events. Nil disables broadcasting.
	Channel live.Channel
	// PersistTokens writes every token fragment to the durable log. Finals
	// are always durable regardless.
	PersistTokens bool
	// BroadcastTokens publishes every token fragment on the channel.
	BroadcastTokens bool
}

// Emitter writes the fragments of one logical message through the dual
// persist/broadcast path. Chunk numbers are assigned here and are the
// consumer's dedup key, so one emitter must be the only writer for its
// message id.
type Emitter struct {
	store   store.FragmentWriter
	matchID string
	agent   models.Role
	opts    EmitterOptions
	id      string

	mu           sync.Mutex
	chunk        int
	seq          int
	finalWritten bool
}

// NewEmitter creates an emitter for one logical message. A fresh ULID is
// assigned unless the options supply a message id.
func NewEmitter(fw store.FragmentWriter, matchID string, agent models.Role, opts EmitterOptions) *Emitter {
	id := opts.MessageID
	if id == "" {
		id = ulid.Make().String()
	}
	return &Emitter{
		store:   fw,
		matchID: matchID,
		agent:   agent,
		opts:    opts,
		id:      id,
		seq:     opts.StartSeq,
	}
}

// ID returns the message identifier shared by all fragments.
func (e *Emitter) ID() string {
	return e.id
}

// Turn returns the round number recorded on fragments.
func (e *Emitter) Turn() int {
	return e.opts.Turn
}

// next reserves the chunk and seq numbers for one fragment.
func (e *Emitter) next() (chunk, seq int) {
	chunk, seq = e.chunk, e.seq
	e.chunk++
	e.seq++
	return chunk, seq
}

// Token emits one token fragment. Persistence and broadcast each follow
// their option flag; consumers must not assume one precedes the other.
func (e *Emitter) Token(ctx context.Context, frame string) error {
	e.mu.Lock()
	if e.finalWritten {
		e.mu.Unlock()
		return nil
	}
	chunk, seq := e.next()
	e.mu.Unlock()

	if e.opts.PersistTokens {
		if err := e.persist(ctx, models.KindToken, frame, chunk, seq); err != nil {
			return err
		}
	}
	if e.opts.BroadcastTokens {
		e.broadcast(ctx, live.Event{
			Type:      live.EventAgentToken,
			MessageID: e.id,
			Agent:     string(e.agent),
			Turn:      e.opts.Turn,
			Chunk:     chunk,
			Token:     frame,
			SourceID:  e.opts.SourceID,
		})
	}
	return nil
}

// Final seals the message with its authoritative text. Idempotent: the
// first call persists exactly one final fragment and broadcasts exactly one
// final event; later calls are no-ops. The broadcast event carries only the
// identifier, forcing observers to fetch the text from the durable log.
func (e *Emitter) Final(ctx context.Context, fullText string) error {
	e.mu.Lock()
	if e.finalWritten {
		e.mu.Unlock()
		return nil
	}
	e.finalWritten = true
	chunk, seq := e.next()
	e.mu.Unlock()

	if err := e.persist(ctx, models.KindFinal, fullText, chunk, seq); err != nil {
		return err
	}
	e.broadcast(ctx, live.Event{
		Type:      live.EventAgentFinal,
		MessageID: e.id,
		SourceID:  e.opts.SourceID,
	})
	return nil
}

// SystemToken emits a complete system message fragment, persisted and
// broadcast unconditionally.
func (e *Emitter) SystemToken(ctx context.Context, text string) error {
	e.mu.Lock()
	chunk, seq := e.next()
	e.mu.Unlock()

	if err := e.persist(ctx, models.KindSystem, text, chunk, seq); err != nil {
		return err
	}
	e.broadcast(ctx, live.Event{
		Type:      live.EventAgentToken,
		MessageID: e.id,
		Agent:     string(models.RoleSystem),
		Turn:      e.opts.Turn,
		Chunk:     chunk,
		Token:     text,
		SourceID:  e.opts.SourceID,
	})
	return nil
}

func (e *Emitter) persist(ctx context.Context, kind models.Kind, token string, chunk, seq int) error {
	err := e.store.InsertFragment(ctx, &models.Fragment{
		MatchID:   e.matchID,
		Agent:     e.agent,
		MessageID: e.id,
		Turn:      e.opts.Turn,
		Chunk:     chunk,
		Seq:       seq,
		Kind:      kind,
		Token:     token,
	})
	if err != nil {
		return err
	}
	metrics.FragmentsPersisted.WithLabelValues(string(kind)).Inc()
	return nil
}

// broadcast publishes an event on the bound channel. The live path is
// best-effort: publish failures are counted and dropped, never fatal to
// the producing match.
func (e *Emitter) broadcast(ctx context.Context, ev live.Event) {
	if e.opts.Channel == nil {
		return
	}
	if err := e.opts.Channel.Publish(ctx, ev); err != nil {
		metrics.BroadcastDrops.Inc()
		return
	}
	metrics.EventsBroadcast.WithLabelValues(ev.Type).Inc()
}
