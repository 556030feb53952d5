package stream

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/models"
	"github.com/rsproule/llm-gladiators/internal/store"
)

// LogReader is the slice of the durable log a session needs: the one-time
// backfill query and the authoritative final text fetch.
type LogReader interface {
	ListFragments(ctx context.Context, matchID string) ([]models.Fragment, error)
	GetFinalFragment(ctx context.Context, messageID string) (*models.Fragment, error)
}

// Session drives one observer's view of a match: it owns the subscription,
// the backfill, and the dispatch loop feeding the pure reducer. All dedup
// state lives in the session's reducer state, so concurrent sessions never
// cross-contaminate.
//
// Lifecycle: subscribe, confirm, backfill, then live events until the
// terminal signal or cancellation. Subscription confirmation always
// precedes the backfill read; otherwise events delivered between connect
// and read would be lost. Disconnected is terminal: reconnection means a
// fresh session rebuilding from a fresh backfill.
type Session struct {
	Channel live.Channel
	Log     LogReader
	MatchID string
	Logger  zerolog.Logger
}

// Run executes the session until the match completes or ctx is canceled,
// sending a state snapshot on updates after every applied event. Snapshots
// are safe to retain: the reducer copies on write.
func (s *Session) Run(ctx context.Context, updates chan<- State) error {
	state := NewState()

	push := func() bool {
		select {
		case updates <- state:
			return true
		case <-ctx.Done():
			return false
		}
	}
	apply := func(ev Event) bool {
		state = Apply(state, ev)
		return push()
	}

	if !apply(Connecting{}) {
		return ctx.Err()
	}

	sub, err := s.Channel.Subscribe(ctx)
	if err != nil {
		state = Apply(state, Disconnected{})
		push()
		return err
	}
	defer sub.Close()

	if !apply(Listening{}) {
		return ctx.Err()
	}

	// Backfill only after the subscription is confirmed active.
	rows, err := s.Log.ListFragments(ctx, s.MatchID)
	if err != nil {
		state = Apply(state, Disconnected{})
		push()
		return err
	}
	if !apply(Backfill{Rows: rows}) {
		return ctx.Err()
	}

	sourceID := "arena:" + s.MatchID
	for {
		select {
		case <-ctx.Done():
			state = Apply(state, Disconnected{})
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				state = Apply(state, Disconnected{})
				push()
				return nil
			}
			// Events tagged with a foreign source are another run's
			// output; system messages pass regardless.
			if ev.SourceID != "" && ev.SourceID != sourceID && ev.Agent != string(models.RoleSystem) {
				continue
			}

			switch ev.Type {
			case live.EventAgentToken:
				if !apply(Token{
					MessageID: ev.MessageID,
					Agent:     ev.Agent,
					Turn:      ev.Turn,
					Chunk:     ev.Chunk,
					Token:     ev.Token,
				}) {
					return ctx.Err()
				}
			case live.EventAgentFinal:
				final, err := s.fetchFinal(ctx, ev.MessageID)
				if err != nil {
					// Leave the accumulated tokens in place rather than
					// overwrite with nothing.
					s.Logger.Warn().Err(err).Str("message_id", ev.MessageID).Msg("final text fetch failed")
					continue
				}
				if !apply(final) {
					return ctx.Err()
				}
			case live.EventArenaComplete:
				state = Apply(state, Disconnected{})
				push()
				return nil
			}
		}
	}
}

// fetchFinal resolves the authoritative final text from the durable log.
// The fetch races arbitrarily with token events for the same message; the
// reducer's final apply overwrites rather than appends for that reason.
func (s *Session) fetchFinal(ctx context.Context, messageID string) (Final, error) {
	frag, err := s.Log.GetFinalFragment(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Final{}, errors.New("final fragment not yet durable")
		}
		return Final{}, err
	}
	return Final{
		MessageID: messageID,
		Agent:     string(frag.Agent),
		Turn:      frag.Turn,
		Text:      frag.Token,
	}, nil
}
