package arena

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/llm"
	"github.com/rsproule/llm-gladiators/internal/metrics"
	"github.com/rsproule/llm-gladiators/internal/models"
	"github.com/rsproule/llm-gladiators/internal/store"
)

// DefaultMaxTurns bounds the match loop: 20 speaking opportunities per side.
const DefaultMaxTurns = 40

const (
	offenseInstruction = `You are the OFFENSE. The secret target word is %q. ` +
		`Steer the conversation so your opponent says the target word. ` +
		`You must never say the target word yourself, and you must never reveal ` +
		`that a secret word exists. Keep replies concise.`

	defenseInstruction = `You are the DEFENSE. Your opponent is trying to trick you ` +
		`into saying a secret target word. Answer naturally but cautiously. ` +
		`When you believe you know the target word, state your guess on its own ` +
		`as exactly: Guess: "word". Saying the word any other way loses the match. ` +
		`Keep replies concise.`
)

// Params configures one match run.
type Params struct {
	MatchID   string
	Offense   llm.AgentConfig
	Defense   llm.AgentConfig
	OffenseID string
	DefenseID string
	CreatedBy string
}

// Runner drives the turn sequence of a match: it owns the shared dialogue
// history and the private role instructions, streams each utterance through
// a message emitter, and asks the winner evaluator after every completed
// turn.
type Runner struct {
	Store    store.DataStore
	Live     live.Broker
	Factory  llm.Factory
	Logger   zerolog.Logger
	MaxTurns int
}

// utterance is one completed entry of the shared dialogue history.
type utterance struct {
	agent   models.Role
	content string
}

// Run executes a match to completion. The match record is created here with
// status running and is mutated exactly once on termination: completed with
// a winner or tie, or error on a generation fault.
func (r *Runner) Run(ctx context.Context, p Params) (*models.Match, error) {
	if err := p.Offense.Validate(); err != nil {
		return nil, fmt.Errorf("offense config: %w", err)
	}
	if err := p.Defense.Validate(); err != nil {
		return nil, fmt.Errorf("defense config: %w", err)
	}

	maxTurns := r.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	channel := r.Live.Channel(p.MatchID)
	sourceID := "arena:" + p.MatchID
	logger := r.Logger.With().Str("match_id", p.MatchID).Logger()

	targetWord := PickTargetWord()
	match := &models.Match{
		MatchID:    p.MatchID,
		Status:     models.MatchRunning,
		TargetWord: targetWord,
		OffenseID:  p.OffenseID,
		DefenseID:  p.DefenseID,
		CreatedBy:  p.CreatedBy,
	}
	if err := r.Store.CreateMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	metrics.MatchesStarted.Inc()
	logger.Info().Str("target_word", targetWord).Msg("match started")

	r.systemMessage(ctx, p.MatchID, channel, sourceID, models.PreGameTurn,
		"Match started: offense must induce the target word")

	offense := r.Factory(p.Offense)
	defense := r.Factory(p.Defense)

	history := []utterance{
		{agent: models.RoleSystem, content: "Begin the discussion. Keep replies concise."},
		{agent: models.RoleDefense, content: "Please open the conversation."},
	}

	for turn := 0; turn < maxTurns; turn++ {
		role := models.RoleOffense
		responder := offense
		instruction := fmt.Sprintf(offenseInstruction, targetWord)
		if turn%2 == 1 {
			role = models.RoleDefense
			responder = defense
			// Confidentiality invariant: the defense context must never
			// contain the target word.
			instruction = defenseInstruction
		}

		emitter := NewEmitter(r.Store, p.MatchID, role, EmitterOptions{
			Turn:            turn,
			SourceID:        sourceID,
			Channel:         channel,
			BroadcastTokens: true,
		})

		full, err := r.playTurn(ctx, responder, instruction, role, history, emitter)
		if err != nil {
			reason := fmt.Sprintf("Generation failed on turn %d: %v", turn, err)
			logger.Error().Err(err).Int("turn", turn).Str("agent", string(role)).Msg("generation fault")
			if failErr := r.Store.FailMatch(ctx, p.MatchID, reason); failErr != nil {
				logger.Error().Err(failErr).Msg("failed to record match error")
			}
			r.finish(ctx, p.MatchID, channel, sourceID, turn,
				fmt.Sprintf("Match aborted: %s failed to respond", role))
			metrics.MatchesCompleted.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("turn %d (%s): %w", turn, role, err)
		}

		history = append(history, utterance{agent: role, content: full})
		metrics.TurnsPlayed.Inc()

		outcome := EvaluateWinner(full, targetWord, role)
		if outcome.Winner == "" {
			if role == models.RoleOffense && strings.Contains(strings.ToLower(full), strings.ToLower(targetWord)) {
				logger.Warn().Int("turn", turn).Msg("offense said the target word")
			}
			continue
		}

		if err := r.Store.CompleteMatch(ctx, p.MatchID, outcome.Winner, outcome.Reason, turn+1); err != nil {
			logger.Error().Err(err).Msg("failed to record match outcome")
		}
		r.finish(ctx, p.MatchID, channel, sourceID, turn,
			fmt.Sprintf("Match complete: %s wins. %s", outcome.Winner, outcome.Reason))
		metrics.MatchesCompleted.WithLabelValues(outcome.Winner).Inc()
		logger.Info().Str("winner", outcome.Winner).Int("total_turns", turn+1).Msg("match complete")
		return r.Store.GetMatch(ctx, p.MatchID)
	}

	// Turn cap reached with no winner.
	if err := r.Store.CompleteMatch(ctx, p.MatchID, models.WinnerTie, "Maximum turns reached", maxTurns); err != nil {
		logger.Error().Err(err).Msg("failed to record match outcome")
	}
	r.finish(ctx, p.MatchID, channel, sourceID, maxTurns-1,
		"Match complete: tie. Maximum turns reached")
	metrics.MatchesCompleted.WithLabelValues(models.WinnerTie).Inc()
	logger.Info().Int("total_turns", maxTurns).Msg("match tied at turn cap")
	return r.Store.GetMatch(ctx, p.MatchID)
}

// playTurn invokes the responder and pipes its fragment stream through the
// emitter, returning the concatenated utterance.
func (r *Runner) playTurn(ctx context.Context, responder llm.Responder, instruction string, self models.Role, history []utterance, emitter *Emitter) (string, error) {
	messages := buildContext(instruction, self, history)

	start := time.Now()
	stream, err := responder.Respond(ctx, messages)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full string
	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		full += frame
		if err := emitter.Token(ctx, frame); err != nil {
			return "", err
		}
	}
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())

	if err := emitter.Final(ctx, full); err != nil {
		return "", err
	}
	return full, nil
}

// buildContext maps the shared history into the speaking participant's
// perspective (self as assistant, opponent as user) and prepends the
// private role instruction.
func buildContext(instruction string, self models.Role, history []utterance) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: instruction})
	for _, u := range history {
		switch u.agent {
		case models.RoleSystem:
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: u.content})
		case self:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: u.content})
		default:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: u.content})
		}
	}
	return messages
}

// systemMessage emits a persisted and broadcast system message.
func (r *Runner) systemMessage(ctx context.Context, matchID string, channel live.Channel, sourceID string, turn int, text string) {
	emitter := NewEmitter(r.Store, matchID, models.RoleSystem, EmitterOptions{
		Turn:     turn,
		SourceID: sourceID,
		Channel:  channel,
	})
	if err := emitter.SystemToken(ctx, text); err != nil {
		r.Logger.Error().Err(err).Str("match_id", matchID).Msg("failed to emit system message")
	}
}

// finish emits the closing system message and broadcasts the terminal
// match-complete signal. Every termination path goes through here.
func (r *Runner) finish(ctx context.Context, matchID string, channel live.Channel, sourceID string, turn int, text string) {
	r.systemMessage(ctx, matchID, channel, sourceID, turn, text)
	if err := channel.Publish(ctx, live.Event{Type: live.EventArenaComplete, SourceID: sourceID}); err != nil {
		metrics.BroadcastDrops.Inc()
	} else {
		metrics.EventsBroadcast.WithLabelValues(live.EventArenaComplete).Inc()
	}
}
