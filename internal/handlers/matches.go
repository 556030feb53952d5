package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rsproule/llm-gladiators/internal/arena"
	"github.com/rsproule/llm-gladiators/internal/llm"
	"github.com/rsproule/llm-gladiators/internal/models"
	"github.com/rsproule/llm-gladiators/internal/store"
)

// CreateMatchRequest selects the two participants, either by stored
// gladiator id or by inline config.
type CreateMatchRequest struct {
	OffenseID string           `json:"offense_id,omitempty"`
	DefenseID string           `json:"defense_id,omitempty"`
	Offense   *llm.AgentConfig `json:"offense,omitempty"`
	Defense   *llm.AgentConfig `json:"defense,omitempty"`
	CreatedBy string           `json:"created_by,omitempty"`
}

// CreateMatchResponse acknowledges a queued match.
type CreateMatchResponse struct {
	MatchID string `json:"match_id"`
}

// CreateMatch validates participant configs, emits the queued system
// message, and starts the match loop in the background.
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	offense, err := h.resolveAgent(r.Context(), req.Offense, req.OffenseID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "offense: "+err.Error())
		return
	}
	defense, err := h.resolveAgent(r.Context(), req.Defense, req.DefenseID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "defense: "+err.Error())
		return
	}

	// V7 ids sort by creation time, which keeps match listings cheap.
	matchID := uuid.Must(uuid.NewV7()).String()
	channel := h.broker.Channel(matchID)

	// The queued message is visible before the orchestrator takes over;
	// it shares the emitter's identifier scheme and persists immediately.
	emitter := arena.NewEmitter(h.db, matchID, models.RoleSystem, arena.EmitterOptions{
		Turn:    models.PreGameTurn,
		Channel: channel,
	})
	if err := emitter.SystemToken(r.Context(), "Match queued"); err != nil {
		h.logger.Error().Err(err).Str("match_id", matchID).Msg("failed to emit queued message")
		h.Error(w, http.StatusInternalServerError, "failed to queue match")
		return
	}

	params := arena.Params{
		MatchID:   matchID,
		Offense:   offense,
		Defense:   defense,
		OffenseID: req.OffenseID,
		DefenseID: req.DefenseID,
		CreatedBy: req.CreatedBy,
	}
	go func() {
		// Detached from the request context: the match outlives the call.
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := h.runner.Run(ctx, params); err != nil {
			h.logger.Error().Err(err).Str("match_id", matchID).Msg("match run failed")
		}
	}()

	h.JSON(w, http.StatusAccepted, CreateMatchResponse{MatchID: matchID})
}

// resolveAgent produces a validated agent config from an inline config or a
// stored gladiator profile.
func (h *Handler) resolveAgent(ctx context.Context, inline *llm.AgentConfig, gladiatorID string) (llm.AgentConfig, error) {
	var cfg llm.AgentConfig
	switch {
	case inline != nil:
		cfg = *inline
	case gladiatorID != "":
		id, err := uuid.Parse(gladiatorID)
		if err != nil {
			return cfg, errors.New("invalid gladiator id")
		}
		g, err := h.db.GetGladiator(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return cfg, errors.New("gladiator not found")
			}
			return cfg, errors.New("gladiator lookup failed")
		}
		cfg = llm.AgentConfig{
			SystemPrompt: g.SystemPrompt,
			APIKey:       g.APIKey,
			Model:        g.Model,
			Provider:     g.Provider,
		}
	default:
		return cfg, errors.New("config or gladiator id is required")
	}

	if cfg.APIKey == "" {
		cfg.APIKey = h.defaultAPIKey
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GetMatch returns one match record. The target word stays hidden while
// the match is running so observers cannot leak it to the defense.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	match, err := h.db.GetMatch(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "match not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to fetch match")
		return
	}

	if match.Status == models.MatchRunning {
		match.TargetWord = ""
	}
	h.JSON(w, http.StatusOK, match)
}

// ListMatchesResponse wraps the match listing.
type ListMatchesResponse struct {
	Matches []models.Match `json:"matches"`
}

// ListMatches returns match records, newest first.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 200)

	matches, err := h.db.ListMatches(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	for i := range matches {
		if matches[i].Status == models.MatchRunning {
			matches[i].TargetWord = ""
		}
	}
	if matches == nil {
		matches = []models.Match{}
	}
	h.JSON(w, http.StatusOK, ListMatchesResponse{Matches: matches})
}

// MatchMessagesResponse wraps the backfill rows for a match.
type MatchMessagesResponse struct {
	Messages []models.Fragment `json:"messages"`
}

// GetMatchMessages returns the durable fragment log for a match in
// insertion order: the observer-side backfill query.
func (h *Handler) GetMatchMessages(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	fragments, err := h.db.ListFragments(r.Context(), matchID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if fragments == nil {
		fragments = []models.Fragment{}
	}
	h.JSON(w, http.StatusOK, MatchMessagesResponse{Messages: fragments})
}
