package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rsproule/llm-gladiators/internal/arena"
	"github.com/rsproule/llm-gladiators/internal/live"
	"github.com/rsproule/llm-gladiators/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	broker live.Broker
	runner *arena.Runner
	logger zerolog.Logger

	// defaultAPIKey backs participant configs that carry no key of
	// their own. Empty means every config must bring one.
	defaultAPIKey string
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, broker live.Broker, runner *arena.Runner, logger zerolog.Logger) *Handler {
	return &Handler{db: db, broker: broker, runner: runner, logger: logger}
}

// WithDefaultAPIKey sets the fallback provider key for participant configs.
func (h *Handler) WithDefaultAPIKey(key string) *Handler {
	h.defaultAPIKey = key
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// pagination parses limit/offset query params with sane bounds.
func pagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
