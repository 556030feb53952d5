package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rsproule/llm-gladiators/internal/models"
)

// CreateGladiatorRequest represents the gladiator creation request.
type CreateGladiatorRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	APIKey       string `json:"api_key"`
}

// CreateGladiator creates a participant profile. The API key is stored for
// provider calls and never returned in responses.
func (h *Handler) CreateGladiator(w http.ResponseWriter, r *http.Request) {
	var req CreateGladiatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		h.Error(w, http.StatusBadRequest, "system_prompt is required")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		h.Error(w, http.StatusBadRequest, "api_key is required")
		return
	}
	if req.Model == "" {
		req.Model = "gpt-4o"
	}
	if req.Provider == "" {
		req.Provider = "openai"
	}

	gladiator, err := h.db.CreateGladiator(r.Context(), req.Name, req.SystemPrompt, req.Model, req.Provider, req.APIKey)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create gladiator")
		return
	}

	h.JSON(w, http.StatusCreated, gladiator)
}

// ListGladiatorsResponse wraps the gladiator listing.
type ListGladiatorsResponse struct {
	Gladiators []models.Gladiator `json:"gladiators"`
}

// ListGladiators returns gladiator profiles, newest first.
func (h *Handler) ListGladiators(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 200)

	gladiators, err := h.db.ListGladiators(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list gladiators")
		return
	}
	if gladiators == nil {
		gladiators = []models.Gladiator{}
	}
	h.JSON(w, http.StatusOK, ListGladiatorsResponse{Gladiators: gladiators})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
