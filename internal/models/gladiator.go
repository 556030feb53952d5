package models

import (
	"time"

	"github.com/google/uuid"
)

// Gladiator is a stored participant profile: the system prompt and provider
// coordinates used to invoke the text-generation capability. APIKey is never
// serialized in API responses.
type Gladiator struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	APIKey       string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
