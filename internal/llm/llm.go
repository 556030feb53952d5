// Package llm exposes the text-generation capability consumed by the arena:
// given a conversation history, produce a lazy sequence of text fragments.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Chat roles used when mapping conversation history for a provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream is a lazy sequence of text fragments. Recv returns io.EOF when the
// sequence is exhausted. Fragments may be incremental deltas or cumulative
// full-text frames depending on the provider; consumers must tolerate both.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Responder produces a streamed response to a conversation history.
type Responder interface {
	Respond(ctx context.Context, history []Message) (Stream, error)
}

// AgentConfig carries the provider coordinates for one participant.
type AgentConfig struct {
	SystemPrompt string `json:"system_prompt"`
	APIKey       string `json:"api_key"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
}

// Validation errors for agent configs.
var (
	ErrMissingPrompt = errors.New("llm: system prompt is required")
	ErrMissingAPIKey = errors.New("llm: api key is required")
)

// Validate rejects configs that cannot produce a responder. Defaults are
// applied for model and provider.
func (c *AgentConfig) Validate() error {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return ErrMissingPrompt
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.Provider == "" {
		c.Provider = "openai"
	}
	return nil
}

// Factory builds a Responder for an agent config. The server installs the
// OpenAI factory; tests install scripted responders.
type Factory func(cfg AgentConfig) Responder
