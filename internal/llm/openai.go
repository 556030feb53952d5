package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultCompletionsURL = "https://api.openai.com/v1/chat/completions"

// OpenAIConfig configures the OpenAI chat completions endpoint and HTTP
// behavior.
type OpenAIConfig struct {
	CompletionsURL string
	HTTPClient     *http.Client
}

// OpenAIResponder streams chat completions over SSE.
type OpenAIResponder struct {
	cfg   OpenAIConfig
	agent AgentConfig
}

// NewOpenAIFactory returns a Factory producing OpenAI responders that share
// endpoint configuration.
func NewOpenAIFactory(cfg OpenAIConfig) Factory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if strings.TrimSpace(cfg.CompletionsURL) == "" {
		cfg.CompletionsURL = defaultCompletionsURL
	}
	return func(agent AgentConfig) Responder {
		return &OpenAIResponder{cfg: cfg, agent: agent}
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Respond opens a streaming completion. The system prompt is prepended to
// the supplied history.
func (r *OpenAIResponder) Respond(ctx context.Context, history []Message) (Stream, error) {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: r.agent.SystemPrompt})
	messages = append(messages, history...)

	body, err := json.Marshal(chatRequest{
		Model:    r.agent.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.CompletionsURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.agent.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completions request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completions request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// sseStream parses server-sent events from a chat completions response.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
		if chunk.Choices[0].FinishReason != nil {
			s.done = true
			return "", io.EOF
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	s.done = true
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
