// Package arena provides a client for the LLM gladiator arena API.
package arena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is an arena API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new arena client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("arena error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// AgentConfig configures one inline participant.
type AgentConfig struct {
	SystemPrompt string `json:"system_prompt"`
	APIKey       string `json:"api_key"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

// CreateMatchRequest selects the two participants by stored gladiator id
// or inline config.
type CreateMatchRequest struct {
	OffenseID string       `json:"offense_id,omitempty"`
	DefenseID string       `json:"defense_id,omitempty"`
	Offense   *AgentConfig `json:"offense,omitempty"`
	Defense   *AgentConfig `json:"defense,omitempty"`
	CreatedBy string       `json:"created_by,omitempty"`
}

// CreateMatchResponse acknowledges a queued match.
type CreateMatchResponse struct {
	MatchID string `json:"match_id"`
}

// CreateMatch queues a new match.
func (c *Client) CreateMatch(req CreateMatchRequest) (*CreateMatchResponse, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/matches", body)
	if err != nil {
		return nil, err
	}

	var resp CreateMatchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Match is one match record.
type Match struct {
	MatchID      string     `json:"match_id"`
	Status       string     `json:"status"`
	TargetWord   string     `json:"target_word,omitempty"`
	Winner       string     `json:"winner,omitempty"`
	WinnerReason string     `json:"winner_reason,omitempty"`
	TotalTurns   int        `json:"total_turns"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// GetMatch fetches one match record.
func (c *Client) GetMatch(matchID string) (*Match, error) {
	respBody, err := c.doRequest("GET", "/matches/"+matchID, nil)
	if err != nil {
		return nil, err
	}

	var m Match
	if err := json.Unmarshal(respBody, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMatchesResponse wraps the match listing.
type ListMatchesResponse struct {
	Matches []Match `json:"matches"`
}

// ListMatches lists match records, newest first.
func (c *Client) ListMatches(limit, offset int) (*ListMatchesResponse, error) {
	path := fmt.Sprintf("/matches?limit=%d&offset=%d", limit, offset)
	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp ListMatchesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Gladiator is a stored participant profile.
type Gladiator struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateGladiatorRequest is the gladiator creation request.
type CreateGladiatorRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	APIKey       string `json:"api_key"`
}

// CreateGladiator stores a participant profile.
func (c *Client) CreateGladiator(req CreateGladiatorRequest) (*Gladiator, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/gladiators", body)
	if err != nil {
		return nil, err
	}

	var g Gladiator
	if err := json.Unmarshal(respBody, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGladiatorsResponse wraps the gladiator listing.
type ListGladiatorsResponse struct {
	Gladiators []Gladiator `json:"gladiators"`
}

// ListGladiators lists stored profiles.
func (c *Client) ListGladiators() (*ListGladiatorsResponse, error) {
	respBody, err := c.doRequest("GET", "/gladiators", nil)
	if err != nil {
		return nil, err
	}

	var resp ListGladiatorsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TranscriptEntry is one message of a reconstructed transcript.
type TranscriptEntry struct {
	ID    string `json:"id"`
	Agent string `json:"agent"`
	Text  string `json:"text"`
	Turn  int    `json:"turn"`
	Done  bool   `json:"done"`
	Order int    `json:"order"`
}

// TranscriptSnapshot is one watch frame.
type TranscriptSnapshot struct {
	Status   string            `json:"status"`
	Messages []TranscriptEntry `json:"messages"`
}

// Watch connects to the match watch socket and invokes fn for every
// transcript snapshot until the match completes, the context is cancelled,
// or the connection drops.
func (c *Client) Watch(ctx context.Context, matchID string, fn func(TranscriptSnapshot)) error {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/matches/" + matchID + "/watch"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var snap TranscriptSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || err == io.EOF {
				return nil
			}
			return err
		}
		fn(snap)
		if snap.Status == "disconnected" {
			return nil
		}
	}
}
