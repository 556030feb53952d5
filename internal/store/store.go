package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rsproule/llm-gladiators/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// DataStore defines the interface for durable storage of matches, gladiator
// profiles, and the append-only fragment log. Both PostgresStore and
// SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Fragment log operations. InsertFragment assigns the insertion
	// sequence (Fragment.ID); ListFragments returns rows in insertion
	// order, which is the canonical backfill order.
	InsertFragment(ctx context.Context, f *models.Fragment) error
	ListFragments(ctx context.Context, matchID string) ([]models.Fragment, error)
	GetFinalFragment(ctx context.Context, messageID string) (*models.Fragment, error)

	// Match operations
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	ListMatches(ctx context.Context, limit, offset int) ([]models.Match, error)
	CompleteMatch(ctx context.Context, matchID, winner, reason string, totalTurns int) error
	FailMatch(ctx context.Context, matchID, reason string) error

	// Gladiator operations
	CreateGladiator(ctx context.Context, name, systemPrompt, model, provider, apiKey string) (*models.Gladiator, error)
	GetGladiator(ctx context.Context, id uuid.UUID) (*models.Gladiator, error)
	ListGladiators(ctx context.Context, limit, offset int) ([]models.Gladiator, error)
}

// FragmentWriter is the narrow slice of DataStore the message emitter needs.
type FragmentWriter interface {
	InsertFragment(ctx context.Context, f *models.Fragment) error
}

// FinalFetcher is the narrow slice of DataStore the stream session needs to
// resolve authoritative final text.
type FinalFetcher interface {
	GetFinalFragment(ctx context.Context, messageID string) (*models.Fragment, error)
}
