package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rsproule/llm-gladiators/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates tables if they don't exist. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS match_messages (
		id BIGSERIAL PRIMARY KEY,
		match_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		message_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		chunk INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS matches (
		match_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'running',
		target_word TEXT,
		winner TEXT,
		winner_reason TEXT,
		total_turns INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		created_by TEXT,
		offense_id TEXT,
		defense_id TEXT
	);

	CREATE TABLE IF NOT EXISTS gladiators (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT 'gpt-4o',
		provider TEXT NOT NULL DEFAULT 'openai',
		api_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_messages_match ON match_messages(match_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_message ON match_messages(message_id, kind);
	CREATE INDEX IF NOT EXISTS idx_matches_started ON matches(started_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertFragment appends a fragment to the match message log and assigns
// its insertion sequence.
func (s *PostgresStore) InsertFragment(ctx context.Context, f *models.Fragment) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO match_messages (match_id, agent, message_id, turn, chunk, seq, kind, token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, f.MatchID, string(f.Agent), f.MessageID, f.Turn, f.Chunk, f.Seq, string(f.Kind), f.Token, f.CreatedAt).Scan(&f.ID)
}

// ListFragments retrieves all fragments for a match in insertion order.
func (s *PostgresStore) ListFragments(ctx context.Context, matchID string) ([]models.Fragment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, match_id, agent, message_id, turn, chunk, seq, kind, token, created_at
		FROM match_messages
		WHERE match_id = $1
		ORDER BY id ASC
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []models.Fragment
	for rows.Next() {
		var f models.Fragment
		var agent, kind string
		if err := rows.Scan(
			&f.ID, &f.MatchID, &agent, &f.MessageID, &f.Turn, &f.Chunk, &f.Seq, &kind, &f.Token, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		f.Agent = models.Role(agent)
		f.Kind = models.Kind(kind)
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// GetFinalFragment retrieves the latest final or system fragment for a
// message. Returns ErrNotFound if the message has not been finalized.
func (s *PostgresStore) GetFinalFragment(ctx context.Context, messageID string) (*models.Fragment, error) {
	f := &models.Fragment{}
	var agent, kind string
	err := s.pool.QueryRow(ctx, `
		SELECT id, match_id, agent, message_id, turn, chunk, seq, kind, token, created_at
		FROM match_messages
		WHERE message_id = $1 AND kind IN ('final', 'system')
		ORDER BY id DESC
		LIMIT 1
	`, messageID).Scan(
		&f.ID, &f.MatchID, &agent, &f.MessageID, &f.Turn, &f.Chunk, &f.Seq, &kind, &f.Token, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.Agent = models.Role(agent)
	f.Kind = models.Kind(kind)
	return f, nil
}

// CreateMatch inserts a new match record with status running.
func (s *PostgresStore) CreateMatch(ctx context.Context, m *models.Match) error {
	if m.Status == "" {
		m.Status = models.MatchRunning
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (match_id, status, target_word, created_by, offense_id, defense_id, started_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
	`, m.MatchID, string(m.Status), m.TargetWord, m.CreatedBy, m.OffenseID, m.DefenseID, m.StartedAt)
	return err
}

// GetMatch retrieves a match by its match_id.
func (s *PostgresStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx, `
		SELECT match_id, status, target_word, winner, winner_reason, total_turns,
		       started_at, completed_at, created_by, offense_id, defense_id
		FROM matches WHERE match_id = $1
	`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListMatches retrieves matches with pagination, newest first.
func (s *PostgresStore) ListMatches(ctx context.Context, limit, offset int) ([]models.Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, status, target_word, winner, winner_reason, total_turns,
		       started_at, completed_at, created_by, offense_id, defense_id
		FROM matches
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	var status string
	var targetWord, winner, winnerReason, createdBy, offenseID, defenseID *string
	var completedAt *time.Time

	if err := row.Scan(
		&m.MatchID, &status, &targetWord, &winner, &winnerReason, &m.TotalTurns,
		&m.StartedAt, &completedAt, &createdBy, &offenseID, &defenseID,
	); err != nil {
		return nil, err
	}

	m.Status = models.MatchStatus(status)
	if targetWord != nil {
		m.TargetWord = *targetWord
	}
	if winner != nil {
		m.Winner = *winner
	}
	if winnerReason != nil {
		m.WinnerReason = *winnerReason
	}
	if createdBy != nil {
		m.CreatedBy = *createdBy
	}
	if offenseID != nil {
		m.OffenseID = *offenseID
	}
	if defenseID != nil {
		m.DefenseID = *defenseID
	}
	m.CompletedAt = completedAt
	return m, nil
}

// CompleteMatch records the outcome of a finished match.
func (s *PostgresStore) CompleteMatch(ctx context.Context, matchID, winner, reason string, totalTurns int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET status = 'completed', winner = $1, winner_reason = $2, total_turns = $3, completed_at = now()
		WHERE match_id = $4 AND status = 'running'
	`, winner, reason, totalTurns, matchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailMatch records a match abandoned by a generation fault.
func (s *PostgresStore) FailMatch(ctx context.Context, matchID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET status = 'error', winner_reason = $1, completed_at = now()
		WHERE match_id = $2 AND status = 'running'
	`, reason, matchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateGladiator creates a new gladiator profile.
func (s *PostgresStore) CreateGladiator(ctx context.Context, name, systemPrompt, model, provider, apiKey string) (*models.Gladiator, error) {
	g := &models.Gladiator{}
	var idStr string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO gladiators (id, name, system_prompt, model, provider, api_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, system_prompt, model, provider, api_key, created_at, updated_at
	`, uuid.New().String(), name, systemPrompt, model, provider, apiKey).Scan(
		&idStr, &g.Name, &g.SystemPrompt, &g.Model, &g.Provider, &g.APIKey, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.ID = uuid.MustParse(idStr)
	return g, nil
}

// GetGladiator retrieves a gladiator profile by ID.
func (s *PostgresStore) GetGladiator(ctx context.Context, id uuid.UUID) (*models.Gladiator, error) {
	g := &models.Gladiator{}
	var idStr string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, system_prompt, model, provider, api_key, created_at, updated_at
		FROM gladiators WHERE id = $1
	`, id.String()).Scan(
		&idStr, &g.Name, &g.SystemPrompt, &g.Model, &g.Provider, &g.APIKey, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.ID = uuid.MustParse(idStr)
	return g, nil
}

// ListGladiators retrieves gladiator profiles with pagination, newest first.
func (s *PostgresStore) ListGladiators(ctx context.Context, limit, offset int) ([]models.Gladiator, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, system_prompt, model, provider, api_key, created_at, updated_at
		FROM gladiators
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gladiators []models.Gladiator
	for rows.Next() {
		var g models.Gladiator
		var idStr string
		if err := rows.Scan(
			&idStr, &g.Name, &g.SystemPrompt, &g.Model, &g.Provider, &g.APIKey, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, err
		}
		g.ID = uuid.MustParse(idStr)
		gladiators = append(gladiators, g)
	}
	return gladiators, rows.Err()
}
