package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rsproule/llm-gladiators/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/arena.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/arena.db"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS match_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		message_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		chunk INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS matches (
		match_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'running',
		target_word TEXT,
		winner TEXT,
		winner_reason TEXT,
		total_turns INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		created_by TEXT,
		offense_id TEXT,
		defense_id TEXT
	);

	CREATE TABLE IF NOT EXISTS gladiators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT 'gpt-4o',
		provider TEXT NOT NULL DEFAULT 'openai',
		api_key TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_match ON match_messages(match_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_message ON match_messages(message_id, kind);
	CREATE INDEX IF NOT EXISTS idx_matches_started ON matches(started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertFragment appends a fragment to the match message log and assigns
// its insertion sequence.
func (s *SQLiteStore) InsertFragment(ctx context.Context, f *models.Fragment) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO match_messages (match_id, agent, message_id, turn, chunk, seq, kind, token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.MatchID, string(f.Agent), f.MessageID, f.Turn, f.Chunk, f.Seq, string(f.Kind), f.Token, f.CreatedAt)
	if err != nil {
		return err
	}

	f.ID, err = res.LastInsertId()
	return err
}

// ListFragments retrieves all fragments for a match in insertion order.
func (s *SQLiteStore) ListFragments(ctx context.Context, matchID string) ([]models.Fragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, agent, message_id, turn, chunk, seq, kind, token, created_at
		FROM match_messages
		WHERE match_id = ?
		ORDER BY id ASC
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFragments(rows)
}

// GetFinalFragment retrieves the latest final or system fragment for a
// message. Returns ErrNotFound if the message has not been finalized.
func (s *SQLiteStore) GetFinalFragment(ctx context.Context, messageID string) (*models.Fragment, error) {
	f := &models.Fragment{}
	var agent, kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, match_id, agent, message_id, turn, chunk, seq, kind, token, created_at
		FROM match_messages
		WHERE message_id = ? AND kind IN ('final', 'system')
		ORDER BY id DESC
		LIMIT 1
	`, messageID).Scan(
		&f.ID, &f.MatchID, &agent, &f.MessageID, &f.Turn, &f.Chunk, &f.Seq, &kind, &f.Token, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.Agent = models.Role(agent)
	f.Kind = models.Kind(kind)
	return f, nil
}

func scanFragments(rows *sql.Rows) ([]models.Fragment, error) {
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

// CreateMatch inserts a new match record with status running.
func (s *SQLiteStore) CreateMatch(ctx context.Context, m *models.Match) error {
	if m.Status == "" {
		m.Status = models.MatchRunning
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, status, target_word, created_by, offense_id, defense_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.MatchID, string(m.Status), m.TargetWord, m.CreatedBy, m.OffenseID, m.DefenseID, m.StartedAt)
	return err
}

// GetMatch retrieves a match by its match_id.
func (s *SQLiteStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	m := &models.Match{}
	var status string
	var targetWord, winner, winnerReason, createdBy, offenseID, defenseID sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT match_id, status, target_word, winner, winner_reason, total_turns,
		       started_at, completed_at, created_by, offense_id, defense_id
		FROM matches WHERE match_id = ?
	`, matchID).Scan(
		&m.MatchID, &status, &targetWord, &winner, &winnerReason, &m.TotalTurns,
		&m.StartedAt, &completedAt, &createdBy, &offenseID, &defenseID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.Status = models.MatchStatus(status)
	m.TargetWord = targetWord.String
	m.Winner = winner.String
	m.WinnerReason = winnerReason.String
	m.CreatedBy = createdBy.String
	m.OffenseID = offenseID.String
	m.DefenseID = defenseID.String
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return m, nil
}

// ListMatches retrieves matches with pagination, newest first.
func (s *SQLiteStore) ListMatches(ctx context.Context, limit, offset int) ([]models.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, status, target_word, winner, winner_reason, total_turns,
		       started_at, completed_at, created_by, offense_id, defense_id
		FROM matches
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		var status string
		var targetWord, winner, winnerReason, createdBy, offenseID, defenseID sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(
			&m.MatchID, &status, &targetWord, &winner, &winnerReason, &m.TotalTurns,
			&m.StartedAt, &completedAt, &createdBy, &offenseID, &defenseID,
		); err != nil {
			return nil, err
		}

		m.Status = models.MatchStatus(status)
		m.TargetWord = targetWord.String
		m.Winner = winner.String
		m.WinnerReason = winnerReason.String
		m.CreatedBy = createdBy.String
		m.OffenseID = offenseID.String
		m.DefenseID = defenseID.String
		if completedAt.Valid {
			m.CompletedAt = &completedAt.Time
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CompleteMatch records the outcome of a finished match.
func (s *SQLiteStore) CompleteMatch(ctx context.Context, matchID, winner, reason string, totalTurns int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches
		SET status = 'completed', winner = ?, winner_reason = ?, total_turns = ?, completed_at = CURRENT_TIMESTAMP
		WHERE match_id = ? AND status = 'running'
	`, winner, reason, totalTurns, matchID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// FailMatch records a match abandoned by a generation fault.
func (s *SQLiteStore) FailMatch(ctx context.Context, matchID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches
		SET status = 'error', winner_reason = ?, completed_at = CURRENT_TIMESTAMP
		WHERE match_id = ? AND status = 'running'
	`, reason, matchID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateGladiator creates a new gladiator profile.
func (s *SQLiteStore) CreateGladiator(ctx context.Context, name, systemPrompt, model, provider, apiKey string) (*models.Gladiator, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gladiators (id, name, system_prompt, model, provider, api_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, systemPrompt, model, provider, apiKey, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetGladiator(ctx, uuid.MustParse(id))
}

// GetGladiator retrieves a gladiator profile by ID.
func (s *SQLiteStore) GetGladiator(ctx context.Context, id uuid.UUID) (*models.Gladiator, error) {
	g := &models.Gladiator{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, model, provider, api_key, created_at, updated_at
		FROM gladiators WHERE id = ?
	`, id.String()).Scan(
		&idStr, &g.Name, &g.SystemPrompt, &g.Model, &g.Provider, &g.APIKey, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.ID = uuid.MustParse(idStr)
	return g, nil
}

// ListGladiators retrieves gladiator profiles with pagination, newest first.
func (s *SQLiteStore) ListGladiators(ctx context.Context, limit, offset int) ([]models.Gladiator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, system_prompt, model, provider, api_key, created_at, updated_at
		FROM gladiators
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
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
