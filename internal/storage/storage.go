// Package storage provides SQLite-backed persistence for validation
// sessions, per-source results, scorecards, and the last-validation
// key-value cache.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ideascope/ideascope/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = fmt.Errorf("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db          *sql.DB
	maxSessions int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/ideascope/data.db.
func New(maxSessions int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "ideascope", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxSessions: maxSessions}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			idea            TEXT NOT NULL,
			assumptions     TEXT NOT NULL DEFAULT '{}',
			refinement      TEXT NOT NULL DEFAULT '{}',
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS source_results (
			session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			source          TEXT NOT NULL,
			status          TEXT NOT NULL,
			raw             TEXT,
			metrics         TEXT NOT NULL DEFAULT '{}',
			citations       TEXT NOT NULL DEFAULT '[]',
			error           TEXT NOT NULL DEFAULT '',
			fetched_at      INTEGER NOT NULL,
			PRIMARY KEY (session_id, source)
		)`,
		`CREATE TABLE IF NOT EXISTS scorecards (
			session_id      TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			composite       INTEGER NOT NULL,
			breakdown       TEXT NOT NULL DEFAULT '{}',
			neutral         TEXT NOT NULL DEFAULT '[]',
			computed_at     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key             TEXT PRIMARY KEY,
			value           TEXT NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateSession inserts a session and enforces the session cap in the
// same transaction.
func (s *Storage) CreateSession(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	assumptions, err := json.Marshal(session.Assumptions)
	if err != nil {
		return fmt.Errorf("failed to marshal assumptions: %w", err)
	}
	refinement, err := json.Marshal(session.Refinement)
	if err != nil {
		return fmt.Errorf("failed to marshal refinement: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO sessions (id, idea, assumptions, refinement, created_at, updated_at)
		VALUES (?,?,?,?,?,?)`,
		session.ID, session.Idea, string(assumptions), string(refinement),
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY updated_at DESC LIMIT ?
		)`, s.maxSessions); err != nil {
		return fmt.Errorf("failed to enforce session cap: %w", err)
	}

	return tx.Commit()
}

// GetSession returns one session by ID.
func (s *Storage) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions, newest first.
func (s *Storage) ListSessions() ([]*models.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionCols + ` FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	sessions := []*models.Session{}
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TouchSession advances a session's updated_at timestamp.
func (s *Storage) TouchSession(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveRefinement stores a session's refinement parameters.
func (s *Storage) SaveRefinement(sessionID string, r models.Refinement) error {
	refinement, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal refinement: %w", err)
	}
	res, err := s.db.Exec(`UPDATE sessions SET refinement = ?, updated_at = ? WHERE id = ?`,
		string(refinement), time.Now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to save refinement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// SaveResult upserts one source's result for a session. A refresh
// replaces the previous row wholesale.
func (s *Storage) SaveResult(sessionID string, result *models.SourceResult) error {
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	citations, err := json.Marshal(result.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO source_results
			(session_id, source, status, raw, metrics, citations, error, fetched_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		sessionID, string(result.Source), string(result.Status), string(result.Raw),
		string(metrics), string(citations), result.Error, result.FetchedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetResults returns every stored source result for a session.
func (s *Storage) GetResults(sessionID string) (map[models.Source]models.SourceResult, error) {
	rows, err := s.db.Query(`
		SELECT source, status, raw, metrics, citations, error, fetched_at
		FROM source_results WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := make(map[models.Source]models.SourceResult)
	for rows.Next() {
		var r models.SourceResult
		var raw, metrics, citations string
		var fetchedAtNano int64
		if err := rows.Scan(&r.Source, &r.Status, &raw, &metrics, &citations, &r.Error, &fetchedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if raw != "" {
			r.Raw = json.RawMessage(raw)
		}
		if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		if err := json.Unmarshal([]byte(citations), &r.Citations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
		}
		r.FetchedAt = time.Unix(0, fetchedAtNano)
		results[r.Source] = r
	}
	return results, rows.Err()
}

// SaveScorecard upserts a session's scorecard.
func (s *Storage) SaveScorecard(sessionID string, card *models.Scorecard) error {
	breakdown, err := json.Marshal(card.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	neutral, err := json.Marshal(card.Neutral)
	if err != nil {
		return fmt.Errorf("failed to marshal neutral factors: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO scorecards (session_id, composite, breakdown, neutral, computed_at)
		VALUES (?,?,?,?,?)`,
		sessionID, card.Composite, string(breakdown), string(neutral), card.ComputedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save scorecard: %w", err)
	}
	return nil
}

// GetScorecard returns a session's scorecard.
func (s *Storage) GetScorecard(sessionID string) (*models.Scorecard, error) {
	row := s.db.QueryRow(`
		SELECT composite, breakdown, neutral, computed_at
		FROM scorecards WHERE session_id = ?`, sessionID)

	var card models.Scorecard
	var breakdown, neutral string
	var computedAtNano int64
	err := row.Scan(&card.Composite, &breakdown, &neutral, &computedAtNano)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scorecard for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scorecard: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &card.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(neutral), &card.Neutral); err != nil {
		return nil, fmt.Errorf("failed to unmarshal neutral factors: %w", err)
	}
	card.ComputedAt = time.Unix(0, computedAtNano)
	return &card, nil
}

// SetKV writes one key-value pair, last write wins.
func (s *Storage) SetKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?,?,?)`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set kv %s: %w", key, err)
	}
	return nil
}

// GetKV reads one key. A missing key returns ErrNotFound.
func (s *Storage) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("kv %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get kv %s: %w", key, err)
	}
	return value, nil
}

// RotateSessions keeps at most maxSessions newest sessions by
// updated_at. Cascading deletes remove associated results and
// scorecards.
func (s *Storage) RotateSessions() error {
	_, err := s.db.Exec(`
		DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY updated_at DESC LIMIT ?
		)`, s.maxSessions)
	if err != nil {
		return fmt.Errorf("failed to rotate sessions: %w", err)
	}
	return nil
}

const sessionCols = `id, idea, assumptions, refinement, created_at, updated_at`

func scanSession(scan func(...any) error) (*models.Session, error) {
	var session models.Session
	var assumptions, refinement string
	var createdAtNano, updatedAtNano int64
	err := scan(&session.ID, &session.Idea, &assumptions, &refinement, &createdAtNano, &updatedAtNano)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assumptions), &session.Assumptions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assumptions: %w", err)
	}
	if err := json.Unmarshal([]byte(refinement), &session.Refinement); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refinement: %w", err)
	}
	session.CreatedAt = time.Unix(0, createdAtNano)
	session.UpdatedAt = time.Unix(0, updatedAtNano)
	return &session, nil
}
