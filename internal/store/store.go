package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = fmt.Errorf("not found: %w", sql.ErrNoRows)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each connection to an in-memory database sees its own empty database.
	if strings.HasPrefix(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'STUDENT',
		persona TEXT,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS problems (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		statement TEXT NOT NULL,
		topic_tags TEXT NOT NULL DEFAULT '[]',
		difficulty INTEGER NOT NULL DEFAULT 1,
		moves_suggested TEXT NOT NULL DEFAULT '[]',
		rubric TEXT NOT NULL DEFAULT '[]',
		solution_outline TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS moves (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		when_to_use TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL DEFAULT '[]',
		common_trap TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		problem_id TEXT NOT NULL,
		persona TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		start_confidence INTEGER NOT NULL DEFAULT 50,
		final_confidence INTEGER,
		attempt_text TEXT,
		estimated_marks INTEGER,
		feedback_json TEXT,
		move_clicks TEXT NOT NULL DEFAULT '[]',
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (problem_id) REFERENCES problems(id)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		claim_text TEXT NOT NULL DEFAULT '',
		reason_text TEXT NOT NULL DEFAULT '',
		link_text TEXT NOT NULL DEFAULT '',
		confidence INTEGER NOT NULL DEFAULT 50,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_claims_attempt ON claims(attempt_id);

	CREATE TABLE IF NOT EXISTS hints (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL,
		rung TEXT NOT NULL,
		hint_text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_hints_attempt ON hints(attempt_id);

	CREATE TABLE IF NOT EXISTS move_states (
		user_id INTEGER NOT NULL,
		move_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'NOT_YET',
		pinned BOOLEAN NOT NULL DEFAULT 0,
		last_example_text TEXT,
		PRIMARY KEY (user_id, move_id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		teacher_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		due_at TEXT NOT NULL,
		problem_ids TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (teacher_id) REFERENCES users(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func toJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// stringList marshals a slice, writing [] rather than null for nil.
func stringList(v []string) string {
	if v == nil {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func fromJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
