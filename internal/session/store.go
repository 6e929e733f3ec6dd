// Package session persists per-driver conversation state so the two-step
// dialog survives process restarts.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// State names the step of the dialog the driver is currently in.
type State string

const (
	// StateAwaitingTime means the driver has been asked for the shift
	// start time.
	StateAwaitingTime State = "awaiting_time"
	// StateAwaitingOdometer means the start time was accepted and the
	// odometer reading is expected next.
	StateAwaitingOdometer State = "awaiting_odometer"
)

// Session is one driver's dialog position plus the inputs collected so
// far.
type Session struct {
	UserID    string
	State     State
	StartTime string
	UpdatedAt time.Time
}

// ErrNotFound reports that the driver has no active session.
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	start_time TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a sqlite-backed session repository.
type Store struct {
	db *sql.DB
}

// Open creates or opens the session database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to session database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply session schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the driver's session or ErrNotFound.
func (s *Store) Get(userID string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT user_id, state, start_time, updated_at FROM sessions WHERE user_id = ?`,
		userID,
	)
	var sess Session
	var state string
	if err := row.Scan(&sess.UserID, &state, &sess.StartTime, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.State = State(state)
	return &sess, nil
}

// Put inserts or replaces the driver's session.
func (s *Store) Put(sess *Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (user_id, state, start_time, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   state = excluded.state,
		   start_time = excluded.start_time,
		   updated_at = CURRENT_TIMESTAMP`,
		sess.UserID, string(sess.State), sess.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Reset removes the driver's session. Resetting an absent session is not
// an error.
func (s *Store) Reset(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}
