package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session is a recording attempt as stored in the journal.
type Session struct {
	ID        string     `json:"id"`
	Seq       int        `json:"seq"`
	Path      string     `json:"path"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    int64      `json:"frames"`
	EndReason string     `json:"end_reason,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// SessionRepository provides access to recorded sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a started session.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, seq, path, started_at, frames)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Seq, sess.Path, sess.StartedAt, sess.Frames,
	)
	return err
}

// Finish records the end of a session.
func (r *SessionRepository) Finish(id string, endedAt time.Time, frames int64, reason, errMsg string) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ?, end_reason = ?, error = ?
		 WHERE id = ?`,
		endedAt, frames, reason, errMsg, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, seq, path, started_at, ended_at, frames, end_reason, error
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// List returns the most recent sessions first. limit <= 0 returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, seq, path, started_at, ended_at, frames, end_reason, error
		 FROM sessions ORDER BY started_at DESC, seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime
	err := sc.Scan(&sess.ID, &sess.Seq, &sess.Path, &sess.StartedAt, &ended, &sess.Frames, &sess.EndReason, &sess.Error)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}
