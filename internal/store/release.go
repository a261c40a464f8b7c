package store

import (
	"database/sql"
	"time"
)

// Release is one fired release.
type Release struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	CreatedAt time.Time `json:"created_at"`
}

// ReleaseRepository provides access to releases.
type ReleaseRepository struct {
	db *sql.DB
}

// Releases returns the release repository for this store.
func (s *Store) Releases() *ReleaseRepository {
	return &ReleaseRepository{db: s.db}
}

// Create inserts a release. An empty SessionID is stored as NULL.
func (r *ReleaseRepository) Create(rel *Release) error {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	var sessionID sql.NullString
	if rel.SessionID != "" {
		sessionID = sql.NullString{String: rel.SessionID, Valid: true}
	}
	_, err := r.db.Exec(
		`INSERT INTO releases (id, session_id, x, y, created_at) VALUES (?, ?, ?, ?, ?)`,
		rel.ID, sessionID, rel.X, rel.Y, rel.CreatedAt,
	)
	return err
}

// ListBySession returns the releases of a session in firing order.
func (r *ReleaseRepository) ListBySession(sessionID string) ([]*Release, error) {
	return r.query(
		`SELECT id, session_id, x, y, created_at FROM releases
		 WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
}

// List returns the most recent releases first. limit <= 0 returns all.
func (r *ReleaseRepository) List(limit int) ([]*Release, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(
		`SELECT id, session_id, x, y, created_at FROM releases
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
}

func (r *ReleaseRepository) query(q string, args ...any) ([]*Release, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []*Release
	for rows.Next() {
		rel := &Release{}
		var sessionID sql.NullString
		if err := rows.Scan(&rel.ID, &sessionID, &rel.X, &rel.Y, &rel.CreatedAt); err != nil {
			return nil, err
		}
		rel.SessionID = sessionID.String
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}
