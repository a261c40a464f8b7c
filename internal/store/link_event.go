package store

import (
	"database/sql"
	"time"
)

// LinkEvent is a control link state transition.
type LinkEvent struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkEventRepository provides access to link events.
type LinkEventRepository struct {
	db *sql.DB
}

// LinkEvents returns the link event repository for this store.
func (s *Store) LinkEvents() *LinkEventRepository {
	return &LinkEventRepository{db: s.db}
}

// Create inserts a link event.
func (r *LinkEventRepository) Create(e *LinkEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO link_events (id, state, detail, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.State, e.Detail, e.CreatedAt,
	)
	return err
}

// List returns the most recent events first. limit <= 0 returns all.
func (r *LinkEventRepository) List(limit int) ([]*LinkEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, state, detail, created_at FROM link_events
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*LinkEvent
	for rows.Next() {
		e := &LinkEvent{}
		if err := rows.Scan(&e.ID, &e.State, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
