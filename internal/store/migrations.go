package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per recording attempt
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			frames INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		)`,

		// Releases table - one row per Clear to Colliding edge
		`CREATE TABLE IF NOT EXISTS releases (
			id TEXT PRIMARY KEY,
			session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Link events table - control link state transitions
		`CREATE TABLE IF NOT EXISTS link_events (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_releases_session_id ON releases(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_link_events_created_at ON link_events(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
