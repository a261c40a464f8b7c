package store

import (
	"github.com/ayusman/yelkiran/internal/session"
)

// Journal adapts the store to session.Journal.
type Journal struct {
	s *Store
}

// Journal returns the session journal backed by this store.
func (s *Store) Journal() *Journal {
	return &Journal{s: s}
}

// SessionStarted inserts the session row.
func (j *Journal) SessionStarted(info session.Info) error {
	return j.s.Sessions().Create(&Session{
		ID:        info.ID.String(),
		Seq:       info.Seq,
		Path:      info.Path,
		StartedAt: info.StartedAt,
	})
}

// SessionFinished records the end of the session.
func (j *Journal) SessionFinished(info session.Info, reason session.EndReason, cause error) error {
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	return j.s.Sessions().Finish(info.ID.String(), info.EndedAt, info.Frames, reason.String(), msg)
}
