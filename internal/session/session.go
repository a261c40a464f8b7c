// Package session owns the recording lifecycle: waiting for actuator power,
// opening one output artifact per pass, and restarting after power loss.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// ErrRecordingDisabled is returned by Begin when recording is turned off.
var ErrRecordingDisabled = errors.New("recording is disabled")

// State is the supervising loop's position.
type State int32

const (
	// AwaitingPower polls the actuator until it reports power.
	AwaitingPower State = iota
	// Recording runs a pass. Frames are persisted only when recording is
	// enabled.
	Recording
	// Stopped means Run has returned.
	Stopped
)

func (s State) String() string {
	switch s {
	case AwaitingPower:
		return "awaiting_power"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EndReason says why a pass ended.
type EndReason int

const (
	// PowerLost means the actuator reported no power mid-pass.
	PowerLost EndReason = iota
	// SourceExhausted means the video source ran out of frames.
	SourceExhausted
	// Cancelled means the context was cancelled.
	Cancelled
	// Failed means the pass returned an error.
	Failed
)

func (r EndReason) String() string {
	switch r {
	case PowerLost:
		return "power_lost"
	case SourceExhausted:
		return "source_exhausted"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorPolicy decides what a session-fatal error does to the loop.
type ErrorPolicy int

const (
	// Restart logs the error, waits and starts over from AwaitingPower.
	Restart ErrorPolicy = iota
	// Terminate returns the error from Run.
	Terminate
)

// ParsePolicy maps "restart" or "terminate" to an ErrorPolicy.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "restart", "":
		return Restart, nil
	case "terminate":
		return Terminate, nil
	default:
		return Restart, fmt.Errorf("unknown session error policy %q", s)
	}
}

func (p ErrorPolicy) String() string {
	if p == Terminate {
		return "terminate"
	}
	return "restart"
}

// Recorder accepts the frames of a pass.
type Recorder interface {
	Record(frame *gocv.Mat) error
}

// Discard is a Recorder that drops every frame.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(*gocv.Mat) error { return nil }

// Session is one recording attempt.
type Session struct {
	ID        uuid.UUID
	Seq       int
	Path      string
	StartedAt time.Time

	writer  FrameWriter
	frames  atomic.Int64
	onFrame func()
}

// Record appends frame to the session's artifact.
func (s *Session) Record(frame *gocv.Mat) error {
	if err := s.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame to %s: %w", s.Path, err)
	}
	s.frames.Add(1)
	if s.onFrame != nil {
		s.onFrame()
	}
	return nil
}

// Frames returns how many frames have been written.
func (s *Session) Frames() int64 {
	return s.frames.Load()
}

// Info is a point-in-time copy of a session.
type Info struct {
	ID        uuid.UUID `json:"id"`
	Seq       int       `json:"seq"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Frames    int64     `json:"frames"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	return Info{
		ID:        s.ID,
		Seq:       s.Seq,
		Path:      s.Path,
		StartedAt: s.StartedAt,
		Frames:    s.Frames(),
	}
}

// Journal records session boundaries. The store implements it.
type Journal interface {
	SessionStarted(info Info) error
	SessionFinished(info Info, reason EndReason, cause error) error
}
