package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/yelkiran/internal/actuator"
	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Controller defaults.
const (
	DefaultPowerPollInterval = 100 * time.Millisecond
	DefaultRestartDelay      = 3 * time.Second
)

// Pass is one run of the frame loop over a freshly opened source.
type Pass interface {
	// Open acquires the video source and reports its frame size.
	Open() (image.Point, error)
	// Run processes frames until power is lost, the source is exhausted or
	// ctx is cancelled.
	Run(ctx context.Context, rec Recorder) (EndReason, error)
	// Close releases the source. It is called after every successful Open.
	Close() error
}

// Options configures a Controller.
type Options struct {
	// Dir receives the output artifacts.
	Dir string
	// Record enables persisting frames.
	Record bool
	// FPS is written into the artifact header.
	FPS int

	Actuator          actuator.Actuator
	PowerPollInterval time.Duration
	RestartDelay      time.Duration
	Policy            ErrorPolicy

	NewWriter WriterFactory
	Journal   Journal
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Controller is the supervising loop around passes. All methods except
// State, Current and Passes must be called from the loop's goroutine.
type Controller struct {
	opts Options
	log  zerolog.Logger

	state  atomic.Int32
	passes atomic.Int64

	mu      sync.RWMutex
	current *Session
}

// NewController applies defaults to opts.
func NewController(opts Options) *Controller {
	if opts.PowerPollInterval <= 0 {
		opts.PowerPollInterval = DefaultPowerPollInterval
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.NewWriter == nil {
		opts.NewWriter = NewVideoWriter(DefaultCodec)
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	c := &Controller{opts: opts, log: opts.Logger}
	c.state.Store(int32(AwaitingPower))
	return c
}

// State returns the loop's current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Passes returns how many passes have started.
func (c *Controller) Passes() int64 {
	return c.passes.Load()
}

// Current returns a snapshot of the active session, if any.
func (c *Controller) Current() (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Info{}, false
	}
	return c.current.Info(), true
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// AwaitPower blocks until the actuator reports power, polling at the
// configured interval. It returns immediately when power is already on.
func (c *Controller) AwaitPower(ctx context.Context) error {
	c.setState(AwaitingPower)
	if actuator.IsPowered(c.opts.Actuator) {
		c.opts.Metrics.SetPowered(true)
		return nil
	}
	c.opts.Metrics.SetPowered(false)
	c.log.Info().Msg("waiting for actuator power")

	ticker := time.NewTicker(c.opts.PowerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if actuator.IsPowered(c.opts.Actuator) {
				c.opts.Metrics.SetPowered(true)
				c.log.Info().Msg("actuator powered")
				return nil
			}
		}
	}
}

// FrameRater is implemented by passes that know their source's frame rate.
// A positive rate overrides Options.FPS for the artifact.
type FrameRater interface {
	FPS() int
}

// Begin creates the next output artifact for frames of the given size at
// Options.FPS.
func (c *Controller) Begin(size image.Point) (*Session, error) {
	return c.begin(size, c.opts.FPS)
}

func (c *Controller) begin(size image.Point, fps int) (*Session, error) {
	if !c.opts.Record {
		return nil, ErrRecordingDisabled
	}

	path, seq, err := NextPath(c.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	w, err := c.opts.NewWriter(path, fps, size)
	if err != nil {
		return nil, fmt.Errorf("begin session %d: %w", seq, err)
	}

	s := &Session{
		ID:        uuid.New(),
		Seq:       seq,
		Path:      path,
		StartedAt: time.Now(),
		writer:    w,
		onFrame:   c.opts.Metrics.FrameRecorded,
	}

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	c.opts.Metrics.SessionStarted()
	c.log.Info().
		Str("session", s.ID.String()).
		Int("seq", seq).
		Int("fps", fps).
		Str("path", path).
		Msg("recording started")

	if c.opts.Journal != nil {
		if err := c.opts.Journal.SessionStarted(s.Info()); err != nil {
			c.log.Warn().Err(err).Msg("journal session start")
		}
	}
	return s, nil
}

// Finish closes the session's artifact. It is safe to call with nil.
func (c *Controller) Finish(s *Session, reason EndReason, cause error) error {
	if s == nil {
		return nil
	}

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	err := s.writer.Close()
	if err != nil {
		err = fmt.Errorf("close %s: %w", s.Path, err)
	}

	info := s.Info()
	info.EndedAt = time.Now()
	c.opts.Metrics.SessionEnded()
	c.log.Info().
		Str("session", s.ID.String()).
		Str("reason", reason.String()).
		Int64("frames", info.Frames).
		Msg("recording finished")

	if c.opts.Journal != nil {
		if jerr := c.opts.Journal.SessionFinished(info, reason, cause); jerr != nil {
			c.log.Warn().Err(jerr).Msg("journal session finish")
		}
	}
	return err
}

// RunOnce waits for power and runs a single pass. The source and artifact
// are released on every exit path.
func (c *Controller) RunOnce(ctx context.Context, pass Pass) (reason EndReason, err error) {
	if err := c.AwaitPower(ctx); err != nil {
		return Cancelled, nil
	}

	size, err := pass.Open()
	if err != nil {
		return Failed, fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := pass.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("close source")
		}
	}()

	fps := c.opts.FPS
	if r, ok := pass.(FrameRater); ok && r.FPS() > 0 {
		fps = r.FPS()
	}

	rec := Discard
	s, err := c.begin(size, fps)
	switch {
	case err == nil:
		rec = s
	case errors.Is(err, ErrRecordingDisabled):
	default:
		return Failed, err
	}

	c.setState(Recording)
	c.passes.Add(1)

	reason, err = pass.Run(ctx, rec)
	if err != nil {
		reason = Failed
	}
	if ferr := c.Finish(s, reason, err); ferr != nil && err == nil {
		err = ferr
	}
	return reason, err
}

// Run is the supervising loop. It alternates between AwaitingPower and
// Recording until ctx is cancelled. Session-fatal errors are handled by the
// configured ErrorPolicy.
func (c *Controller) Run(ctx context.Context, pass Pass) error {
	defer c.setState(Stopped)

	for {
		if ctx.Err() != nil {
			return nil
		}

		reason, err := c.RunOnce(ctx, pass)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.opts.Metrics.SessionFailed()
			if c.opts.Policy == Terminate {
				c.log.Error().Err(err).Msg("session failed, terminating")
				return err
			}
			c.log.Error().Err(err).Dur("delay", c.opts.RestartDelay).Msg("session failed, restarting")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.opts.RestartDelay):
			}
			continue
		}

		switch reason {
		case Cancelled:
			return nil
		case PowerLost:
			c.log.Info().Msg("actuator power lost")
		case SourceExhausted:
			c.log.Info().Msg("video source exhausted")
		}
	}
}
