package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/yelkiran/internal/actuator"
	"github.com/ayusman/yelkiran/internal/capture"
	"github.com/ayusman/yelkiran/internal/collision"
	"github.com/ayusman/yelkiran/internal/detector"
	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/ayusman/yelkiran/internal/session"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// DefaultYield is the pause between frames.
const DefaultYield = 5 * time.Millisecond

// EventType names a pipeline event.
type EventType string

const (
	EventCollisionEntered EventType = "collision_entered"
	EventCollisionCleared EventType = "collision_cleared"
	EventRelease          EventType = "release"
)

// Event is emitted on collision edges and releases.
type Event struct {
	Type  EventType   `json:"type"`
	Point image.Point `json:"point"`
	Time  time.Time   `json:"time"`
}

// EventHandler receives pipeline events on the frame loop goroutine. It
// must not block.
type EventHandler func(Event)

// Publisher receives processed frames. Publish must not block and must not
// retain the frame.
type Publisher interface {
	Publish(frame *gocv.Mat) bool
}

// PipelineConfig configures the frame loop.
type PipelineConfig struct {
	Source    capture.Source
	Detector  detector.Detector
	Actuator  actuator.Actuator
	Box       collision.Box
	Visualize bool
	// PublishEvery forwards every Nth frame to publishers.
	PublishEvery int
	Yield        time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// Pipeline is the per-frame decision loop. It implements session.Pass: one
// Open/Run/Close cycle per session.
type Pipeline struct {
	cfg     PipelineConfig
	log     zerolog.Logger
	tracker *collision.Tracker

	// box is fixed for the duration of a pass.
	box collision.Box

	frames    uint64
	colliding atomic.Bool

	mu         sync.RWMutex
	pendingBox collision.Box
	publishers []Publisher
	handlers   []EventHandler
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.PublishEvery <= 0 {
		cfg.PublishEvery = 1
	}
	if cfg.Yield < 0 {
		cfg.Yield = 0
	}
	return &Pipeline{
		cfg:        cfg,
		log:        cfg.Logger,
		tracker:    collision.NewTracker(),
		box:        cfg.Box,
		pendingBox: cfg.Box,
	}
}

// AddPublisher registers a frame publisher.
func (p *Pipeline) AddPublisher(pub Publisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishers = append(p.publishers, pub)
}

// OnEvent registers an event handler.
func (p *Pipeline) OnEvent(h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// SetBox replaces the collision box. It takes effect at the next pass.
func (p *Pipeline) SetBox(b collision.Box) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingBox = b
}

// Box returns the box used by the current pass.
func (p *Pipeline) Box() collision.Box {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.box
}

// Colliding reports the tracker state as of the last processed frame.
func (p *Pipeline) Colliding() bool {
	return p.colliding.Load()
}

// Open opens the source, reloads the box and resets the tracker.
func (p *Pipeline) Open() (image.Point, error) {
	if err := p.cfg.Source.Open(); err != nil {
		return image.Point{}, err
	}

	p.mu.Lock()
	p.box = p.pendingBox
	p.mu.Unlock()

	p.tracker.Reset()
	p.colliding.Store(false)
	p.cfg.Metrics.SetColliding(false)
	p.frames = 0

	size := p.cfg.Source.Size()
	p.log.Debug().Int("width", size.X).Int("height", size.Y).Msg("source opened")
	return size, nil
}

// FPS reports the source's frame rate so recordings play back at the rate
// they were captured.
func (p *Pipeline) FPS() int {
	return p.cfg.Source.FPS()
}

// Close releases the source.
func (p *Pipeline) Close() error {
	return p.cfg.Source.Close()
}

// Run processes frames until power is lost, the source is exhausted or ctx
// is cancelled. A recording failure ends the pass with an error.
func (p *Pipeline) Run(ctx context.Context, rec session.Recorder) (session.EndReason, error) {
	for {
		if ctx.Err() != nil {
			return session.Cancelled, nil
		}
		if !actuator.IsPowered(p.cfg.Actuator) {
			p.cfg.Metrics.SetPowered(false)
			return session.PowerLost, nil
		}

		frame, err := p.cfg.Source.ReadFrame()
		if err != nil {
			if !errors.Is(err, capture.ErrEndOfStream) {
				p.log.Warn().Err(err).Msg("frame read failed, ending pass")
			}
			return session.SourceExhausted, nil
		}

		err = p.ProcessFrame(frame, rec)
		frame.Close()
		if err != nil {
			return session.Failed, err
		}

		if p.cfg.Yield > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.Yield):
			}
		}
	}
}

// ProcessFrame runs detection and tracking on one frame, fires the release
// on a Clear to Colliding edge, records the frame and forwards it to the
// publishers. Detector errors skip tracking for the frame.
func (p *Pipeline) ProcessFrame(frame *gocv.Mat, rec session.Recorder) error {
	size := image.Pt(frame.Cols(), frame.Rows())

	det, err := p.cfg.Detector.Detect(frame)
	if err != nil {
		p.log.Debug().Err(err).Msg("detection skipped")
		p.cfg.Metrics.FrameSkipped()
	} else {
		p.track(det, size)
	}

	if p.cfg.Visualize {
		drawOverlay(frame, det, p.box.Bounds(size), p.colliding.Load())
	}

	if rec != nil {
		if err := rec.Record(frame); err != nil {
			return err
		}
	}

	p.frames++
	if p.frames%uint64(p.cfg.PublishEvery) == 0 {
		p.mu.RLock()
		pubs := p.publishers
		p.mu.RUnlock()
		for _, pub := range pubs {
			pub.Publish(frame)
		}
	}
	return nil
}

func (p *Pipeline) track(det collision.Detection, size image.Point) {
	was := p.colliding.Load()
	colliding, entered := p.tracker.Update(det, p.box, size)
	p.colliding.Store(colliding)
	p.cfg.Metrics.SetColliding(colliding)
	p.cfg.Metrics.FrameProcessed()

	now := time.Now()
	switch {
	case entered:
		p.log.Info().Int("x", det.Point.X).Int("y", det.Point.Y).Msg("collision detected, releasing")
		p.cfg.Actuator.Release()
		p.cfg.Metrics.CollisionEntered()
		p.emit(Event{Type: EventCollisionEntered, Point: det.Point, Time: now})
		p.emit(Event{Type: EventRelease, Point: det.Point, Time: now})
	case was && !colliding:
		p.log.Info().Msg("collision over")
		p.emit(Event{Type: EventCollisionCleared, Point: det.Centroid(), Time: now})
	}
}

func (p *Pipeline) emit(e Event) {
	p.mu.RLock()
	handlers := p.handlers
	p.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}
