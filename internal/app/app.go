// Package app wires the frame loop, the session controller and the console
// link into the running pilot.
package app

import (
	"context"
	"time"

	"github.com/ayusman/yelkiran/internal/actuator"
	"github.com/ayusman/yelkiran/internal/capture"
	"github.com/ayusman/yelkiran/internal/collision"
	"github.com/ayusman/yelkiran/internal/detector"
	"github.com/ayusman/yelkiran/internal/link"
	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/ayusman/yelkiran/internal/session"
	"github.com/ayusman/yelkiran/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds everything the App drives. Link, Telemetry and Store are
// optional.
type Config struct {
	Source       capture.Source
	Detector     detector.Detector
	Actuator     actuator.Actuator
	Box          collision.Box
	Visualize    bool
	PublishEvery int

	// Session is used as-is except for Actuator, Journal, Metrics and
	// Logger, which the App fills in.
	Session session.Options

	Link      *link.ControlLink
	Telemetry *link.TelemetryStream
	Store     *store.Store
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// App is the main application that orchestrates detection, release and
// recording.
type App struct {
	config     Config
	log        zerolog.Logger
	pipeline   *Pipeline
	controller *session.Controller
	start      time.Time
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	log := config.Logger

	pipeline := NewPipeline(PipelineConfig{
		Source:       config.Source,
		Detector:     config.Detector,
		Actuator:     config.Actuator,
		Box:          config.Box,
		Visualize:    config.Visualize,
		PublishEvery: config.PublishEvery,
		Yield:        DefaultYield,
		Metrics:      config.Metrics,
		Logger:       log.With().Str("component", "frameloop").Logger(),
	})

	opts := config.Session
	opts.Actuator = config.Actuator
	opts.Metrics = config.Metrics
	opts.Logger = log.With().Str("component", "session").Logger()
	if config.Store != nil {
		opts.Journal = config.Store.Journal()
	}

	a := &App{
		config:     config,
		log:        log,
		pipeline:   pipeline,
		controller: session.NewController(opts),
		start:      time.Now(),
	}

	if config.Telemetry != nil {
		pipeline.AddPublisher(config.Telemetry)
		if config.Link != nil {
			config.Link.AddListener(config.Telemetry)
		}
	}
	if config.Store != nil {
		pipeline.OnEvent(a.journalRelease)
		if config.Link != nil {
			config.Link.AddListener(link.StateListenerFunc(a.journalLinkState))
		}
	}

	return a
}

// Pipeline returns the frame loop.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// OnEvent registers a pipeline event handler.
func (a *App) OnEvent(h EventHandler) {
	a.pipeline.OnEvent(h)
}

// AddPublisher registers an extra frame consumer, such as the preview.
func (a *App) AddPublisher(p Publisher) {
	a.pipeline.AddPublisher(p)
}

// Run starts the console link and runs the session loop until ctx is
// cancelled or a session error terminates it.
func (a *App) Run(ctx context.Context) error {
	if a.config.Link != nil {
		a.config.Link.Start(ctx)
	}

	a.log.Info().Msg("pilot started")
	err := a.controller.Run(ctx, a.pipeline)

	if a.config.Link != nil {
		a.config.Link.Terminate()
		<-a.config.Link.Done()
	}
	if a.config.Telemetry != nil {
		a.config.Telemetry.Close()
	}
	if a.config.Detector != nil {
		if cerr := a.config.Detector.Close(); cerr != nil {
			a.log.Warn().Err(cerr).Msg("close detector")
		}
	}

	a.log.Info().Msg("pilot stopped")
	return err
}

// Status is a snapshot of the running pilot.
type Status struct {
	Uptime     string        `json:"uptime"`
	Session    string        `json:"session_state"`
	Passes     int64         `json:"passes"`
	Current    *session.Info `json:"current_session,omitempty"`
	Colliding  bool          `json:"colliding"`
	SourceOpen bool          `json:"source_open"`
	Powered    bool          `json:"powered"`
	Link       string        `json:"link"`
	Box        collision.Box `json:"box"`
}

// Status returns a snapshot safe to call from any goroutine.
func (a *App) Status() Status {
	st := Status{
		Uptime:     time.Since(a.start).Round(time.Second).String(),
		Session:    a.controller.State().String(),
		Passes:     a.controller.Passes(),
		Colliding:  a.pipeline.Colliding(),
		SourceOpen: a.config.Source.IsOpen(),
		Powered:    actuator.IsPowered(a.config.Actuator),
		Link:       "disabled",
		Box:        a.pipeline.Box(),
	}
	if info, ok := a.controller.Current(); ok {
		st.Current = &info
	}
	if a.config.Link != nil {
		st.Link = a.config.Link.State().String()
	}
	return st
}

func (a *App) journalRelease(e Event) {
	if e.Type != EventRelease {
		return
	}
	rel := &store.Release{
		ID:        uuid.NewString(),
		X:         e.Point.X,
		Y:         e.Point.Y,
		CreatedAt: e.Time,
	}
	if info, ok := a.controller.Current(); ok {
		rel.SessionID = info.ID.String()
	}
	if err := a.config.Store.Releases().Create(rel); err != nil {
		a.log.Warn().Err(err).Msg("journal release")
	}
}

func (a *App) journalLinkState(s link.State) {
	err := a.config.Store.LinkEvents().Create(&store.LinkEvent{
		ID:     uuid.NewString(),
		State:  s.String(),
		Detail: a.linkAddr(),
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("journal link event")
	}
}

func (a *App) linkAddr() string {
	if a.config.Link == nil {
		return ""
	}
	return a.config.Link.Addr()
}
