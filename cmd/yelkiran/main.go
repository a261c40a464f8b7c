package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayusman/yelkiran/internal/app"
	"github.com/ayusman/yelkiran/internal/config"
	"github.com/ayusman/yelkiran/internal/link"
	"github.com/ayusman/yelkiran/internal/logging"
	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/ayusman/yelkiran/internal/server"
	"github.com/ayusman/yelkiran/internal/session"
	"github.com/ayusman/yelkiran/internal/store"
)

// previewInterval throttles JPEG encoding for the MJPEG preview.
const previewInterval = 100 * time.Millisecond

func main() {
	envFile := flag.String("env", "", "path to the .env file (default .env)")
	flag.Parse()

	cfg, _, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outDir, err := prepareRunDir(cfg, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
		os.Exit(1)
	}

	logOpts := logging.Options{Level: cfg.General.LogLevel}
	if cfg.General.Logging {
		logOpts.Dir = outDir
	}
	sink, err := logging.Init(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	logger := sink.Logger()
	logger.Info().
		Str("output_dir", outDir).
		Bool("preview", cfg.General.Preview).
		Bool("recording", cfg.General.Record).
		Bool("logging", cfg.General.Logging).
		Str("mode", cfg.General.VideoSource).
		Msg("yelkiran starting")

	hw, err := openHardware(ctx, cfg, sink)
	if err != nil {
		logger.Fatal().Err(err).Str("mode", cfg.General.VideoSource).Msg("actuator unavailable")
	}
	defer hw.Close()
	hw.source.SetFPS(cfg.General.FPS)

	st, err := store.New(storePath(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("open journal")
	}
	defer st.Close()

	m := metrics.New()

	var (
		control   *link.ControlLink
		telemetry *link.TelemetryStream
	)
	if cfg.GroundStation.Enabled {
		control, telemetry = newGroundStation(cfg.GroundStation, m, sink)
	}

	policy, err := session.ParsePolicy(cfg.Session.OnError)
	if err != nil {
		logger.Fatal().Err(err).Msg("session policy")
	}

	a := app.New(app.Config{
		Source:       hw.source,
		Detector:     newDetector(cfg.OpenCV),
		Actuator:     hw.actuator,
		Box:          boxFromConfig(cfg.OpenCV),
		Visualize:    cfg.General.Visualize,
		PublishEvery: cfg.GroundStation.PublishEvery,
		Session: session.Options{
			Dir:               outDir,
			Record:            cfg.General.Record,
			FPS:               cfg.General.FPS,
			PowerPollInterval: cfg.Session.PowerPollInterval,
			RestartDelay:      cfg.Session.RestartDelay,
			Policy:            policy,
			NewWriter:         session.NewVideoWriter(cfg.Session.Codec),
		},
		Link:      control,
		Telemetry: telemetry,
		Store:     st,
		Metrics:   m,
		Logger:    logger,
	})

	if cfg.General.Preview {
		startServer(ctx, cfg.Server, a, st, m, sink)
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("pilot stopped")
		return
	}
	logger.Info().Msg("pilot stopped")
}

// newGroundStation builds the control link and the telemetry stream that
// follows it.
func newGroundStation(gs config.GroundStation, m *metrics.Metrics, sink *logging.Sink) (*link.ControlLink, *link.TelemetryStream) {
	control := link.NewControlLink(link.ControlOptions{
		Addr:            gs.QueryAddr(),
		RetryDelay:      gs.RetryDelay,
		HeartbeatPeriod: gs.HeartbeatPeriod,
		Metrics:         m,
		Logger:          sink.Component("control"),
	})
	control.SetHandler(func(msg []byte) {
		sink.Component("control").Debug().Int("bytes", len(msg)).Msg("console message")
	})

	telemetry := link.NewTelemetryStream(link.TelemetryOptions{
		Addr:     gs.StreamAddr(),
		Cooldown: gs.StreamCooldown,
		Encoder:  link.NewJPEGEncoder(gs.StreamQuality, gs.MaxDatagramSize),
		Gate:     control,
		Metrics:  m,
		Logger:   sink.Component("telemetry"),
	})
	return control, telemetry
}

// startServer runs the operator HTTP surface until ctx is done.
func startServer(ctx context.Context, sc config.Server, a *app.App, st *store.Store, m *metrics.Metrics, sink *logging.Sink) {
	log := sink.Component("server")

	preview := server.NewPreviewHub(previewInterval, log)
	a.AddPublisher(preview)

	events := server.NewEventHub(log)
	a.OnEvent(func(e app.Event) { events.Broadcast(e) })

	staticDir := sc.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Info().Str("dir", staticDir).Msg("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Status:    func() any { return a.Status() },
		Preview:   preview,
		Events:    events,
		Metrics:   m.Handler(),
		Logger:    log,
	})

	go func() {
		log.Info().Str("addr", sc.Addr).Msg("starting server")
		if err := srv.ListenAndServe(ctx, sc.Addr); err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}()
}
