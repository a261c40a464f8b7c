package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/yelkiran/internal/actuator"
	"github.com/ayusman/yelkiran/internal/capture"
	"github.com/ayusman/yelkiran/internal/collision"
	"github.com/ayusman/yelkiran/internal/config"
	"github.com/ayusman/yelkiran/internal/detector"
	"github.com/ayusman/yelkiran/internal/logging"
)

// runDirLayout names the per-run output directory.
const runDirLayout = "recording 02.01.2006 15-04-05"

// Simulator cameras are forced to 720p.
const (
	simulatorWidth  = 1280
	simulatorHeight = 720
)

// runDirName returns the output directory for a run started at t.
func runDirName(recordDir string, t time.Time) string {
	return filepath.Join(recordDir, t.Format(runDirLayout))
}

// prepareRunDir creates the per-run directory when anything will be
// written into it. Otherwise the record directory itself is returned.
func prepareRunDir(cfg *config.Config, now time.Time) (string, error) {
	if !cfg.General.Record && !cfg.General.Logging {
		return cfg.General.RecordDir, nil
	}

	dir := runDirName(cfg.General.RecordDir, now)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// storePath resolves the journal location. The journal outlives a single
// run, so relative paths sit next to the run directories.
func storePath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Store.Path) {
		return cfg.Store.Path
	}
	return filepath.Join(cfg.General.RecordDir, cfg.Store.Path)
}

// hardware is the actuator and frame source chosen by the mode.
type hardware struct {
	actuator actuator.Actuator
	source   capture.Source
	closers  []io.Closer
}

// Close releases the actuator connections.
func (h *hardware) Close() error {
	var firstErr error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openHardware selects the actuator and source for general.video-source.
// The simulator link and the serial board are opened once; failure is
// returned to the caller, which stops the process.
func openHardware(ctx context.Context, cfg *config.Config, sink *logging.Sink) (*hardware, error) {
	log := sink.Component("actuator")

	switch cfg.General.VideoSource {
	case config.ModeSimulator:
		remote, err := actuator.DialRemote(ctx, cfg.Simulator.Addr(), log)
		if err != nil {
			return nil, err
		}
		return &hardware{
			actuator: remote,
			source:   capture.NewCamera(cfg.General.CameraIndex, simulatorWidth, simulatorHeight),
			closers:  []io.Closer{remote},
		}, nil

	case config.ModeFile:
		return &hardware{
			actuator: actuator.NewNull(log),
			source:   capture.NewFileSource(cfg.File.VideoPath),
		}, nil

	default:
		board, err := actuator.OpenBoard(cfg.Serial.Port, cfg.Serial.BaudRate, actuator.OpenSerialPort, log)
		if err != nil {
			return nil, err
		}
		physical, err := actuator.NewPhysical(board.Servo(), board.LED(), board.Switch(), log)
		if err != nil {
			board.Close()
			return nil, fmt.Errorf("configure actuator board: %w", err)
		}
		go func() {
			if err := board.Monitor(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("actuator board stopped")
			}
		}()
		return &hardware{
			actuator: physical,
			source:   capture.NewCamera(cfg.General.CameraIndex, 0, 0),
			closers:  []io.Closer{board},
		}, nil
	}
}

func newDetector(oc config.OpenCV) *detector.ColorDetector {
	return detector.NewColorDetector(detector.HSVRange{Lower: oc.Lower, Upper: oc.Upper})
}

func boxFromConfig(oc config.OpenCV) collision.Box {
	return collision.Box{
		Width:   oc.BoxWidth,
		Height:  oc.BoxHeight,
		OffsetX: oc.BoxOffsetX,
		OffsetY: oc.BoxOffsetY,
	}
}

// findWebDir searches for the operator web directory in common locations.
// It checks: "web", "../web" and "../../web".
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
