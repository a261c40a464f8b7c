// Package logging provides the process-wide log sink. Console output is
// duplicated into stdout.txt in the run directory, and warnings and errors
// are also copied into stderr.txt.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Sink.
type Options struct {
	// Dir is the directory for stdout.txt and stderr.txt. Empty disables
	// file output.
	Dir string
	// Level is a zerolog level name; empty means info.
	Level string
	// Console receives human-readable output. Defaults to os.Stdout.
	Console io.Writer
	// NoColor disables ANSI colours on the console writer.
	NoColor bool
}

// Sink owns the log files. Create it once in main, hand Logger() to the
// components, and Close it on exit.
type Sink struct {
	logger zerolog.Logger
	files  []*os.File
	mu     sync.Mutex
	closed bool
}

// Init builds the sink. The directory is created if needed.
func Init(opts Options) (*Sink, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly, NoColor: opts.NoColor},
	}

	s := &Sink{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		stdout, err := openLogFile(filepath.Join(opts.Dir, "stdout.txt"))
		if err != nil {
			return nil, err
		}
		stderr, err := openLogFile(filepath.Join(opts.Dir, "stderr.txt"))
		if err != nil {
			stdout.Close()
			return nil, err
		}
		s.files = []*os.File{stdout, stderr}

		writers = append(writers,
			zerolog.ConsoleWriter{Out: &fileTarget{s: s, f: stdout}, TimeFormat: time.TimeOnly, NoColor: true},
			&zerolog.FilteredLevelWriter{
				Writer: zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{Out: &fileTarget{s: s, f: stderr}, TimeFormat: time.TimeOnly, NoColor: true}},
				Level:  zerolog.WarnLevel,
			},
		)
	}

	s.logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return s, nil
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// fileTarget writes to a log file until the sink is closed, then discards.
type fileTarget struct {
	s *Sink
	f *os.File
}

func (t *fileTarget) Write(p []byte) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return len(p), nil
	}
	return t.f.Write(p)
}

// Logger returns the root logger.
func (s *Sink) Logger() zerolog.Logger {
	return s.logger
}

// Component returns a logger tagged with the component name.
func (s *Sink) Component(name string) zerolog.Logger {
	return s.logger.With().Str("component", name).Logger()
}

// Close syncs and closes the log files. Further writes go to the console
// only.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, f := range s.files {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.files = nil
	return firstErr
}

// Nop returns a logger that discards everything. Tests use it.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
