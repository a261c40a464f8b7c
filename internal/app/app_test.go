package app

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/yelkiran/internal/capture"
	"github.com/ayusman/yelkiran/internal/detector"
	"github.com/ayusman/yelkiran/internal/logging"
	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/ayusman/yelkiran/internal/session"
	"github.com/ayusman/yelkiran/internal/store"
	"github.com/ayusman/yelkiran/testdata"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fileWriter struct{ frames int }

func (w *fileWriter) Write(*gocv.Mat) error { w.frames++; return nil }
func (w *fileWriter) Close() error          { return nil }

func touchWriter(path string, fps int, size image.Point) (session.FrameWriter, error) {
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	return &fileWriter{}, nil
}

func TestApp_RunRecordsSessionsAndReleases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	frames := testdata.Sequence(testdata.VGA, []image.Point{{320, 240}, {320, 240}, {320, 240}}, nil, 20)
	defer testdata.CloseAll(frames)

	det := detector.NewMockDetector()
	det.SetResult(inside)
	act := newFakeActuator()
	m := metrics.New()

	a := New(Config{
		Source:   capture.NewMockCamera(frames, false),
		Detector: det,
		Actuator: act,
		Box:      box,
		Session: session.Options{
			Dir:       dir,
			Record:    true,
			FPS:       30,
			NewWriter: touchWriter,
		},
		Store:   s,
		Metrics: m,
		Logger:  logging.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		list, err := s.Sessions().List(0)
		return err == nil && len(list) >= 3
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}

	sessions, err := s.Sessions().List(0)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, sess := range sessions {
		assert.False(t, seen[sess.Seq], "sequence %d reused", sess.Seq)
		seen[sess.Seq] = true
	}
	assert.FileExists(t, filepath.Join(dir, "video.avi"))
	assert.FileExists(t, filepath.Join(dir, "video_1.avi"))

	// Each pass starts Clear, so each pass releases once.
	releases, err := s.Releases().List(0)
	require.NoError(t, err)
	assert.Equal(t, int(act.releases.Load()), len(releases))
	assert.GreaterOrEqual(t, len(releases), 3)
	for _, r := range releases {
		assert.NotEmpty(t, r.SessionID)
	}
	assert.Equal(t, float64(len(releases)), testutil.ToFloat64(m.Releases))

	st := a.Status()
	assert.Equal(t, "stopped", st.Session)
	assert.Equal(t, "disabled", st.Link)
	assert.Nil(t, st.Current)
}

func TestApp_WaitsForPower(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := testdata.Sequence(testdata.VGA, []image.Point{{320, 240}}, nil, 20)
	defer testdata.CloseAll(frames)

	act := newFakeActuator()
	act.power.Store(false)
	cam := capture.NewMockCamera(frames, true)

	a := New(Config{
		Source:   cam,
		Detector: detector.NewMockDetector(),
		Actuator: act,
		Box:      box,
		Session: session.Options{
			Dir:               t.TempDir(),
			PowerPollInterval: 10 * time.Millisecond,
		},
		Logger: logging.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, cam.Opens(), "source stays closed without power")
	assert.Equal(t, "awaiting_power", a.Status().Session)
	assert.False(t, a.Status().Powered)
	assert.False(t, a.Status().SourceOpen)

	act.power.Store(true)
	require.Eventually(t, func() bool { return cam.Opens() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return a.Status().Session == "recording" }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return a.Status().SourceOpen }, time.Second, 5*time.Millisecond)

	act.power.Store(false)
	require.Eventually(t, func() bool { return a.Status().Session == "awaiting_power" }, time.Second, 5*time.Millisecond)
	assert.False(t, cam.IsOpen(), "source is released on power loss")

	cancel()
	require.NoError(t, <-done)
}
