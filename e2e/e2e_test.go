package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayusman/yelkiran/internal/actuator"
	"github.com/ayusman/yelkiran/internal/app"
	"github.com/ayusman/yelkiran/internal/capture"
	"github.com/ayusman/yelkiran/internal/collision"
	"github.com/ayusman/yelkiran/internal/detector"
	"github.com/ayusman/yelkiran/internal/link"
	"github.com/ayusman/yelkiran/internal/logging"
	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/ayusman/yelkiran/internal/server"
	"github.com/ayusman/yelkiran/internal/session"
	"github.com/ayusman/yelkiran/internal/store"
	"github.com/ayusman/yelkiran/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type countingWriter struct{ frames atomic.Int64 }

func (w *countingWriter) Write(*gocv.Mat) error { w.frames.Add(1); return nil }
func (w *countingWriter) Close() error          { return nil }

// simulator accepts one connection and counts release bytes.
type simulator struct {
	ln       net.Listener
	releases atomic.Int64
	wg       sync.WaitGroup
}

func startSimulator(t *testing.T) *simulator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &simulator{ln: ln}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		for {
			n, err := conn.Read(buf)
			for _, b := range buf[:n] {
				if b == actuator.ReleaseCommand {
					s.releases.Add(1)
				}
			}
			if err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

// groundStation accepts control connections and collects heartbeats and
// telemetry datagrams.
type groundStation struct {
	control    net.Listener
	stream     net.PacketConn
	heartbeats atomic.Int64
	datagrams  atomic.Int64
	firstFrame chan []byte
}

func startGroundStation(t *testing.T) *groundStation {
	t.Helper()
	control, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	stream, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := &groundStation{control: control, stream: stream, firstFrame: make(chan []byte, 1)}

	go func() {
		for {
			conn, err := control.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 64)
				for {
					n, err := c.Read(buf)
					gs.heartbeats.Add(int64(bytes.Count(buf[:n], []byte(link.HeartbeatPayload))))
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	go func() {
		buf := make([]byte, link.DefaultMaxDatagramSize)
		for {
			n, _, err := stream.ReadFrom(buf)
			if err != nil {
				return
			}
			if gs.datagrams.Add(1) == 1 {
				gs.firstFrame <- append([]byte(nil), buf[:n]...)
			}
		}
	}()

	t.Cleanup(func() {
		control.Close()
		stream.Close()
	})
	return gs
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestE2E_MissionWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	log := logging.Nop()

	s, err := store.New(filepath.Join(tmpDir, "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	sim := startSimulator(t)
	gs := startGroundStation(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, err := actuator.DialRemote(ctx, sim.ln.Addr().String(), log)
	require.NoError(t, err)
	defer remote.Close()

	m := metrics.New()
	control := link.NewControlLink(link.ControlOptions{
		Addr:            gs.control.Addr().String(),
		RetryDelay:      20 * time.Millisecond,
		HeartbeatPeriod: 20 * time.Millisecond,
		Metrics:         m,
		Logger:          log,
	})
	telemetry := link.NewTelemetryStream(link.TelemetryOptions{
		Addr:    gs.stream.LocalAddr().String(),
		Gate:    control,
		Metrics: m,
		Logger:  log,
	})

	frames := testdata.Sequence(testdata.VGA, []image.Point{{320, 240}, {20, 20}}, nil, 20)
	defer testdata.CloseAll(frames)

	// Two entries into the box, then the target stays outside.
	inside := collision.At(320, 240)
	outside := collision.At(20, 20)
	det := detector.NewMockDetector()
	det.SetSequence([]collision.Detection{outside, inside, inside, outside, inside})
	det.SetResult(outside)

	writer := &countingWriter{}
	a := app.New(app.Config{
		Source:       capture.NewMockCamera(frames, true),
		Detector:     det,
		Actuator:     remote,
		Box:          collision.Box{Width: 100, Height: 100},
		Visualize:    true,
		PublishEvery: 1,
		Session: session.Options{
			Dir:    tmpDir,
			Record: true,
			FPS:    30,
			NewWriter: func(string, int, image.Point) (session.FrameWriter, error) {
				return writer, nil
			},
		},
		Link:      control,
		Telemetry: telemetry,
		Store:     s,
		Metrics:   m,
		Logger:    log,
	})

	events := server.NewEventHub(log)
	a.OnEvent(func(e app.Event) { events.Broadcast(e) })

	srv := server.New(server.Config{
		Store:   s,
		Status:  func() any { return a.Status() },
		Events:  events,
		Metrics: m.Handler(),
		Logger:  log,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer events.Close()
	client := ts.Client()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	t.Run("Release", func(t *testing.T) {
		require.Eventually(t, func() bool { return sim.releases.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("ControlLink", func(t *testing.T) {
		require.Eventually(t, func() bool { return gs.heartbeats.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
		assert.Equal(t, link.Connected, control.State())
	})

	t.Run("Telemetry", func(t *testing.T) {
		select {
		case frame := <-gs.firstFrame:
			require.Greater(t, len(frame), 2)
			assert.Equal(t, []byte{0xFF, 0xD8}, frame[:2], "datagram is a JPEG")
		case <-time.After(5 * time.Second):
			t.Fatal("no telemetry datagram received")
		}
	})

	t.Run("Status", func(t *testing.T) {
		var st app.Status
		getJSON(t, client, ts.URL+"/api/status", &st)
		assert.Equal(t, "recording", st.Session)
		assert.Equal(t, "connected", st.Link)
		require.NotNil(t, st.Current)
		assert.Equal(t, 0, st.Current.Seq)
	})

	t.Run("Journal", func(t *testing.T) {
		var releases []store.Release
		getJSON(t, client, ts.URL+"/api/releases", &releases)
		require.Len(t, releases, 2)

		var sessions []store.Session
		getJSON(t, client, ts.URL+"/api/sessions", &sessions)
		require.Len(t, sessions, 1)
		for _, r := range releases {
			assert.Equal(t, sessions[0].ID, r.SessionID)
		}

		var linkEvents []store.LinkEvent
		getJSON(t, client, ts.URL+"/api/link-events", &linkEvents)
		states := make([]string, 0, len(linkEvents))
		for _, e := range linkEvents {
			states = append(states, e.State)
		}
		assert.Contains(t, states, "connected")
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	t.Run("Shutdown", func(t *testing.T) {
		assert.Greater(t, writer.frames.Load(), int64(0))

		sessions, err := s.Sessions().List(0)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.NotNil(t, sessions[0].EndedAt)
		assert.Equal(t, "cancelled", sessions[0].EndReason)
		assert.Equal(t, int64(2), sim.releases.Load(), "no release after the target left")
	})
}
