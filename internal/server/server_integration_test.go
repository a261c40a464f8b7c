package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/yelkiran/internal/logging"
	"github.com/ayusman/yelkiran/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_JournalWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Sessions().Create(&store.Session{ID: "sess-1", Seq: 0, Path: "video.avi"}))
	require.NoError(t, s.Releases().Create(&store.Release{ID: "rel-1", SessionID: "sess-1", X: 320, Y: 240}))
	require.NoError(t, s.Sessions().Finish("sess-1", time.Now(), 120, "power_lost", ""))

	srv := New(Config{Store: s, Logger: logging.Nop()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	resp, err := client.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	var listed struct {
		Sessions []store.Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, "power_lost", listed.Sessions[0].EndReason)
	assert.EqualValues(t, 120, listed.Sessions[0].Frames)

	resp, err = client.Get(ts.URL + "/api/sessions/sess-1/releases")
	require.NoError(t, err)
	var releases struct {
		Releases []store.Release `json:"releases"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&releases))
	resp.Body.Close()
	require.Len(t, releases.Releases, 1)
	assert.Equal(t, 320, releases.Releases[0].X)

	resp, err = client.Get(ts.URL + "/api/releases")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestPreviewHub_StreamsPublishedFrames(t *testing.T) {
	hub := NewPreviewHub(time.Millisecond, logging.Nop())
	ts := httptest.NewServer(New(Config{Preview: hub}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	jpeg := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	hub.publishJPEG(jpeg)

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
	line, _ = r.ReadString('\n')
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)
	line, _ = r.ReadString('\n')
	assert.Equal(t, "Content-Length: 6\r\n", line)
	_, _ = r.ReadString('\n')
	body := make([]byte, len(jpeg))
	_, err = io.ReadFull(r, body)
	require.NoError(t, err)
	assert.Equal(t, jpeg, body)

	cancel()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, time.Millisecond)
}

func TestPreviewHub_SkipsWithoutViewers(t *testing.T) {
	hub := NewPreviewHub(0, logging.Nop())
	assert.False(t, hub.Publish(nil), "no viewers means no encoding")
}

func TestEventHub_Broadcast(t *testing.T) {
	hub := NewEventHub(logging.Nop())
	defer hub.Close()
	ts := httptest.NewServer(New(Config{Events: hub}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	require.True(t, hub.Broadcast(map[string]any{"type": "release", "point": map[string]int{"X": 320, "Y": 240}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "release", got["type"])
}

func TestEventHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewEventHub(logging.Nop())
	ts := httptest.NewServer(hub)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
