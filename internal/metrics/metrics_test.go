package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameProcessed()
	m.FrameProcessed()
	m.CollisionEntered()
	m.TelemetryFrameSent(1200)
	m.TelemetryFrameDropped("cooldown")
	m.TelemetryFrameDropped("cooldown")
	m.LinkFailed("connect")
	m.SetLinkState(2)
	m.SessionStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Releases))
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.TelemetryBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TelemetryDropped.WithLabelValues("cooldown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkFailures.WithLabelValues("connect")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinkState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recording))

	m.SessionEnded()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Recording))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.FrameProcessed()
		m.CollisionEntered()
		m.SetPowered(true)
		m.TelemetryFailed()
		m.LinkFailed("receive")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.HeartbeatSent()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "yelkiran_heartbeats_sent_total 1")
}
