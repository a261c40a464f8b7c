package link

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// DefaultCooldown suppresses publishing after a transport failure.
const DefaultCooldown = 1000 * time.Second

// Gate reports whether publishing is allowed. *ControlLink implements it.
type Gate interface {
	Connected() bool
}

// DialFunc opens the datagram socket.
type DialFunc func(network, address string) (net.Conn, error)

// TelemetryOptions configures a TelemetryStream.
type TelemetryOptions struct {
	Addr     string
	Cooldown time.Duration
	Encoder  Encoder
	Gate     Gate
	Dial     DialFunc
	Now      func() time.Time
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// TelemetryStream publishes frames as single UDP datagrams. Nothing is
// queued: a frame that cannot be sent right now is dropped.
type TelemetryStream struct {
	opts TelemetryOptions
	log  zerolog.Logger

	// resumeAt is the cooldown deadline in Unix nanoseconds.
	resumeAt atomic.Int64

	mu   sync.Mutex
	conn net.Conn
}

// NewTelemetryStream applies defaults to opts. Register the stream as a
// listener on the ControlLink so the socket follows the link state.
func NewTelemetryStream(opts TelemetryOptions) *TelemetryStream {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Encoder == nil {
		opts.Encoder = NewJPEGEncoder(DefaultJPEGQuality, DefaultMaxDatagramSize)
	}
	if opts.Dial == nil {
		opts.Dial = net.Dial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TelemetryStream{opts: opts, log: opts.Logger}
}

// LinkStateChanged opens the socket on Connected and closes it otherwise.
func (t *TelemetryStream) LinkStateChanged(s State) {
	if s == Connected {
		t.open()
		return
	}
	t.Close()
}

func (t *TelemetryStream) open() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return
	}
	conn, err := t.opts.Dial("udp", t.opts.Addr)
	if err != nil {
		t.log.Warn().Err(err).Str("addr", t.opts.Addr).Msg("telemetry socket open failed")
		t.armCooldown(t.opts.Now())
		return
	}
	t.conn = conn
	t.log.Debug().Str("addr", t.opts.Addr).Msg("telemetry socket open")
}

// Close closes the socket. Publishing resumes when the link reconnects.
func (t *TelemetryStream) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// CoolingDown reports whether publishing is suppressed at now.
func (t *TelemetryStream) CoolingDown(now time.Time) bool {
	return now.UnixNano() < t.resumeAt.Load()
}

func (t *TelemetryStream) armCooldown(now time.Time) {
	t.resumeAt.Store(now.Add(t.opts.Cooldown).UnixNano())
}

// Publish encodes frame and sends it if the link is connected and no
// cooldown is active. It never blocks on the network and reports whether a
// datagram was sent. Failures are logged and arm the cooldown.
func (t *TelemetryStream) Publish(frame *gocv.Mat) bool {
	if t.opts.Gate != nil && !t.opts.Gate.Connected() {
		t.opts.Metrics.TelemetryFrameDropped("disconnected")
		return false
	}
	now := t.opts.Now()
	if t.CoolingDown(now) {
		t.opts.Metrics.TelemetryFrameDropped("cooldown")
		return false
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		t.opts.Metrics.TelemetryFrameDropped("no_socket")
		return false
	}

	data, err := t.opts.Encoder.Encode(frame)
	if err != nil {
		t.log.Debug().Err(err).Msg("telemetry encode failed")
		t.opts.Metrics.TelemetryFrameDropped("encode")
		return false
	}

	if _, err := conn.Write(data); err != nil {
		t.armCooldown(now)
		t.opts.Metrics.TelemetryFailed()
		t.log.Warn().Err(err).Dur("cooldown", t.opts.Cooldown).Msg("telemetry send failed")
		return false
	}
	t.opts.Metrics.TelemetryFrameSent(len(data))
	return true
}
