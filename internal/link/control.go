// Package link keeps the operator console informed: a TCP control channel
// with heartbeats and reconnects, and a best-effort UDP frame stream gated
// on it.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/yelkiran/internal/metrics"
	"github.com/rs/zerolog"
)

// Control link defaults.
const (
	DefaultRetryDelay      = 3 * time.Second
	DefaultHeartbeatPeriod = 3 * time.Second
	DefaultDialTimeout     = 5 * time.Second

	// HeartbeatPayload is written once per period while connected.
	HeartbeatPayload = "heartbeat"

	readBufferSize = 1024
)

// ErrTerminated is returned by Run on a link that was already terminated.
var ErrTerminated = errors.New("control link terminated")

// State is the control link state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives each inbound control message. The slice is owned by the
// handler.
type Handler func(msg []byte)

// StateListener is notified on every state change.
type StateListener interface {
	LinkStateChanged(s State)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(s State)

// LinkStateChanged calls f(s).
func (f StateListenerFunc) LinkStateChanged(s State) { f(s) }

// Dialer opens the control connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ControlOptions configures a ControlLink.
type ControlOptions struct {
	Addr            string
	RetryDelay      time.Duration
	HeartbeatPeriod time.Duration
	Dialer          Dialer
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// ControlLink maintains the control channel to the operator console. Run is
// the supervising loop; it reconnects forever after a fixed delay until
// Terminate is called or its context is cancelled.
type ControlLink struct {
	opts ControlOptions
	log  zerolog.Logger

	state      atomic.Int32
	started    atomic.Bool
	terminated atomic.Bool

	mu        sync.Mutex
	handler   Handler
	listeners []StateListener
	cancel    context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
}

// NewControlLink applies defaults to opts.
func NewControlLink(opts ControlOptions) *ControlLink {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: DefaultDialTimeout}
	}
	return &ControlLink{
		opts:    opts,
		log:     opts.Logger,
		handler: func([]byte) {},
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (l *ControlLink) State() State {
	return State(l.state.Load())
}

// Addr returns the console address.
func (l *ControlLink) Addr() string {
	return l.opts.Addr
}

// Connected reports whether the link is in the Connected state.
func (l *ControlLink) Connected() bool {
	return l.State() == Connected
}

// SetHandler replaces the inbound message handler. nil restores the no-op
// handler.
func (l *ControlLink) SetHandler(h Handler) {
	if h == nil {
		h = func([]byte) {}
	}
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// AddListener registers a state change listener. Listeners run on the
// link's goroutine and must not block.
func (l *ControlLink) AddListener(sl StateListener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, sl)
	l.mu.Unlock()
}

// Done is closed when Run returns.
func (l *ControlLink) Done() <-chan struct{} {
	return l.done
}

// Start runs the link on its own goroutine.
func (l *ControlLink) Start(ctx context.Context) {
	go func() {
		err := l.Run(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, ErrTerminated):
			l.log.Debug().Msg("control link terminated before start")
		default:
			l.log.Error().Err(err).Msg("control link stopped")
		}
	}()
}

// Terminate stops the link. Open connections are closed and Run returns
// within one iteration. It does not wait; use Done for that.
func (l *ControlLink) Terminate() {
	if l.terminated.Swap(true) {
		return
	}
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *ControlLink) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	l.opts.Metrics.SetLinkState(int(s))
	l.log.Debug().Str("state", s.String()).Msg("control link state")

	l.mu.Lock()
	listeners := append([]StateListener(nil), l.listeners...)
	l.mu.Unlock()
	for _, sl := range listeners {
		sl.LinkStateChanged(s)
	}
}

// Run connects, serves and reconnects until Terminate or ctx cancellation.
// It returns nil after Terminate and ctx.Err() after cancellation.
func (l *ControlLink) Run(ctx context.Context) error {
	if l.terminated.Load() {
		l.doneOnce.Do(func() { close(l.done) })
		return ErrTerminated
	}
	if l.started.Swap(true) {
		return errors.New("control link already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	defer l.doneOnce.Do(func() { close(l.done) })
	defer l.setState(Disconnected)

	// Terminate may have raced with the cancel registration above.
	if l.terminated.Load() {
		return nil
	}

	for {
		l.setState(Connecting)
		conn, err := l.opts.Dialer.DialContext(ctx, "tcp", l.opts.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return l.exitErr(ctx)
			}
			l.opts.Metrics.LinkFailed("connect")
			l.log.Warn().Err(err).Str("addr", l.opts.Addr).Dur("retry", l.opts.RetryDelay).Msg("control link connect failed")
		} else {
			l.log.Info().Str("addr", l.opts.Addr).Msg("control link connected")
			l.opts.Metrics.LinkConnected()
			l.setState(Connected)

			err = l.serve(ctx, conn)
			if ctx.Err() != nil {
				return l.exitErr(ctx)
			}
			l.log.Warn().Err(err).Dur("retry", l.opts.RetryDelay).Msg("control link lost")
		}

		l.setState(Disconnected)
		select {
		case <-ctx.Done():
			return l.exitErr(ctx)
		case <-time.After(l.opts.RetryDelay):
		}
	}
}

func (l *ControlLink) exitErr(ctx context.Context) error {
	if l.terminated.Load() {
		l.log.Info().Msg("control link terminated")
		return nil
	}
	return ctx.Err()
}

// serve runs the heartbeat writer and the receive loop on conn until either
// fails or ctx is done. Both goroutines have exited and conn is closed when
// it returns.
func (l *ControlLink) serve(ctx context.Context, conn net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- l.heartbeat(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		errCh <- l.receive(ctx, conn)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	cancel()
	conn.Close()
	wg.Wait()
	return err
}

func (l *ControlLink) heartbeat(ctx context.Context, conn net.Conn) error {
	ticker := time.NewTicker(l.opts.HeartbeatPeriod)
	defer ticker.Stop()

	payload := []byte(HeartbeatPayload)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(l.opts.HeartbeatPeriod)); err != nil {
				l.opts.Metrics.LinkFailed("heartbeat")
				return fmt.Errorf("heartbeat: %w", err)
			}
			if _, err := conn.Write(payload); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.opts.Metrics.LinkFailed("heartbeat")
				return fmt.Errorf("heartbeat: %w", err)
			}
			l.opts.Metrics.HeartbeatSent()
		}
	}
}

func (l *ControlLink) receive(ctx context.Context, conn net.Conn) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			msg := make([]byte, n)
			copy(msg, buf[:n])
			l.opts.Metrics.MessageReceived()

			l.mu.Lock()
			h := l.handler
			l.mu.Unlock()
			h(msg)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.opts.Metrics.LinkFailed("receive")
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("receive: peer closed connection: %w", err)
			}
			return fmt.Errorf("receive: %w", err)
		}
	}
}
