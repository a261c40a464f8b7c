package actuator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ReleaseCommand is the single byte the simulator interprets as "release".
const ReleaseCommand byte = 0x01

// DefaultDialTimeout bounds the one connection attempt made at startup.
const DefaultDialTimeout = 5 * time.Second

// Remote sends release commands to a simulator over a persistent TCP
// connection.
type Remote struct {
	conn net.Conn
	mu   sync.Mutex
	log  zerolog.Logger
}

// DialRemote connects to the simulator once. There is no retry: callers
// treat an error as fatal.
func DialRemote(ctx context.Context, addr string, log zerolog.Logger) (*Remote, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to simulator %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Msg("connected to simulator")
	return &Remote{conn: conn, log: log}, nil
}

// Release writes the release command. Write errors are logged.
func (r *Remote) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := r.conn.Write([]byte{ReleaseCommand}); err != nil {
		r.log.Error().Err(err).Msg("failed to send release command")
		return
	}
	r.log.Info().Msg("release command sent")
}

// Close closes the connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}
