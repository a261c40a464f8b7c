// Package actuator drives the package-release mechanism. Variants are a
// TCP simulator link, a no-op stub and a servo/indicator/switch board.
package actuator

import "github.com/rs/zerolog"

// Actuator triggers the release. Release must return promptly; any slow
// follow-up work runs in the background.
type Actuator interface {
	Release()
}

// PowerGate is implemented by actuators that expose a power switch.
type PowerGate interface {
	Power() bool
}

// IsPowered reports the actuator's power state. Actuators without a
// PowerGate are always on.
func IsPowered(a Actuator) bool {
	if g, ok := a.(PowerGate); ok {
		return g.Power()
	}
	return true
}

// Null performs no physical output. It is used for file playback and dry
// runs.
type Null struct {
	log zerolog.Logger
}

// NewNull returns a Null actuator that logs each release.
func NewNull(log zerolog.Logger) *Null {
	return &Null{log: log}
}

// Release logs the request.
func (n *Null) Release() {
	n.log.Info().Msg("release requested (no output attached)")
}
