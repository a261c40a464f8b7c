package actuator

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultBlinkStep is the on/off interval of the post-release blink pattern.
const DefaultBlinkStep = 300 * time.Millisecond

// Servo moves the door. Min is open, Max is closed.
type Servo interface {
	Min() error
	Max() error
}

// Indicator is the status LED.
type Indicator interface {
	On() error
	Off() error
}

// Switch is the momentary power input. Debouncing is done below this
// interface.
type Switch interface {
	Pressed() bool
}

// Physical drives a servo-actuated door with a status indicator and a
// power switch.
type Physical struct {
	servo     Servo
	led       Indicator
	power     Switch
	blinkStep time.Duration
	log       zerolog.Logger

	// done, when set, receives after each blink sequence completes.
	done chan<- struct{}
}

// PhysicalOption customises a Physical actuator.
type PhysicalOption func(*Physical)

// WithBlinkStep overrides the blink interval.
func WithBlinkStep(d time.Duration) PhysicalOption {
	return func(p *Physical) {
		p.blinkStep = d
	}
}

// WithSequenceDone registers a channel notified when a blink/reset sequence
// finishes. The send blocks, so the channel should be buffered.
func WithSequenceDone(ch chan<- struct{}) PhysicalOption {
	return func(p *Physical) {
		p.done = ch
	}
}

// NewPhysical closes the door and turns the indicator on.
func NewPhysical(servo Servo, led Indicator, power Switch, log zerolog.Logger, opts ...PhysicalOption) (*Physical, error) {
	p := &Physical{
		servo:     servo,
		led:       led,
		power:     power,
		blinkStep: DefaultBlinkStep,
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := servo.Max(); err != nil {
		return nil, err
	}
	if err := led.On(); err != nil {
		return nil, err
	}

	log.Info().Msg("servo configured")
	return p, nil
}

// Power reports the switch state.
func (p *Physical) Power() bool {
	return p.power.Pressed()
}

// Release opens the door, then blinks the indicator and closes the door in
// the background. The background sequence cannot be cancelled.
func (p *Physical) Release() {
	if err := p.servo.Min(); err != nil {
		p.log.Error().Err(err).Msg("failed to open package door")
	} else {
		p.log.Info().Msg("package door opened")
	}

	go p.blinkAndReset()
}

func (p *Physical) blinkAndReset() {
	steps := []func() error{p.led.On, p.led.Off, p.led.On, p.led.Off}
	for _, step := range steps {
		if err := step(); err != nil {
			p.log.Warn().Err(err).Msg("indicator write failed")
		}
		time.Sleep(p.blinkStep)
	}

	if err := p.led.On(); err != nil {
		p.log.Warn().Err(err).Msg("indicator write failed")
	}
	if err := p.servo.Max(); err != nil {
		p.log.Error().Err(err).Msg("failed to close package door")
	}

	if p.done != nil {
		p.done <- struct{}{}
	}
}
