package actuator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Board line protocol. Every message is one ASCII line.
const (
	cmdServoMin    = "SERVO MIN"
	cmdServoMax    = "SERVO MAX"
	cmdLEDOn       = "LED ON"
	cmdLEDOff      = "LED OFF"
	cmdQueryBtn    = "BTN?"
	eventBtnPrefix = "BTN "
)

// ErrBoardClosed is returned by commands sent after Close.
var ErrBoardClosed = errors.New("actuator board is closed")

// Port is the minimal serial port surface the board needs.
type Port interface {
	io.ReadWriteCloser
}

// PortOpener opens a serial port at path with the given baud rate.
type PortOpener func(path string, baudRate int) (Port, error)

// OpenSerialPort opens a real serial port in 8N1 mode.
func OpenSerialPort(path string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// Board talks to the microcontroller wired to the servo, the status LED and
// the power switch.
type Board struct {
	port    Port
	writeMu sync.Mutex
	pressed atomic.Bool
	closed  atomic.Bool
	log     zerolog.Logger
}

// OpenBoard opens the port through open and returns a Board on it.
func OpenBoard(path string, baudRate int, open PortOpener, log zerolog.Logger) (*Board, error) {
	if open == nil {
		open = OpenSerialPort
	}
	port, err := open(path, baudRate)
	if err != nil {
		return nil, err
	}
	log.Info().Str("port", path).Int("baud", baudRate).Msg("actuator board opened")
	return NewBoard(port, log), nil
}

// NewBoard wraps an already open port.
func NewBoard(port Port, log zerolog.Logger) *Board {
	return &Board{port: port, log: log}
}

// Send writes one command line.
func (b *Board) Send(cmd string) error {
	if b.closed.Load() {
		return ErrBoardClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := io.WriteString(b.port, cmd+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

// Monitor asks for the current switch state, then reads board events until
// ctx is done or the port fails. It closes the port when ctx is cancelled
// so the blocked read returns.
func (b *Board) Monitor(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.Close()
	})
	defer stop()

	if err := b.Send(cmdQueryBtn); err != nil {
		b.log.Warn().Err(err).Msg("switch state query failed")
	}

	scanner := bufio.NewScanner(b.port)
	for scanner.Scan() {
		b.handleLine(scanner.Text())
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read actuator board: %w", err)
	}
	return io.EOF
}

func (b *Board) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, eventBtnPrefix) {
		if line != "" {
			b.log.Debug().Str("line", line).Msg("ignoring board message")
		}
		return
	}

	pressed := strings.TrimSpace(strings.TrimPrefix(line, eventBtnPrefix)) == "1"
	if b.pressed.Swap(pressed) != pressed {
		b.log.Info().Bool("pressed", pressed).Msg("power switch changed")
	}
}

// Pressed reports the last switch state received from the board.
func (b *Board) Pressed() bool {
	return b.pressed.Load()
}

// Close closes the port. It is safe to call more than once.
func (b *Board) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.port.Close()
}

// Servo returns the door servo handle.
func (b *Board) Servo() Servo { return boardServo{b} }

// LED returns the status indicator handle.
func (b *Board) LED() Indicator { return boardLED{b} }

// Switch returns the power switch handle.
func (b *Board) Switch() Switch { return b }

type boardServo struct{ b *Board }

func (s boardServo) Min() error { return s.b.Send(cmdServoMin) }
func (s boardServo) Max() error { return s.b.Send(cmdServoMax) }

type boardLED struct{ b *Board }

func (l boardLED) On() error  { return l.b.Send(cmdLEDOn) }
func (l boardLED) Off() error { return l.b.Send(cmdLEDOff) }
