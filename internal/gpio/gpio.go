// Package gpio provides named GPIO pins with hardware abstraction.
// The real implementations use the Linux GPIO character device or sysfs.
// The simulated bank and the fake controller allow running without hardware.
package gpio

import (
	"strings"

	"github.com/pkg/errors"
)

// State is the logical state of a pin as reported to callers.
type State string

const (
	StateOn  State = "On"
	StateOff State = "Off"
)

// StateOf converts a logical level into a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// IsOn reports whether s is StateOn. Comparison is case-insensitive.
func (s State) IsOn() bool {
	return strings.EqualFold(string(s), string(StateOn))
}

// ButtonState describes a button level as Pressed or Released.
func ButtonState(state State) string {
	if state.IsOn() {
		return "Pressed"
	}
	return "Released"
}

// ParseState converts "on"/"off" (any case) into a State.
func ParseState(s string) (State, bool) {
	switch strings.ToUpper(s) {
	case "ON":
		return StateOn, true
	case "OFF":
		return StateOff, true
	}
	return "", false
}

// PinName is the symbolic name of a pin.
type PinName string

// Symbolic pins known to the skill.
const (
	PinLED    PinName = "GPIO1"
	PinLight  PinName = "GPIO2"
	PinButton PinName = "Button"
)

// Default line offsets (BCM numbering).
const (
	DefaultLineLED    = 17
	DefaultLineLight  = 27
	DefaultLineButton = 22
)

var (
	// ErrUnknownPin is returned for a pin name that is not configured.
	ErrUnknownPin = errors.New("gpio: unknown pin")
	// ErrInputPin is returned when writing to a pin configured as input.
	ErrInputPin = errors.New("gpio: pin is an input")
)

// ChangeFunc is called after the state of a pin changed.
type ChangeFunc func(name PinName, state State)

// Controller reads, writes and watches named pins.
type Controller interface {
	// Get returns the current logical state of the pin.
	Get(name PinName) (State, error)

	// Set drives the pin to the given state.
	Set(name PinName, state State) error

	// On registers fn to be called whenever the pin changes state.
	On(name PinName, fn ChangeFunc)

	// IsImported reports whether real GPIO hardware was initialized.
	IsImported() bool

	// Close releases GPIO resources.
	Close() error
}

// Direction of a configured pin.
type Direction int

const (
	Output Direction = iota
	Input
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// PinConfig maps a symbolic pin to a line offset.
type PinConfig struct {
	Name      PinName
	Line      int
	Direction Direction
	ActiveLow bool
}

// DefaultPins returns the LED, Light and Button pins on their default lines.
func DefaultPins() []PinConfig {
	return []PinConfig{
		{Name: PinLED, Line: DefaultLineLED, Direction: Output},
		{Name: PinLight, Line: DefaultLineLight, Direction: Output},
		{Name: PinButton, Line: DefaultLineButton, Direction: Input},
	}
}
