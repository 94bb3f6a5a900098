package gpio

import (
	"sync"

	"github.com/pkg/errors"
)

// Write records a single Set call on a FakeController.
type Write struct {
	Pin   PinName
	State State
}

// FakeController is a test double that keeps pin states in memory and
// records every write.
type FakeController struct {
	mu sync.Mutex

	// States holds the current state per pin. Unknown pins read as Off.
	States map[PinName]State

	// Writes contains every successful Set in call order.
	Writes []Write

	// Gets counts Get calls.
	Gets int

	// Imported controls the return value of IsImported.
	Imported bool

	// GetError and SetError, if set, are returned by Get and Set.
	GetError error
	SetError error

	// Closed tracks if Close was called.
	Closed bool

	callbacks map[PinName][]ChangeFunc
}

// NewFakeController creates a FakeController with all given pins Off.
func NewFakeController(pins ...PinName) *FakeController {
	f := &FakeController{
		States:    make(map[PinName]State),
		Imported:  true,
		callbacks: make(map[PinName][]ChangeFunc),
	}
	for _, p := range pins {
		f.States[p] = StateOff
	}
	return f
}

// Get returns the recorded state of the pin.
func (f *FakeController) Get(name PinName) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if f.GetError != nil {
		return "", f.GetError
	}
	s, ok := f.States[name]
	if !ok {
		return StateOff, nil
	}
	return s, nil
}

// Set records the write and fires change callbacks when the state changed.
func (f *FakeController) Set(name PinName, state State) error {
	f.mu.Lock()
	if f.SetError != nil {
		f.mu.Unlock()
		return errors.Wrapf(f.SetError, "set %s", name)
	}
	prev := f.States[name]
	f.States[name] = state
	f.Writes = append(f.Writes, Write{Pin: name, State: state})
	fns := append([]ChangeFunc(nil), f.callbacks[name]...)
	f.mu.Unlock()

	if prev != state {
		for _, fn := range fns {
			fn(name, state)
		}
	}
	return nil
}

// On registers a change callback.
func (f *FakeController) On(name PinName, fn ChangeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[name] = append(f.callbacks[name], fn)
}

// Trigger simulates an external change of the pin, e.g. a button press.
func (f *FakeController) Trigger(name PinName, state State) {
	f.mu.Lock()
	f.States[name] = state
	fns := append([]ChangeFunc(nil), f.callbacks[name]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(name, state)
	}
}

// IsImported reports the Imported field.
func (f *FakeController) IsImported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Imported
}

// Close marks the controller as closed.
func (f *FakeController) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// State returns the current state of a pin without counting as a Get.
func (f *FakeController) State(name PinName) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.States[name]
}

// WriteCount returns the number of recorded writes.
func (f *FakeController) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// Subscribed reports whether any callback is registered for the pin.
func (f *FakeController) Subscribed(name PinName) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callbacks[name]) > 0
}

// Reset clears recorded writes, errors and callbacks.
func (f *FakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
	f.Gets = 0
	f.GetError = nil
	f.SetError = nil
	f.Closed = false
	f.callbacks = make(map[PinName][]ChangeFunc)
}
