package gpio

import (
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/debounce"
)

// Line is a single requested GPIO line in logical (active-level applied) form.
type Line interface {
	Value() (bool, error)
	SetValue(on bool) error
	Close() error
}

// OpenFunc requests the line for cfg. Backends that support edge detection
// call onEdge with the new logical level whenever an input line changes.
type OpenFunc func(cfg PinConfig, onEdge func(on bool)) (Line, error)

// Bank is a Controller over a fixed set of named lines.
type Bank struct {
	log      zerolog.Logger
	imported bool
	closer   io.Closer

	mu    sync.Mutex
	pins  map[PinName]PinConfig
	lines map[PinName]Line
	last  map[PinName]State

	cbMu      sync.Mutex
	callbacks map[PinName][]ChangeFunc

	// Set by Poll.
	pollMu   sync.Mutex
	detector *debounce.Detector
}

// NewBank requests every pin through open. imported is reported by IsImported.
// closer, if not nil, is closed after all lines (typically the chip).
func NewBank(pins []PinConfig, open OpenFunc, imported bool, closer io.Closer, log zerolog.Logger) (*Bank, error) {
	b := &Bank{
		log:       log.With().Str("component", "gpio").Logger(),
		imported:  imported,
		closer:    closer,
		pins:      make(map[PinName]PinConfig, len(pins)),
		lines:     make(map[PinName]Line, len(pins)),
		last:      make(map[PinName]State, len(pins)),
		callbacks: make(map[PinName][]ChangeFunc),
	}
	for _, cfg := range pins {
		cfg := cfg
		line, err := open(cfg, func(on bool) { b.edge(cfg.Name, on) })
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "request %s line %d", cfg.Name, cfg.Line)
		}
		b.pins[cfg.Name] = cfg
		b.lines[cfg.Name] = line
		if on, err := line.Value(); err == nil {
			b.last[cfg.Name] = StateOf(on)
		}
		b.log.Debug().
			Str("pin", string(cfg.Name)).
			Int("line", cfg.Line).
			Str("direction", cfg.Direction.String()).
			Msg("requested line")
	}
	return b, nil
}

// Names returns the configured pin names in sorted order.
func (b *Bank) Names() []PinName {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]PinName, 0, len(b.pins))
	for n := range b.pins {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Get returns the current logical state of the pin.
func (b *Bank) Get(name PinName) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, ok := b.lines[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownPin, "get %q", name)
	}
	on, err := line.Value()
	if err != nil {
		return "", errors.Wrapf(err, "read %s", name)
	}
	return StateOf(on), nil
}

// Set drives the pin. Registered callbacks run after the write when the
// state differs from the last known one.
func (b *Bank) Set(name PinName, state State) error {
	b.mu.Lock()
	line, ok := b.lines[name]
	if !ok {
		b.mu.Unlock()
		return errors.Wrapf(ErrUnknownPin, "set %q", name)
	}
	if b.pins[name].Direction == Input {
		b.mu.Unlock()
		return errors.Wrapf(ErrInputPin, "set %q", name)
	}
	if err := line.SetValue(state.IsOn()); err != nil {
		b.mu.Unlock()
		return errors.Wrapf(err, "write %s", name)
	}
	prev := b.last[name]
	b.last[name] = StateOf(state.IsOn())
	b.mu.Unlock()

	if prev != StateOf(state.IsOn()) {
		b.notify(name, StateOf(state.IsOn()))
	}
	return nil
}

// On registers fn for changes of the named pin.
func (b *Bank) On(name PinName, fn ChangeFunc) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	b.callbacks[name] = append(b.callbacks[name], fn)
}

// IsImported reports whether the bank is backed by real hardware.
func (b *Bank) IsImported() bool {
	return b.imported
}

// Close releases all lines and the chip.
func (b *Bank) Close() error {
	b.mu.Lock()
	lines := b.lines
	closer := b.closer
	b.lines = map[PinName]Line{}
	b.closer = nil
	b.mu.Unlock()

	// Edge handlers take b.mu, so lines are released without holding it.
	var errs []error
	for name, line := range lines {
		if err := line.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %s", name))
		}
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

func (b *Bank) edge(name PinName, on bool) {
	state := StateOf(on)
	b.mu.Lock()
	prev := b.last[name]
	b.last[name] = state
	b.mu.Unlock()
	if prev != state {
		b.notify(name, state)
	}
}

func (b *Bank) notify(name PinName, state State) {
	b.cbMu.Lock()
	fns := append([]ChangeFunc(nil), b.callbacks[name]...)
	b.cbMu.Unlock()
	for _, fn := range fns {
		fn(name, state)
	}
}

// Open creates a bank for the given backend ("cdev", "sysfs" or "sim").
func Open(backend, chip string, pins []PinConfig, log zerolog.Logger) (*Bank, error) {
	switch backend {
	case "cdev", "":
		return NewCdevBank(chip, pins, log)
	case "sysfs":
		return NewSysfsBank(pins, log)
	case "sim":
		return NewSimBank(pins, log)
	}
	return nil, errors.Errorf("gpio: unknown backend %q (cdev|sysfs|sim)", backend)
}
