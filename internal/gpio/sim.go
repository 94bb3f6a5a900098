package gpio

import (
	"sync"

	"github.com/rs/zerolog"
)

// NewSimBank creates a bank of in-memory lines. It reports IsImported false,
// which is how the skill tells that no GPIO hardware is present.
func NewSimBank(pins []PinConfig, log zerolog.Logger) (*Bank, error) {
	open := func(cfg PinConfig, onEdge func(on bool)) (Line, error) {
		return &simLine{onEdge: onEdge}, nil
	}
	return NewBank(pins, open, false, nil, log)
}

// SimulateInput drives a simulated input line as if the outside world changed
// it. It is a no-op for banks not created by NewSimBank.
func SimulateInput(b *Bank, name PinName, on bool) {
	b.mu.Lock()
	line, ok := b.lines[name].(*simLine)
	b.mu.Unlock()
	if !ok {
		return
	}
	line.mu.Lock()
	line.value = on
	onEdge := line.onEdge
	line.mu.Unlock()
	if onEdge != nil {
		onEdge(on)
	}
}

type simLine struct {
	mu     sync.Mutex
	value  bool
	onEdge func(on bool)
}

func (l *simLine) Value() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, nil
}

func (l *simLine) SetValue(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = on
	return nil
}

func (l *simLine) Close() error { return nil }
