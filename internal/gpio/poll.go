package gpio

import (
	"context"
	"time"

	"github.com/sweeney/gpio-skill/internal/debounce"
)

// InputStats is the debounced view of one polled input pin.
type InputStats struct {
	Name PinName
	// State is empty until the input has been stable for the settle time.
	State    State
	Presses  int
	Releases int
}

// Poll samples every input pin at interval and reports debounced changes the
// same way as an edge. It is needed for backends without edge events
// (sysfs) and catches edges a backend missed. Poll returns nil when ctx is
// cancelled.
func (b *Bank) Poll(ctx context.Context, interval, settle time.Duration) error {
	b.resetDetector(settle)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	b.log.Debug().Dur("interval", interval).Dur("settle", settle).Msg("polling inputs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			b.sample(now)
		}
	}
}

// Debounced returns the debounced state and transition counts of every
// polled input, sorted by name. It is empty until Poll has sampled.
func (b *Bank) Debounced() []InputStats {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	if b.detector == nil {
		return nil
	}
	names := b.detector.Names()
	stats := make([]InputStats, 0, len(names))
	for _, n := range names {
		c := b.detector.Counts(n)
		s := InputStats{Name: PinName(n), Presses: c.On, Releases: c.Off}
		if on, ok := b.detector.State(n); ok {
			s.State = StateOf(on)
		}
		stats = append(stats, s)
	}
	return stats
}

func (b *Bank) resetDetector(settle time.Duration) {
	b.pollMu.Lock()
	b.detector = debounce.NewDetector(settle)
	b.pollMu.Unlock()
}

// sample reads every input pin once and feeds the detector. Changes are
// delivered after the detector lock is released.
func (b *Bank) sample(now time.Time) {
	var inputs []debounce.Input
	for _, name := range b.inputs() {
		state, err := b.Get(name)
		if err != nil {
			b.log.Debug().Err(err).Str("pin", string(name)).Msg("poll read failed")
			continue
		}
		inputs = append(inputs, debounce.Input{Name: string(name), On: state.IsOn(), Time: now})
	}

	b.pollMu.Lock()
	if b.detector == nil {
		b.pollMu.Unlock()
		return
	}
	wasBaselined := b.detector.IsBaselined()
	var events []debounce.Event
	for _, in := range inputs {
		if ev := b.detector.Process(in); ev != nil {
			events = append(events, *ev)
		}
	}
	baselined := b.detector.IsBaselined()
	b.pollMu.Unlock()

	if baselined && !wasBaselined {
		b.log.Info().Int("inputs", len(inputs)).Msg("inputs settled")
	}
	for _, ev := range events {
		if ev.Baseline {
			b.log.Debug().Str("pin", ev.Name).Bool("on", ev.On).Msg("input baseline")
		}
		// edge ignores a baseline that matches the state read at open.
		b.edge(PinName(ev.Name), ev.On)
	}
}

// inputs returns the names of input pins in sorted order.
func (b *Bank) inputs() []PinName {
	var names []PinName
	for _, name := range b.Names() {
		b.mu.Lock()
		dir := b.pins[name].Direction
		b.mu.Unlock()
		if dir == Input {
			names = append(names, name)
		}
	}
	return names
}
