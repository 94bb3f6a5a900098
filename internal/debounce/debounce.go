// Package debounce turns raw samples of input pins into stable transitions.
// It has no I/O; time is always passed in with the sample.
package debounce

import (
	"sort"
	"time"
)

// Input is a single sample of one pin.
type Input struct {
	Name string
	On   bool
	Time time.Time
}

// Event is a debounced change of one pin.
type Event struct {
	Timestamp time.Time
	Name      string
	On        bool
	// Baseline is set for the first stable state of a pin. It is not a
	// transition; the previous state was unknown.
	Baseline bool
}

// Counts are the transitions seen on one pin since its baseline.
type Counts struct {
	On  int
	Off int
}

// channel tracks debounce state for a single pin.
type channel struct {
	// Current stable (debounced) state
	stable bool
	// Pending state during debounce, valid while hasPending
	pending    bool
	hasPending bool
	// Time when pending state was first observed
	pendingSince time.Time
	baselined    bool
	counts       Counts
}

// Detector tracks pins and detects debounced transitions. A new state must
// be seen continuously for the settle duration before it is reported.
// Not safe for concurrent use.
type Detector struct {
	settle   time.Duration
	channels map[string]*channel
}

// NewDetector creates a detector with the given settle duration.
func NewDetector(settle time.Duration) *Detector {
	return &Detector{
		settle:   settle,
		channels: make(map[string]*channel),
	}
}

// Process takes a new sample and returns the event it completes, if any.
func (d *Detector) Process(input Input) *Event {
	ch, ok := d.channels[input.Name]
	if !ok {
		ch = &channel{}
		d.channels[input.Name] = ch
	}

	if ch.baselined && input.On == ch.stable {
		// Back to stable, drop any pending change
		ch.hasPending = false
		return nil
	}

	if !ch.hasPending || ch.pending != input.On {
		ch.pending = input.On
		ch.hasPending = true
		ch.pendingSince = input.Time
		if d.settle > 0 {
			return nil
		}
	}

	if input.Time.Sub(ch.pendingSince) < d.settle {
		return nil
	}

	ch.stable = input.On
	ch.hasPending = false
	ev := &Event{Timestamp: input.Time, Name: input.Name, On: input.On}
	if !ch.baselined {
		ch.baselined = true
		ev.Baseline = true
		return ev
	}
	if input.On {
		ch.counts.On++
	} else {
		ch.counts.Off++
	}
	return ev
}

// IsBaselined reports whether every pin seen so far has a stable state.
func (d *Detector) IsBaselined() bool {
	if len(d.channels) == 0 {
		return false
	}
	for _, ch := range d.channels {
		if !ch.baselined {
			return false
		}
	}
	return true
}

// State returns the stable state of a pin and whether it has one.
func (d *Detector) State(name string) (on bool, ok bool) {
	ch, found := d.channels[name]
	if !found || !ch.baselined {
		return false, false
	}
	return ch.stable, true
}

// Counts returns the transitions seen on a pin.
func (d *Detector) Counts(name string) Counts {
	if ch, ok := d.channels[name]; ok {
		return ch.counts
	}
	return Counts{}
}

// Names returns the pins seen so far, sorted.
func (d *Detector) Names() []string {
	names := make([]string, 0, len(d.channels))
	for n := range d.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
