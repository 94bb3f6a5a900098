// Package status provides a thread-safe status tracker for the gpio-skill daemon.
// It is read by HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sort"
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	SkillName     string
	Backend       string
	BusURL        string
	Broker        string // Empty when MQTT is disabled
	HTTPAddr      string
	BlinkInterval time.Duration
}

// PinInfo is the last known state of one pin.
type PinInfo struct {
	Name    string
	State   string
	Changed time.Time // Zero until the first change is seen
	Changes int
}

// InputInfo is the debounced view of one polled input pin.
type InputInfo struct {
	Name     string
	State    string // Empty until the input has settled
	Presses  int
	Releases int
}

// Counts are the intent counters of the skill.
type Counts struct {
	Commands uint64
	Queries  uint64
	Ignored  uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Pins          []PinInfo   // Sorted by name
	Inputs        []InputInfo // Sorted by name, empty while polling is off
	BlinkActive   bool
	GPIOImported  bool
	BusConnected  bool
	MQTTConnected bool
	MQTTBuffered  int // Messages waiting for the broker
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Pin returns the info of the named pin.
func (s Snapshot) Pin(name string) (PinInfo, bool) {
	for _, p := range s.Pins {
		if p.Name == name {
			return p, true
		}
	}
	return PinInfo{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	pins map[string]PinInfo
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		pins: make(map[string]PinInfo),
	}
}

// InitPin records the initial state of a pin without counting a change.
func (t *Tracker) InitPin(name, state string) {
	t.mu.Lock()
	p := t.pins[name]
	p.Name = name
	p.State = state
	t.pins[name] = p
	t.mu.Unlock()
}

// SetPin records a pin change.
func (t *Tracker) SetPin(name, state string, at time.Time) {
	t.mu.Lock()
	p := t.pins[name]
	p.Name = name
	p.State = state
	p.Changed = at
	p.Changes++
	t.pins[name] = p
	t.mu.Unlock()
}

// SetBlinkActive sets the blink flag.
func (t *Tracker) SetBlinkActive(active bool) {
	t.mu.Lock()
	t.snap.BlinkActive = active
	t.mu.Unlock()
}

// SetGPIOImported sets whether real GPIO hardware is in use.
func (t *Tracker) SetGPIOImported(imported bool) {
	t.mu.Lock()
	t.snap.GPIOImported = imported
	t.mu.Unlock()
}

// SetBusConnected sets the host bus connection status.
func (t *Tracker) SetBusConnected(connected bool) {
	t.mu.Lock()
	t.snap.BusConnected = connected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffered sets the number of MQTT messages waiting for a connection.
func (t *Tracker) SetMQTTBuffered(n int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = n
	t.mu.Unlock()
}

// SetInputs replaces the debounced input view.
func (t *Tracker) SetInputs(inputs []InputInfo) {
	t.mu.Lock()
	t.snap.Inputs = append([]InputInfo(nil), inputs...)
	t.mu.Unlock()
}

// SetCounts sets the intent counters.
func (t *Tracker) SetCounts(c Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Inputs = append([]InputInfo(nil), t.snap.Inputs...)
	s.Pins = make([]PinInfo, 0, len(t.pins))
	for _, p := range t.pins {
		s.Pins = append(s.Pins, p)
	}
	t.mu.RUnlock()
	sort.Slice(s.Pins, func(i, j int) bool { return s.Pins[i].Name < s.Pins[j].Name })
	s.Now = time.Now()
	return s
}
