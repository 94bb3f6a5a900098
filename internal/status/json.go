package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Skill         string      `json:"skill"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	Pins          []PinJSON   `json:"pins"`
	Inputs        []InputJSON `json:"inputs,omitempty"`
	Blink         BlinkJSON   `json:"blink"`
	GPIO          GPIOStatus  `json:"gpio"`
	Bus           ConnStatus  `json:"bus"`
	MQTT          ConnStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"intent_counts"`
	HTTPAddr      string      `json:"http_addr"`
}

// PinJSON is the JSON representation of a pin.
type PinJSON struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Changed string `json:"changed,omitempty"`
	Changes int    `json:"changes"`
}

// InputJSON is the debounced view of an input pin.
type InputJSON struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Presses  int    `json:"presses"`
	Releases int    `json:"releases"`
}

// BlinkJSON reports the blink flag.
type BlinkJSON struct {
	Active     bool  `json:"active"`
	IntervalMs int64 `json:"interval_ms"`
}

// GPIOStatus reports the GPIO backend.
type GPIOStatus struct {
	Imported bool   `json:"imported"`
	Backend  string `json:"backend"`
}

// ConnStatus reports a connection to a remote endpoint.
type ConnStatus struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
	Buffered  int    `json:"buffered,omitempty"`
}

// CountsJSON is the JSON representation of intent counts.
type CountsJSON struct {
	Commands uint64 `json:"commands"`
	Queries  uint64 `json:"queries"`
	Ignored  uint64 `json:"ignored"`
}

func buildInner(snap Snapshot) StatusInner {
	pins := make([]PinJSON, 0, len(snap.Pins))
	for _, p := range snap.Pins {
		state := p.State
		if state == "" {
			state = "UNKNOWN"
		}
		pj := PinJSON{Name: p.Name, State: state, Changes: p.Changes}
		if !p.Changed.IsZero() {
			pj.Changed = p.Changed.UTC().Format(time.RFC3339)
		}
		pins = append(pins, pj)
	}

	var inputs []InputJSON
	for _, in := range snap.Inputs {
		state := in.State
		if state == "" {
			state = "SETTLING"
		}
		inputs = append(inputs, InputJSON{Name: in.Name, State: state, Presses: in.Presses, Releases: in.Releases})
	}

	return StatusInner{
		Skill:         snap.Config.SkillName,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Pins:          pins,
		Inputs:        inputs,
		HTTPAddr:      snap.Config.HTTPAddr,
		Blink: BlinkJSON{
			Active:     snap.BlinkActive,
			IntervalMs: snap.Config.BlinkInterval.Milliseconds(),
		},
		GPIO:   GPIOStatus{Imported: snap.GPIOImported, Backend: snap.Config.Backend},
		Bus:    ConnStatus{Connected: snap.BusConnected, URL: snap.Config.BusURL},
		MQTT:   ConnStatus{Connected: snap.MQTTConnected, URL: snap.Config.Broker, Buffered: snap.MQTTBuffered},
		Counts: CountsJSON(snap.Counts),
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
