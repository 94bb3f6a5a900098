// Package mirror copies pin changes, debounced inputs and lifecycle events
// into the status tracker and onto MQTT.
package mirror

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/gpio"
	"github.com/sweeney/gpio-skill/internal/mqtt"
	"github.com/sweeney/gpio-skill/internal/status"
)

// Config of a Mirror.
type Config struct {
	// ButtonLabels reports the button as Pressed/Released instead of On/Off.
	ButtonLabels bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Mirror reports pin and daemon state. The publisher is optional.
type Mirror struct {
	tracker      *status.Tracker
	pub          mqtt.Publisher
	buttonLabels bool
	now          func() time.Time
	log          zerolog.Logger
}

// New creates a Mirror. pub may be nil when MQTT is disabled.
func New(cfg Config, tracker *status.Tracker, pub mqtt.Publisher, log zerolog.Logger) *Mirror {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Mirror{
		tracker:      tracker,
		pub:          pub,
		buttonLabels: cfg.ButtonLabels,
		now:          cfg.Now,
		log:          log.With().Str("component", "mirror").Logger(),
	}
}

// Label returns the reported form of a pin state.
func (m *Mirror) Label(name gpio.PinName, state gpio.State) string {
	if m.buttonLabels && name == gpio.PinButton {
		return gpio.ButtonState(state)
	}
	return string(state)
}

// Attach records the current state of every named pin and subscribes to
// its changes. Pins that cannot be read are only subscribed.
func (m *Mirror) Attach(ctrl gpio.Controller, names []gpio.PinName) {
	for _, name := range names {
		if state, err := ctrl.Get(name); err == nil {
			m.tracker.InitPin(string(name), m.Label(name, state))
		} else {
			m.log.Debug().Err(err).Str("pin", string(name)).Msg("initial read failed")
		}
		ctrl.On(name, m.PinChanged)
	}
}

// PinChanged records the change in the tracker and publishes it. Publish
// errors are logged only.
func (m *Mirror) PinChanged(name gpio.PinName, state gpio.State) {
	at := m.now()
	label := m.Label(name, state)
	m.tracker.SetPin(string(name), label, at)
	if m.pub == nil {
		return
	}
	event := mqtt.PinEvent{Timestamp: at, Name: string(name), State: label}
	if err := m.pub.PublishPin(event); err != nil {
		m.log.Warn().Err(err).Str("pin", string(name)).Msg("publish pin failed")
	}
}

// Inputs copies the debounced input view into the tracker.
func (m *Mirror) Inputs(stats []gpio.InputStats) {
	inputs := make([]status.InputInfo, 0, len(stats))
	for _, s := range stats {
		info := status.InputInfo{Name: string(s.Name), Presses: s.Presses, Releases: s.Releases}
		if s.State != "" {
			info.State = m.Label(s.Name, s.State)
		}
		inputs = append(inputs, info)
	}
	m.tracker.SetInputs(inputs)
}

// RefreshMQTT copies the broker connection state into the tracker.
func (m *Mirror) RefreshMQTT() {
	cs, ok := m.pub.(mqtt.ConnectionStatus)
	if !ok {
		return
	}
	m.tracker.SetMQTTConnected(cs.IsConnected())
	m.tracker.SetMQTTBuffered(cs.Buffered())
}

// Lifecycle publishes a system event carrying a full status snapshot.
// It does nothing without a publisher.
func (m *Mirror) Lifecycle(event, reason string, retained bool) {
	if m.pub == nil {
		return
	}
	m.RefreshMQTT()
	snap := m.tracker.Snapshot()
	err := m.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("publish system event failed")
		return
	}
	m.log.Debug().Str("event", event).Msg("published system event")
}
