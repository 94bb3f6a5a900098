package mirror

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/gpio"
	"github.com/sweeney/gpio-skill/internal/mqtt"
	"github.com/sweeney/gpio-skill/internal/status"
)

var at = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func newMirror(cfg Config, pub mqtt.Publisher) (*Mirror, *status.Tracker) {
	tracker := status.NewTracker(at, status.Config{SkillName: "gpio-skill"})
	cfg.Now = func() time.Time { return at }
	return New(cfg, tracker, pub, zerolog.Nop()), tracker
}

func TestAttach(t *testing.T) {
	ctrl := gpio.NewFakeController(gpio.PinLED, gpio.PinLight)
	ctrl.States[gpio.PinLED] = gpio.StateOn
	m, tracker := newMirror(Config{}, nil)

	m.Attach(ctrl, []gpio.PinName{gpio.PinLED, gpio.PinLight})

	snap := tracker.Snapshot()
	led, ok := snap.Pin("GPIO1")
	if !ok || led.State != "On" || led.Changes != 0 {
		t.Errorf("GPIO1: got %+v (ok=%v), want On with no changes", led, ok)
	}
	if _, ok := snap.Pin("GPIO2"); !ok {
		t.Error("GPIO2 missing")
	}
	if !ctrl.Subscribed(gpio.PinLED) || !ctrl.Subscribed(gpio.PinLight) {
		t.Error("pins not subscribed")
	}
}

func TestAttachReadError(t *testing.T) {
	ctrl := gpio.NewFakeController(gpio.PinLED)
	ctrl.GetError = errors.New("line busy")
	m, tracker := newMirror(Config{}, nil)

	m.Attach(ctrl, []gpio.PinName{gpio.PinLED})

	if _, ok := tracker.Snapshot().Pin("GPIO1"); ok {
		t.Error("unreadable pin should not be tracked before a change")
	}
	if !ctrl.Subscribed(gpio.PinLED) {
		t.Error("unreadable pin should still be subscribed")
	}
}

func TestPinChanged(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	m, tracker := newMirror(Config{}, pub)

	m.PinChanged(gpio.PinLED, gpio.StateOn)

	pin, ok := tracker.Snapshot().Pin("GPIO1")
	if !ok {
		t.Fatal("GPIO1 not tracked")
	}
	if pin.State != "On" || pin.Changes != 1 || !pin.Changed.Equal(at) {
		t.Errorf("tracked pin: got %+v", pin)
	}

	events := pub.Pins()
	if len(events) != 1 {
		t.Fatalf("published: got %d events, want 1", len(events))
	}
	want := mqtt.PinEvent{Timestamp: at, Name: "GPIO1", State: "On"}
	if events[0] != want {
		t.Errorf("event: got %+v, want %+v", events[0], want)
	}
}

func TestPinChangedButton(t *testing.T) {
	tests := []struct {
		name   string
		labels bool
		state  gpio.State
		want   string
	}{
		{"pressed", true, gpio.StateOn, "Pressed"},
		{"released", true, gpio.StateOff, "Released"},
		{"raw on", false, gpio.StateOn, "On"},
		{"raw off", false, gpio.StateOff, "Off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := mqtt.NewFakePublisher()
			m, tracker := newMirror(Config{ButtonLabels: tt.labels}, pub)

			m.PinChanged(gpio.PinButton, tt.state)

			events := pub.Pins()
			if len(events) != 1 || events[0].State != tt.want {
				t.Errorf("published: got %+v, want state %q", events, tt.want)
			}
			wantPayload := `"state":"` + tt.want + `"`
			if !strings.Contains(string(pub.Payloads[0]), wantPayload) {
				t.Errorf("payload %s does not contain %s", pub.Payloads[0], wantPayload)
			}
			if pin, _ := tracker.Snapshot().Pin("Button"); pin.State != tt.want {
				t.Errorf("tracked: got %q, want %q", pin.State, tt.want)
			}
		})
	}
}

func TestButtonLabelsOnlyForButton(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	m, _ := newMirror(Config{ButtonLabels: true}, pub)

	m.PinChanged(gpio.PinLED, gpio.StateOn)

	if events := pub.Pins(); len(events) != 1 || events[0].State != "On" {
		t.Errorf("LED event: got %+v, want On", events)
	}
}

func TestPinChangedWithoutPublisher(t *testing.T) {
	m, tracker := newMirror(Config{}, nil)

	m.PinChanged(gpio.PinLight, gpio.StateOff)

	if _, ok := tracker.Snapshot().Pin("GPIO2"); !ok {
		t.Error("GPIO2 not tracked")
	}
}

func TestPinChangedPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	m, tracker := newMirror(Config{}, pub)

	m.PinChanged(gpio.PinLED, gpio.StateOn)

	// The tracker is updated even when publishing fails.
	if pin, _ := tracker.Snapshot().Pin("GPIO1"); pin.State != "On" {
		t.Errorf("GPIO1: got %q, want On", pin.State)
	}
}

func TestInputs(t *testing.T) {
	m, tracker := newMirror(Config{ButtonLabels: true}, nil)

	m.Inputs([]gpio.InputStats{
		{Name: gpio.PinButton, State: gpio.StateOn, Presses: 2, Releases: 1},
		{Name: "Door"},
	})

	got := tracker.Snapshot().Inputs
	want := []status.InputInfo{
		{Name: "Button", State: "Pressed", Presses: 2, Releases: 1},
		{Name: "Door"},
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("inputs: got %+v, want %+v", got, want)
	}
}

func TestRefreshMQTT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	pub.Backlog = 4
	m, tracker := newMirror(Config{}, pub)

	m.RefreshMQTT()

	snap := tracker.Snapshot()
	if !snap.MQTTConnected || snap.MQTTBuffered != 4 {
		t.Errorf("MQTT: got connected=%v buffered=%d", snap.MQTTConnected, snap.MQTTBuffered)
	}
}

func TestLifecycle(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	m, tracker := newMirror(Config{}, pub)

	m.Lifecycle("SHUTDOWN", "STOPPED", true)

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("system events: got %d, want 1", len(pub.SystemEvents))
	}
	ev := pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "STOPPED" || !ev.Retained {
		t.Errorf("event: got %+v", ev)
	}
	payload := string(pub.SystemPayloads[0])
	for _, want := range []string{`"event":"SHUTDOWN"`, `"reason":"STOPPED"`, `"skill":"gpio-skill"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload %s does not contain %s", payload, want)
		}
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("tracker MQTT status not refreshed")
	}
}

func TestLifecycleError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	m, _ := newMirror(Config{}, pub)

	m.Lifecycle("STARTUP", "", true)

	if len(pub.SystemEvents) != 0 {
		t.Errorf("system events: got %d, want 0", len(pub.SystemEvents))
	}
}

func TestLifecycleWithoutPublisher(t *testing.T) {
	m, tracker := newMirror(Config{}, nil)
	tracker.SetMQTTConnected(true)

	m.Lifecycle("HEARTBEAT", "", false)

	if !tracker.Snapshot().MQTTConnected {
		t.Error("tracker touched without a publisher")
	}
}
