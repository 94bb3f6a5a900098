package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopics(t *testing.T) {
	tests := []struct {
		prefix string
		want   Topics
	}{
		{"", Topics{"home/gpio-skill/pins", "home/gpio-skill/system", "home/gpio-skill/command"}},
		{"lab/pi", Topics{"lab/pi/pins", "lab/pi/system", "lab/pi/command"}},
		{"lab/pi/", Topics{"lab/pi/pins", "lab/pi/system", "lab/pi/command"}},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTopics(tt.prefix))
		})
	}
}

func TestFormatPinPayloadExactJSON(t *testing.T) {
	event := PinEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Name:      "GPIO1",
		State:     "On",
	}

	payload, err := FormatPinPayload(event)
	require.NoError(t, err)

	expected := `{"pin":{"timestamp":"2026-02-02T22:18:12Z","name":"GPIO1","state":"On"}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatPinPayloadConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("CET", 3600)
	event := PinEvent{
		Timestamp: time.Date(2026, 2, 2, 23, 18, 12, 0, zone),
		Name:      "GPIO2",
		State:     "Off",
	}

	payload, err := FormatPinPayload(event)
	require.NoError(t, err)

	var parsed PinPayload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	assert.Equal(t, "2026-02-02T22:18:12Z", parsed.Pin.Timestamp)
	assert.Equal(t, "GPIO2", parsed.Pin.Name)
	assert.Equal(t, "Off", parsed.Pin.State)
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	assert.Equal(t, expected, string(payload))
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC),
		Event:     "OFFLINE",
	}

	payload, err := FormatSystemPayload(event)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &parsed))
	system := parsed["system"].(map[string]interface{})
	_, exists := system["reason"]
	assert.False(t, exists, "reason field should be omitted")
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "IGNORED", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]string
	}{
		{
			name:    "full",
			payload: `{"command":"turn","ioobject":"led","ioparam":"on"}`,
			want:    map[string]string{"command": "turn", "ioobject": "led", "ioparam": "on"},
		},
		{
			name:    "absent param",
			payload: `{"command":"turn","ioobject":"light"}`,
			want:    map[string]string{"command": "turn", "ioobject": "light"},
		},
		{
			name:    "empty param is kept",
			payload: `{"command":"set","ioobject":"led","ioparam":""}`,
			want:    map[string]string{"command": "set", "ioobject": "led", "ioparam": ""},
		},
		{
			name:    "unknown fields ignored",
			payload: `{"command":"blink","ioobject":"led","source":"cli"}`,
			want:    map[string]string{"command": "blink", "ioobject": "led"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandInvalid(t *testing.T) {
	_, err := ParseCommand([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseCommand([]byte(`{"command":"turn"}`))
	assert.Equal(t, ErrInvalidCommand, errors.Cause(err))

	_, err = ParseCommand([]byte(`{"ioobject":"led"}`))
	assert.Equal(t, ErrInvalidCommand, errors.Cause(err))
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	err := f.PublishPin(PinEvent{Timestamp: time.Now(), Name: "GPIO1", State: "On"})
	require.NoError(t, err)

	require.Len(t, f.Pins(), 1)
	assert.Equal(t, "GPIO1", f.Pins()[0].Name)
	assert.Len(t, f.Payloads, 1)
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated error")

	assert.Error(t, f.PublishPin(PinEvent{Name: "GPIO1", State: "On"}))
	assert.Error(t, f.PublishSystem(SystemEvent{Event: "STARTUP"}))
	assert.Empty(t, f.PinEvents, "no events recorded on error")
	assert.Empty(t, f.SystemEvents)
}

func TestFakePublisherInject(t *testing.T) {
	f := NewFakePublisher()
	var got []map[string]string
	require.NoError(t, f.SubscribeCommands(func(data map[string]string) {
		got = append(got, data)
	}))

	require.NoError(t, f.Inject([]byte(`{"command":"turn","ioobject":"led","ioparam":"on"}`)))
	assert.Error(t, f.Inject([]byte(`{}`)))

	assert.Equal(t, []map[string]string{{"command": "turn", "ioobject": "led", "ioparam": "on"}}, got)
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	_ = f.PublishPin(PinEvent{Name: "GPIO1", State: "On"})
	_ = f.PublishSystem(SystemEvent{Event: "STARTUP"})
	_ = f.Close()
	f.Connected = true
	f.PublishError = errors.New("error")

	f.Reset()

	assert.Empty(t, f.PinEvents)
	assert.Empty(t, f.Payloads)
	assert.Empty(t, f.SystemEvents)
	assert.False(t, f.Closed)
	assert.False(t, f.IsConnected())
	assert.NoError(t, f.PublishError)
}
