// Package mqtt mirrors pin changes to MQTT and receives text commands.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "home/gpio-skill"

// ErrInvalidCommand is returned by ParseCommand for payloads lacking the
// required command or ioobject fields.
var ErrInvalidCommand = errors.New("invalid command payload")

// Topics holds the MQTT topics used by the skill.
type Topics struct {
	// Pins receives a pin event on every pin change.
	Pins string
	// System receives lifecycle events and the last will.
	System string
	// Command is subscribed for inbound commands.
	Command string
}

// NewTopics derives all topics from a prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Pins:    prefix + "/pins",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishPin sends a pin change to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishPin(event PinEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool

	// Buffered returns the number of messages waiting for a connection.
	Buffered() int
}

// CommandFunc receives the slots of an inbound command.
type CommandFunc func(data map[string]string)

// CommandSource delivers inbound commands.
type CommandSource interface {
	// SubscribeCommands calls fn for every valid command received. The
	// subscription is restored after reconnects.
	SubscribeCommands(fn CommandFunc) error
}

// PinEvent is a change of a single pin.
type PinEvent struct {
	Timestamp time.Time
	Name      string
	State     string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// PinPayload represents the MQTT message payload for pin events.
type PinPayload struct {
	Pin PinPayloadInner `json:"pin"`
}

// PinPayloadInner contains the pin event details.
type PinPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	State     string `json:"state"`
}

// FormatPinPayload creates the JSON payload for a pin event.
func FormatPinPayload(event PinEvent) ([]byte, error) {
	payload := PinPayload{
		Pin: PinPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Name:      event.Name,
			State:     event.State,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// CommandPayload is the inbound command format.
type CommandPayload struct {
	Command  string  `json:"command"`
	IOObject string  `json:"ioobject"`
	IOParam  *string `json:"ioparam,omitempty"`
}

// ParseCommand decodes an inbound command into intent slots. An absent
// ioparam stays absent so the dispatcher can prompt for it.
func ParseCommand(payload []byte) (map[string]string, error) {
	var cmd CommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, errors.Wrap(err, "decode command")
	}
	if cmd.Command == "" || cmd.IOObject == "" {
		return nil, errors.WithStack(ErrInvalidCommand)
	}
	data := map[string]string{
		"command":  cmd.Command,
		"ioobject": cmd.IOObject,
	}
	if cmd.IOParam != nil {
		data["ioparam"] = *cmd.IOParam
	}
	return data, nil
}
