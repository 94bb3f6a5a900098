package skill

import "strings"

// Host is what the skill needs from the voice-assistant runtime.
type Host interface {
	// LoadResources loads dialog and vocabulary resources. Called once from
	// Initialize, before any intent is registered.
	LoadResources() error

	// RegisterIntent makes the host deliver matches of intent to handler.
	RegisterIntent(intent Intent, handler Handler) error

	// Speak says text as-is.
	Speak(text string) error

	// SpeakDialog says a phrase rendered from the dialog resource key.
	SpeakDialog(key string) error
}

// Intent describes a voice intent by its slots.
type Intent struct {
	Name     string
	Requires []string
	Optional []string
}

// Handler processes a matched intent.
type Handler func(msg Message) error

// Message is a matched intent with its slot values.
type Message struct {
	Type string
	Data map[string]string
}

// NewMessage creates a Message from slot values.
func NewMessage(msgType string, data map[string]string) Message {
	if data == nil {
		data = map[string]string{}
	}
	return Message{Type: msgType, Data: data}
}

// Slot returns the value of a slot and whether it was present.
func (m Message) Slot(name string) (string, bool) {
	v, ok := m.Data[name]
	return v, ok
}

// Is reports whether the slot equals want, ignoring case.
func (m Message) Is(name, want string) bool {
	return strings.EqualFold(m.Data[name], want)
}

// Slot names.
const (
	SlotCommand      = "command"
	SlotIOObject     = "ioobject"
	SlotIOParam      = "ioparam"
	SlotQuestion     = "question"
	SlotSystemObject = "systemobject"
)

// Intents registered by the skill.
var (
	CommandIntent = Intent{
		Name:     "IoCommandIntent",
		Requires: []string{SlotCommand, SlotIOObject},
		Optional: []string{SlotIOParam},
	}
	SystemQueryIntent = Intent{
		Name:     "SystemQueryIntent",
		Requires: []string{SlotQuestion, SlotSystemObject},
	}
)
