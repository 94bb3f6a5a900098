package skill

import (
	"sync"

	"github.com/pkg/errors"
)

// Utterance is one thing a FakeHost was asked to say.
type Utterance struct {
	// Text is the freeform text, or the dialog key when Dialog is true.
	Text   string
	Dialog bool
}

// FakeHost records everything the skill asks of its host.
type FakeHost struct {
	mu sync.Mutex

	// Spoken contains Speak and SpeakDialog calls in order.
	Spoken []Utterance

	// Intents contains registered intents by name.
	Intents map[string]Intent

	// ResourcesLoaded counts LoadResources calls.
	ResourcesLoaded int

	// LoadError, RegisterError and SpeakError are returned when set.
	LoadError     error
	RegisterError error
	SpeakError    error

	handlers map[string]Handler
}

// NewFakeHost creates an empty FakeHost.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		Intents:  make(map[string]Intent),
		handlers: make(map[string]Handler),
	}
}

// LoadResources counts the call.
func (h *FakeHost) LoadResources() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.LoadError != nil {
		return h.LoadError
	}
	h.ResourcesLoaded++
	return nil
}

// RegisterIntent stores the handler for Deliver.
func (h *FakeHost) RegisterIntent(intent Intent, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RegisterError != nil {
		return h.RegisterError
	}
	h.Intents[intent.Name] = intent
	h.handlers[intent.Name] = handler
	return nil
}

// Speak records freeform text.
func (h *FakeHost) Speak(text string) error {
	return h.record(Utterance{Text: text})
}

// SpeakDialog records a dialog key.
func (h *FakeHost) SpeakDialog(key string) error {
	return h.record(Utterance{Text: key, Dialog: true})
}

func (h *FakeHost) record(u Utterance) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SpeakError != nil {
		return h.SpeakError
	}
	h.Spoken = append(h.Spoken, u)
	return nil
}

// Deliver invokes the handler registered for the intent, as the host would
// after matching an utterance.
func (h *FakeHost) Deliver(intentName string, data map[string]string) error {
	h.mu.Lock()
	handler, ok := h.handlers[intentName]
	h.mu.Unlock()
	if !ok {
		return errors.Errorf("intent %s not registered", intentName)
	}
	return handler(NewMessage(intentName, data))
}

// Utterances returns a copy of everything spoken so far.
func (h *FakeHost) Utterances() []Utterance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Utterance(nil), h.Spoken...)
}

// Reset clears recorded utterances and errors. Registered intents are kept.
func (h *FakeHost) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Spoken = nil
	h.LoadError = nil
	h.RegisterError = nil
	h.SpeakError = nil
}
