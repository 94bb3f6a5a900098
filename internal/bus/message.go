package bus

import "fmt"

// Message types used on the bus.
const (
	TypeSpeak          = "speak"
	TypeRegisterVocab  = "register_vocab"
	TypeRegisterIntent = "register_intent"
	TypeStop           = "mycroft.stop"
)

// Message is the envelope of every bus message.
type Message struct {
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// IntentType returns the message type under which the host delivers matches
// of the named intent.
func IntentType(skillID, intentName string) string {
	return fmt.Sprintf("%s:%s", skillID, intentName)
}

func vocabMessage(kind, word string) Message {
	return Message{
		Type: TypeRegisterVocab,
		Data: map[string]interface{}{
			"start": word,
			"end":   kind,
		},
	}
}

func intentMessage(name string, requires, optional []string) Message {
	return Message{
		Type: TypeRegisterIntent,
		Data: map[string]interface{}{
			"name":         name,
			"requires":     slotPairs(requires),
			"optional":     slotPairs(optional),
			"at_least_one": [][]string{},
		},
	}
}

func speakMessage(skillID, utterance string) Message {
	return Message{
		Type: TypeSpeak,
		Data: map[string]interface{}{
			"utterance":       utterance,
			"expect_response": false,
			"meta":            map[string]interface{}{"skill": skillID},
		},
		Context: map[string]interface{}{"source": skillID},
	}
}

// slotPairs maps slot names to [kind, slot] pairs. Slots are named after
// their vocabulary kind.
func slotPairs(slots []string) [][]string {
	pairs := make([][]string, 0, len(slots))
	for _, s := range slots {
		pairs = append(pairs, []string{s, s})
	}
	return pairs
}

// slotValues keeps the string values of an intent message. Numbers, lists
// and nulls the host adds (confidence, tags, target) are dropped.
func slotValues(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
