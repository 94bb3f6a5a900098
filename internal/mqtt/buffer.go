package mqtt

import "github.com/rs/zerolog"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog keeps messages published while the broker is unreachable, oldest
// first. A retained message replaces the retained message queued earlier on
// the same topic, because the broker keeps only the last one. When full, the
// oldest non-retained message (pin change or heartbeat) is dropped.
// Not safe for concurrent use; the caller must synchronize.
type backlog struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // since the last drain
	log      zerolog.Logger
}

func newBacklog(capacity int, log zerolog.Logger) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{capacity: capacity, log: log}
}

func (b *backlog) push(msg bufferedMsg) {
	if msg.retained {
		for i, m := range b.msgs {
			if m.retained && m.topic == msg.topic {
				b.msgs = append(b.msgs[:i], b.msgs[i+1:]...)
				break
			}
		}
	}
	if len(b.msgs) >= b.capacity {
		b.evict()
	}
	b.msgs = append(b.msgs, msg)
}

// evict drops one message, preferring the oldest non-retained one.
func (b *backlog) evict() {
	victim := 0
	for i, m := range b.msgs {
		if !m.retained {
			victim = i
			break
		}
	}
	if b.dropped == 0 {
		b.log.Warn().Int("capacity", b.capacity).Str("topic", b.msgs[victim].topic).Msg("backlog full, dropping")
	}
	b.dropped++
	droppedTotal.Inc()
	b.msgs = append(b.msgs[:victim], b.msgs[victim+1:]...)
}

// drain returns the queued messages in publish order and empties the backlog.
func (b *backlog) drain() []bufferedMsg {
	if len(b.msgs) == 0 {
		return nil
	}
	msgs := b.msgs
	if b.dropped > 0 {
		b.log.Info().Int("dropped", b.dropped).Int("replaying", len(msgs)).Msg("backlog drained")
	}
	b.msgs = nil
	b.dropped = 0
	return msgs
}

func (b *backlog) len() int {
	return len(b.msgs)
}
