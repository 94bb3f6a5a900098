package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultClientID       = "gpio-skill"
	defaultBufferSize     = 100
	defaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
)

// Config of a RealPublisher.
type Config struct {
	Broker   string
	ClientID string
	Topics   Topics
	// BufferSize is the number of messages kept while disconnected.
	BufferSize     int
	ConnectTimeout time.Duration
	// OnConnectionChange is called with the new state after every connect
	// and connection loss.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    zerolog.Logger
	notify func(bool)

	mu        sync.Mutex
	buffer    *backlog
	commands  CommandFunc
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher connected to the given broker.
// A retained OFFLINE event is registered as last will on the system topic.
func NewRealPublisher(cfg Config, log zerolog.Logger) (*RealPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Topics == (Topics{}) {
		cfg.Topics = NewTopics(DefaultPrefix)
	}
	log = log.With().Str("component", "mqtt").Str("broker", cfg.Broker).Logger()

	p := &RealPublisher{
		topics: cfg.Topics,
		log:    log,
		notify: cfg.OnConnectionChange,
		buffer: newBacklog(cfg.BufferSize, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, errors.Wrap(err, "format will")
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetBinaryWill(cfg.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		p.client.Disconnect(0)
		return nil, errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "connect to broker")
	}

	return p, nil
}

// PublishPin sends a pin event to the MQTT broker.
func (p *RealPublisher) PublishPin(event PinEvent) error {
	payload, err := FormatPinPayload(event)
	if err != nil {
		return errors.Wrap(err, "format pin payload")
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topics.Pins, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Wrap(err, "format system payload")
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{
		topic:    p.topics.System,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

// SubscribeCommands subscribes to the command topic. The subscription is
// repeated on every reconnect.
func (p *RealPublisher) SubscribeCommands(fn CommandFunc) error {
	p.mu.Lock()
	p.commands = fn
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return nil
	}
	return p.subscribe()
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}
	if err := p.send(msg); err != nil {
		p.enqueue(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		publishFailuresTotal.Inc()
		return errors.Errorf("publish to %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		publishFailuresTotal.Inc()
		return errors.Wrapf(err, "publish to %s", msg.topic)
	}
	publishedTotal.WithLabelValues(msg.topic).Inc()
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.push(msg)
	bufferedGauge.Set(float64(p.buffer.len()))
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.buffer.drain()
	hasCommands := p.commands != nil
	p.mu.Unlock()
	bufferedGauge.Set(0)

	p.log.Info().Bool("reconnect", reconnect).Int("buffered", len(pending)).Msg("connected")
	if p.notify != nil {
		p.notify(true)
	}
	if hasCommands {
		if err := p.subscribe(); err != nil {
			p.log.Error().Err(err).Msg("resubscribe failed")
		}
	}
	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			p.log.Warn().Err(err).Str("topic", msg.topic).Msg("replay failed")
		}
	}
	if reconnect {
		err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", Retained: true})
		if err != nil {
			p.log.Warn().Err(err).Msg("publish reconnected failed")
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Warn().Err(err).Msg("connection lost")
	if p.notify != nil {
		p.notify(false)
	}
}

func (p *RealPublisher) subscribe() error {
	token := p.client.Subscribe(p.topics.Command, 1, p.onMessage)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("subscribe to %s timeout", p.topics.Command)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "subscribe to %s", p.topics.Command)
	}
	p.log.Debug().Str("topic", p.topics.Command).Msg("subscribed")
	return nil
}

func (p *RealPublisher) onMessage(_ paho.Client, msg paho.Message) {
	data, err := ParseCommand(msg.Payload())
	if err != nil {
		commandsTotal.WithLabelValues("invalid").Inc()
		p.log.Warn().Err(err).Str("payload", string(msg.Payload())).Msg("ignoring command")
		return
	}
	p.mu.Lock()
	fn := p.commands
	p.mu.Unlock()
	if fn == nil {
		return
	}
	commandsTotal.WithLabelValues("accepted").Inc()
	fn(data)
}
