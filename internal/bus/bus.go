// Package bus connects the skill to the voice assistant's websocket message
// bus. It registers vocabulary and intents, delivers matched intents to their
// handlers and sends speech.
package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/dialog"
	"github.com/sweeney/gpio-skill/internal/metrics"
	"github.com/sweeney/gpio-skill/internal/skill"
)

// ErrNotConnected is returned when sending while the bus is down.
var ErrNotConnected = errors.New("bus: not connected")

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Config of a bus Client.
type Config struct {
	// URL of the bus, e.g. ws://localhost:8181/core.
	URL string
	// SkillID prefixes intent names.
	SkillID        string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	// OnConnectionChange is called after every connect and disconnect.
	OnConnectionChange func(connected bool)
}

// Client is a message bus client implementing skill.Host.
type Client struct {
	cfg    Config
	res    *dialog.Resources
	log    zerolog.Logger
	dialer *websocket.Dialer

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	registrations []Message
	handlers      map[string]skill.Handler
	onStop        []func()
}

var _ skill.Host = (*Client)(nil)

// New creates a Client. Nothing is dialed until Run.
func New(cfg Config, res *dialog.Resources, log zerolog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Client{
		cfg: cfg,
		res: res,
		log: log.With().Str("component", "bus").Str("url", cfg.URL).Logger(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		handlers: make(map[string]skill.Handler),
	}
}

// LoadResources registers every vocabulary entry with the host. Entries are
// sent again after every reconnect.
func (c *Client) LoadResources() error {
	vocab := c.res.Vocabulary()
	n := 0
	for _, kind := range c.res.VocabularyKinds() {
		for _, word := range vocab[kind] {
			if err := c.register(vocabMessage(kind, word)); err != nil {
				return errors.Wrapf(err, "register vocabulary %s", kind)
			}
			n++
		}
	}
	c.log.Debug().Int("entries", n).Str("source", c.res.Source()).Msg("vocabulary registered")
	return nil
}

// RegisterIntent registers the intent with the host and routes its matches to
// handler.
func (c *Client) RegisterIntent(intent skill.Intent, handler skill.Handler) error {
	name := IntentType(c.cfg.SkillID, intent.Name)
	c.mu.Lock()
	c.handlers[name] = handler
	c.mu.Unlock()
	if err := c.register(intentMessage(name, intent.Requires, intent.Optional)); err != nil {
		return errors.Wrapf(err, "register intent %s", name)
	}
	return nil
}

// OnStop registers fn to be called when the host asks all skills to stop.
func (c *Client) OnStop(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStop = append(c.onStop, fn)
}

// Speak asks the host to say text.
func (c *Client) Speak(text string) error {
	return c.send(speakMessage(c.cfg.SkillID, text))
}

// SpeakDialog renders the dialog key and speaks it.
func (c *Client) SpeakDialog(key string) error {
	return c.Speak(c.res.Render(key))
}

// IsConnected reports whether the bus connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects to the bus and dispatches incoming messages until ctx is
// cancelled, reconnecting after ReconnectDelay whenever the connection fails.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("connect failed")
		} else {
			err := c.readLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectDelay).Msg("connection lost")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.setConnected(false)
	return errors.WithStack(conn.Close())
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}

	c.mu.Lock()
	c.conn = conn
	pending := append([]Message(nil), c.registrations...)
	c.mu.Unlock()

	for _, msg := range pending {
		if err := c.send(msg); err != nil {
			c.drop(conn)
			return errors.Wrap(err, "replay registrations")
		}
	}
	c.log.Info().Int("registrations", len(pending)).Msg("connected")
	c.setConnected(true)
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	defer c.drop(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		receivedTotal.WithLabelValues("invalid").Inc()
		c.log.Debug().Err(err).Msg("ignoring undecodable message")
		return
	}

	if msg.Type == TypeStop {
		receivedTotal.WithLabelValues("stop").Inc()
		c.mu.Lock()
		fns := append([]func(){}, c.onStop...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
		return
	}

	c.mu.Lock()
	handler, ok := c.handlers[msg.Type]
	c.mu.Unlock()
	if !ok {
		receivedTotal.WithLabelValues("other").Inc()
		return
	}

	receivedTotal.WithLabelValues("intent").Inc()
	log := c.log.With().Str("intent", msg.Type).Logger()
	log.Debug().Interface("data", msg.Data).Msg("intent received")
	if err := handler(skill.NewMessage(msg.Type, slotValues(msg.Data))); err != nil {
		handlerErrorsTotal.Inc()
		log.Error().Err(err).Msg("intent handler failed")
	}
}

// register remembers msg for replay and sends it when connected.
func (c *Client) register(msg Message) error {
	c.mu.Lock()
	c.registrations = append(c.registrations, msg)
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.send(msg)
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.WithStack(ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := conn.WriteJSON(msg); err != nil {
		return errors.Wrapf(err, "write %s", msg.Type)
	}
	sentTotal.WithLabelValues(msg.Type).Inc()
	return nil
}

// drop forgets conn if it is still the current connection and closes it.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
	if current {
		c.setConnected(false)
	}
}

func (c *Client) setConnected(connected bool) {
	connectedGauge.Set(metrics.BoolToFloat(connected))
	if c.cfg.OnConnectionChange != nil {
		c.cfg.OnConnectionChange(connected)
	}
}
