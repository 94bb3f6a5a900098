package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-skill/internal/dialog"
	"github.com/sweeney/gpio-skill/internal/skill"
)

const testTimeout = 2 * time.Second

// fakeBus is a websocket server standing in for the assistant's message bus.
type fakeBus struct {
	t        *testing.T
	srv      *httptest.Server
	received chan Message

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newFakeBus(t *testing.T) *fakeBus {
	t.Helper()
	b := &fakeBus{t: t, received: make(chan Message, 256)}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			b.received <- msg
		}
	}))
	t.Cleanup(func() {
		b.dropAll()
		b.srv.Close()
	})
	return b
}

func (b *fakeBus) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBus) next() Message {
	b.t.Helper()
	select {
	case msg := <-b.received:
		return msg
	case <-time.After(testTimeout):
		b.t.Fatal("timeout waiting for bus message")
		return Message{}
	}
}

// nextOfType skips messages until one of the given type arrives.
func (b *fakeBus) nextOfType(msgType string) Message {
	b.t.Helper()
	for {
		if msg := b.next(); msg.Type == msgType {
			return msg
		}
	}
}

func (b *fakeBus) send(msg Message) {
	b.t.Helper()
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	require.NoError(b.t, conn.WriteJSON(msg))
}

func (b *fakeBus) connCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *fakeBus) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
}

func testResources(t *testing.T) *dialog.Resources {
	t.Helper()
	res, err := dialog.LoadFS(fstest.MapFS{
		"command.voc":     {Data: []byte("turn\nblink\n")},
		"ioobject.voc":    {Data: []byte("led\n")},
		"ledblink.dialog": {Data: []byte("Blinking the led\n")},
	}, "test")
	require.NoError(t, err)
	return res
}

type connEvents struct {
	mu     sync.Mutex
	states []bool
}

func (e *connEvents) record(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, connected)
}

func (e *connEvents) get() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.states...)
}

func startClient(t *testing.T, b *fakeBus, setup func(c *Client)) (*Client, *connEvents) {
	t.Helper()
	events := &connEvents{}
	c := New(Config{
		URL:                b.url(),
		SkillID:            "gpio-skill",
		ReconnectDelay:     10 * time.Millisecond,
		OnConnectionChange: events.record,
	}, testResources(t), zerolog.Nop())
	if setup != nil {
		setup(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(testTimeout):
			t.Error("Run did not return after cancel")
		}
	})
	return c, events
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegistrationsSentOnConnect(t *testing.T) {
	b := newFakeBus(t)
	_, _ = startClient(t, b, func(c *Client) {
		require.NoError(t, c.LoadResources())
		require.NoError(t, c.RegisterIntent(skill.CommandIntent, func(skill.Message) error { return nil }))
	})

	// Kinds are sorted, words keep file order.
	want := [][2]string{{"turn", "command"}, {"blink", "command"}, {"led", "ioobject"}}
	for _, w := range want {
		msg := b.next()
		assert.Equal(t, TypeRegisterVocab, msg.Type)
		assert.Equal(t, w[0], msg.Data["start"])
		assert.Equal(t, w[1], msg.Data["end"])
	}

	msg := b.next()
	require.Equal(t, TypeRegisterIntent, msg.Type)
	assert.Equal(t, "gpio-skill:IoCommandIntent", msg.Data["name"])
	assert.Equal(t, []interface{}{
		[]interface{}{"command", "command"},
		[]interface{}{"ioobject", "ioobject"},
	}, msg.Data["requires"])
	assert.Equal(t, []interface{}{[]interface{}{"ioparam", "ioparam"}}, msg.Data["optional"])
}

func TestRegisterWhileConnectedSendsImmediately(t *testing.T) {
	b := newFakeBus(t)
	c, _ := startClient(t, b, nil)
	waitFor(t, c.IsConnected)

	require.NoError(t, c.RegisterIntent(skill.SystemQueryIntent, func(skill.Message) error { return nil }))

	msg := b.nextOfType(TypeRegisterIntent)
	assert.Equal(t, "gpio-skill:SystemQueryIntent", msg.Data["name"])
}

func TestIntentDelivery(t *testing.T) {
	b := newFakeBus(t)
	got := make(chan skill.Message, 1)
	c, _ := startClient(t, b, func(c *Client) {
		require.NoError(t, c.RegisterIntent(skill.CommandIntent, func(msg skill.Message) error {
			got <- msg
			return nil
		}))
	})
	waitFor(t, c.IsConnected)
	b.nextOfType(TypeRegisterIntent)

	b.send(Message{Type: "other-skill:IoCommandIntent", Data: map[string]interface{}{"command": "turn"}})
	b.send(Message{
		Type: "gpio-skill:IoCommandIntent",
		Data: map[string]interface{}{
			"command":    "turn",
			"ioobject":   "led",
			"ioparam":    "on",
			"confidence": 0.9,
			"target":     nil,
			"__tags__":   []interface{}{},
		},
	})

	select {
	case msg := <-got:
		assert.Equal(t, "gpio-skill:IoCommandIntent", msg.Type)
		assert.Equal(t, map[string]string{"command": "turn", "ioobject": "led", "ioparam": "on"}, msg.Data)
	case <-time.After(testTimeout):
		t.Fatal("intent not delivered")
	}
}

func TestHandlerErrorKeepsConnection(t *testing.T) {
	b := newFakeBus(t)
	calls := make(chan struct{}, 2)
	c, _ := startClient(t, b, func(c *Client) {
		require.NoError(t, c.RegisterIntent(skill.CommandIntent, func(skill.Message) error {
			calls <- struct{}{}
			return errors.New("gpio failed")
		}))
	})
	waitFor(t, c.IsConnected)
	b.nextOfType(TypeRegisterIntent)

	b.send(Message{Type: "gpio-skill:IoCommandIntent", Data: map[string]interface{}{}})
	b.send(Message{Type: "gpio-skill:IoCommandIntent", Data: map[string]interface{}{}})

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(testTimeout):
			t.Fatal("handler not called")
		}
	}
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, b.connCount())
}

func TestSpeak(t *testing.T) {
	b := newFakeBus(t)
	c, _ := startClient(t, b, nil)
	waitFor(t, c.IsConnected)

	require.NoError(t, c.Speak("Led is On"))
	require.NoError(t, c.SpeakDialog("ledblink"))
	require.NoError(t, c.SpeakDialog("unknown.key"))

	msg := b.next()
	assert.Equal(t, TypeSpeak, msg.Type)
	assert.Equal(t, "Led is On", msg.Data["utterance"])
	assert.Equal(t, false, msg.Data["expect_response"])
	assert.Equal(t, "gpio-skill", msg.Context["source"])

	assert.Equal(t, "Blinking the led", b.next().Data["utterance"])
	assert.Equal(t, "unknown key", b.next().Data["utterance"])
}

func TestSpeakNotConnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/core", SkillID: "gpio-skill"}, testResources(t), zerolog.Nop())

	err := c.Speak("hello")
	assert.Equal(t, ErrNotConnected, errors.Cause(err))
	assert.False(t, c.IsConnected())

	// Registrations are accepted and kept for the first connect.
	assert.NoError(t, c.RegisterIntent(skill.CommandIntent, func(skill.Message) error { return nil }))
}

func TestStopMessage(t *testing.T) {
	b := newFakeBus(t)
	stopped := make(chan struct{}, 1)
	c, _ := startClient(t, b, func(c *Client) {
		c.OnStop(func() { stopped <- struct{}{} })
	})
	waitFor(t, c.IsConnected)

	b.send(Message{Type: TypeStop, Data: map[string]interface{}{}})

	select {
	case <-stopped:
	case <-time.After(testTimeout):
		t.Fatal("stop not delivered")
	}
}

func TestReconnectReplaysRegistrations(t *testing.T) {
	b := newFakeBus(t)
	c, events := startClient(t, b, func(c *Client) {
		require.NoError(t, c.RegisterIntent(skill.CommandIntent, func(skill.Message) error { return nil }))
	})
	b.nextOfType(TypeRegisterIntent)

	b.dropAll()

	msg := b.nextOfType(TypeRegisterIntent)
	assert.Equal(t, "gpio-skill:IoCommandIntent", msg.Data["name"])
	waitFor(t, c.IsConnected)
	assert.Equal(t, 2, b.connCount())
	waitFor(t, func() bool { return len(events.get()) >= 3 })
	assert.Equal(t, []bool{true, false, true}, events.get()[:3])
}

func TestRunRetriesUntilCancelled(t *testing.T) {
	c := New(Config{
		URL:            "ws://127.0.0.1:1/core",
		SkillID:        "gpio-skill",
		ReconnectDelay: 5 * time.Millisecond,
	}, testResources(t), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, c.Run(ctx))
	assert.False(t, c.IsConnected())
}

func TestClose(t *testing.T) {
	b := newFakeBus(t)
	c, _ := startClient(t, b, nil)
	waitFor(t, c.IsConnected)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close(), "closing twice is a no-op")
}
