// Package skill maps voice intents to GPIO pin writes and spoken status.
//
// Two intents are handled. The command intent drives the LED and light pins
// (TURN/SET on or off, STATUS, BLINK). The system query intent answers debug
// questions about the running program. Unrecognized input is dropped without
// an error.
package skill

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/blink"
	"github.com/sweeney/gpio-skill/internal/gpio"
)

// DefaultName is used when no skill name is configured.
const DefaultName = "gpio-skill"

// Dialog keys.
const (
	DialogBlink         = "ledblink"
	DialogParamRequired = "ioparamrequired"
	DialogName          = "name"
	DialogCheck         = "check"
	DialogModules       = "modules"
	DialogPath          = "path"
)

// Config of the skill.
type Config struct {
	// Name of the skill, used when build info is unavailable.
	Name string
	// BlinkInterval between two LED toggles while blinking.
	BlinkInterval time.Duration
	// AnnounceChanges speaks "Led is <state>" whenever the LED or light changes.
	AnnounceChanges bool
	// ButtonEnabled speaks "Button is <state>" on button changes.
	ButtonEnabled bool
}

// Deps are the collaborators of the skill.
type Deps struct {
	Host         Host
	GPIO         gpio.Controller
	Introspector Introspector
	// Scheduler for blink steps; nil uses real timers.
	Scheduler blink.Scheduler
	Log       zerolog.Logger
}

// Stats counts handled intents.
type Stats struct {
	Commands uint64
	Queries  uint64
	Ignored  uint64
}

// Skill is a single skill instance.
type Skill struct {
	cfg     Config
	host    Host
	gpio    gpio.Controller
	intro   Introspector
	log     zerolog.Logger
	blinker *blink.Blinker

	commands atomic.Uint64
	queries  atomic.Uint64
	ignored  atomic.Uint64
}

// New creates a skill. Call Initialize before delivering intents.
func New(cfg Config, deps Deps) *Skill {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	s := &Skill{
		cfg:   cfg,
		host:  deps.Host,
		gpio:  deps.GPIO,
		intro: deps.Introspector,
		log:   deps.Log.With().Str("component", "skill").Logger(),
	}
	if s.intro == nil {
		s.intro = NewBuildInfo(cfg.Name)
	}
	s.blinker = blink.New(blink.Config{
		Interval:  cfg.BlinkInterval,
		Step:      s.blinkStep,
		Scheduler: deps.Scheduler,
	}, deps.Log)
	return s
}

// Initialize loads resources, subscribes to pin changes and registers both
// intents with the host.
func (s *Skill) Initialize() error {
	if err := s.host.LoadResources(); err != nil {
		return errors.Wrap(err, "load resources")
	}
	if s.cfg.AnnounceChanges {
		s.gpio.On(gpio.PinLED, s.onLEDChange)
		s.gpio.On(gpio.PinLight, s.onLEDChange)
	}
	if s.cfg.ButtonEnabled {
		s.gpio.On(gpio.PinButton, s.onButtonChange)
	}
	if err := s.host.RegisterIntent(CommandIntent, s.HandleCommand); err != nil {
		return errors.Wrapf(err, "register %s", CommandIntent.Name)
	}
	if err := s.host.RegisterIntent(SystemQueryIntent, s.HandleSystemQuery); err != nil {
		return errors.Wrapf(err, "register %s", SystemQueryIntent.Name)
	}
	s.log.Info().
		Dur("blink_interval", s.blinker.Interval()).
		Bool("announce_changes", s.cfg.AnnounceChanges).
		Bool("button", s.cfg.ButtonEnabled).
		Msg("skill initialized")
	return nil
}

// Stop cancels blinking.
func (s *Skill) Stop() {
	if s.blinker.Cancel() {
		s.log.Info().Msg("stopped blinking")
	}
}

// BlinkActive reports whether the LED is blinking.
func (s *Skill) BlinkActive() bool {
	return s.blinker.Active()
}

// Stats returns intent counters.
func (s *Skill) Stats() Stats {
	return Stats{
		Commands: s.commands.Load(),
		Queries:  s.queries.Load(),
		Ignored:  s.ignored.Load(),
	}
}

// HandleCommand handles the device command intent.
func (s *Skill) HandleCommand(msg Message) error {
	s.commands.Add(1)
	command := strings.ToUpper(msg.Data[SlotCommand])
	commandsTotal.WithLabelValues(commandLabel(command)).Inc()
	log := s.log.With().
		Str("command", msg.Data[SlotCommand]).
		Str("ioobject", msg.Data[SlotIOObject]).
		Logger()

	switch command {
	case "BLINK":
		active := s.blinker.Toggle()
		log.Debug().Bool("active", active).Msg("blink toggled")
		return s.speakDialog(DialogBlink)
	case "STATUS":
		if msg.Is(SlotIOObject, "LED") {
			return s.speakStatus(gpio.PinLED)
		}
	case "TURN", "SET":
		if pin, ok := objectPin(msg.Data[SlotIOObject]); ok {
			return s.setPin(pin, msg, log)
		}
	}
	s.ignore(log, "unhandled command")
	return nil
}

// HandleSystemQuery handles the debug system query intent.
func (s *Skill) HandleSystemQuery(msg Message) error {
	s.queries.Add(1)
	object := msg.Data[SlotSystemObject]
	queriesTotal.WithLabelValues(queryLabel(object)).Inc()
	log := s.log.With().Str("systemobject", object).Logger()

	switch strings.ToUpper(object) {
	case "NAME":
		return s.speakAll(DialogName, s.intro.Name())
	case "GPIO":
		answer := "GPIO is not Imported"
		if s.gpio.IsImported() {
			answer = "GPIO is Imported"
		}
		return s.speakAll(DialogCheck, answer)
	case "MODULES":
		return s.speakAll(DialogModules, s.intro.Modules()...)
	case "PATH":
		return s.speakAll(DialogPath, s.intro.SearchPaths()...)
	}
	s.ignore(log, "unhandled system query")
	return nil
}

func (s *Skill) setPin(pin gpio.PinName, msg Message, log zerolog.Logger) error {
	param, ok := msg.Slot(SlotIOParam)
	if !ok {
		return s.speakDialog(DialogParamRequired)
	}
	state, ok := gpio.ParseState(param)
	if !ok {
		s.ignore(log.With().Str("ioparam", param).Logger(), "unhandled ioparam")
		return nil
	}
	s.blinker.Cancel()
	if err := s.gpio.Set(pin, state); err != nil {
		return errors.Wrapf(err, "set %s %s", pin, state)
	}
	log.Debug().Str("pin", string(pin)).Str("state", string(state)).Msg("pin set")
	return nil
}

func (s *Skill) speakStatus(pin gpio.PinName) error {
	state, err := s.gpio.Get(pin)
	if err != nil {
		return errors.Wrapf(err, "get %s", pin)
	}
	return s.speak(fmt.Sprintf("Led is %s", state))
}

// blinkStep runs on the blinker's timer; it toggles the LED.
func (s *Skill) blinkStep() {
	state, err := s.gpio.Get(gpio.PinLED)
	if err != nil {
		s.log.Warn().Err(err).Msg("blink read failed")
		return
	}
	next := gpio.StateOn
	if state.IsOn() {
		next = gpio.StateOff
	}
	if err := s.gpio.Set(gpio.PinLED, next); err != nil {
		s.log.Warn().Err(err).Msg("blink write failed")
	}
}

func (s *Skill) onLEDChange(name gpio.PinName, state gpio.State) {
	if err := s.speak(fmt.Sprintf("Led is %s", state)); err != nil {
		s.log.Warn().Err(err).Str("pin", string(name)).Msg("announce failed")
	}
}

func (s *Skill) onButtonChange(name gpio.PinName, state gpio.State) {
	if err := s.speak(fmt.Sprintf("Button is %s", gpio.ButtonState(state))); err != nil {
		s.log.Warn().Err(err).Msg("announce failed")
	}
}

func (s *Skill) speakAll(dialogKey string, lines ...string) error {
	if err := s.speakDialog(dialogKey); err != nil {
		return err
	}
	for _, line := range lines {
		if err := s.speak(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Skill) speak(text string) error {
	utterancesTotal.Inc()
	if err := s.host.Speak(text); err != nil {
		return errors.Wrap(err, "speak")
	}
	return nil
}

func (s *Skill) speakDialog(key string) error {
	utterancesTotal.Inc()
	if err := s.host.SpeakDialog(key); err != nil {
		return errors.Wrapf(err, "speak dialog %s", key)
	}
	return nil
}

func (s *Skill) ignore(log zerolog.Logger, msg string) {
	s.ignored.Add(1)
	log.Debug().Msg(msg)
}

func objectPin(object string) (gpio.PinName, bool) {
	switch strings.ToUpper(object) {
	case "LED":
		return gpio.PinLED, true
	case "LIGHT":
		return gpio.PinLight, true
	}
	return "", false
}
