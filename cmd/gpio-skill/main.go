// Command gpio-skill attaches GPIO pins to a voice assistant. Spoken commands
// switch and blink an LED, and pin changes are mirrored to MQTT.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/gpio-skill/internal/bus"
	"github.com/sweeney/gpio-skill/internal/config"
	"github.com/sweeney/gpio-skill/internal/dialog"
	"github.com/sweeney/gpio-skill/internal/gpio"
	"github.com/sweeney/gpio-skill/internal/mirror"
	"github.com/sweeney/gpio-skill/internal/mqtt"
	"github.com/sweeney/gpio-skill/internal/skill"
	"github.com/sweeney/gpio-skill/internal/status"
	"github.com/sweeney/gpio-skill/internal/web"
)

const (
	projectName     = "gpio-skill"
	refreshInterval = time.Second
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

// options holds the command line flags. Flags that are set override the
// configuration file and environment.
type options struct {
	configPath    string
	envPath       string
	level         string
	busURL        string
	broker        string
	httpAddr      string
	backend       string
	blinkInterval time.Duration
	printState    bool
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "gpio-skill.yaml", "Path of the YAML configuration file")
	pflag.StringVar(&opts.envPath, "env", ".env", "Path of an environment file with GPIO_SKILL_* variables")
	pflag.StringVarP(&opts.level, "level", "l", "info", "Set log level")
	pflag.StringVar(&opts.busURL, "bus", "", "Message bus websocket URL (empty to disable)")
	pflag.StringVar(&opts.broker, "broker", "", "MQTT broker address (empty to disable)")
	pflag.StringVar(&opts.httpAddr, "http", "", "HTTP status address (empty to disable)")
	pflag.StringVar(&opts.backend, "backend", "", "GPIO backend (cdev|sysfs|sim)")
	pflag.DurationVar(&opts.blinkInterval, "blink-interval", 0, "Delay between two LED toggles while blinking")
	pflag.BoolVar(&opts.printState, "print-state", false, "Print current pin states and exit")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := config.LoadEnvFile(opts.envPath, pflag.CommandLine.Changed("env")); err != nil {
		Exitf("Failed to load environment file: %v\n", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}
	if err := applyFlags(cfg, opts, pflag.CommandLine.Changed); err != nil {
		Exitf("Invalid configuration: %v\n", err)
	}
	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	logger = logger.Level(level)

	if opts.printState {
		if err := printState(os.Stdout, cfg, logger); err != nil {
			Exitf("Failed to read pins: %v\n", err)
		}
		return
	}

	// Prepare to shutdown in a controlled manner
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	if err := run(ctx, cfg, logger); err != nil {
		Exitf("Skill run failed: %v\n", err)
	}
}

// applyFlags copies the flags that were set on the command line into cfg and
// validates the result.
func applyFlags(cfg *config.Config, opts options, changed func(name string) bool) error {
	if changed("level") {
		cfg.Log.Level = opts.level
	}
	if changed("bus") {
		cfg.Bus.URL = opts.busURL
	}
	if changed("broker") {
		cfg.MQTT.Broker = opts.broker
	}
	if changed("http") {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if changed("backend") {
		cfg.GPIO.Backend = opts.backend
	}
	if changed("blink-interval") {
		cfg.Skill.BlinkInterval = opts.blinkInterval
	}
	return config.Validate(cfg)
}

// mqttClient is the MQTT side of the daemon.
type mqttClient interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
	mqtt.CommandSource
}

// skillState is what the refresh loop reads from the skill.
type skillState interface {
	BlinkActive() bool
	Stats() skill.Stats
}

// inputSource reports debounced input pins.
type inputSource interface {
	Debounced() []gpio.InputStats
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	bank, err := openBank(cfg, log)
	if err != nil {
		return maskAny(err)
	}
	defer bank.Close()

	res, err := dialog.Load(cfg.Skill.LocaleDir)
	if err != nil {
		return errors.Wrap(err, "load dialogs")
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		SkillName:     cfg.Skill.Name,
		Backend:       cfg.GPIO.Backend,
		BusURL:        cfg.Bus.URL,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
		BlinkInterval: cfg.Skill.BlinkInterval,
	})
	tracker.SetGPIOImported(bank.IsImported())

	var publisher mqttClient
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Topics:             mqtt.NewTopics(cfg.MQTT.Prefix),
			BufferSize:         cfg.MQTT.BufferSize,
			OnConnectionChange: tracker.SetMQTTConnected,
		}, log)
		if err != nil {
			return errors.Wrap(err, "connect MQTT")
		}
		defer p.Close()
		publisher = p
		tracker.SetMQTTConnected(p.IsConnected())
	}

	m := mirror.New(mirror.Config{ButtonLabels: cfg.GPIO.Button.Enabled}, tracker, publisher, log)
	m.Attach(bank, bank.Names())

	busClient := bus.New(bus.Config{
		URL:                cfg.Bus.URL,
		SkillID:            cfg.Bus.SkillID,
		ReconnectDelay:     cfg.Bus.ReconnectDelay,
		OnConnectionChange: tracker.SetBusConnected,
	}, res, log)

	sk := skill.New(skill.Config{
		Name:            cfg.Skill.Name,
		BlinkInterval:   cfg.Skill.BlinkInterval,
		AnnounceChanges: cfg.Skill.AnnounceChanges,
		ButtonEnabled:   cfg.GPIO.Button.Enabled,
	}, skill.Deps{
		Host:         busClient,
		GPIO:         bank,
		Introspector: skill.NewBuildInfo(cfg.Skill.Name, res.Source()),
		Log:          log,
	})
	if err := sk.Initialize(); err != nil {
		return errors.Wrap(err, "initialize skill")
	}
	busClient.OnStop(sk.Stop)

	if publisher != nil {
		if err := publisher.SubscribeCommands(commandHandler(sk, log)); err != nil {
			return errors.Wrap(err, "subscribe commands")
		}
		m.Lifecycle("STARTUP", "", true)
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Bus.URL != "" {
		g.Go(func() error { return busClient.Run(ctx) })
	} else {
		log.Warn().Msg("message bus disabled, voice intents will not be received")
	}
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, log)
		g.Go(func() error { return srv.Run(ctx) })
	}
	if cfg.GPIO.PollInterval > 0 {
		g.Go(func() error { return bank.Poll(ctx, cfg.GPIO.PollInterval, cfg.GPIO.Debounce) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		var heartbeat <-chan time.Time
		if publisher != nil && cfg.MQTT.Heartbeat > 0 {
			hb := time.NewTicker(cfg.MQTT.Heartbeat)
			defer hb.Stop()
			heartbeat = hb.C
		}
		return runLoop(ctx, sk, bank, tracker, m, ticker.C, heartbeat)
	})

	log.Info().
		Str("backend", cfg.GPIO.Backend).
		Bool("gpio_imported", bank.IsImported()).
		Str("bus", cfg.Bus.URL).
		Str("broker", cfg.MQTT.Broker).
		Str("http", cfg.HTTP.Addr).
		Msg("started")

	err = g.Wait()

	sk.Stop()
	m.Lifecycle("SHUTDOWN", "STOPPED", true)
	if cerr := busClient.Close(); cerr != nil {
		log.Debug().Err(cerr).Msg("closing bus connection")
	}
	return maskAny(err)
}

// openBank opens the configured GPIO backend. When the hardware cannot be
// opened the skill keeps running on simulated pins and reports GPIO as not
// imported.
func openBank(cfg *config.Config, log zerolog.Logger) (*gpio.Bank, error) {
	bank, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip, cfg.Pins(), log)
	if err == nil {
		return bank, nil
	}
	if cfg.GPIO.Backend == "sim" {
		return nil, maskAny(err)
	}
	log.Warn().Err(err).Str("backend", cfg.GPIO.Backend).Msg("GPIO unavailable, using simulated pins")
	return gpio.NewSimBank(cfg.Pins(), log)
}

// commandHandler routes MQTT commands through the same handler as the
// spoken command intent.
func commandHandler(sk *skill.Skill, log zerolog.Logger) mqtt.CommandFunc {
	return func(data map[string]string) {
		msg := skill.NewMessage(skill.CommandIntent.Name, data)
		if err := sk.HandleCommand(msg); err != nil {
			log.Error().Err(err).Interface("data", data).Msg("MQTT command failed")
		}
	}
}

// runLoop copies skill and input state into the tracker on every tick and
// publishes a HEARTBEAT event on every heartbeat until ctx is cancelled.
func runLoop(ctx context.Context, sk skillState, inputs inputSource, tracker *status.Tracker, m *mirror.Mirror, tick, heartbeat <-chan time.Time) error {
	refresh := func() {
		tracker.SetBlinkActive(sk.BlinkActive())
		tracker.SetCounts(status.Counts(sk.Stats()))
		m.Inputs(inputs.Debounced())
		m.RefreshMQTT()
	}
	for {
		select {
		case <-ctx.Done():
			refresh()
			return nil
		case <-tick:
			refresh()
		case <-heartbeat:
			refresh()
			m.Lifecycle("HEARTBEAT", "", false)
		}
	}
}

// printState prints the state of every pin, one per line.
func printState(w io.Writer, cfg *config.Config, log zerolog.Logger) error {
	bank, err := openBank(cfg, log)
	if err != nil {
		return maskAny(err)
	}
	defer bank.Close()

	for _, name := range bank.Names() {
		state, err := bank.Get(name)
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		fmt.Fprintf(w, "%s: %s\n", name, state)
	}
	if !bank.IsImported() {
		fmt.Fprintln(w, "(simulated, GPIO not imported)")
	}
	return nil
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
