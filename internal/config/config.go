// Package config loads the gpio-skill configuration from a YAML file, an
// optional .env file and GPIO_SKILL_* environment variables.
package config

import (
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/gpio-skill/internal/blink"
	"github.com/sweeney/gpio-skill/internal/gpio"
	"github.com/sweeney/gpio-skill/internal/mqtt"
	"github.com/sweeney/gpio-skill/internal/skill"
)

// EnvPrefix prefixes all environment overrides.
const EnvPrefix = "GPIO_SKILL_"

// Config is the complete daemon configuration.
type Config struct {
	Skill SkillConfig `yaml:"skill"`
	Bus   BusConfig   `yaml:"bus"`
	GPIO  GPIOConfig  `yaml:"gpio"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	HTTP  HTTPConfig  `yaml:"http"`
	Log   LogConfig   `yaml:"log"`
}

// SkillConfig configures the skill itself.
type SkillConfig struct {
	Name            string        `yaml:"name"`
	BlinkInterval   time.Duration `yaml:"blink_interval"`
	AnnounceChanges bool          `yaml:"announce_changes"`
	// LocaleDir overrides the embedded dialog resources.
	LocaleDir string `yaml:"locale_dir"`
}

// BusConfig configures the host message bus connection.
type BusConfig struct {
	URL            string        `yaml:"url"`
	SkillID        string        `yaml:"skill_id"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// GPIOConfig selects the GPIO backend and pin lines.
type GPIOConfig struct {
	// Backend is one of cdev, sysfs or sim.
	Backend string `yaml:"backend"`
	// Chip is the character device used by the cdev backend.
	Chip   string       `yaml:"chip"`
	LED    PinConfig    `yaml:"led"`
	Light  PinConfig    `yaml:"light"`
	Button ButtonConfig `yaml:"button"`
	// PollInterval samples input pins; 0 disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Debounce is how long a polled input must hold a new level.
	Debounce time.Duration `yaml:"debounce"`
}

// PinConfig maps a pin to a line offset.
type PinConfig struct {
	Line      int  `yaml:"line"`
	ActiveLow bool `yaml:"active_low"`
}

// ButtonConfig configures the button input.
type ButtonConfig struct {
	PinConfig `yaml:",inline"`
	// Enabled speaks button presses.
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig configures the MQTT mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Prefix     string `yaml:"prefix"`
	BufferSize int    `yaml:"buffer_size"`
	// Heartbeat publishes a status event at this interval; 0 disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Skill: SkillConfig{
			Name:          skill.DefaultName,
			BlinkInterval: blink.DefaultInterval,
		},
		Bus: BusConfig{
			URL:            "ws://localhost:8181/core",
			SkillID:        skill.DefaultName,
			ReconnectDelay: 5 * time.Second,
		},
		GPIO: GPIOConfig{
			Backend: "cdev",
			Chip:    "gpiochip0",
			LED:     PinConfig{Line: gpio.DefaultLineLED},
			Light:   PinConfig{Line: gpio.DefaultLineLight},
			Button:  ButtonConfig{PinConfig: PinConfig{Line: gpio.DefaultLineButton}},

			PollInterval: 100 * time.Millisecond,
			Debounce:     50 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			ClientID:   skill.DefaultName,
			Prefix:     mqtt.DefaultPrefix,
			BufferSize: 100,
			Heartbeat:  15 * time.Minute,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrap(err, "read config")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is an
// error only when required is set.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !required {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

// ApplyEnvOverrides maps GPIO_SKILL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"NAME":         &cfg.Skill.Name,
		"LOCALE_DIR":   &cfg.Skill.LocaleDir,
		"BUS_URL":      &cfg.Bus.URL,
		"SKILL_ID":     &cfg.Bus.SkillID,
		"GPIO_BACKEND": &cfg.GPIO.Backend,
		"GPIO_CHIP":    &cfg.GPIO.Chip,
		"MQTT_BROKER":  &cfg.MQTT.Broker,
		"MQTT_PREFIX":  &cfg.MQTT.Prefix,
		"HTTP_ADDR":    &cfg.HTTP.Addr,
		"LOG_LEVEL":    &cfg.Log.Level,
	}
	for key, field := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		"BLINK_INTERVAL":      &cfg.Skill.BlinkInterval,
		"BUS_RECONNECT_DELAY": &cfg.Bus.ReconnectDelay,
		"GPIO_POLL_INTERVAL":  &cfg.GPIO.PollInterval,
		"GPIO_DEBOUNCE":       &cfg.GPIO.Debounce,
		"MQTT_HEARTBEAT":      &cfg.MQTT.Heartbeat,
	}
	for key, field := range durations {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "parse %s%s", EnvPrefix, key)
			}
			*field = d
		}
	}

	bools := map[string]*bool{
		"ANNOUNCE_CHANGES": &cfg.Skill.AnnounceChanges,
		"BUTTON_ENABLED":   &cfg.GPIO.Button.Enabled,
	}
	for key, field := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "parse %s%s", EnvPrefix, key)
			}
			*field = b
		}
	}
	return nil
}

// Validate checks the config for values the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg.Skill.BlinkInterval <= 0 {
		return errors.Errorf("skill.blink_interval must be positive, got %s", cfg.Skill.BlinkInterval)
	}
	if cfg.Bus.SkillID == "" {
		return errors.New("bus.skill_id is required")
	}
	if cfg.Bus.URL != "" {
		u, err := url.Parse(cfg.Bus.URL)
		if err != nil {
			return errors.Wrap(err, "bus.url")
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.Errorf("bus.url must use ws or wss, got %q", u.Scheme)
		}
	}
	switch cfg.GPIO.Backend {
	case "cdev", "sysfs", "sim":
	default:
		return errors.Errorf("gpio.backend must be cdev, sysfs or sim, got %q", cfg.GPIO.Backend)
	}
	seen := map[int]gpio.PinName{}
	for _, p := range cfg.Pins() {
		if p.Line < 0 {
			return errors.Errorf("gpio line of %s must not be negative", p.Name)
		}
		if other, ok := seen[p.Line]; ok {
			return errors.Errorf("gpio line %d used by both %s and %s", p.Line, other, p.Name)
		}
		seen[p.Line] = p.Name
	}
	if cfg.GPIO.PollInterval < 0 || cfg.GPIO.Debounce < 0 {
		return errors.New("gpio.poll_interval and gpio.debounce must not be negative")
	}
	if cfg.MQTT.Heartbeat < 0 {
		return errors.New("mqtt.heartbeat must not be negative")
	}
	if cfg.MQTT.BufferSize < 0 {
		return errors.New("mqtt.buffer_size must not be negative")
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// Pins returns the GPIO pin layout.
func (c *Config) Pins() []gpio.PinConfig {
	return []gpio.PinConfig{
		{Name: gpio.PinLED, Line: c.GPIO.LED.Line, Direction: gpio.Output, ActiveLow: c.GPIO.LED.ActiveLow},
		{Name: gpio.PinLight, Line: c.GPIO.Light.Line, Direction: gpio.Output, ActiveLow: c.GPIO.Light.ActiveLow},
		{Name: gpio.PinButton, Line: c.GPIO.Button.Line, Direction: gpio.Input, ActiveLow: c.GPIO.Button.ActiveLow},
	}
}
