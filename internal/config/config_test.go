package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-skill/internal/gpio"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 10*time.Second, cfg.Skill.BlinkInterval)
	assert.False(t, cfg.Skill.AnnounceChanges)
	assert.False(t, cfg.GPIO.Button.Enabled)
	assert.Equal(t, "cdev", cfg.GPIO.Backend)
	assert.Equal(t, "ws://localhost:8181/core", cfg.Bus.URL)
	assert.Empty(t, cfg.MQTT.Broker, "MQTT is disabled by default")
	assert.Equal(t, 100*time.Millisecond, cfg.GPIO.PollInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.GPIO.Debounce)
	assert.Equal(t, 15*time.Minute, cfg.MQTT.Heartbeat)
	require.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
skill:
  name: lab-skill
  blink_interval: 2s
  announce_changes: true
bus:
  url: wss://assistant.local/core
  reconnect_delay: 1m
gpio:
  backend: sysfs
  led:
    line: 5
    active_low: true
  button:
    line: 6
    enabled: true
  poll_interval: 0s
mqtt:
  broker: tcp://broker.local:1883
  prefix: lab/gpio
  heartbeat: 1m
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lab-skill", cfg.Skill.Name)
	assert.Equal(t, 2*time.Second, cfg.Skill.BlinkInterval)
	assert.True(t, cfg.Skill.AnnounceChanges)
	assert.Equal(t, "wss://assistant.local/core", cfg.Bus.URL)
	assert.Equal(t, time.Minute, cfg.Bus.ReconnectDelay)
	assert.Equal(t, "sysfs", cfg.GPIO.Backend)
	assert.True(t, cfg.GPIO.Button.Enabled)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, "lab/gpio", cfg.MQTT.Prefix)
	assert.Equal(t, time.Minute, cfg.MQTT.Heartbeat)
	assert.Zero(t, cfg.GPIO.PollInterval, "polling can be disabled")
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, gpio.DefaultLineLight, cfg.GPIO.Light.Line)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, []gpio.PinConfig{
		{Name: gpio.PinLED, Line: 5, Direction: gpio.Output, ActiveLow: true},
		{Name: gpio.PinLight, Line: gpio.DefaultLineLight, Direction: gpio.Output},
		{Name: gpio.PinButton, Line: 6, Direction: gpio.Input},
	}, cfg.Pins())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "skill: [unterminated")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GPIO_SKILL_BUS_URL", "ws://10.0.0.2:8181/core")
	t.Setenv("GPIO_SKILL_GPIO_BACKEND", "sim")
	t.Setenv("GPIO_SKILL_MQTT_BROKER", "tcp://10.0.0.3:1883")
	t.Setenv("GPIO_SKILL_BLINK_INTERVAL", "500ms")
	t.Setenv("GPIO_SKILL_BUTTON_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.2:8181/core", cfg.Bus.URL)
	assert.Equal(t, "sim", cfg.GPIO.Backend)
	assert.Equal(t, "tcp://10.0.0.3:1883", cfg.MQTT.Broker)
	assert.Equal(t, 500*time.Millisecond, cfg.Skill.BlinkInterval)
	assert.True(t, cfg.GPIO.Button.Enabled)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "http:\n  addr: \":9000\"\n")
	t.Setenv("GPIO_SKILL_HTTP_ADDR", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTP.Addr, "a set but empty variable disables the server")
}

func TestEnvOverridesInvalid(t *testing.T) {
	t.Setenv("GPIO_SKILL_BLINK_INTERVAL", "often")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPIO_SKILL_BLINK_INTERVAL")
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "GPIO_SKILL_TEST_FROM_FILE=yes\n")
	t.Setenv("GPIO_SKILL_TEST_FROM_FILE", "")
	os.Unsetenv("GPIO_SKILL_TEST_FROM_FILE")

	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "yes", os.Getenv("GPIO_SKILL_TEST_FROM_FILE"))

	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, LoadEnvFile(missing, false))
	assert.Error(t, LoadEnvFile(missing, true))
	assert.NoError(t, LoadEnvFile("", true))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero blink interval", func(c *Config) { c.Skill.BlinkInterval = 0 }, "blink_interval"},
		{"missing skill id", func(c *Config) { c.Bus.SkillID = "" }, "skill_id"},
		{"http bus url", func(c *Config) { c.Bus.URL = "http://localhost:8181/core" }, "ws or wss"},
		{"unknown backend", func(c *Config) { c.GPIO.Backend = "spi" }, "gpio.backend"},
		{"negative line", func(c *Config) { c.GPIO.LED.Line = -1 }, "must not be negative"},
		{"shared line", func(c *Config) { c.GPIO.Light.Line = c.GPIO.LED.Line }, "used by both"},
		{"negative buffer", func(c *Config) { c.MQTT.BufferSize = -1 }, "buffer_size"},
		{"negative debounce", func(c *Config) { c.GPIO.Debounce = -time.Second }, "gpio.debounce"},
		{"negative heartbeat", func(c *Config) { c.MQTT.Heartbeat = -time.Second }, "mqtt.heartbeat"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAllowsEmptyBusURL(t *testing.T) {
	cfg := Defaults()
	cfg.Bus.URL = ""
	assert.NoError(t, Validate(cfg))
}
