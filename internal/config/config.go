// Package config loads the hifipowerd configuration from a YAML file.
// Pin assignments and timing parameters are fixed at startup; an
// invalid pin layout is fatal, since running with undefined pin
// mappings could switch the wrong hardware.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/hifipowerd.yaml"

// Error is a fatal configuration problem. The daemon refuses to start.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "config: " + e.msg }

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Duration wraps time.Duration so YAML values can be written in the
// usual "30ms" / "2s" form.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Pins maps daemon functions to GPIO line offsets. -1 disables an
// optional input/output; the relay outputs are mandatory.
type Pins struct {
	Relay1 int `yaml:"relay1"`
	Relay2 int `yaml:"relay2"`

	ShutdownButton int `yaml:"shutdown_button"`
	RebootButton   int `yaml:"reboot_button"`
	ToggleButton   int `yaml:"toggle_button"`

	AutoSense   int `yaml:"auto_sense"`
	ManualSense int `yaml:"manual_sense"`

	ReadyLED int `yaml:"ready_led"`
}

// Polarity selects the asserted level for the physical inputs.
// Buttons default to active-low (wired to ground with pull-ups),
// sense lines to active-high.
type Polarity struct {
	ButtonsActiveLow bool `yaml:"buttons_active_low"`
	SenseActiveLow   bool `yaml:"sense_active_low"`
}

// Config is the full daemon configuration. Immutable once loaded.
type Config struct {
	HTTP   string `yaml:"http"`
	Broker string `yaml:"broker"` // MQTT broker URL, empty disables publishing
	Chip   string `yaml:"chip"`

	Poll           Duration `yaml:"poll"`
	ButtonDebounce Duration `yaml:"button_debounce"`
	SenseDebounce  Duration `yaml:"sense_debounce"`
	RebootDelay    Duration `yaml:"reboot_delay"`
	CommandTimeout Duration `yaml:"command_timeout"`
	Heartbeat      Duration `yaml:"heartbeat"` // 0 disables

	AutoMode  bool  `yaml:"auto_mode"`
	OffOnExit *bool `yaml:"off_on_exit"`

	Pins     Pins     `yaml:"pins"`
	Polarity Polarity `yaml:"polarity"`
}

// Default returns the configuration used when no file is present.
// The pin offsets mirror the AC-1 wiring on the PA bank.
func Default() Config {
	offOnExit := true
	return Config{
		HTTP:           ":8000",
		Broker:         "",
		Chip:           "gpiochip0",
		Poll:           Duration(20 * time.Millisecond),
		ButtonDebounce: Duration(30 * time.Millisecond),
		SenseDebounce:  Duration(200 * time.Millisecond),
		RebootDelay:    Duration(2 * time.Second),
		CommandTimeout: Duration(2 * time.Second),
		Heartbeat:      Duration(15 * time.Minute),
		AutoMode:       true,
		OffOnExit:      &offOnExit,
		Pins: Pins{
			Relay1:         9,
			Relay2:         10,
			ShutdownButton: 0,
			RebootButton:   1,
			ToggleButton:   3,
			AutoSense:      8,
			ManualSense:    6,
			ReadyLED:       7,
		},
		Polarity: Polarity{
			ButtonsActiveLow: true,
			SenseActiveLow:   false,
		},
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults; any other read or parse error is returned. Values absent
// from the file keep their defaults, so a file only needs the keys it
// wants to change. Environment variables in the file are expanded.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the pin layout and timing parameters. Any error here
// is startup-fatal.
func (c *Config) Validate() error {
	if c.Pins.Relay1 < 0 || c.Pins.Relay2 < 0 {
		return errorf("relay output pins are mandatory (relay1=%d relay2=%d)", c.Pins.Relay1, c.Pins.Relay2)
	}

	used := map[int]string{}
	for _, p := range []struct {
		name   string
		offset int
	}{
		{"relay1", c.Pins.Relay1},
		{"relay2", c.Pins.Relay2},
		{"shutdown_button", c.Pins.ShutdownButton},
		{"reboot_button", c.Pins.RebootButton},
		{"toggle_button", c.Pins.ToggleButton},
		{"auto_sense", c.Pins.AutoSense},
		{"manual_sense", c.Pins.ManualSense},
		{"ready_led", c.Pins.ReadyLED},
	} {
		if p.offset < 0 {
			continue // disabled
		}
		if other, ok := used[p.offset]; ok {
			return errorf("pin %d assigned to both %s and %s", p.offset, other, p.name)
		}
		used[p.offset] = p.name
	}

	if c.Poll.Std() <= 0 {
		return errorf("poll interval must be positive, got %v", c.Poll.Std())
	}
	if c.ButtonDebounce.Std() < 0 || c.SenseDebounce.Std() < 0 {
		return errorf("debounce durations must not be negative")
	}
	if c.RebootDelay.Std() <= 0 {
		return errorf("reboot delay must be positive, got %v", c.RebootDelay.Std())
	}
	if c.CommandTimeout.Std() <= 0 {
		return errorf("command timeout must be positive, got %v", c.CommandTimeout.Std())
	}
	if c.HTTP == "" {
		return errorf("http listen address must not be empty")
	}
	return nil
}

// RelaysOffOnExit reports whether the relays should be forced off when
// the daemon exits.
func (c *Config) RelaysOffOnExit() bool {
	return c.OffOnExit == nil || *c.OffOnExit
}
