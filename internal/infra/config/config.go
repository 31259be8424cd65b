package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Driver  DriverConfig  `yaml:"driver"`
	Runner  RunnerConfig  `yaml:"runner"`
	Codec   CodecConfig   `yaml:"codec"`
	Results ResultsConfig `yaml:"results"`
	UI      UIConfig      `yaml:"ui"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// SerialConfig holds the tester's serial link settings.
type SerialConfig struct {
	Port        string        `yaml:"port"`  // empty = discover by Match
	Match       string        `yaml:"match"` // substring searched in port name/product/serial
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DriverConfig holds tester protocol constants.
type DriverConfig struct {
	ReplyTimeout     time.Duration `yaml:"reply_timeout"`
	ReferenceVoltage float64       `yaml:"reference_voltage"`
	ADCFullScale     int           `yaml:"adc_full_scale"`
	PWMChannels      int           `yaml:"pwm_channels"`
	MaxPWMVoltage    float64       `yaml:"max_pwm_voltage"`
	Slots            int           `yaml:"slots"`
	BusQueue         int           `yaml:"bus_queue"`
}

// RunnerConfig holds test loop settings.
type RunnerConfig struct {
	NominalRetry   time.Duration `yaml:"nominal_retry"`
	Pacing         time.Duration `yaml:"pacing"`
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
	ReportEvery    string        `yaml:"report_every"` // cron expression or duration; empty = off
}

// CodecConfig points at the bus message schema.
type CodecConfig struct {
	Schema string `yaml:"schema"` // empty = built-in schema
}

// ResultsConfig holds result persistence settings.
type ResultsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"` // 0 = keep every attempt
}

// UIConfig selects the operator log sink.
type UIConfig struct {
	Mode string `yaml:"mode"` // "plain" or "tui"
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Output   string `yaml:"output"` // stdout exporter target file; empty = stdout
}

// Defaults returns a Config matching the bench hardware.
func Defaults() *Config {
	return &Config{
		Serial: SerialConfig{
			Match:       "hilt",
			Baud:        9600,
			ReadTimeout: 100 * time.Millisecond,
		},
		Driver: DriverConfig{
			ReplyTimeout:     500 * time.Millisecond,
			ReferenceVoltage: 3.3,
			ADCFullScale:     4096,
			PWMChannels:      9,
			MaxPWMVoltage:    5,
			Slots:            10,
			BusQueue:         256,
		},
		Runner: RunnerConfig{
			NominalRetry:   time.Second,
			CleanupTimeout: 30 * time.Second,
		},
		Results: ResultsConfig{
			Path: "warrior.db",
		},
		UI: UIConfig{
			Mode: "plain",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps WARRIOR_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARRIOR_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("WARRIOR_SERIAL_MATCH"); v != "" {
		cfg.Serial.Match = v
	}
	if v := os.Getenv("WARRIOR_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Serial.Baud = n
		}
	}
	if v := os.Getenv("WARRIOR_DRIVER_REPLY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Driver.ReplyTimeout = d
		}
	}
	if v := os.Getenv("WARRIOR_RUNNER_PACING"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Runner.Pacing = d
		}
	}
	if v := os.Getenv("WARRIOR_RUNNER_REPORT_EVERY"); v != "" {
		cfg.Runner.ReportEvery = v
	}
	if v := os.Getenv("WARRIOR_CODEC_SCHEMA"); v != "" {
		cfg.Codec.Schema = v
	}
	if v := os.Getenv("WARRIOR_RESULTS_ENABLED"); v == "true" {
		cfg.Results.Enabled = true
	}
	if v := os.Getenv("WARRIOR_RESULTS_PATH"); v != "" {
		cfg.Results.Path = v
	}
	if v := os.Getenv("WARRIOR_UI_MODE"); v != "" {
		cfg.UI.Mode = v
	}
	if v := os.Getenv("WARRIOR_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WARRIOR_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WARRIOR_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WARRIOR_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("WARRIOR_TRACER_OUTPUT"); v != "" {
		cfg.Tracer.Output = v
	}
}
