package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSerial(cfg, ve)
	validateDriver(cfg, ve)
	validateRunner(cfg, ve)
	validateResults(cfg, ve)
	validateUI(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSerial(cfg *Config, ve *ValidationError) {
	if cfg.Serial.Port == "" && cfg.Serial.Match == "" {
		ve.Add("serial.port or serial.match must be set")
	}
	if cfg.Serial.Baud <= 0 {
		ve.Add("serial.baud must be > 0")
	}
	if cfg.Serial.ReadTimeout <= 0 {
		ve.Add("serial.read_timeout must be > 0")
	}
}

func validateDriver(cfg *Config, ve *ValidationError) {
	d := cfg.Driver
	if d.ReplyTimeout <= 0 {
		ve.Add("driver.reply_timeout must be > 0")
	}
	if d.ReferenceVoltage <= 0 {
		ve.Add("driver.reference_voltage must be > 0")
	}
	if d.ADCFullScale <= 0 {
		ve.Add("driver.adc_full_scale must be > 0")
	}
	// Channel ids go on the wire as a single digit.
	if d.PWMChannels <= 0 || d.PWMChannels > 10 {
		ve.Add("driver.pwm_channels must be in 1..10, got %d", d.PWMChannels)
	}
	if d.MaxPWMVoltage <= 0 {
		ve.Add("driver.max_pwm_voltage must be > 0")
	}
	// Slot indices go on the wire as a single digit.
	if d.Slots <= 0 || d.Slots > 10 {
		ve.Add("driver.slots must be in 1..10, got %d", d.Slots)
	}
	if d.BusQueue <= 0 {
		ve.Add("driver.bus_queue must be > 0")
	}
}

func validateRunner(cfg *Config, ve *ValidationError) {
	if cfg.Runner.NominalRetry < 0 {
		ve.Add("runner.nominal_retry must be >= 0")
	}
	if cfg.Runner.Pacing < 0 {
		ve.Add("runner.pacing must be >= 0")
	}
	if cfg.Runner.CleanupTimeout <= 0 {
		ve.Add("runner.cleanup_timeout must be > 0")
	}
}

func validateResults(cfg *Config, ve *ValidationError) {
	if cfg.Results.Enabled && cfg.Results.Path == "" {
		ve.Add("results.path is required when results are enabled")
	}
	if cfg.Results.HistoryLimit < 0 {
		ve.Add("results.history_limit must be >= 0")
	}
}

var validUIModes = map[string]bool{"plain": true, "tui": true}

func validateUI(cfg *Config, ve *ValidationError) {
	if !validUIModes[cfg.UI.Mode] {
		ve.Add("ui.mode %q is invalid (want plain or tui)", cfg.UI.Mode)
	}
}

var validLogFormats = map[string]bool{"text": true, "json": true, "": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{"stdout": true, "noop": true, "": true}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want stdout or noop)", cfg.Tracer.Exporter)
	}
}
