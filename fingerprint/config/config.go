// Package config defines the deployment-wide settings that ingest and
// discovery must agree on: the resample target rate and the spectrogram
// window/hop pair. It follows the functional-options pattern used
// throughout this module's dsp packages.
package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/soundtrace/fingerprint/model"
)

// TargetSampleRateHz is the deployment's fixed resample target, a
// compile-time constant in the reference implementation.
const TargetSampleRateHz = 30000

// Config holds the settings ingest and discovery must share; passing
// mismatched Config between the two produces meaningless nearest-neighbor
// results rather than an error, since the store has no way to validate it.
type Config struct {
	SampleRateHz int
	Spectrogram  model.SpectrogramConfig
}

// Option mutates a Config.
type Option func(*Config)

// Default returns the reference deployment's defaults: 30kHz, fft_len=1280,
// overlap=960.
func Default() Config {
	return Config{
		SampleRateHz: TargetSampleRateHz,
		Spectrogram:  model.SpectrogramConfig{FFTLen: 1280, Overlap: 960},
	}
}

// WithSampleRateHz overrides the resample target.
func WithSampleRateHz(hz int) Option {
	return func(c *Config) {
		if hz > 0 {
			c.SampleRateHz = hz
		}
	}
}

// WithSpectrogram overrides the window/hop pair.
func WithSpectrogram(cfg model.SpectrogramConfig) Option {
	return func(c *Config) {
		c.Spectrogram = cfg
	}
}

// Apply applies zero or more options to Default.
func Apply(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Validate reports whether c's sample rate and spectrogram configuration
// are well-formed.
func (c Config) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("config: sample rate must be > 0: %d", c.SampleRateHz)
	}
	return c.Spectrogram.Validate()
}

// file mirrors the on-disk YAML defaults file shape. Pointer fields
// distinguish an omitted key from one explicitly set to zero.
type file struct {
	SampleRateHz *int `yaml:"sample_rate_hz"`
	FFTLen       *int `yaml:"fft_len"`
	Overlap      *int `yaml:"overlap"`
}

// Load reads a YAML defaults file and returns the Config it describes,
// falling back to Default's fields for any key the file omits.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := Default()
	if f.SampleRateHz != nil {
		cfg.SampleRateHz = *f.SampleRateHz
	}
	if f.FFTLen != nil {
		cfg.Spectrogram.FFTLen = *f.FFTLen
	}
	if f.Overlap != nil {
		cfg.Spectrogram.Overlap = *f.Overlap
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// logLevelEnvVar is the tracing-filter environment variable controlling log
// verbosity; its value is not semantic to the system beyond selecting a
// charmbracelet/log level by name (debug, info, warn, error).
const logLevelEnvVar = "SOUNDTRACE_LOG_LEVEL"

// NewLogger builds a logger writing to os.Stderr at the level named by
// SOUNDTRACE_LOG_LEVEL, defaulting to info if unset or unrecognized.
func NewLogger() *log.Logger {
	logger := log.New(os.Stderr)

	level, err := log.ParseLevel(os.Getenv(logLevelEnvVar))
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
