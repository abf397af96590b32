package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/itohio/goctd/pkg/ctd"
)

// Baud rate limits accepted by the logger UART.
const (
	BaudMin     = 300
	BaudDefault = 9600
	BaudMax     = 1000000
)

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	ChunkSize   int           `yaml:"chunk_size"` // Bytes drained from the UART per read
}

// PipelineConfig contains the averaging pipeline parameters.
type PipelineConfig struct {
	WindowSize     int `yaml:"window_size"`     // Samples per averaged line
	BufferCapacity int `yaml:"buffer_capacity"` // Line buffer size in bytes
}

// LogConfig describes where the raw sensor stream is recorded.
type LogConfig struct {
	Dir      string        `yaml:"dir"`
	Pattern  string        `yaml:"pattern"`   // File name with one integer verb, e.g. LOG%05d.TXT
	NextFile int           `yaml:"next_file"` // Number tried first on the next start
	SyncIdle time.Duration `yaml:"sync_idle"` // Idle time before the log is flushed to disk
}

// MetricsConfig contains the Prometheus endpoint configuration.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // Empty disables the endpoint
}

// MockConfig contains simulated CTD configuration.
type MockConfig struct {
	SampleRate         time.Duration `yaml:"sample_rate"`         // Time between sensor lines
	Salinity           bool          `yaml:"salinity"`            // Emit salinity
	SoundVelocity      bool          `yaml:"sound_velocity"`      // Emit sound velocity
	SurfaceTemperature float64       `yaml:"surface_temperature"` // deg C
	DescentRate        float64       `yaml:"descent_rate"`        // decibars per second
	NoiseLevel         float64       `yaml:"noise_level"`         // Relative amplitude of the wobble
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0",
			Baud:        BaudDefault,
			ReadTimeout: 50 * time.Millisecond,
			ChunkSize:   128,
		},
		Pipeline: PipelineConfig{
			WindowSize:     ctd.DefaultWindowSize,
			BufferCapacity: ctd.DefaultBufferCapacity,
		},
		Log: LogConfig{
			Dir:      ".",
			Pattern:  "LOG%05d.TXT",
			NextFile: 0,
			SyncIdle: 500 * time.Millisecond,
		},
		Mock: MockConfig{
			SampleRate:         time.Second / 16, // SBE 49 runs at 16 Hz
			Salinity:           true,
			SoundVelocity:      true,
			SurfaceTemperature: 18.0,
			DescentRate:        1.0,
			NoiseLevel:         0.001,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveNextFile records the log counter in the file at filename, leaving every
// other setting as stored there. Overrides applied to an in-memory Config are
// not written.
func SaveNextFile(filename string, next int) error {
	cfg, err := Load(filename)
	if err != nil {
		return err
	}
	cfg.Log.NextFile = next
	return cfg.Save(filename)
}

// Validate reports settings that cannot be repaired with defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.window_size must be positive, got %d", c.Pipeline.WindowSize))
	}
	if c.Pipeline.BufferCapacity < ctd.MinBufferCapacity {
		errs = append(errs, fmt.Errorf("pipeline.buffer_capacity must be at least %d, got %d",
			ctd.MinBufferCapacity, c.Pipeline.BufferCapacity))
	}
	if c.Serial.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("serial.chunk_size must be positive, got %d", c.Serial.ChunkSize))
	}
	if strings.Count(c.Log.Pattern, "%") != 1 || strings.Contains(fmt.Sprintf(c.Log.Pattern, 0), "%!") {
		errs = append(errs, fmt.Errorf("log.pattern must hold exactly one integer verb, got %q", c.Log.Pattern))
	}
	if c.Log.NextFile < 0 {
		errs = append(errs, fmt.Errorf("log.next_file must not be negative, got %d", c.Log.NextFile))
	}

	return multierr.Combine(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	// Out of range rates fall back to the default rather than failing.
	if c.Serial.Baud < BaudMin || c.Serial.Baud > BaudMax {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Serial.ChunkSize == 0 {
		c.Serial.ChunkSize = def.Serial.ChunkSize
	}

	if c.Pipeline.WindowSize == 0 {
		c.Pipeline.WindowSize = def.Pipeline.WindowSize
	}
	if c.Pipeline.BufferCapacity == 0 {
		c.Pipeline.BufferCapacity = def.Pipeline.BufferCapacity
	}

	if c.Log.Dir == "" {
		c.Log.Dir = def.Log.Dir
	}
	if c.Log.Pattern == "" {
		c.Log.Pattern = def.Log.Pattern
	}
	if c.Log.SyncIdle == 0 {
		c.Log.SyncIdle = def.Log.SyncIdle
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
}
