// Package config provides configuration loading and management for mrvoxel.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"mrvoxel/pkg/format"
	"mrvoxel/pkg/interpolation"
	"mrvoxel/pkg/logging"
	"mrvoxel/pkg/threaded"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Threading parameters
	Threads struct {
		// Count specifies how many workers threaded loops use
		Count int `yaml:"count"`
	} `yaml:"threads"`

	// Progress reporting parameters
	Progress struct {
		// Enabled turns progress lines on stderr on or off
		Enabled bool `yaml:"enabled"`

		// Interval is the minimum time between two progress updates
		Interval time.Duration `yaml:"interval"`
	} `yaml:"progress"`

	// IO controls how image data is brought into memory
	IO struct {
		// MaxFiles is the largest number of data files mapped individually
		MaxFiles int `yaml:"maxFiles"`

		// MaxBytes is the largest image (in bytes) that will be opened
		MaxBytes int64 `yaml:"maxBytes"`

		// GzipLevel is the compression level for .raw.gz output
		GzipLevel int `yaml:"gzipLevel"`

		// Compress writes new images gzip-compressed
		Compress bool `yaml:"compress"`
	} `yaml:"io"`

	// Interpolation parameters
	Interp struct {
		// Kernel is the default interpolation kernel: nearest, linear, cubic or sinc
		Kernel string `yaml:"kernel"`

		// SincWindow is the number of taps per axis of the sinc kernel (odd)
		SincWindow int `yaml:"sincWindow"`

		// OutOfBounds is the value returned outside the image; empty means NaN
		OutOfBounds *float64 `yaml:"outOfBounds,omitempty"`
	} `yaml:"interp"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error or disabled
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Threads.Count = runtime.NumCPU() // Use all available cores by default

	cfg.Progress.Enabled = true
	cfg.Progress.Interval = 100 * time.Millisecond

	limits := format.DefaultLimits()
	cfg.IO.MaxFiles = limits.MaxFiles
	cfg.IO.MaxBytes = limits.MaxBytes
	cfg.IO.GzipLevel = limits.GzipLevel

	cfg.Interp.Kernel = interpolation.Cubic.String()
	cfg.Interp.SincWindow = interpolation.DefaultSincWindow

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	if c.Threads.Count < 0 {
		return fmt.Errorf("threads.count must not be negative, got %d", c.Threads.Count)
	}
	if c.Progress.Interval < 0 {
		return fmt.Errorf("progress.interval must not be negative, got %s", c.Progress.Interval)
	}
	if c.IO.MaxBytes < 0 {
		return fmt.Errorf("io.maxBytes must not be negative, got %d", c.IO.MaxBytes)
	}
	if c.IO.GzipLevel < -2 || c.IO.GzipLevel > 9 {
		return fmt.Errorf("io.gzipLevel must be between -2 and 9, got %d", c.IO.GzipLevel)
	}
	if _, err := interpolation.ParseKind(c.Interp.Kernel); err != nil {
		return fmt.Errorf("interp.kernel: %w", err)
	}
	if c.Interp.SincWindow < 1 || c.Interp.SincWindow%2 == 0 {
		return fmt.Errorf("interp.sincWindow must be a positive odd number, got %d", c.Interp.SincWindow)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// Limits returns the IO limits for format handlers
func (c *Config) Limits() format.Limits {
	return format.Limits{
		MaxFiles:  c.IO.MaxFiles,
		MaxBytes:  c.IO.MaxBytes,
		GzipLevel: c.IO.GzipLevel,
	}
}

// CreateOptions returns the options for writing new images
func (c *Config) CreateOptions() format.CreateOptions {
	return format.CreateOptions{Compress: c.IO.Compress, Limits: c.Limits()}
}

// ThreadOptions returns the options of a threaded loop reporting under label
func (c *Config) ThreadOptions(label string) threaded.Options {
	opts := threaded.Options{Threads: c.Threads.Count}
	if c.Progress.Enabled {
		opts.Label = label
		opts.ProgressInterval = c.Progress.Interval
	}
	return opts
}

// Kernel returns the configured interpolation kernel
func (c *Config) Kernel() interpolation.Kind {
	k, err := interpolation.ParseKind(c.Interp.Kernel)
	if err != nil {
		return interpolation.Cubic
	}
	return k
}

// InterpOptions returns the sampler options derived from the configuration
func (c *Config) InterpOptions() []interpolation.Option {
	oob := math.NaN()
	if c.Interp.OutOfBounds != nil {
		oob = *c.Interp.OutOfBounds
	}
	return []interpolation.Option{
		interpolation.WithOutOfBounds(oob),
		interpolation.WithWindow(c.Interp.SincWindow),
	}
}

// ApplyLogging sets the global log level from the configuration
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	return nil
}
