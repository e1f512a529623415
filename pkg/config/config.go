// Package config provides configuration loading and management for poreprep.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"poreprep/pkg/denoise"
)

// ConfigError reports missing or malformed run parameters. It is always
// fatal and raised before any raster is read.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumThreads is the number of workers (and partitions) per phase
		NumThreads int `yaml:"numThreads"`

		// GaussSigma enables the Gaussian denoiser when greater than zero
		GaussSigma float64 `yaml:"gaussSigma"`

		// Width and Height are the raster dimensions both inputs must have.
		// Zero disables the check; the inputs must still agree with each other.
		Width  int `yaml:"width"`
		Height int `yaml:"height"`

		// SinglePass selects the one-traversal extent scan instead of the
		// per-label brute-force scan
		SinglePass bool `yaml:"singlePass"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is where the patch files are written
		Dir string `yaml:"dir"`

		// PreviewDir receives PNG previews of identity patches when set
		PreviewDir string `yaml:"previewDir"`

		// PreviewScale is the nearest-neighbour upscale factor for previews
		PreviewScale int `yaml:"previewScale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Progress shows a progress bar on stderr
		Progress bool `yaml:"progress"`
	} `yaml:"output"`

	// Catalog parameters
	Catalog struct {
		// URL is a PostgreSQL connection string. Empty disables the catalog.
		URL string `yaml:"url"`
	} `yaml:"catalog"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumThreads = runtime.NumCPU()
	cfg.Processing.GaussSigma = 0
	cfg.Processing.Width = 1280
	cfg.Processing.Height = 1280
	cfg.Processing.SinglePass = false

	cfg.Output.Dir = "."
	cfg.Output.PreviewScale = 4
	cfg.Output.Verbose = false
	cfg.Output.Progress = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Field: "config file", Err: err}
	}

	return cfg, nil
}

// Validate checks the values a run depends on
func (c *Config) Validate() error {
	if c.Processing.NumThreads < 1 {
		return &ConfigError{Field: "thread count", Err: fmt.Errorf("must be >= 1, got %d", c.Processing.NumThreads)}
	}
	if err := denoise.CheckSigma(c.Processing.GaussSigma); err != nil {
		return &ConfigError{Field: "gauss sigma", Err: err}
	}
	if c.Processing.Width < 0 || c.Processing.Height < 0 {
		return &ConfigError{Field: "raster size", Err: fmt.Errorf("negative dimensions %dx%d", c.Processing.Width, c.Processing.Height)}
	}
	if c.Output.Dir == "" {
		return &ConfigError{Field: "output dir", Err: fmt.Errorf("must not be empty")}
	}
	if c.Output.PreviewScale < 1 {
		return &ConfigError{Field: "preview scale", Err: fmt.Errorf("must be >= 1, got %d", c.Output.PreviewScale)}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
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
