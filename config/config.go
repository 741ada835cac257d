// Package config loads and validates the marginal CLI configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all marginal configuration.
type Config struct {
	// Model selection and data
	Model ModelConfig `yaml:"model"`

	// Bound evaluation settings
	Inference InferenceConfig `yaml:"inference"`

	// Optimization settings
	Train TrainConfig `yaml:"train"`

	// Parameter snapshot location
	Snapshot string `yaml:"snapshot"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig selects a built-in model and its observations.
type ModelConfig struct {
	Name  string    `yaml:"name"`  // mixture, hmm, hmm-drift
	Data  []float64 `yaml:"data"`
	Scale float64   `yaml:"scale"`
}

// InferenceConfig configures bound evaluation.
type InferenceConfig struct {
	Particles int   `yaml:"particles"`
	Seed      int64 `yaml:"seed"`
	Workers   int   `yaml:"workers"`
	// MaxDims caps how many dimensions one evaluation may allocate; 0 sizes
	// the cap from the data so every observation can enumerate a latent.
	MaxDims int `yaml:"max_dims"`
}

// TrainConfig configures the optimizer loop.
type TrainConfig struct {
	Steps        int     `yaml:"steps"`
	LearningRate float64 `yaml:"learning_rate"`
	Optimizer    string  `yaml:"optimizer"` // adam, sgd
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:  "mixture",
			Data:  []float64{-2.6, -3.1, -2.8, 2.9, 3.2, 2.7},
			Scale: 0.8,
		},
		Inference: InferenceConfig{
			Particles: 4,
			Seed:      1,
			Workers:   1,
		},
		Train: TrainConfig{
			Steps:        100,
			LearningRate: 0.05,
			Optimizer:    "adam",
		},
		Snapshot: "marginal.params",
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; a present but malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for contradictions before anything runs.
func (c *Config) Validate() error {
	switch c.Model.Name {
	case "mixture", "hmm", "hmm-drift":
	default:
		return fmt.Errorf("config: unknown model %q", c.Model.Name)
	}
	if len(c.Model.Data) == 0 {
		return fmt.Errorf("config: model %q has no data", c.Model.Name)
	}
	if c.Model.Scale <= 0 {
		return fmt.Errorf("config: scale %v must be positive", c.Model.Scale)
	}
	if c.Inference.Particles < 1 {
		return fmt.Errorf("config: particles %d must be >= 1", c.Inference.Particles)
	}
	if c.Inference.Workers < 1 {
		return fmt.Errorf("config: workers %d must be >= 1", c.Inference.Workers)
	}
	if c.Inference.MaxDims < 0 {
		return fmt.Errorf("config: max_dims %d must be >= 0", c.Inference.MaxDims)
	}
	if c.Train.Steps < 1 {
		return fmt.Errorf("config: steps %d must be >= 1", c.Train.Steps)
	}
	if c.Train.LearningRate <= 0 {
		return fmt.Errorf("config: learning rate %v must be positive", c.Train.LearningRate)
	}
	switch c.Train.Optimizer {
	case "adam", "sgd":
	default:
		return fmt.Errorf("config: unknown optimizer %q", c.Train.Optimizer)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if name := os.Getenv("MARGINAL_MODEL"); name != "" {
		c.Model.Name = name
	}
	if seed := os.Getenv("MARGINAL_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Inference.Seed = v
		}
	}
	if particles := os.Getenv("MARGINAL_PARTICLES"); particles != "" {
		if v, err := strconv.Atoi(particles); err == nil {
			c.Inference.Particles = v
		}
	}
	if workers := os.Getenv("MARGINAL_WORKERS"); workers != "" {
		if v, err := strconv.Atoi(workers); err == nil {
			c.Inference.Workers = v
		}
	}
	if dims := os.Getenv("MARGINAL_MAX_DIMS"); dims != "" {
		if v, err := strconv.Atoi(dims); err == nil {
			c.Inference.MaxDims = v
		}
	}
	if path := os.Getenv("MARGINAL_SNAPSHOT"); path != "" {
		c.Snapshot = path
	}
	if level := os.Getenv("MARGINAL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
