// ABOUTME: Configuration for the longform pipeline: YAML file, LONGFORM_* environment
// ABOUTME: overrides, defaults, and validation with sentinel errors.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/longform/recovery"
)

// Validation sentinel errors.
var (
	ErrMissingAPIKey        = errors.New("api key is required (set LONGFORM_API_KEY or OPENAI_API_KEY)")
	ErrInvalidMaxIterations = errors.New("max_iterations must be at least 1")
	ErrInvalidRetry         = errors.New("retry configuration is invalid")
)

// Retry configures the per-stage retry policy. Delay values are Go
// duration strings ("1s", "500ms").
type Retry struct {
	MaxRetries   int     `yaml:"max_retries"`
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Factor       float64 `yaml:"factor"`
}

// Config holds all settings for the longform CLI and server.
type Config struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	MaxIterations int    `yaml:"max_iterations"`
	AutoApprove   bool   `yaml:"auto_approve"`
	OutputDir     string `yaml:"output_dir"`
	DatabasePath  string `yaml:"database_path"`
	Addr          string `yaml:"addr"`
	Retry         Retry  `yaml:"retry"`
}

// Default returns the configuration used when no file or environment
// overrides are present. The API key has no default.
func Default() Config {
	return Config{
		Model:         "gpt-4.1-mini",
		MaxIterations: 3,
		OutputDir:     "reports",
		DatabasePath:  "longform.db",
		Addr:          "127.0.0.1:8080",
		Retry: Retry{
			MaxRetries:   3,
			InitialDelay: "1s",
			MaxDelay:     "60s",
			Factor:       2.0,
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (skipped when path is empty), then LONGFORM_* environment
// overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays LONGFORM_* environment variables onto the config.
// LONGFORM_API_KEY takes precedence over OPENAI_API_KEY.
func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&c.APIKey, "OPENAI_API_KEY")
	setString(&c.APIKey, "LONGFORM_API_KEY")
	setString(&c.Model, "LONGFORM_MODEL")
	setString(&c.BaseURL, "LONGFORM_BASE_URL")
	setString(&c.OutputDir, "LONGFORM_OUTPUT_DIR")
	setString(&c.DatabasePath, "LONGFORM_DB_PATH")
	setString(&c.Addr, "LONGFORM_ADDR")

	if v, ok := os.LookupEnv("LONGFORM_MAX_ITERATIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v, ok := os.LookupEnv("LONGFORM_AUTO_APPROVE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoApprove = b
		}
	}
}

// Validate checks settings that must hold regardless of run mode.
// The API key is checked separately by RequireAPIKey because read-only
// commands do not need one.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return ErrInvalidMaxIterations
	}
	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	return nil
}

// RequireAPIKey fails when no API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// RetryPolicy converts the retry settings into a recovery.Policy.
func (c *Config) RetryPolicy() (recovery.Policy, error) {
	initial, err := time.ParseDuration(c.Retry.InitialDelay)
	if err != nil {
		return recovery.Policy{}, fmt.Errorf("%w: initial_delay: %v", ErrInvalidRetry, err)
	}
	max, err := time.ParseDuration(c.Retry.MaxDelay)
	if err != nil {
		return recovery.Policy{}, fmt.Errorf("%w: max_delay: %v", ErrInvalidRetry, err)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.Factor < 1 {
		return recovery.Policy{}, fmt.Errorf("%w: max_retries must be >= 0 and factor >= 1", ErrInvalidRetry)
	}
	return recovery.Policy{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: initial,
		MaxDelay:     max,
		Factor:       c.Retry.Factor,
	}, nil
}
