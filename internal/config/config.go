// Package config handles Reeve configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/reeve/config.yaml, /etc/reeve/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "reeve", "config.yaml"))
	}

	paths = append(paths, "/etc/reeve/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Reeve configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	Retry    RetryConfig    `yaml:"retry"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Fetch    FetchConfig    `yaml:"fetch"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig selects and configures the LLM backend.
//
// Name chooses the wire protocol: "ollama" speaks the Ollama chat API
// with native tool_calls; "llamacpp" speaks an OpenAI-compatible
// completion API and carries tool calls inside tagged text blocks.
type ProviderConfig struct {
	Name       string `yaml:"name"`
	Model      string `yaml:"model"`
	URL        string `yaml:"url"`         // Base URL of the provider
	TimeoutSec int    `yaml:"timeout_sec"` // Per-request timeout (default 300)
}

// AgentConfig bounds the orchestration loop for one conversation turn.
type AgentConfig struct {
	// MaxIterations caps the number of provider round-trips in one
	// turn. Each tool-call exchange consumes one iteration.
	MaxIterations int `yaml:"max_iterations"`
	// HistorySize is the bounded conversation memory capacity in turns.
	HistorySize int `yaml:"history_size"`
	// SystemPrompt is prepended to every turn when non-empty.
	SystemPrompt string `yaml:"system_prompt"`
}

// RetryConfig tunes the backoff wrapper around provider calls.
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay"` // Go duration string, e.g. "500ms"
	Backoff      float64 `yaml:"backoff"`
	Jitter       bool    `yaml:"jitter"`
}

// InitialDelayDuration parses InitialDelay, falling back to 500ms.
func (r RetryConfig) InitialDelayDuration() time.Duration {
	d, err := time.ParseDuration(r.InitialDelay)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// MetricsConfig bounds the in-memory sample ring and optionally enables
// the sqlite archive.
type MetricsConfig struct {
	MaxSamples  int    `yaml:"max_samples"`
	ArchivePath string `yaml:"archive_path"` // Empty disables persistence
}

// FetchConfig limits the fetch_url tool.
type FetchConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxBodyBytes int  `yaml:"max_body_bytes"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the agent cannot run with. These are
// construction-time failures, never retried.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("unknown provider %q (valid: ollama, llamacpp)", c.Provider.Name)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.HistorySize < 1 {
		return fmt.Errorf("agent.history_size must be positive, got %d", c.Agent.HistorySize)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Provider: ProviderConfig{
			Name:       "ollama",
			Model:      "qwen3:4b",
			URL:        "http://localhost:11434",
			TimeoutSec: 300,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			HistorySize:   50,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: "500ms",
			Backoff:      2.0,
			Jitter:       true,
		},
		Metrics: MetricsConfig{
			MaxSamples: 10000,
		},
		Fetch: FetchConfig{
			Enabled:      true,
			MaxBodyBytes: 1 << 20,
		},
	}
}
