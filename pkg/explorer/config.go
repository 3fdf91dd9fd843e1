package explorer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vishnualpha/sensuQ-sub001/internal/browser"
	"github.com/vishnualpha/sensuQ-sub001/internal/scope"
)

// Config holds all exploration configuration.
type Config struct {
	// Target is the seed URL of the run.
	Target string `json:"target" yaml:"target"`

	// MaxDepth bounds discovery. Pages at the limit are still captured;
	// nothing new is spawned from them.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxPages caps the number of pages recorded in one run.
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// MaxParallelCrawls caps the per-level browser pool.
	MaxParallelCrawls int `json:"max_parallel_crawls" yaml:"max_parallel_crawls"`

	// MaxScenariosPerPage bounds planner output per page.
	MaxScenariosPerPage int `json:"max_scenarios_per_page" yaml:"max_scenarios_per_page"`

	// MaxClickCandidates bounds click-through link discovery per page.
	MaxClickCandidates int `json:"max_click_candidates" yaml:"max_click_candidates"`

	// StatePath is the bbolt database file holding the queue and the
	// exploration graph.
	StatePath string `json:"state_path" yaml:"state_path"`

	// ScreenshotDir stores page screenshots when non-empty.
	ScreenshotDir string `json:"screenshot_dir" yaml:"screenshot_dir"`

	// Scope rules
	Scope scope.Rules `json:"scope" yaml:"scope"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Browser configuration
	Browser browser.Config `json:"browser" yaml:"browser"`

	// Provider selects the LLM collaborator backend. Empty name runs
	// with the static identifier only.
	Provider ProviderConfig `json:"provider" yaml:"provider"`

	// Credentials configure login handling.
	Credentials CredentialConfig `json:"credentials" yaml:"credentials"`

	// ProgressAddr serves the WebSocket progress stream when non-empty.
	ProgressAddr string `json:"progress_addr" yaml:"progress_addr"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// RateLimitConfig paces navigations.
type RateLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	HostDelay         time.Duration `json:"host_delay" yaml:"host_delay"`
}

// ProviderConfig selects the LLM collaborator.
type ProviderConfig struct {
	Name  string `json:"name" yaml:"name"`
	Model string `json:"model" yaml:"model"`
}

// CredentialConfig configures the credential store. Username/Password
// take precedence; Blob is a JSON host map or its base64 encoding; File
// points at a JSON credential file.
type CredentialConfig struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Blob     string `json:"blob" yaml:"blob"`
	File     string `json:"file" yaml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:            3,
		MaxPages:            50,
		MaxParallelCrawls:   3,
		MaxScenariosPerPage: 3,
		MaxClickCandidates:  8,
		StatePath:           "sensuq.db",
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             1,
			HostDelay:         500 * time.Millisecond,
		},
		Browser: browser.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()

	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	return config, nil
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target URL is required")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1")
	}
	if c.MaxParallelCrawls < 1 {
		return fmt.Errorf("max parallel crawls must be at least 1")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state path is required")
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	_ = json.Unmarshal(data, clone)
	return clone
}
