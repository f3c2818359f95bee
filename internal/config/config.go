// Package config loads gateway settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable of the gateway. Keys map 1:1 onto environment
// variables (GROQ_API_KEY, API_KEYS, RATE_LIMIT_RPM, ...).
type Config struct {
	GroqAPIKey      string  `koanf:"groq_api_key"`
	GroqModel       string  `koanf:"groq_model"`
	GroqTemperature float64 `koanf:"groq_temperature"`
	GroqMaxTokens   int     `koanf:"groq_max_tokens"`

	// AnthropicAPIKey is only needed when GROQ_MODEL names a claude model.
	AnthropicAPIKey string `koanf:"anthropic_api_key"`

	AgentMaxSteps       int `koanf:"agent_max_steps"`
	AgentTimeoutSeconds int `koanf:"agent_timeout_seconds"`

	BrowserEnabled       bool `koanf:"browser_enabled"`
	BrowserHeadless      bool `koanf:"browser_headless"`
	BrowserNavTimeout    int  `koanf:"browser_nav_timeout"`
	BrowserActionTimeout int  `koanf:"browser_action_timeout"`

	// CORSOrigins and Keys are comma-separated in the environment.
	CORSOrigins string `koanf:"cors_origins"`
	Keys        string `koanf:"api_keys"`

	RateLimitRPM           int `koanf:"rate_limit_rpm"`
	RateLimitWindowSeconds int `koanf:"rate_limit_window_seconds"`

	ListenAddr string `koanf:"listen_addr"`
	Debug      bool   `koanf:"debug"`
}

// Load reads configuration from the environment and applies defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	defaults := map[string]interface{}{
		"groq_model":                "llama-3.3-70b-versatile",
		"groq_temperature":          0.0,
		"groq_max_tokens":           2048,
		"agent_max_steps":           40,
		"agent_timeout_seconds":     300,
		"browser_enabled":           true,
		"browser_headless":          true,
		"browser_nav_timeout":       60000,
		"browser_action_timeout":    10000,
		"cors_origins":              "*",
		"rate_limit_rpm":            20,
		"rate_limit_window_seconds": 60,
		"listen_addr":               ":8000",
		"debug":                     false,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on settings the gateway cannot run without.
func (c *Config) Validate() error {
	if c.GroqAPIKey == "" {
		return fmt.Errorf("config: GROQ_API_KEY is required")
	}
	if len(c.APIKeys()) == 0 {
		return fmt.Errorf("config: API_KEYS is required (comma-separated list)")
	}
	if c.AgentMaxSteps <= 0 {
		return fmt.Errorf("config: AGENT_MAX_STEPS must be positive")
	}
	if c.AgentTimeoutSeconds <= 0 {
		return fmt.Errorf("config: AGENT_TIMEOUT_SECONDS must be positive")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPM must be positive")
	}
	return nil
}

// APIKeys returns the parsed client key list.
func (c *Config) APIKeys() []string {
	return splitTrim(c.Keys)
}

// CORSOriginList returns the parsed allowed-origin list.
func (c *Config) CORSOriginList() []string {
	return splitTrim(c.CORSOrigins)
}

// AgentTimeout returns the mission deadline as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// RateLimitWindow returns the sliding-window span as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.BrowserNavTimeout) * time.Millisecond
}

// ActionTimeout returns the browser action timeout as a duration.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.BrowserActionTimeout) * time.Millisecond
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
