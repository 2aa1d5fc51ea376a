// Package config loads the gateway's own YAML configuration: only what
// Services (pkg/services) needs to construct the handlers in §4 — MCP
// server list, quota limits, default model/provider, cache backend
// selection, and the transcript/feedback roots. This is deliberately
// smaller than a full deployment schema; it is ambient plumbing for
// wiring the core components, not a feature surface of its own.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// MCPServer is one configured remote tool server, by name and URL.
type MCPServer struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// QuotaLimit configures one quota.Limiter: a name and a total per-user
// token budget.
type QuotaLimit struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

// CacheConfig selects and configures the conversation cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend"` // "memory" | "sqlite" | "postgres" | "noop"
	DSN     string `yaml:"dsn"`
}

// AuthConfig selects and configures the auth module.
type AuthConfig struct {
	Module       string `yaml:"module"` // "noop" | "noop-with-token" | "k8s" | "jwk-token"
	JWKSURL      string `yaml:"jwks_url"`
	K8STokenPath string `yaml:"k8s_token_path"`
}

// Config is the gateway's static configuration (spec §9 ambient config
// note: minimal, feeding §4's components only).
type Config struct {
	ListenAddr          string       `yaml:"listen_addr"`
	DefaultModel        string       `yaml:"default_model"`
	DefaultProvider     string       `yaml:"default_provider"`
	DefaultSystemPrompt string       `yaml:"default_system_prompt"`
	SummarySystemPrompt string       `yaml:"summary_system_prompt"`
	UpstreamURL         string       `yaml:"upstream_url"`
	TranscriptRoot      string       `yaml:"transcript_root"`
	FeedbackRoot        string       `yaml:"feedback_root"`
	MCPServers          []MCPServer  `yaml:"mcp_servers"`
	QuotaLimits         []QuotaLimit `yaml:"quota_limits"`
	Cache               CacheConfig  `yaml:"cache"`
	Auth                AuthConfig   `yaml:"auth"`
}

// defaults is merged onto a loaded Config for every zero-valued field,
// the way tarsy's loader applies built-in defaults before validation.
func defaults() Config {
	return Config{
		ListenAddr: ":8080",
		Cache:      CacheConfig{Backend: "memory"},
		Auth:       AuthConfig{Module: "noop"},
	}
}

// Load reads and parses the YAML file at path, merging in defaults for
// any field the file leaves unset. A missing path is not an error — it
// yields the bare defaults, matching a gateway run with no config file
// mounted.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := mergo.Merge(&loaded, cfg); err != nil {
		return nil, fmt.Errorf("config: merge defaults: %w", err)
	}
	return &loaded, nil
}
