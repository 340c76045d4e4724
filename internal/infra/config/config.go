package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, resolved once at session
// start and treated as immutable afterwards.
type Config struct {
	Chats  ChatsConfig  `yaml:"chats"`
	LLM    LLMConfig    `yaml:"llm"`
	Enrich EnrichConfig `yaml:"enrich"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// ChatsConfig holds chat persistence settings.
type ChatsConfig struct {
	Dir         string `yaml:"dir"`          // directory for persisted chat files
	HistoryFile string `yaml:"history_file"` // line-editor history file
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	DefaultModel    string           `yaml:"default_model"`
	HelperProvider  string           `yaml:"helper_provider"` // title/summary generation
	HelperModel     string           `yaml:"helper_model"`
	Providers       []ProviderConfig `yaml:"providers"`
	CircuitBreaker  BreakerConfig    `yaml:"circuit_breaker"`
}

// ProviderConfig holds settings for a single LLM provider. APIKey is an
// unresolved credential reference ("env:NAME", "file:PATH" or a literal),
// resolved through the secrets package only when a provider instance is built.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"` // "openai", "anthropic", "openrouter", "ollama"
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Models       []string      `yaml:"models"`
	ConnTimeout  time.Duration `yaml:"conn_timeout"`
	RespTimeout  time.Duration `yaml:"resp_timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // 0 = unlimited
}

// BreakerConfig holds circuit breaker settings for provider calls.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// EnrichConfig holds the layered timeouts of citation title enrichment.
type EnrichConfig struct {
	Enabled      bool          `yaml:"enabled"`
	GraceTimeout time.Duration `yaml:"grace_timeout"` // wait before returning unenriched
	HardTimeout  time.Duration `yaml:"hard_timeout"`  // outer bound, enrichment cancelled
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a configuration with sensible defaults applied.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".parley")
	return &Config{
		Chats: ChatsConfig{
			Dir:         filepath.Join(base, "chats"),
			HistoryFile: filepath.Join(base, "history"),
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			DefaultModel:    "gpt-4o-mini",
			CircuitBreaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
			Providers: []ProviderConfig{
				{
					Name:        "openai",
					Type:        "openai",
					APIKey:      "env:OPENAI_API_KEY",
					Models:      []string{"gpt-4o", "gpt-4o-mini"},
					ConnTimeout: 10 * time.Second,
					RespTimeout: 120 * time.Second,
				},
			},
		},
		Enrich: EnrichConfig{
			Enabled:      true,
			GraceTimeout: 2 * time.Second,
			HardTimeout:  10 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: filepath.Join(base, "parley.log"),
		},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
	}
}

// Load reads and validates the configuration at path. A missing file yields
// validated defaults; any other failure is fatal and never partially applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// HasModel reports whether the named provider lists the model. An empty
// Models list accepts any model (local providers discover models at runtime).
func (c *Config) HasModel(provider, model string) bool {
	p, ok := c.Provider(provider)
	if !ok {
		return false
	}
	if len(p.Models) == 0 {
		return true
	}
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}
