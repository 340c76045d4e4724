package config

import (
	"fmt"
	"strings"
	"time"
)

var knownProviderTypes = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"openrouter": true,
	"ollama":     true,
}

// Validate checks the configuration for structural errors. It is the single
// validation point: downstream code assumes a validated config.
func Validate(cfg *Config) error {
	if cfg.Chats.Dir == "" {
		return fmt.Errorf("chats.dir must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must list at least one provider")
	}

	seen := map[string]bool{}
	for i, p := range cfg.LLM.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("llm.providers[%d]: name must not be empty", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true
		if !knownProviderTypes[p.Type] {
			return fmt.Errorf("llm.providers[%d] (%s): unknown type %q", i, p.Name, p.Type)
		}
		if p.RespTimeout < 0 || p.ConnTimeout < 0 {
			return fmt.Errorf("llm.providers[%d] (%s): negative timeout", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		return fmt.Errorf("llm.default_provider %q is not a configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.HelperProvider != "" && !seen[cfg.LLM.HelperProvider] {
		return fmt.Errorf("llm.helper_provider %q is not a configured provider", cfg.LLM.HelperProvider)
	}

	if cfg.Enrich.Enabled {
		if cfg.Enrich.GraceTimeout <= 0 || cfg.Enrich.HardTimeout <= 0 {
			return fmt.Errorf("enrich: grace_timeout and hard_timeout must be positive")
		}
		if cfg.Enrich.GraceTimeout > cfg.Enrich.HardTimeout {
			return fmt.Errorf("enrich: grace_timeout (%s) must not exceed hard_timeout (%s)",
				cfg.Enrich.GraceTimeout, cfg.Enrich.HardTimeout)
		}
	}

	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.OpenTimeout <= 0 {
		cfg.LLM.CircuitBreaker.OpenTimeout = 30 * time.Second
	}

	return nil
}
