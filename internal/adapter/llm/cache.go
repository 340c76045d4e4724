package llm

import (
	"fmt"
	"log/slog"
	"time"

	"parley/internal/domain"
	"parley/internal/infra/config"
	"parley/internal/infra/secrets"
)

// cacheKey identifies one provider instance. Credential and timeout are part
// of the key so a credential rotation or timeout change mid-session yields a
// fresh instance instead of a stale client.
type cacheKey struct {
	provider   string
	credential string
	timeout    time.Duration
}

// Cache builds and memoizes provider instances. It is read and populated only
// from the single interactive control-flow goroutine; if sends are ever
// parallelized this needs a mutex.
type Cache struct {
	cfg       *config.Config
	logger    *slog.Logger
	instances map[cacheKey]domain.StreamingLLMProvider
}

// NewCache creates an empty provider cache over the resolved configuration.
func NewCache(cfg *config.Config, logger *slog.Logger) *Cache {
	return &Cache{
		cfg:       cfg,
		logger:    logger,
		instances: make(map[cacheKey]domain.StreamingLLMProvider),
	}
}

// Get returns the provider instance for name, building it on first use.
// Credential resolution happens here, so a missing key surfaces as a typed
// preflight failure before any request is attempted.
func (c *Cache) Get(name string) (domain.StreamingLLMProvider, error) {
	pcfg, ok := c.cfg.Provider(name)
	if !ok {
		return nil, domain.NewDomainError("llm.Cache.Get", domain.ErrProviderNotFound, name)
	}

	credential, err := secrets.Resolve(pcfg.APIKey)
	if err != nil {
		return nil, err
	}

	key := cacheKey{provider: name, credential: credential, timeout: pcfg.RespTimeout}
	if p, ok := c.instances[key]; ok {
		return p, nil
	}

	p, err := c.build(pcfg, credential)
	if err != nil {
		return nil, err
	}
	c.instances[key] = p
	c.logger.Debug("provider instance created", "provider", name, "type", pcfg.Type)
	return p, nil
}

// build constructs the adapter for pcfg and composes the resilience wrappers
// around it (rate limiter innermost, circuit breaker outermost).
func (c *Cache) build(pcfg config.ProviderConfig, credential string) (domain.StreamingLLMProvider, error) {
	var inner domain.LLMProvider
	switch pcfg.Type {
	case "openai":
		inner = NewOpenAIProvider(pcfg, credential, c.logger)
	case "anthropic":
		inner = NewAnthropicProvider(pcfg, credential, c.logger)
	case "openrouter":
		inner = NewOpenRouterProvider(pcfg, credential, c.logger)
	case "ollama":
		inner = NewOllamaProvider(pcfg, c.logger)
	default:
		return nil, domain.NewDomainError("llm.Cache.build", domain.ErrProviderNotFound,
			fmt.Sprintf("unknown provider type %q", pcfg.Type))
	}

	inner = NewRateLimitedProvider(inner, pcfg.RateLimitRPS)
	if c.cfg.LLM.CircuitBreaker.Enabled {
		inner = NewCircuitBreakerProvider(inner, c.cfg.LLM.CircuitBreaker, c.logger)
	}

	sp, ok := inner.(domain.StreamingLLMProvider)
	if !ok {
		return nil, domain.NewDomainError("llm.Cache.build", domain.ErrProviderNotFound,
			fmt.Sprintf("provider %q does not support streaming", pcfg.Name))
	}
	return sp, nil
}
