package llm

import (
	"context"
	"log/slog"
	"strings"

	"parley/internal/domain"
	"parley/internal/infra/config"
)

// Compile-time interface assertions.
var (
	_ domain.LLMProvider          = (*OpenRouterProvider)(nil)
	_ domain.StreamingLLMProvider = (*OpenRouterProvider)(nil)
)

// openRouterOnlineSuffix activates OpenRouter's web plugin for a single
// request; citations come back as url_citation annotations on the OpenAI wire.
const openRouterOnlineSuffix = ":online"

// OpenRouterProvider wraps OpenAIProvider for the OpenRouter gateway, which
// speaks the OpenAI wire format. Search is mapped onto OpenRouter's ":online"
// model suffix rather than a request field.
type OpenRouterProvider struct {
	inner *OpenAIProvider
}

// NewOpenRouterProvider creates an OpenRouter provider.
func NewOpenRouterProvider(cfg config.ProviderConfig, apiKey string, logger *slog.Logger) *OpenRouterProvider {
	oaiCfg := cfg
	if strings.TrimRight(oaiCfg.BaseURL, "/") == "" {
		oaiCfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{inner: NewOpenAIProvider(oaiCfg, apiKey, logger)}
}

// Chat implements domain.LLMProvider.
func (p *OpenRouterProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.inner.Chat(ctx, rewriteSearchModel(req))
	if err != nil {
		return nil, err
	}
	if req.Search && len(resp.Citations) > 0 {
		resp.SearchExecuted = true
	}
	return resp, nil
}

// ChatStream implements domain.StreamingLLMProvider.
func (p *OpenRouterProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return p.inner.ChatStream(ctx, rewriteSearchModel(req))
}

// Name implements domain.LLMProvider.
func (p *OpenRouterProvider) Name() string { return p.inner.Name() }

func rewriteSearchModel(req domain.ChatRequest) domain.ChatRequest {
	if req.Search && !strings.HasSuffix(req.Model, openRouterOnlineSuffix) {
		req.Model += openRouterOnlineSuffix
	}
	return req
}
