package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"parley/internal/adapter/enrich"
	"parley/internal/adapter/llm"
	"parley/internal/domain"
	"parley/internal/infra/config"
	"parley/internal/infra/tracer"
)

// OutcomeKind is the terminal classification of one send.
type OutcomeKind int

const (
	// OutcomeSuccess carries the full assistant text plus metadata.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeError is a typed provider or preflight failure.
	OutcomeError
	// OutcomeCancelled is an operator interrupt mid-stream; partial text is
	// discarded for commit purposes.
	OutcomeCancelled
)

// SendRequest is one resolved send intent handed to the pipeline.
type SendRequest struct {
	Provider     string
	Model        string
	Messages     []domain.Message
	SystemPrompt string
	Search       bool
	Reasoning    bool
}

// SendOutcome is the pipeline's report back to the orchestrator. Exactly one
// commit rule consumes it; nothing in here is logged-and-swallowed.
type SendOutcome struct {
	Kind           OutcomeKind
	Text           string
	Model          string
	Usage          domain.Usage
	Citations      []domain.Citation
	SearchExecuted bool

	// Error fields, set when Kind == OutcomeError.
	Err       error
	Category  string
	Preflight bool // failed before the provider call was issued
}

// Renderer receives text increments as they stream in, and a final Done call
// on success carrying the (possibly enriched) citations.
type Renderer interface {
	Delta(text string)
	Done(citations []domain.Citation)
}

// SendPipeline drives one provider call: validation, streaming, best-effort
// citation enrichment under layered timeouts, and terminal classification.
// It never touches the chat document; folding the outcome into state is the
// orchestrator's job.
type SendPipeline struct {
	cfg       *config.Config
	providers *llm.Cache
	enricher  *enrich.Enricher
	logger    *slog.Logger
	renderer  Renderer
}

// NewSendPipeline wires the pipeline's collaborators.
func NewSendPipeline(cfg *config.Config, providers *llm.Cache, enricher *enrich.Enricher, logger *slog.Logger, renderer Renderer) *SendPipeline {
	return &SendPipeline{
		cfg:       cfg,
		providers: providers,
		enricher:  enricher,
		logger:    logger,
		renderer:  renderer,
	}
}

// Send executes one send intent. ctx cancellation is the operator interrupt:
// it stops the stream and yields OutcomeCancelled.
//
// Preflight boundary: a failure during provider/model resolution, credential
// resolution, or request validation is reported with Preflight set; a failure
// during or after the provider call itself is not.
func (p *SendPipeline) Send(ctx context.Context, req SendRequest) SendOutcome {
	ctx, span := tracer.StartSpan(ctx, "pipeline.send",
		trace.WithAttributes(
			tracer.StringAttr("send.provider", req.Provider),
			tracer.StringAttr("send.model", req.Model),
		),
	)
	defer span.End()

	provider, err := p.preflight(req)
	if err != nil {
		tracer.RecordError(span, err)
		return SendOutcome{Kind: OutcomeError, Err: err, Category: Categorize(err), Preflight: true}
	}

	outcome := p.stream(ctx, provider, req)
	if outcome.Kind == OutcomeSuccess && p.cfg.Enrich.Enabled {
		outcome.Citations = p.enrichCitations(outcome.Citations)
	}

	switch outcome.Kind {
	case OutcomeSuccess:
		p.renderer.Done(outcome.Citations)
		tracer.SetOK(span)
	case OutcomeError:
		tracer.RecordError(span, outcome.Err)
	}
	return outcome
}

// preflight resolves the provider instance and validates the model pair.
func (p *SendPipeline) preflight(req SendRequest) (domain.StreamingLLMProvider, error) {
	if req.Model == "" {
		return nil, domain.NewDomainError("pipeline.preflight", domain.ErrModelNotFound, "no model selected")
	}
	if !p.cfg.HasModel(req.Provider, req.Model) {
		if _, ok := p.cfg.Provider(req.Provider); !ok {
			return nil, domain.NewDomainError("pipeline.preflight", domain.ErrProviderNotFound, req.Provider)
		}
		return nil, domain.NewDomainError("pipeline.preflight", domain.ErrModelNotFound,
			req.Provider+"/"+req.Model)
	}
	return p.providers.Get(req.Provider)
}

// stream performs the provider call and accumulates the streamed response.
func (p *SendPipeline) stream(ctx context.Context, provider domain.StreamingLLMProvider, req SendRequest) SendOutcome {
	chatReq := domain.ChatRequest{
		Model:        req.Model,
		Messages:     req.Messages,
		SystemPrompt: req.SystemPrompt,
		Stream:       true,
		Search:       req.Search,
		Reasoning:    req.Reasoning,
	}

	ch, err := provider.ChatStream(ctx, chatReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return SendOutcome{Kind: OutcomeCancelled}
		}
		return SendOutcome{Kind: OutcomeError, Err: err, Category: Categorize(err)}
	}

	var (
		text           strings.Builder
		usage          domain.Usage
		citations      []domain.Citation
		searchExecuted bool
	)
	for delta := range ch {
		if delta.Err != nil {
			if errors.Is(delta.Err, context.Canceled) || ctx.Err() != nil {
				return SendOutcome{Kind: OutcomeCancelled}
			}
			return SendOutcome{Kind: OutcomeError, Err: delta.Err, Category: Categorize(delta.Err)}
		}
		if delta.Content != "" {
			text.WriteString(delta.Content)
			p.renderer.Delta(delta.Content)
		}
		citations = append(citations, delta.Citations...)
		if delta.Usage != nil {
			usage = *delta.Usage
		}
		if delta.SearchExecuted {
			searchExecuted = true
		}
	}
	if ctx.Err() != nil {
		return SendOutcome{Kind: OutcomeCancelled}
	}

	return SendOutcome{
		Kind:           OutcomeSuccess,
		Text:           text.String(),
		Model:          req.Model,
		Usage:          usage,
		Citations:      citations,
		SearchExecuted: searchExecuted,
	}
}

// enrichCitations races best-effort title enrichment against the grace
// timeout, layered inside the hard timeout. On grace expiry the response is
// returned unenriched while the already-issued fetches run on briefly to warm
// the title cache. At the hard bound they are cancelled outright, not
// abandoned.
func (p *SendPipeline) enrichCitations(citations []domain.Citation) []domain.Citation {
	needed := false
	for _, c := range citations {
		if c.Title == "" && c.URL != "" {
			needed = true
			break
		}
	}
	if !needed {
		return citations
	}

	hardCtx, cancel := context.WithTimeout(context.Background(), p.cfg.Enrich.HardTimeout)
	done := make(chan []domain.Citation, 1)
	go func() {
		done <- p.enricher.Enrich(hardCtx, citations)
	}()

	grace := time.NewTimer(p.cfg.Enrich.GraceTimeout)
	defer grace.Stop()

	select {
	case enriched := <-done:
		cancel()
		return enriched
	case <-grace.C:
		p.logger.Debug("citation enrichment missed grace window",
			"grace", p.cfg.Enrich.GraceTimeout, "hard", p.cfg.Enrich.HardTimeout)
		go func() {
			select {
			case <-done:
			case <-hardCtx.Done():
			}
			cancel()
		}()
		return citations
	}
}
