// Package enrich fills in missing citation titles by fetching each cited page
// and extracting its HTML title. Enrichment is strictly best-effort: every
// failure degrades to the unenriched citation, and all outstanding fetches
// stop when the caller's context is cancelled.
package enrich

import (
	"context"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"parley/internal/domain"
	"parley/internal/infra/tracer"
)

const (
	defaultCacheTTL = 15 * time.Minute
	maxTitleBody    = 256 * 1024 // read at most 256 KB looking for <title>
	maxConcurrent   = 4
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// cacheEntry holds a resolved title with its expiration time.
type cacheEntry struct {
	title     string
	expiresAt time.Time
}

// Enricher resolves page titles for citations. The title cache survives the
// hard timeout, so a fetch that completed after the grace cutoff still pays
// off on the next enrichment of the same URL.
type Enricher struct {
	client   *http.Client
	cacheTTL time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates an Enricher with the given cache TTL (<= 0 uses the default).
func New(cacheTTL time.Duration, logger *slog.Logger) *Enricher {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Enricher{
		client:   &http.Client{Timeout: 0}, // bounded by ctx, not a client timeout
		cacheTTL: cacheTTL,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
	}
}

// Enrich returns a copy of citations with empty titles filled in where the
// cited page could be fetched before ctx was cancelled. Citations that
// already carry a title are returned untouched.
func (e *Enricher) Enrich(ctx context.Context, citations []domain.Citation) []domain.Citation {
	ctx, span := tracer.StartSpan(ctx, "enrich.citations",
		trace.WithAttributes(tracer.IntAttr("enrich.count", len(citations))))
	defer span.End()

	out := make([]domain.Citation, len(citations))
	copy(out, citations)

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for i := range out {
		if out[i].Title != "" || out[i].URL == "" {
			continue
		}
		wg.Add(1)
		go func(c *domain.Citation) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if title := e.title(ctx, c.URL); title != "" {
				c.Title = title
			}
		}(&out[i])
	}
	wg.Wait()

	tracer.SetOK(span)
	return out
}

// title returns the page title for url, consulting the cache first.
func (e *Enricher) title(ctx context.Context, url string) string {
	e.mu.Lock()
	if entry, ok := e.cache[url]; ok && time.Now().Before(entry.expiresAt) {
		e.mu.Unlock()
		return entry.title
	}
	e.mu.Unlock()

	title, err := e.fetchTitle(ctx, url)
	if err != nil {
		e.logger.Debug("citation title fetch failed", "url", url, "error", err)
		return ""
	}

	e.mu.Lock()
	e.cache[url] = cacheEntry{title: title, expiresAt: time.Now().Add(e.cacheTTL)}
	e.mu.Unlock()
	return title
}

func (e *Enricher) fetchTitle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTitleBody))
	if err != nil {
		return "", err
	}

	m := titlePattern.FindSubmatch(body)
	if m == nil {
		return "", nil
	}
	title := html.UnescapeString(strings.TrimSpace(string(m[1])))
	title = strings.Join(strings.Fields(title), " ")
	return title, nil
}
