package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley/internal/adapter/enrich"
	"parley/internal/adapter/llm"
	"parley/internal/domain"
	"parley/internal/infra/config"
)

// fakeOpenAI is a scripted OpenAI-compatible backend. By default it streams
// back "echo: " + the last user message; a non-zero status fails every call.
type fakeOpenAI struct {
	status    int
	reply     func(lastUser string) string
	chunkGap  time.Duration
	citations []domain.Citation
}

func (f *fakeOpenAI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			http.Error(w, `{"error":{"message":"scripted failure"}}`, f.status)
			return
		}

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Stream   bool `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var lastUser string
		for _, m := range req.Messages {
			if m.Role == "user" {
				lastUser = m.Content
			}
		}
		text := "echo: " + lastUser
		if f.reply != nil {
			text = f.reply(lastUser)
		}

		if !req.Stream {
			resp := map[string]any{
				"model": "test-model",
				"choices": []map[string]any{
					{"message": map[string]any{"role": "assistant", "content": text}, "finish_reason": "stop"},
				},
				"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		writeChunk := func(chunk string) {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
			if f.chunkGap > 0 {
				time.Sleep(f.chunkGap)
			}
		}

		// One content chunk per rune group keeps the test streaming-shaped
		// without being slow.
		half := len(text) / 2
		for _, part := range []string{text[:half], text[half:]} {
			b, _ := json.Marshal(part)
			writeChunk(fmt.Sprintf(`{"choices":[{"delta":{"content":%s},"finish_reason":null}]}`, b))
		}
		if len(f.citations) > 0 {
			var anns []map[string]any
			for _, c := range f.citations {
				anns = append(anns, map[string]any{
					"type":         "url_citation",
					"url_citation": map[string]string{"url": c.URL, "title": c.Title},
				})
			}
			b, _ := json.Marshal(anns)
			writeChunk(fmt.Sprintf(`{"choices":[{"delta":{"annotations":%s},"finish_reason":null}]}`, b))
		}
		writeChunk(`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`)
	}
}

// captureRenderer records streamed deltas; onDelta, when set, runs after the
// first delta (used to trigger mid-stream cancellation).
type captureRenderer struct {
	deltas    []string
	citations []domain.Citation
	done      bool
	onDelta   func()
}

func (r *captureRenderer) Delta(text string) {
	r.deltas = append(r.deltas, text)
	if r.onDelta != nil && len(r.deltas) == 1 {
		r.onDelta()
	}
}

func (r *captureRenderer) Done(citations []domain.Citation) {
	r.done = true
	r.citations = citations
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Chats.Dir = "unused"
	cfg.LLM.DefaultProvider = "test"
	cfg.LLM.DefaultModel = "test-model"
	cfg.LLM.CircuitBreaker.Enabled = false
	cfg.LLM.Providers = []config.ProviderConfig{{
		Name:        "test",
		Type:        "openai",
		BaseURL:     baseURL,
		Models:      []string{"test-model"},
		RespTimeout: 5 * time.Second,
	}}
	cfg.Enrich.Enabled = false
	return cfg
}

func newTestPipeline(t *testing.T, backend *fakeOpenAI) (*SendPipeline, *captureRenderer) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL)
	renderer := &captureRenderer{}
	pipeline := NewSendPipeline(cfg, llm.NewCache(cfg, logger), enrich.New(0, logger), logger, renderer)
	return pipeline, renderer
}

func sendReq(text string) SendRequest {
	return SendRequest{
		Provider: "test",
		Model:    "test-model",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: text}},
	}
}

func TestSendSuccessStreams(t *testing.T) {
	pipeline, renderer := newTestPipeline(t, &fakeOpenAI{})

	outcome := pipeline.Send(context.Background(), sendReq("hello"))

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Text != "echo: hello" {
		t.Errorf("text = %q", outcome.Text)
	}
	if outcome.Model != "test-model" {
		t.Errorf("model = %q", outcome.Model)
	}
	if outcome.Usage.TotalTokens != 12 {
		t.Errorf("usage = %+v", outcome.Usage)
	}
	if len(renderer.deltas) < 2 {
		t.Errorf("expected streamed deltas, got %v", renderer.deltas)
	}
	if !renderer.done {
		t.Error("renderer.Done not called on success")
	}
}

func TestSendCollectsCitations(t *testing.T) {
	pipeline, _ := newTestPipeline(t, &fakeOpenAI{
		citations: []domain.Citation{{URL: "https://example.com", Title: "Example"}},
	})

	outcome := pipeline.Send(context.Background(), sendReq("cite me"))

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(outcome.Citations) != 1 || outcome.Citations[0].URL != "https://example.com" {
		t.Errorf("citations = %+v", outcome.Citations)
	}
}

func TestSendProviderErrorCategories(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, CategoryAuth},
		{http.StatusForbidden, CategoryAuth},
		{http.StatusTooManyRequests, CategoryRateLimit},
		{http.StatusGatewayTimeout, CategoryTimeout},
		{http.StatusUnprocessableEntity, CategoryMalformed},
		{http.StatusInternalServerError, CategoryServerFault},
		{http.StatusServiceUnavailable, CategoryServerFault},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			pipeline, _ := newTestPipeline(t, &fakeOpenAI{status: tt.status})

			outcome := pipeline.Send(context.Background(), sendReq("x"))

			if outcome.Kind != OutcomeError {
				t.Fatalf("outcome kind = %v", outcome.Kind)
			}
			if outcome.Category != tt.want {
				t.Errorf("category = %q, want %q", outcome.Category, tt.want)
			}
			if outcome.Preflight {
				t.Error("provider failure must not be marked preflight")
			}
		})
	}
}

func TestSendPreflightUnknownModel(t *testing.T) {
	pipeline, _ := newTestPipeline(t, &fakeOpenAI{})

	req := sendReq("x")
	req.Model = "ghost-model"
	outcome := pipeline.Send(context.Background(), req)

	if outcome.Kind != OutcomeError || !outcome.Preflight {
		t.Fatalf("outcome = %+v, want preflight error", outcome)
	}
	if outcome.Category != CategoryValidation {
		t.Errorf("category = %q", outcome.Category)
	}
}

func TestSendPreflightUnknownProvider(t *testing.T) {
	pipeline, _ := newTestPipeline(t, &fakeOpenAI{})

	req := sendReq("x")
	req.Provider = "ghost"
	outcome := pipeline.Send(context.Background(), req)

	if outcome.Kind != OutcomeError || !outcome.Preflight {
		t.Fatalf("outcome = %+v, want preflight error", outcome)
	}
}

func TestSendPreflightMissingCredential(t *testing.T) {
	srv := httptest.NewServer((&fakeOpenAI{}).handler())
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL)
	cfg.LLM.Providers[0].APIKey = "env:PARLEY_TEST_NO_SUCH_KEY"
	renderer := &captureRenderer{}
	pipeline := NewSendPipeline(cfg, llm.NewCache(cfg, logger), enrich.New(0, logger), logger, renderer)

	outcome := pipeline.Send(context.Background(), sendReq("x"))

	if outcome.Kind != OutcomeError || !outcome.Preflight {
		t.Fatalf("outcome = %+v, want preflight error", outcome)
	}
	if outcome.Category != CategoryValidation {
		t.Errorf("category = %q", outcome.Category)
	}
}

func TestSendCancelledMidStream(t *testing.T) {
	pipeline, renderer := newTestPipeline(t, &fakeOpenAI{chunkGap: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	renderer.onDelta = cancel

	outcome := pipeline.Send(ctx, sendReq("slow one"))

	if outcome.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
	if renderer.done {
		t.Error("renderer.Done must not fire on cancellation")
	}
}

func TestSendCancelledBeforeCall(t *testing.T) {
	pipeline, _ := newTestPipeline(t, &fakeOpenAI{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := pipeline.Send(ctx, sendReq("x"))

	if outcome.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
}

// newEnrichTestPipeline builds a pipeline with enrichment enabled and the
// given layered timeouts.
func newEnrichTestPipeline(t *testing.T, backend *fakeOpenAI, grace, hard time.Duration) *SendPipeline {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL)
	cfg.Enrich.Enabled = true
	cfg.Enrich.GraceTimeout = grace
	cfg.Enrich.HardTimeout = hard
	return NewSendPipeline(cfg, llm.NewCache(cfg, logger), enrich.New(0, logger), logger, &captureRenderer{})
}

func TestSendEnrichmentWithinGrace(t *testing.T) {
	title := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<title>Fetched Title</title>`)
	}))
	t.Cleanup(title.Close)

	backend := &fakeOpenAI{citations: []domain.Citation{{URL: title.URL}}}
	pipeline := newEnrichTestPipeline(t, backend, 2*time.Second, 10*time.Second)

	outcome := pipeline.Send(context.Background(), sendReq("cite me"))

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(outcome.Citations) != 1 || outcome.Citations[0].Title != "Fetched Title" {
		t.Errorf("citations = %+v, want title filled within the grace window", outcome.Citations)
	}
}

func TestSendEnrichmentGraceExpiryAndHardCancel(t *testing.T) {
	// The title server stalls until its request context is cancelled, which
	// only the hard bound does.
	cancelled := make(chan struct{})
	title := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(cancelled)
	}))
	t.Cleanup(title.Close)

	backend := &fakeOpenAI{citations: []domain.Citation{{URL: title.URL}}}
	grace := 50 * time.Millisecond
	hard := 400 * time.Millisecond
	pipeline := newEnrichTestPipeline(t, backend, grace, hard)

	start := time.Now()
	outcome := pipeline.Send(context.Background(), sendReq("cite me"))
	elapsed := time.Since(start)

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(outcome.Citations) != 1 || outcome.Citations[0].Title != "" {
		t.Errorf("citations = %+v, want unenriched on grace expiry", outcome.Citations)
	}
	if elapsed >= hard {
		t.Errorf("send took %s, must return at the grace window, not wait for the hard bound", elapsed)
	}

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("stalled title fetch was never cancelled at the hard bound")
	}
}
