package domain

import "context"

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
	Search       bool      `json:"search,omitempty"`
	Reasoning    bool      `json:"reasoning,omitempty"`
}

// Message is the provider-facing message shape: flat role + content, already
// joined from the document's line representation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	Model          string     `json:"model"`
	Content        string     `json:"content"`
	Usage          Usage      `json:"usage"`
	Citations      []Citation `json:"citations,omitempty"`
	SearchExecuted bool       `json:"search_executed,omitempty"`
}

// StreamDelta is a single incremental chunk from a streaming response. The
// terminal chunk has Done set and may carry usage and citations.
type StreamDelta struct {
	Content        string     `json:"content,omitempty"`
	Done           bool       `json:"done,omitempty"`
	Usage          *Usage     `json:"usage,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
	SearchExecuted bool       `json:"search_executed,omitempty"`
	Err            error      `json:"-"`
}

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g. "openai", "anthropic").
	Name() string
}

// StreamingLLMProvider extends LLMProvider with streaming support. The
// returned channel is a lazy, finite, non-restartable sequence of deltas
// terminating in a Done chunk; a mid-stream failure is delivered as a final
// delta with Err set.
type StreamingLLMProvider interface {
	LLMProvider
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
