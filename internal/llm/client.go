// Package llm provides LLM client interfaces, provider implementations and the
// metered model gateway.
package llm

import (
	"context"
	"fmt"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response. UsageReported is false
// when the provider returned no token counts.
type CompletionResponse struct {
	Content       string
	Model         string
	TokensIn      int
	TokensOut     int
	UsageReported bool
	StopReason    string
	LatencyMs     int64
}

// EmbeddingResponse is a single embedding vector.
type EmbeddingResponse struct {
	Vector        []float32
	Model         string
	TokensIn      int
	UsageReported bool
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Embedder produces embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error)
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
