// Package llm implements the Provider Abstraction: a uniform chat/
// validate/list-models contract over eight required backends (two local,
// four OpenAI-compatible cloud providers, Anthropic, Google Gemini) plus
// optional Perplexity, fronted by a ProviderManager that routes to
// whichever provider/model pair is currently active.
package llm

import "context"

// Message is one canonical chat turn.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Params are the canonical sampling parameters; ParameterMapper
// translates them to each backend's native spelling.
type Params struct {
	Temperature        float64
	TopP               float64
	TopK               int
	RepetitionPenalty  float64
	MaxTokens          int
}

// Usage reports token accounting, when the backend provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the normalised result of a chat call.
type ChatResponse struct {
	Content  string
	Model    string
	Usage    *Usage
	Warnings []string // non-fatal ResponseValidator findings
}

// ModelInfo describes one model a provider can serve.
type ModelInfo struct {
	ID            string
	Name          string
	Description   string
	ContextLength int // 0 when unknown
}

// Credentials carries what a provider needs to authenticate and connect.
type Credentials struct {
	APIKey  string
	BaseURL string // overrides the provider's default endpoint, for local servers
}

// Metadata is a provider's static self-description.
type Metadata struct {
	ID                string
	Label             string
	DefaultModel      string
	SupportsStreaming bool
	RequiresAPIKey    bool
}

// Provider is the interface every backend implements.
type Provider interface {
	Metadata() Metadata
	Validate(ctx context.Context, creds Credentials) error
	ListModels(ctx context.Context, creds Credentials) ([]ModelInfo, error)
	Chat(ctx context.Context, creds Credentials, model string, messages []Message, params Params) (ChatResponse, error)
}
