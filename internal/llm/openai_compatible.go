// OpenAI-family provider: one parameterized implementation serves every
// backend that speaks the /v1/chat/completions and /v1/models wire shape
// — the four OpenAI-compatible cloud providers (OpenAI, Mistral, Groq,
// OpenRouter), the optional Perplexity, and the two local servers
// (Ollama, LM Studio), following the teacher's raw net/http idiom rather
// than an SDK.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scholarrag/zoterag/internal/zerrors"
)

// OpenAICompatible is an OpenAI-wire-format chat provider. local=true
// selects the "local options" parameter mapping (Ollama/LM Studio
// spelling) over the cloud spelling.
type OpenAICompatible struct {
	meta          Metadata
	defaultURL    string
	local         bool
	staticModels  []ModelInfo
	client        *http.Client
}

// NewOpenAICompatible constructs an OpenAI-family provider. staticModels
// is returned by ListModels when the backend has no dynamic /v1/models
// endpoint (or as a fallback if the call fails).
func NewOpenAICompatible(meta Metadata, defaultURL string, local bool, staticModels []ModelInfo, timeout time.Duration) *OpenAICompatible {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompatible{
		meta:         meta,
		defaultURL:   defaultURL,
		local:        local,
		staticModels: staticModels,
		client:       &http.Client{Timeout: timeout},
	}
}

func (p *OpenAICompatible) Metadata() Metadata { return p.meta }

func (p *OpenAICompatible) baseURL(creds Credentials) string {
	if creds.BaseURL != "" {
		return creds.BaseURL
	}
	return p.defaultURL
}

func (p *OpenAICompatible) authHeader(req *http.Request, creds Credentials) {
	if creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	}
}

// Validate performs a cheap authenticated round-trip by listing models.
func (p *OpenAICompatible) Validate(ctx context.Context, creds Credentials) error {
	if p.meta.RequiresAPIKey && creds.APIKey == "" {
		return zerrors.NewProviderAuthError(p.meta.ID, "api_key")
	}
	_, err := p.ListModels(ctx, creds)
	return err
}

type openAIModelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels calls GET /v1/models, falling back to the static list on
// any failure (some local servers don't implement it at all).
func (p *OpenAICompatible) ListModels(ctx context.Context, creds Credentials) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL(creds)+"/v1/models", nil)
	if err != nil {
		return p.staticModels, nil
	}
	p.authHeader(req, creds)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.staticModels, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, zerrors.NewProviderAuthError(p.meta.ID, "api_key")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, zerrors.NewProviderRateLimitError(p.meta.ID, 0)
	}
	if resp.StatusCode != http.StatusOK {
		return p.staticModels, nil
	}

	var parsed openAIModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Data) == 0 {
		return p.staticModels, nil
	}
	models := make([]ModelInfo, len(parsed.Data))
	for i, m := range parsed.Data {
		models[i] = ModelInfo{ID: m.ID, Name: m.ID}
	}
	return models, nil
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat calls POST /v1/chat/completions with the OpenAI wire shape.
func (p *OpenAICompatible) Chat(ctx context.Context, creds Credentials, model string, messages []Message, params Params) (ChatResponse, error) {
	body := map[string]any{
		"model":    model,
		"messages": adaptOpenAI(messages),
	}
	paramMapper := mapParamsOpenAI
	if p.local {
		paramMapper = mapParamsLocal
	}
	for k, v := range paramMapper(params) {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(creds)+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authHeader(req, creds)

	resp, err := p.client.Do(req)
	if err != nil {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ChatResponse{}, zerrors.NewProviderAuthError(p.meta.ID, "api_key")
	case http.StatusTooManyRequests:
		return ChatResponse{}, zerrors.NewProviderRateLimitError(p.meta.ID, 0)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		if parsed.Error.Type == "context_length_exceeded" {
			return ChatResponse{}, zerrors.NewProviderContextError(p.meta.ID, 0)
		}
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, fmt.Errorf("no choices in response"))
	}

	content := parsed.Choices[0].Message.Content
	return ChatResponse{
		Content: content,
		Model:   model,
		Usage: &Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		Warnings: ValidateResponse(content, p.meta.ID == "perplexity"),
	}, nil
}
