package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scholarrag/zoterag/internal/zerrors"
)

// Anthropic is the Anthropic-family chat provider: extracts the system
// message to its own field, sends only user/assistant turns in the
// conversation array.
type Anthropic struct {
	meta       Metadata
	defaultURL string
	apiVersion string
	staticModels []ModelInfo
	client     *http.Client
}

// NewAnthropic constructs the Anthropic provider.
func NewAnthropic(defaultURL string, staticModels []ModelInfo, timeout time.Duration) *Anthropic {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Anthropic{
		meta: Metadata{
			ID: "anthropic", Label: "Anthropic", DefaultModel: "claude-3-5-sonnet-20241022",
			SupportsStreaming: true, RequiresAPIKey: true,
		},
		defaultURL:   defaultURL,
		apiVersion:   "2023-06-01",
		staticModels: staticModels,
		client:       &http.Client{Timeout: timeout},
	}
}

func (p *Anthropic) Metadata() Metadata { return p.meta }

func (p *Anthropic) Validate(ctx context.Context, creds Credentials) error {
	if creds.APIKey == "" {
		return zerrors.NewProviderAuthError(p.meta.ID, "api_key")
	}
	_, err := p.Chat(ctx, creds, p.meta.DefaultModel, []Message{{Role: "user", Content: "hi"}}, Params{MaxTokens: 1})
	return err
}

// ListModels returns the static catalogue; Anthropic has no public
// dynamic model-listing endpoint for this API version.
func (p *Anthropic) ListModels(ctx context.Context, creds Credentials) ([]ModelInfo, error) {
	return p.staticModels, nil
}

type anthropicChatResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Anthropic) Chat(ctx context.Context, creds Credentials, model string, messages []Message, params Params) (ChatResponse, error) {
	system, rest := adaptAnthropic(messages)

	body := map[string]any{
		"model":    model,
		"messages": rest,
	}
	if system != "" {
		body["system"] = system
	}
	for k, v := range mapParamsAnthropic(params) {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	baseURL := p.defaultURL
	if creds.BaseURL != "" {
		baseURL = creds.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", creds.APIKey)
	req.Header.Set("anthropic-version", p.apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ChatResponse{}, zerrors.NewProviderAuthError(p.meta.ID, "api_key")
	case http.StatusTooManyRequests:
		return ChatResponse{}, zerrors.NewProviderRateLimitError(p.meta.ID, 0)
	}

	var parsed anthropicChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		if parsed.Error.Type == "invalid_request_error" && len(system)+len(fmt.Sprint(rest)) > 100000 {
			return ChatResponse{}, zerrors.NewProviderContextError(p.meta.ID, 0)
		}
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Content) == 0 {
		return ChatResponse{}, zerrors.NewTransportError(p.meta.ID, fmt.Errorf("no content in response"))
	}

	content := parsed.Content[0].Text
	return ChatResponse{
		Content: content,
		Model:   model,
		Usage: &Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		Warnings: ValidateResponse(content, false),
	}, nil
}
