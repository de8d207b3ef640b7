package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scholarrag/zoterag/internal/zerrors"
)

// Registry holds the set of available providers, keyed by id, following
// the teacher's RegisterEmbedder/GetEmbedderFactory registry pattern
// generalized from embedders to chat providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry constructs a Registry with the eight required backends
// wired in: the two local OpenAI-compatible servers, the four
// OpenAI-compatible cloud providers, Anthropic, and Gemini.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}

	r.Register(NewOpenAICompatible(
		Metadata{ID: "ollama", Label: "Ollama", DefaultModel: "llama3", SupportsStreaming: true, RequiresAPIKey: false},
		"http://localhost:11434", true,
		[]ModelInfo{{ID: "llama3", Name: "Llama 3"}, {ID: "mistral", Name: "Mistral"}},
		30*time.Second,
	))
	r.Register(NewOpenAICompatible(
		Metadata{ID: "lmstudio", Label: "LM Studio", DefaultModel: "local-model", SupportsStreaming: true, RequiresAPIKey: false},
		"http://localhost:1234", true,
		[]ModelInfo{{ID: "local-model", Name: "Local Model"}},
		30*time.Second,
	))
	r.Register(NewOpenAICompatible(
		Metadata{ID: "openai", Label: "OpenAI", DefaultModel: "gpt-4o-mini", SupportsStreaming: true, RequiresAPIKey: true},
		"https://api.openai.com", false,
		[]ModelInfo{{ID: "gpt-4o", Name: "GPT-4o", ContextLength: 128000}, {ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextLength: 128000}},
		60*time.Second,
	))
	r.Register(NewOpenAICompatible(
		Metadata{ID: "mistral", Label: "Mistral", DefaultModel: "mistral-large-latest", SupportsStreaming: true, RequiresAPIKey: true},
		"https://api.mistral.ai", false,
		[]ModelInfo{{ID: "mistral-large-latest", Name: "Mistral Large", ContextLength: 128000}},
		60*time.Second,
	))
	r.Register(NewOpenAICompatible(
		Metadata{ID: "groq", Label: "Groq", DefaultModel: "llama-3.1-70b-versatile", SupportsStreaming: true, RequiresAPIKey: true},
		"https://api.groq.com/openai", false,
		[]ModelInfo{{ID: "llama-3.1-70b-versatile", Name: "Llama 3.1 70B", ContextLength: 131072}},
		60*time.Second,
	))
	r.Register(NewOpenAICompatible(
		Metadata{ID: "openrouter", Label: "OpenRouter", DefaultModel: "openrouter/auto", SupportsStreaming: true, RequiresAPIKey: true},
		"https://openrouter.ai/api", false,
		[]ModelInfo{{ID: "openrouter/auto", Name: "Auto Router"}},
		60*time.Second,
	))
	r.Register(NewAnthropic("https://api.anthropic.com",
		[]ModelInfo{
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextLength: 200000},
			{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextLength: 200000},
		},
		60*time.Second,
	))
	r.Register(NewGemini("https://generativelanguage.googleapis.com",
		[]ModelInfo{
			{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextLength: 2000000},
			{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextLength: 1000000},
		},
		120*time.Second,
	))

	// Perplexity is optional: it speaks the OpenAI wire format but is a
	// web-augmented provider, so Chat's ResponseValidator call flags raw
	// citation dumps for it specifically (see openai_compatible.go).
	r.Register(NewOpenAICompatible(
		Metadata{ID: "perplexity", Label: "Perplexity", DefaultModel: "llama-3.1-sonar-large-128k-online", SupportsStreaming: true, RequiresAPIKey: true},
		"https://api.perplexity.ai", false,
		[]ModelInfo{{ID: "llama-3.1-sonar-large-128k-online", Name: "Sonar Large Online", ContextLength: 127072}},
		60*time.Second,
	))

	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Metadata().ID] = p
}

// Get returns the provider for id.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, zerrors.NewConfigError("provider", fmt.Sprintf("unknown provider %q", id))
	}
	return p, nil
}

// List returns every registered provider's metadata.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Metadata())
	}
	return out
}

// Manager holds the active provider/model selection and per-provider
// credentials, routing Chat calls to whichever is currently active.
type Manager struct {
	registry *Registry

	mu             sync.RWMutex
	activeProvider string
	activeModel    string
	credentials    map[string]Credentials
}

// NewManager constructs a Manager over registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{registry: registry, credentials: make(map[string]Credentials)}
}

// SetActive selects the active provider and model.
func (m *Manager) SetActive(providerID, model string) error {
	if _, err := m.registry.Get(providerID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeProvider = providerID
	m.activeModel = model
	return nil
}

// SetCredentials stores credentials for a provider, independent of
// whether it's currently active.
func (m *Manager) SetCredentials(providerID string, creds Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[providerID] = creds
}

// Active returns the currently selected (providerID, model).
func (m *Manager) Active() (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeProvider, m.activeModel
}

// Chat routes to the active provider with its stored credentials.
func (m *Manager) Chat(ctx context.Context, messages []Message, params Params) (ChatResponse, error) {
	m.mu.RLock()
	providerID, model := m.activeProvider, m.activeModel
	creds := m.credentials[providerID]
	m.mu.RUnlock()

	if providerID == "" {
		return ChatResponse{}, zerrors.NewConfigError("provider", "no active provider set")
	}
	provider, err := m.registry.Get(providerID)
	if err != nil {
		return ChatResponse{}, err
	}
	return provider.Chat(ctx, creds, model, messages, params)
}

// ListProviders returns every registered provider's metadata.
func (m *Manager) ListProviders() []Metadata {
	return m.registry.List()
}

// ListModels lists models for providerID using its stored credentials.
func (m *Manager) ListModels(ctx context.Context, providerID string) ([]ModelInfo, error) {
	provider, err := m.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	creds := m.credentials[providerID]
	m.mu.RUnlock()
	return provider.ListModels(ctx, creds)
}

// Validate checks providerID's stored credentials with a cheap
// authenticated round-trip.
func (m *Manager) Validate(ctx context.Context, providerID string) error {
	provider, err := m.registry.Get(providerID)
	if err != nil {
		return err
	}
	m.mu.RLock()
	creds := m.credentials[providerID]
	m.mu.RUnlock()
	return provider.Validate(ctx, creds)
}
