// Package config provides configuration management for zoterag. It handles
// profile loading, validation, and persistence with support for multiple
// sources:
//   - A JSON profile file
//   - Environment variables
//   - Programmatic defaults
//
// Settings are resolved in the following order (highest to lowest
// precedence):
//  1. Environment variables
//  2. Profile file
//  3. Default values
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scholarrag/zoterag/internal/zerrors"
)

// Config holds all settings for a single Zotero library profile: which
// catalogue and PDF tree it points at, which LLM and embedding providers
// it talks to, and the retrieval/chunking parameters that shape indexing
// and search.
type Config struct {
	// ProfileDir is the root directory holding this profile's persisted
	// state: the vector collections, the BM25 index file, and the
	// indexing lock file.
	ProfileDir string `json:"profile_dir" yaml:"profile_dir"`

	// CatalogPath is the path to the Zotero-style sqlite catalogue.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`
	// LibraryDir is the root of the PDF tree the catalogue references.
	LibraryDir string `json:"library_dir" yaml:"library_dir"`

	// Provider settings.
	ActiveProvider   string            `json:"active_provider" yaml:"active_provider"`
	ActiveModel      string            `json:"active_model" yaml:"active_model"`
	APIKeys          map[string]string `json:"api_keys" yaml:"api_keys"`
	ProviderBaseURLs map[string]string `json:"provider_base_urls" yaml:"provider_base_urls"`

	// EmbeddingModelID identifies the embedding model used to name vector
	// collections (one logical collection per embedding model).
	EmbeddingModelID string `json:"embedding_model_id" yaml:"embedding_model_id"`

	// Chunking settings.
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Retrieval settings, wired into retriever.Options/rag.Controller by
	// Service.New (zoterag.go). There is no separate rerank-top-k knob:
	// spec.md §4.6 step 7 reranks exactly the RRF top-k set fetched in
	// step 6, so RetrievalK already governs that width.
	RetrievalK          int     `json:"retrieval_k" yaml:"retrieval_k"`
	RRFConstant         float64 `json:"rrf_constant" yaml:"rrf_constant"`
	MaxSnippets         int     `json:"max_snippets" yaml:"max_snippets"`
	MaxSnippetsPerPaper int     `json:"max_snippets_per_paper" yaml:"max_snippets_per_paper"`

	// Conversation settings.
	MaxHistoryMessages int `json:"max_history_messages" yaml:"max_history_messages"`
	MaxHistoryChars    int `json:"max_history_chars" yaml:"max_history_chars"`

	// Timeout is the HTTP timeout of the Ollama embedding backend.
	// MaxRetries is stored with the profile; no call reads it.
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`

	// ExtraHeaders holds additional HTTP headers (e.g. a gateway auth
	// header). It is stored with the profile; no provider request sends
	// them.
	ExtraHeaders map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

// Load resolves a Config from, in increasing precedence: built-in
// defaults, a profile file, then environment variable overrides.
//
// Profile file search order:
//  1. $ZOTERAG_CONFIG
//  2. ~/.zoterag/config.json
//  3. ~/.config/zoterag/config.json
//  4. ./zoterag.json
//
// Environment variable overrides:
//   - ZOTERAG_PROVIDER: active provider id
//   - ZOTERAG_MODEL: active model id
//   - ZOTERAG_PROFILE_DIR: profile directory
//   - ZOTERAG_API_KEY: API key for the active provider
func Load() (*Config, error) {
	cfg := defaultConfig()

	configFile := os.Getenv("ZOTERAG_CONFIG")
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidates := []string{
				filepath.Join(home, ".zoterag", "config.json"),
				filepath.Join(home, ".config", "zoterag", "config.json"),
				"zoterag.json",
			}
			for _, candidate := range candidates {
				if _, err := os.Stat(candidate); err == nil {
					configFile = candidate
					break
				}
			}
		}
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, zerrors.NewConfigError("profile_file", err.Error())
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, zerrors.NewConfigError("profile_file", err.Error())
		}
	}

	if provider := os.Getenv("ZOTERAG_PROVIDER"); provider != "" {
		cfg.ActiveProvider = provider
	}
	if model := os.Getenv("ZOTERAG_MODEL"); model != "" {
		cfg.ActiveModel = model
	}
	if profileDir := os.Getenv("ZOTERAG_PROFILE_DIR"); profileDir != "" {
		cfg.ProfileDir = profileDir
	}
	if apiKey := os.Getenv("ZOTERAG_API_KEY"); apiKey != "" {
		cfg.APIKeys[cfg.ActiveProvider] = apiKey
	}

	return cfg, cfg.Validate()
}

// ResolvedPath returns the profile file path Load would read, using the
// same search order; if none of the candidates exist yet, it returns the
// default write location (~/.zoterag/config.json) for a first Save.
func ResolvedPath() (string, error) {
	if configFile := os.Getenv("ZOTERAG_CONFIG"); configFile != "" {
		return configFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", zerrors.NewConfigError("profile_file", err.Error())
	}
	candidates := []string{
		filepath.Join(home, ".zoterag", "config.json"),
		filepath.Join(home, ".config", "zoterag", "config.json"),
		"zoterag.json",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return candidates[0], nil
}

func defaultConfig() *Config {
	return &Config{
		ActiveProvider:      "ollama",
		ActiveModel:         "llama3",
		EmbeddingModelID:    "nomic-embed-text",
		ChunkSize:           800,
		ChunkOverlap:        200,
		RetrievalK:          15,
		RRFConstant:         60,
		MaxSnippets:         6,
		MaxSnippetsPerPaper: 3,
		MaxHistoryMessages:  20,
		MaxHistoryChars:     12000,
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		APIKeys:             make(map[string]string),
		ProviderBaseURLs:    make(map[string]string),
		ExtraHeaders:        make(map[string]string),
	}
}

// Validate checks that the settings needed to actually run a profile are
// present. It does not require provider credentials, since local
// providers (ollama, lmstudio) need none.
func (c *Config) Validate() error {
	if c.ProfileDir == "" {
		return zerrors.NewConfigError("profile_dir", "must not be empty")
	}
	if c.ChunkSize <= 0 {
		return zerrors.NewConfigError("chunk_size", "must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return zerrors.NewConfigError("chunk_overlap", "must be non-negative and smaller than chunk_size")
	}
	if c.RRFConstant <= 0 {
		return zerrors.NewConfigError("rrf_constant", "must be positive")
	}
	return nil
}

// Save persists the configuration to a JSON file at path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ExportYAML renders the config as YAML, for an operator to review or hand-
// edit — the on-disk profile format stays JSON (Load/Save), but a 40-line
// JSON blob is unpleasant to edit by hand compared to the same settings in
// YAML.
func (c *Config) ExportYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// LoadYAMLOverrides reads a YAML file of partial settings and applies them
// on top of c, for a "zoterag config apply <file>" workflow where an
// operator edits only the handful of fields they care about.
func (c *Config) LoadYAMLOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return zerrors.NewConfigError("yaml_overrides", err.Error())
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return zerrors.NewConfigError("yaml_overrides", err.Error())
	}
	return c.Validate()
}

// VectorCollectionName returns the name of the vector collection backing
// this profile's chosen embedding model, per the spec's one-collection-
// per-embedding-model convention.
func (c *Config) VectorCollectionName() string {
	return "zotero_lib_" + c.EmbeddingModelID
}

// BM25IndexPath returns the on-disk path of the persisted BM25 sparse
// index for this profile.
func (c *Config) BM25IndexPath() string {
	return filepath.Join(c.ProfileDir, "bm25_index.json")
}

// IndexLockPath returns the path of the crash-recovery lock file written
// by the indexer while a job is running.
func (c *Config) IndexLockPath() string {
	return filepath.Join(c.ProfileDir, "indexing.lock")
}
