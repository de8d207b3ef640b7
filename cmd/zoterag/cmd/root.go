// Package cmd provides the CLI commands for zoterag.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholarrag/zoterag/config"
	"github.com/scholarrag/zoterag/internal/catalog"
	"github.com/scholarrag/zoterag/internal/embedding"
	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/pdfextract"

	zoterag "github.com/scholarrag/zoterag"
)

var debug bool

// NewRootCmd builds the zoterag root command and its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zoterag",
		Short: "Hybrid-retrieval, citation-grounded QA over a Zotero library",
		Long: `zoterag turns a Zotero-style personal PDF reference library into a
hybrid-retrieval, multi-turn, citation-grounded question-answering engine.

Run 'zoterag index' once to build the vector and BM25 indices, then
'zoterag chat' to ask questions against them.`,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newProvidersCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// embeddingDimensions gives the known output dimension for the handful
// of embedding models this profile is likely to use; unrecognized model
// ids fall back to a common sentence-embedding dimension rather than
// failing the CLI outright — the adapter still enforces the true
// invariant at embed time against whatever the backend actually returns.
var embeddingDimensions = map[string]int{
	"nomic-embed-text": 768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

func resolveDimension(modelID string) int {
	if dim, ok := embeddingDimensions[modelID]; ok {
		return dim
	}
	return 768
}

// buildService loads the profile config and wires a zoterag.Service
// against it: an Ollama-backed embedding model (the default local
// backend, per spec §6 collaborator 3) and the sqlite catalogue/PDF
// extractor collaborators.
func buildService() (*zoterag.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	log := logging.New(level)

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalogue: %w", err)
	}

	pdf := pdfextract.New(log)

	factory := embedding.BackendFactory(func(modelID string, spec embedding.ModelSpec) (embedding.Backend, error) {
		baseURL := cfg.ProviderBaseURLs["embedding"]
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return embedding.NewOllamaBackend(baseURL, spec.BackendModelName, cfg.Timeout), nil
	})
	modelSpec := embedding.ModelSpec{BackendModelName: cfg.EmbeddingModelID, Dimension: resolveDimension(cfg.EmbeddingModelID)}

	svc, err := zoterag.New(cfg, cat, pdf, factory, modelSpec, nil, log)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("constructing service: %w", err)
	}
	return svc, nil
}

func formatDuration(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}
