package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	cfg.ProfileDir = t.TempDir()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadChunking(t *testing.T) {
	cfg := defaultConfig()
	cfg.ProfileDir = t.TempDir()
	cfg.ChunkOverlap = cfg.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresProfileDir(t *testing.T) {
	cfg := defaultConfig()
	assert.Error(t, cfg.Validate())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.ProfileDir = dir
	cfg.ActiveProvider = "anthropic"

	path := filepath.Join(dir, "zoterag.json")
	require.NoError(t, cfg.Save(path))

	t.Setenv("ZOTERAG_CONFIG", path)
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", loaded.ActiveProvider)
	assert.Equal(t, dir, loaded.ProfileDir)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.ProfileDir = dir
	cfg.ActiveProvider = "anthropic"
	path := filepath.Join(dir, "zoterag.json")
	require.NoError(t, cfg.Save(path))

	t.Setenv("ZOTERAG_CONFIG", path)
	t.Setenv("ZOTERAG_PROVIDER", "openai")
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.ActiveProvider)
}

func TestVectorCollectionName(t *testing.T) {
	cfg := defaultConfig()
	cfg.EmbeddingModelID = "nomic-embed-text"
	assert.Equal(t, "zotero_lib_nomic-embed-text", cfg.VectorCollectionName())
}

func TestExportYAMLRoundTripsViaLoadYAMLOverrides(t *testing.T) {
	cfg := defaultConfig()
	cfg.ProfileDir = t.TempDir()
	cfg.ActiveProvider = "anthropic"
	cfg.RetrievalK = 25

	data, err := cfg.ExportYAML()
	require.NoError(t, err)

	dir := t.TempDir()
	overridesPath := filepath.Join(dir, "overrides.yaml")
	require.NoError(t, os.WriteFile(overridesPath, data, 0644))

	fresh := defaultConfig()
	fresh.ProfileDir = t.TempDir()
	require.NoError(t, fresh.LoadYAMLOverrides(overridesPath))
	assert.Equal(t, "anthropic", fresh.ActiveProvider)
	assert.Equal(t, 25, fresh.RetrievalK)
}

func TestLoadYAMLOverridesRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: -1\n"), 0644))

	cfg := defaultConfig()
	cfg.ProfileDir = t.TempDir()
	err := cfg.LoadYAMLOverrides(path)
	assert.Error(t, err)
}
