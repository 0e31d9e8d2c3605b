package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VectorStore.Collections = map[SourceID]string{"wiki": "wiki_docs"}
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.VectorStore.Collections = map[SourceID]string{"wiki": "wiki_docs"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero embedding dim",
			mutate:  func(c *Config) { c.Embedding.Dim = 0 },
			wantErr: "embedding.dim",
		},
		{
			name:    "unknown llm provider",
			mutate:  func(c *Config) { c.LLM.Provider = "C" },
			wantErr: "llm.provider",
		},
		{
			name:    "zero max entries",
			mutate:  func(c *Config) { c.Cache.MaxEntries = 0 },
			wantErr: "cache.max_entries",
		},
		{
			name:    "bad threshold ordering",
			mutate:  func(c *Config) { c.Cache.Semantic.MinThreshold = 0.99 },
			wantErr: "thresholds must satisfy",
		},
		{
			name:    "zero top k",
			mutate:  func(c *Config) { c.Pipeline.TopKGlobal = 0 },
			wantErr: "top_k_per_source and top_k_global",
		},
		{
			name:    "zero max concurrent sources",
			mutate:  func(c *Config) { c.Pipeline.MaxConcurrentSources = 0 },
			wantErr: "max_concurrent_sources",
		},
		{
			name:    "zero breaker window",
			mutate:  func(c *Config) { c.Breaker.Window = 0 },
			wantErr: "failure_threshold and breaker.window",
		},
		{
			name:    "bad failure rate",
			mutate:  func(c *Config) { c.Breaker.FailureRate = 1.5 },
			wantErr: "failure_rate must be in",
		},
		{
			name:    "empty collection name",
			mutate:  func(c *Config) { c.VectorStore.Collections["wiki"] = "" },
			wantErr: "collection name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  port: 9090
embedding:
  dim: 768
  provider_url: http://localhost:8081
  api_key: ${TEST_EMBEDDING_KEY}
vector_store:
  url: http://localhost:6333
  collections:
    wiki: wiki_docs
    tickets: ticket_history
llm:
  provider: B
  model: test-model
sources:
  wiki:
    weight: 1.0
    timeout_ms: 3000
    client_names: ["wiki", "kb"]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))
	t.Setenv("TEST_EMBEDDING_KEY", "secret-value")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 768, cfg.Embedding.Dim)
	assert.Equal(t, "secret-value", cfg.Embedding.APIKey)
	assert.Equal(t, "B", cfg.LLM.Provider)
	assert.Equal(t, "wiki_docs", cfg.VectorStore.Collections["wiki"])
	// unset fields retain their defaults
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	require.Contains(t, cfg.Sources, SourceID("wiki"))
	assert.Equal(t, 1.0, cfg.Sources["wiki"].Weight)
}

func TestLoadFromFile_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n  bogus_field: true\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadFromFile_InvalidConfigFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
