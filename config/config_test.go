package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Equal(t, StoreBadger, cfg.Store.Type)
	assert.Equal(t, LedgerJSONFile, cfg.Ledger.Type)
	assert.Equal(t, filepath.Join(cfg.DataDir, "citations.json"), cfg.Ledger.Path)
	assert.Equal(t, 10, cfg.Search.K)
	require.NotNil(t, cfg.Search.Fuzzy)
	assert.True(t, *cfg.Search.Fuzzy)
	assert.Equal(t, 5, cfg.Research.RelatedCount)
	assert.Equal(t, 120, cfg.Research.GenerationTimeoutSecs)
	assert.False(t, cfg.Research.CitationIgnoreCase)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 384, cfg.AI.Dimensions)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scholar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/scholar
ai:
  embedding_host: http://embed:8080
  embedding_model: nomic-embed-text
  dimensions: 768
store:
  type: opensearch
  opensearch:
    addresses: ["https://search:9200"]
    username: admin
    password_env: OS_PASSWORD
search:
  k: 5
  fuzzy: false
  field_weights:
    title: 4
    content: 1
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scholar", cfg.DataDir)
	assert.Equal(t, "http://embed:8080", cfg.AI.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.AI.GenerationHost)
	assert.Equal(t, 768, cfg.AI.Dimensions)
	assert.Equal(t, StoreOpenSearch, cfg.Store.Type)
	require.NotNil(t, cfg.Store.OpenSearch)
	assert.Equal(t, []string{"https://search:9200"}, cfg.Store.OpenSearch.Addresses)
	assert.Equal(t, "research_assistant", cfg.Store.OpenSearch.Index)
	assert.Equal(t, 30, cfg.Store.OpenSearch.TimeoutSecs)
	assert.Equal(t, "/var/lib/scholar/citations.json", cfg.Ledger.Path)
	assert.Equal(t, 5, cfg.Search.K)
	assert.False(t, *cfg.Search.Fuzzy)
	assert.Equal(t, map[string]float64{"title": 4, "content": 1}, cfg.Search.FieldWeights)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unterminated"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = "127.0.0.1:9000"
	cfg.Ledger.Type = LedgerBadger

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantMsg string
	}{
		{"unknown store", func(c *AppConfig) { c.Store.Type = "redis" }, "store.type"},
		{"unknown ledger", func(c *AppConfig) { c.Ledger.Type = "s3" }, "ledger.type"},
		{"jsonfile without path", func(c *AppConfig) { c.Ledger.Path = " " }, "ledger.path"},
		{"non-positive k", func(c *AppConfig) { c.Search.K = -1 }, "search.k"},
		{"bad field weight", func(c *AppConfig) { c.Search.FieldWeights = map[string]float64{"title": 0} }, "field_weights.title"},
		{"negative generation timeout", func(c *AppConfig) { c.Research.GenerationTimeoutSecs = -1 }, "research.generation_timeout_secs"},
		{"bad temperature", func(c *AppConfig) { c.AI.Temperature = 5 }, "Temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestAIConfig_ResolvesAPIKey(t *testing.T) {
	t.Setenv("TEST_SCHOLAR_KEY", "sk-123")
	cfg := Default()
	cfg.AI.APIKeyEnv = "TEST_SCHOLAR_KEY"
	cfg.AI.EmbeddingHost = "http://embed:8080"

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "sk-123", aiCfg.APIKey)
	assert.Equal(t, "http://embed:8080", aiCfg.EmbeddingHost)
	assert.Equal(t, cfg.AI.Dimensions, aiCfg.Dimensions)

	cfg.AI.APIKeyEnv = ""
	assert.Empty(t, cfg.AI.APIKey())
}

func TestOpenSearchPassword(t *testing.T) {
	t.Setenv("TEST_OS_PASSWORD", "hunter2")
	osc := &OpenSearchConfig{PasswordEnv: "TEST_OS_PASSWORD"}
	assert.Equal(t, "hunter2", osc.Password())
	assert.Empty(t, (&OpenSearchConfig{}).Password())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_SCHOLAR_FROM_FILE=loaded\nTEST_SCHOLAR_PRESET=file\n"), 0600))

	t.Setenv("TEST_SCHOLAR_PRESET", "process")
	t.Setenv("TEST_SCHOLAR_FROM_FILE", "")
	os.Unsetenv("TEST_SCHOLAR_FROM_FILE")

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("TEST_SCHOLAR_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("TEST_SCHOLAR_PRESET"), "existing variables win")
}
