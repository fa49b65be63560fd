// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads the application configuration from YAML.
//
// A missing file yields the defaults, so a fresh install works against a
// local Ollama and an embedded badger store with no configuration at all.
// Secrets are never stored in the file: api_key_env and password_env name
// environment variables, which may be populated from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/scholar/ai"
)

// Store backends.
const (
	StoreBadger     = "badger"
	StoreOpenSearch = "opensearch"
)

// Ledger backends.
const (
	LedgerJSONFile = "jsonfile"
	LedgerBadger   = "badger"
)

// AIConfig configures the embedding and generation services.
type AIConfig struct {
	EmbeddingHost   string  `yaml:"embedding_host"`
	GenerationHost  string  `yaml:"generation_host"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	GenerationModel string  `yaml:"generation_model"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	Dimensions      int     `yaml:"dimensions"`
	Temperature     float64 `yaml:"temperature"`
}

// OpenSearchConfig holds connection details for an OpenSearch cluster.
type OpenSearchConfig struct {
	Addresses   []string `yaml:"addresses"`
	Index       string   `yaml:"index"`
	Username    string   `yaml:"username,omitempty"`
	PasswordEnv string   `yaml:"password_env,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Refresh     bool     `yaml:"refresh"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Type       string            `yaml:"type"`
	OpenSearch *OpenSearchConfig `yaml:"opensearch,omitempty"`
}

// LedgerConfig selects where the citation registry is persisted. Path is
// the registry file for the jsonfile backend.
type LedgerConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// IndexingConfig tunes the document indexer.
type IndexingConfig struct {
	PoolSize    int `yaml:"pool_size"`
	MaxRetries  int `yaml:"max_retries"`
	TimeoutSecs int `yaml:"timeout_secs"`
	BatchSize   int `yaml:"batch_size"`
}

// SearchConfig tunes hybrid search. FieldWeights replaces the default
// field boosts when set.
type SearchConfig struct {
	K            int                `yaml:"k"`
	Fuzzy        *bool              `yaml:"fuzzy,omitempty"`
	TimeoutSecs  int                `yaml:"timeout_secs"`
	FieldWeights map[string]float64 `yaml:"field_weights,omitempty"`
}

// ResearchConfig tunes the query orchestrator.
type ResearchConfig struct {
	RelatedCount          int `yaml:"related_count"`
	MemoryTurns           int `yaml:"memory_turns"`
	GenerationTimeoutSecs int `yaml:"generation_timeout_secs"`
	// CitationIgnoreCase matches citation markers to sources without
	// regard to case.
	CitationIgnoreCase bool `yaml:"citation_ignore_case"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir  string         `yaml:"data_dir"`
	AI       AIConfig       `yaml:"ai"`
	Store    StoreConfig    `yaml:"store"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Indexing IndexingConfig `yaml:"indexing"`
	Search   SearchConfig   `yaml:"search"`
	Research ResearchConfig `yaml:"research"`
	Server   ServerConfig   `yaml:"server"`
}

// Load reads a config from path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./scholar.yaml first, then ~/.config/scholar/config.yaml.
// Returns defaults and an empty path when neither exists.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "scholar.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultPath()
	if err != nil {
		return Default(), "", nil
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return Default(), "", nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments ./.env is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// DefaultPath returns ~/.config/scholar/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "scholar", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scholar"
	}
	return filepath.Join(home, ".local", "share", "scholar")
}

func applyDefaults(cfg *AppConfig) {
	aiDefaults := ai.DefaultConfig()

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}

	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if cfg.AI.GenerationHost == "" {
		cfg.AI.GenerationHost = aiDefaults.GenerationHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = aiDefaults.EmbeddingModel
	}
	if cfg.AI.GenerationModel == "" {
		cfg.AI.GenerationModel = aiDefaults.GenerationModel
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = "SCHOLAR_API_KEY"
	}
	if cfg.AI.Dimensions == 0 {
		cfg.AI.Dimensions = aiDefaults.Dimensions
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = aiDefaults.Temperature
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreBadger
	}
	if cfg.Store.Type == StoreOpenSearch {
		if cfg.Store.OpenSearch == nil {
			cfg.Store.OpenSearch = &OpenSearchConfig{}
		}
		osc := cfg.Store.OpenSearch
		if len(osc.Addresses) == 0 {
			osc.Addresses = []string{"http://localhost:9200"}
		}
		if osc.Index == "" {
			osc.Index = "research_assistant"
		}
		if osc.TimeoutSecs == 0 {
			osc.TimeoutSecs = 30
		}
	}

	if cfg.Ledger.Type == "" {
		cfg.Ledger.Type = LedgerJSONFile
	}
	if cfg.Ledger.Type == LedgerJSONFile && cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(cfg.DataDir, "citations.json")
	}

	if cfg.Indexing.MaxRetries == 0 {
		cfg.Indexing.MaxRetries = 3
	}
	if cfg.Indexing.TimeoutSecs == 0 {
		cfg.Indexing.TimeoutSecs = 30
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 100
	}

	if cfg.Search.K == 0 {
		cfg.Search.K = 10
	}
	if cfg.Search.TimeoutSecs == 0 {
		cfg.Search.TimeoutSecs = 10
	}
	if cfg.Search.Fuzzy == nil {
		fuzzy := true
		cfg.Search.Fuzzy = &fuzzy
	}

	if cfg.Research.RelatedCount == 0 {
		cfg.Research.RelatedCount = 5
	}
	if cfg.Research.MemoryTurns == 0 {
		cfg.Research.MemoryTurns = 10
	}
	if cfg.Research.GenerationTimeoutSecs == 0 {
		cfg.Research.GenerationTimeoutSecs = 120
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
}

// Validate checks backend selections and numeric ranges.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Store.Type {
	case StoreBadger, StoreOpenSearch:
	default:
		errs = append(errs, fmt.Errorf("store.type must be %q or %q, got %q", StoreBadger, StoreOpenSearch, c.Store.Type))
	}
	switch c.Ledger.Type {
	case LedgerJSONFile:
		if strings.TrimSpace(c.Ledger.Path) == "" {
			errs = append(errs, errors.New("ledger.path is required for the jsonfile ledger"))
		}
	case LedgerBadger:
	default:
		errs = append(errs, fmt.Errorf("ledger.type must be %q or %q, got %q", LedgerJSONFile, LedgerBadger, c.Ledger.Type))
	}
	if c.Research.GenerationTimeoutSecs < 0 {
		errs = append(errs, fmt.Errorf("research.generation_timeout_secs must not be negative, got %d", c.Research.GenerationTimeoutSecs))
	}
	if c.Search.K <= 0 {
		errs = append(errs, fmt.Errorf("search.k must be positive, got %d", c.Search.K))
	}
	for field, boost := range c.Search.FieldWeights {
		if boost <= 0 {
			errs = append(errs, fmt.Errorf("search.field_weights.%s must be positive", field))
		}
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// APIKey returns the value of the environment variable named by api_key_env.
func (c *AIConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// AIConfig converts the YAML settings into an ai.Config, resolving the API
// key from the environment.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey()),
		ai.WithDimensions(c.AI.Dimensions),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// Password returns the value of the environment variable named by
// password_env.
func (c *OpenSearchConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Seconds converts a configured number of seconds into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
