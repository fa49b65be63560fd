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


// Package scholar wires the research assistant together from an
// application config: the document store, the citation ledger, the
// collection tracker and the AI provider.
package scholar

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/poiesic/scholar/ai"
	"github.com/poiesic/scholar/ai/openai"
	"github.com/poiesic/scholar/citation"
	"github.com/poiesic/scholar/config"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/indexing"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/reindex"
	"github.com/poiesic/scholar/research"
	"github.com/poiesic/scholar/search"
	"github.com/poiesic/scholar/server"
	"github.com/poiesic/scholar/storage"
	"github.com/poiesic/scholar/storage/badger"
	"github.com/poiesic/scholar/storage/jsonfile"
	"github.com/poiesic/scholar/storage/opensearch"
	"github.com/poiesic/scholar/storage/sqlite"
	"github.com/poiesic/scholar/watch"
)

// ErrScanUnsupported is returned when the configured document store cannot
// enumerate its documents.
var ErrScanUnsupported = errors.New("document store does not support scanning")

var _ watch.Sink = (*Assistant)(nil)

// Assistant owns the long-lived components of the research assistant.
type Assistant struct {
	cfg         *config.AppConfig
	backend     *badger.Backend
	store       storage.DocumentStore
	ledgerStore storage.LedgerStore
	ledger      *citation.Ledger
	collections *sqlite.Store
	provider    ai.AIProvider
	ownProvider bool
	indexer     *indexing.Indexer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures an Assistant.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// WithProvider supplies the AI provider instead of building one from the
// config. The caller keeps ownership of it.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithMetrics records metrics from every component on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open validates cfg and opens every component. An unreachable document
// store is logged and does not fail Open.
func Open(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Assistant, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	a := &Assistant{
		cfg:     cfg,
		metrics: o.metrics,
		logger:  o.logger.With("component", "assistant"),
	}
	if err := a.open(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Assistant) open(ctx context.Context, o *options) error {
	cfg := a.cfg

	if cfg.Store.Type == config.StoreBadger || cfg.Ledger.Type == config.LedgerBadger {
		backend, err := badger.OpenBackend(filepath.Join(cfg.DataDir, "documents"), false, o.logger)
		if err != nil {
			return fmt.Errorf("opening badger: %w", err)
		}
		a.backend = backend
	}

	store, err := a.openStore(o.logger)
	if err != nil {
		return err
	}
	a.store = store
	if err := store.EnsureSchema(ctx); err != nil {
		if !errors.Is(err, storage.ErrBackendUnavailable) {
			return fmt.Errorf("preparing document store: %w", err)
		}
		a.logger.Warn("document store unavailable, schema not checked", "err", err)
	}

	switch cfg.Ledger.Type {
	case config.LedgerBadger:
		a.ledgerStore = badger.NewLedgerStore(a.backend)
	default:
		ls, err := jsonfile.NewLedgerStore(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		a.ledgerStore = ls
	}
	a.ledger, err = citation.NewLedger(ctx, a.ledgerStore,
		citation.WithMetrics(a.metrics),
		citation.WithLogger(o.logger))
	if err != nil {
		return err
	}

	a.collections, err = sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening collections: %w", err)
	}

	a.provider = o.provider
	if a.provider == nil {
		a.provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			return fmt.Errorf("creating AI provider: %w", err)
		}
		a.ownProvider = true
	}

	a.indexer, err = a.NewIndexer()
	return err
}

func (a *Assistant) openStore(logger *slog.Logger) (storage.DocumentStore, error) {
	cfg := a.cfg
	if cfg.Store.Type == config.StoreOpenSearch {
		osc := cfg.Store.OpenSearch
		opts := []opensearch.Option{
			opensearch.WithIndex(osc.Index),
			opensearch.WithDimensions(cfg.AI.Dimensions),
			opensearch.WithTimeout(config.Seconds(osc.TimeoutSecs)),
			opensearch.WithRefresh(osc.Refresh),
			opensearch.WithLogger(logger),
		}
		if osc.Username != "" {
			opts = append(opts, opensearch.WithBasicAuth(osc.Username, osc.Password()))
		}
		store, err := opensearch.NewStore(osc.Addresses, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening opensearch: %w", err)
		}
		return store, nil
	}

	store, err := badger.NewStoreWithBackend(a.backend,
		badger.WithDimensions(cfg.AI.Dimensions),
		badger.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	return store, nil
}

// Close releases every component, returning the joined errors.
func (a *Assistant) Close() error {
	var errs []error
	if a.indexer != nil {
		a.indexer.Release()
	}
	if a.provider != nil && a.ownProvider {
		if err := a.provider.Close(); err != nil {
			a.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if a.collections != nil {
		if err := a.collections.Close(); err != nil {
			a.logger.Error("error closing collections", "err", err)
			errs = append(errs, err)
		}
	}
	if a.ledgerStore != nil {
		if err := a.ledgerStore.Close(); err != nil {
			a.logger.Error("error closing ledger store", "err", err)
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing document store", "err", err)
			errs = append(errs, err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Assistant) Config() *config.AppConfig {
	return a.cfg
}

func (a *Assistant) Store() storage.DocumentStore {
	return a.store
}

func (a *Assistant) Ledger() *citation.Ledger {
	return a.ledger
}

func (a *Assistant) Collections() storage.CollectionStore {
	return a.collections
}

func (a *Assistant) Provider() ai.AIProvider {
	return a.provider
}

// Indexer returns the shared indexer used by IndexDocuments.
func (a *Assistant) Indexer() *indexing.Indexer {
	return a.indexer
}

// NewIndexer creates an indexer configured from the config. opts are
// applied after the configured ones. The caller must Release it.
func (a *Assistant) NewIndexer(opts ...indexing.Option) (*indexing.Indexer, error) {
	ic := a.cfg.Indexing
	base := []indexing.Option{
		indexing.WithMaxRetries(ic.MaxRetries),
		indexing.WithTimeout(config.Seconds(ic.TimeoutSecs)),
		indexing.WithMetrics(a.metrics),
		indexing.WithLogger(a.logger),
	}
	if ic.PoolSize > 0 {
		base = append(base, indexing.WithPoolSize(ic.PoolSize))
	}
	return indexing.NewIndexer(a.store, a.provider.Embedder(), append(base, opts...)...)
}

// NewSearcher creates a searcher configured from the config.
func (a *Assistant) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	sc := a.cfg.Search
	base := []search.Option{
		search.WithTimeout(config.Seconds(sc.TimeoutSecs)),
		search.WithMetrics(a.metrics),
		search.WithLogger(a.logger),
	}
	if sc.Fuzzy != nil {
		base = append(base, search.WithFuzzy(*sc.Fuzzy))
	}
	if len(sc.FieldWeights) > 0 {
		base = append(base, search.WithFieldWeights(fieldWeights(sc.FieldWeights)))
	}
	return search.NewSearcher(a.store, a.provider.Embedder(), append(base, opts...)...)
}

// NewOrchestrator creates an orchestrator over a new searcher, recording
// citations in the ledger.
func (a *Assistant) NewOrchestrator(opts ...research.Option) (*research.Orchestrator, error) {
	searcher, err := a.NewSearcher()
	if err != nil {
		return nil, err
	}
	rc := a.cfg.Research
	var memory *research.Memory
	if rc.MemoryTurns > 0 {
		memory = research.NewMemory(rc.MemoryTurns)
	}
	extractor := citation.NewExtractor(
		citation.WithMatcher(citation.SubstringMatcher{IgnoreCase: rc.CitationIgnoreCase}),
		citation.WithExtractorLogger(a.logger),
	)
	base := []research.Option{
		research.WithK(a.cfg.Search.K),
		research.WithRelatedCount(rc.RelatedCount),
		research.WithMemory(memory),
		research.WithExtractor(extractor),
		research.WithMetrics(a.metrics),
		research.WithLogger(a.logger),
	}
	if rc.GenerationTimeoutSecs > 0 {
		base = append(base, research.WithGenerationTimeout(config.Seconds(rc.GenerationTimeoutSecs)))
	}
	return research.NewOrchestrator(searcher, a.provider.Generator(), a.ledger, append(base, opts...)...)
}

// ReindexConfig returns reindex settings taken from the indexing config.
func (a *Assistant) ReindexConfig() *reindex.Config {
	cfg := reindex.DefaultConfig()
	cfg.BatchSize = a.cfg.Indexing.BatchSize
	cfg.MaxRetries = a.cfg.Indexing.MaxRetries
	return cfg
}

// NewReindexer creates a reindexer over the document store using indexer.
// A nil cfg uses ReindexConfig. Returns ErrScanUnsupported if the store
// cannot enumerate documents.
func (a *Assistant) NewReindexer(indexer reindex.BulkIndexer, cfg *reindex.Config, progress io.Writer) (*reindex.Reindexer, error) {
	scanner, ok := a.store.(storage.DocumentScanner)
	if !ok {
		return nil, ErrScanUnsupported
	}
	if cfg == nil {
		cfg = a.ReindexConfig()
	}
	return reindex.NewReindexer(scanner, indexer, cfg, progress)
}

// NewServer creates the HTTP API over a new orchestrator. Conversation
// memory is off because the orchestrator is shared by every client.
func (a *Assistant) NewServer(opts ...server.Option) (*server.Server, error) {
	orch, err := a.NewOrchestrator(research.WithMemory(nil))
	if err != nil {
		return nil, err
	}
	searcher, err := a.NewSearcher()
	if err != nil {
		return nil, err
	}
	base := []server.Option{
		server.WithAddr(a.cfg.Server.Addr),
		server.WithShutdownTimeout(config.Seconds(a.cfg.Server.ShutdownTimeoutSecs)),
		server.WithCollections(a.collections),
		server.WithMetrics(a.metrics),
		server.WithLogger(a.logger),
	}
	return server.NewServer(searcher, orch, a.ledger, append(base, opts...)...)
}

// IndexDocuments records docs in the collection tracker, indexes them, and
// marks the ones written as indexed. source names where the documents came
// from. Tracker failures are logged and do not fail the call.
func (a *Assistant) IndexDocuments(ctx context.Context, docs []*core.Document, source string) (*indexing.BulkResult, error) {
	ids := make([]int64, len(docs))
	for i, doc := range docs {
		if core.ValidateDocument(doc) != nil {
			continue
		}
		id, err := a.collections.AddCollection(ctx, &storage.Collection{
			DocumentID:  core.DocumentID(doc),
			ContentType: doc.ContentType,
			Title:       doc.Title,
			Source:      source,
			URL:         doc.URL,
			Metadata:    doc.Metadata,
		})
		if err != nil {
			a.logger.Warn("failed to track collected document", "title", doc.Title, "err", err)
			continue
		}
		ids[i] = id
	}

	result, err := a.indexer.IndexBulk(ctx, docs)
	if err != nil {
		return result, err
	}

	var indexed []int64
	for _, i := range result.SucceededIndexes() {
		if ids[i] != 0 {
			indexed = append(indexed, ids[i])
		}
	}
	if err := a.collections.MarkIndexed(ctx, indexed...); err != nil {
		a.logger.Warn("failed to mark documents indexed", "count", len(indexed), "err", err)
	}
	return result, nil
}

// fieldWeights orders configured boosts from highest to lowest, then by
// field name.
func fieldWeights(m map[string]float64) []storage.FieldWeight {
	out := make([]storage.FieldWeight, 0, len(m))
	for field, boost := range m {
		out = append(out, storage.FieldWeight{Field: field, Boost: boost})
	}
	slices.SortFunc(out, func(x, y storage.FieldWeight) int {
		if c := cmp.Compare(y.Boost, x.Boost); c != 0 {
			return c
		}
		return cmp.Compare(x.Field, y.Field)
	})
	return out
}
