package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/scholar/ai"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/storage"
)

// DefaultK is the number of results returned when k is not positive.
const DefaultK = 10

const defaultTimeout = 10 * time.Second

// DefaultFieldWeights returns the searched fields and their boosts: title
// highest, abstract and key concepts high, body text at base weight.
func DefaultFieldWeights() []storage.FieldWeight {
	return []storage.FieldWeight{
		{Field: "title", Boost: 3},
		{Field: "abstract", Boost: 2},
		{Field: "key_concepts", Boost: 2},
		{Field: "content", Boost: 1},
		{Field: "transcript", Boost: 1},
		{Field: "diagram_descriptions", Boost: 1},
	}
}

// Searcher runs hybrid lexical and semantic queries.
type Searcher struct {
	store    storage.DocumentStore
	embedder ai.Embedder
	fields   []storage.FieldWeight
	fuzzy    bool
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithFieldWeights replaces the default field weights.
func WithFieldWeights(fields []storage.FieldWeight) Option {
	return func(s *Searcher) error {
		if len(fields) == 0 {
			return ErrNoFields
		}
		for _, f := range fields {
			if strings.TrimSpace(f.Field) == "" || f.Boost <= 0 {
				return fmt.Errorf("invalid field weight %q^%v", f.Field, f.Boost)
			}
		}
		s.fields = append([]storage.FieldWeight(nil), fields...)
		return nil
	}
}

// WithFuzzy toggles approximate term matching. Default is on.
func WithFuzzy(enabled bool) Option {
	return func(s *Searcher) error {
		s.fuzzy = enabled
		return nil
	}
}

// WithTimeout bounds each backend call. Default is 10s.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Searcher) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		s.timeout = timeout
		return nil
	}
}

// WithMetrics records search outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher. A nil embedder disables vector
// scoring and every query is lexical.
func NewSearcher(store storage.DocumentStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	s := &Searcher{
		store:    store,
		embedder: embedder,
		fields:   DefaultFieldWeights(),
		fuzzy:    true,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to k documents matching query by descending score. It
// never fails: an unreachable backend yields an empty result.
func (s *Searcher) Search(ctx context.Context, query string, k int) []*core.SearchResult {
	return s.SearchWithMonitor(ctx, query, k, nil)
}

// SearchWithMonitor searches like Search and reports each stage to monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, k int, monitor SearchMonitor) []*core.SearchResult {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if k <= 0 {
		k = DefaultK
	}
	start := time.Now()
	monitor.Start(query, k)

	results := []*core.SearchResult{}
	if strings.TrimSpace(query) == "" {
		monitor.Finish(results)
		return results
	}

	req := &storage.SearchRequest{
		Query:  query,
		K:      k,
		Fields: s.fields,
		Fuzzy:  s.fuzzy,
	}

	outcome := metrics.SearchOK
	if s.embedder != nil {
		vector, err := s.embedQuery(ctx, query)
		if err != nil {
			s.logger.Warn("query embedding unavailable, using lexical scoring", "err", err)
			monitor.LexicalFallback(err)
			outcome = metrics.SearchFallback
		} else {
			req.Vector = vector
			monitor.QueryEmbedded(vector)
		}
	}

	hits, err := s.query(ctx, req)
	if err != nil && req.Vector != nil && errors.Is(err, storage.ErrVectorUnsupported) {
		s.logger.Warn("backend cannot score vectors, using lexical scoring", "err", err)
		monitor.LexicalFallback(err)
		outcome = metrics.SearchFallback
		req.Vector = nil
		hits, err = s.query(ctx, req)
	}

	if err != nil {
		if errors.Is(err, storage.ErrBackendUnavailable) {
			s.logger.Warn("search backend unavailable, returning no results", "query", query, "err", err)
			monitor.BackendUnavailable(err)
			outcome = metrics.SearchUnavailable
		} else {
			s.logger.Error("search failed, returning no results", "query", query, "err", err)
			outcome = metrics.SearchError
		}
		s.metrics.RecordSearch(outcome, 0, time.Since(start))
		monitor.Finish(results)
		return results
	}

	for _, hit := range hits {
		if hit == nil || hit.Source == nil {
			continue
		}
		if len(results) == k {
			break
		}
		if titleCoversQuery(hit.Source.Title, query) {
			monitor.VerbatimHit(hit)
		}
		results = append(results, hit)
	}

	s.logger.Debug("search complete", "query", query, "results", len(results), "duration", time.Since(start))
	s.metrics.RecordSearch(outcome, len(results), time.Since(start))
	monitor.Finish(results)
	return results
}

func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vector, err := s.embedder.EmbedText(callCtx, query)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ai.ErrEmbeddingUnavailable)
	}
	return vector, nil
}

// query runs req with the configured timeout. A timeout counts as the
// backend being unavailable.
func (s *Searcher) query(ctx context.Context, req *storage.SearchRequest) ([]*core.SearchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	hits, err := s.store.Search(callCtx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, storage.ErrBackendUnavailable) {
		err = fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, err)
	}
	return hits, err
}
