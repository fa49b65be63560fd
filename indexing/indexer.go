package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/scholar/ai"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/storage"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

// ItemResult is the outcome for one document of a bulk index, at the same
// position as the document in the input.
type ItemResult struct {
	Index int
	// ID is the storage key, empty when the document failed validation.
	ID  string
	Err error
}

// BulkResult reports a bulk index. When Unavailable is set nothing was
// written and Succeeded and Failed are both zero.
type BulkResult struct {
	Succeeded   int
	Failed      int
	Unavailable bool
	Items       []ItemResult
}

// SucceededIndexes returns the input positions of the documents written.
func (r *BulkResult) SucceededIndexes() []int {
	var out []int
	for _, item := range r.Items {
		if item.Err == nil {
			out = append(out, item.Index)
		}
	}
	return out
}

// Indexer validates, embeds and writes documents.
type Indexer struct {
	store       storage.DocumentStore
	embedder    ai.Embedder
	pool        *ants.Pool
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if ix.pool != nil {
			ix.pool.Release()
		}
		ix.pool = pool
		return nil
	}
}

// WithTimeout bounds each store call. A call that exceeds it is treated as
// the backend being unavailable. Default is 30s.
func WithTimeout(timeout time.Duration) Option {
	return func(ix *Indexer) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		ix.timeout = timeout
		return nil
	}
}

// WithMaxRetries sets how many times an embedding is attempted. Default is 3.
func WithMaxRetries(attempts int) Option {
	return func(ix *Indexer) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		ix.maxAttempts = attempts
		return nil
	}
}

// WithRetryDelay sets the base backoff delay between embedding attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(ix *Indexer) error {
		ix.retryDelay = delay
		return nil
	}
}

// WithMetrics records index outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Indexer) error {
		ix.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates an indexer writing to store with embeddings from embedder.
func NewIndexer(store storage.DocumentStore, embedder ai.Embedder, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		store:       store,
		embedder:    embedder,
		pool:        pool,
		timeout:     defaultTimeout,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(ix); optErr != nil {
			ix.Release()
			return nil, optErr
		}
	}
	ix.logger = ix.logger.With("component", "indexer")

	return ix, nil
}

// Release releases the worker pool.
// The indexer should not be used after calling Release.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}

// IndexOne validates, embeds and writes a single document. The only field
// of doc that is modified is Embedding.
//
// Errors wrap core.ErrInvalidDocument for malformed input and
// storage.ErrBackendUnavailable when the store or embedding service cannot
// be reached; use IsUnavailable to tell them apart.
func (ix *Indexer) IndexOne(ctx context.Context, doc *core.Document) (*storage.IndexAck, error) {
	start := time.Now()

	if err := core.ValidateDocument(doc); err != nil {
		ix.metrics.RecordIndex(0, 1, false, time.Since(start))
		return nil, err
	}

	vector, err := ix.embed(ctx, doc)
	if err != nil {
		if errors.Is(err, ai.ErrEmbeddingUnavailable) {
			ix.logger.Warn("embedding unavailable, document not indexed", "title", doc.Title, "err", err)
			ix.metrics.RecordIndex(0, 0, true, time.Since(start))
			return nil, fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, err)
		}
		ix.metrics.RecordIndex(0, 1, false, time.Since(start))
		return nil, fmt.Errorf("embedding document: %w", err)
	}
	doc.Embedding = vector

	callCtx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	ack, err := ix.store.IndexDocument(callCtx, doc)
	if err != nil {
		err = ix.classify(err)
		unavailable := IsUnavailable(err)
		if unavailable {
			ix.logger.Warn("document store unavailable", "title", doc.Title, "err", err)
			ix.metrics.RecordIndex(0, 0, true, time.Since(start))
		} else {
			ix.logger.Error("document rejected", "title", doc.Title, "err", err)
			ix.metrics.RecordIndex(0, 1, false, time.Since(start))
		}
		return nil, err
	}

	ix.logger.Debug("indexed document", "id", ack.ID, "result", ack.Result)
	ix.metrics.RecordIndex(1, 0, false, time.Since(start))
	return ack, nil
}

// IndexBulk validates and embeds docs concurrently, then writes every
// embeddable document in a single bulk operation. A single bad document
// never fails the batch. If the store or the embedding service is
// unreachable the returned result is flagged Unavailable, nothing is
// written and the error wraps storage.ErrBackendUnavailable.
func (ix *Indexer) IndexBulk(ctx context.Context, docs []*core.Document) (*BulkResult, error) {
	start := time.Now()
	result := &BulkResult{Items: make([]ItemResult, len(docs))}
	if len(docs) == 0 {
		return result, nil
	}

	unavailable := func(err error) (*BulkResult, error) {
		ix.logger.Warn("backend unavailable, bulk index skipped", "documents", len(docs), "err", err)
		ix.metrics.RecordIndex(0, 0, true, time.Since(start))
		return &BulkResult{Unavailable: true}, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, ix.timeout)
	err := ix.store.Ping(pingCtx)
	cancel()
	if err != nil {
		return unavailable(ix.classify(err))
	}

	pending := make([]int, 0, len(docs))
	for i, doc := range docs {
		result.Items[i].Index = i
		if err := core.ValidateDocument(doc); err != nil {
			result.Items[i].Err = err
			continue
		}
		result.Items[i].ID = core.DocumentID(doc)
		pending = append(pending, i)
	}

	embedErrs := ix.embedAll(ctx, docs, pending)

	toWrite := make([]*core.Document, 0, len(pending))
	positions := make([]int, 0, len(pending))
	embedUnavailable := 0
	for _, i := range pending {
		if err := embedErrs[i]; err != nil {
			result.Items[i].Err = err
			if errors.Is(err, ai.ErrEmbeddingUnavailable) {
				embedUnavailable++
			}
			continue
		}
		toWrite = append(toWrite, docs[i])
		positions = append(positions, i)
	}

	// Every embedding failed because the service is down.
	if len(pending) > 0 && embedUnavailable == len(pending) {
		return unavailable(fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, embedErrs[pending[0]]))
	}

	if len(toWrite) > 0 {
		callCtx, cancel := context.WithTimeout(ctx, ix.timeout)
		items, err := ix.store.BulkIndex(callCtx, toWrite)
		cancel()
		if err != nil {
			err = ix.classify(err)
			if IsUnavailable(err) {
				return unavailable(err)
			}
			for _, i := range positions {
				result.Items[i].Err = err
			}
		} else {
			if len(items) != len(toWrite) {
				return nil, fmt.Errorf("bulk result mismatch. expected %d items, received %d", len(toWrite), len(items))
			}
			for j, item := range items {
				i := positions[j]
				result.Items[i].Err = item.Err
				if item.ID != "" {
					result.Items[i].ID = item.ID
				}
			}
		}
	}

	for _, item := range result.Items {
		if item.Err != nil {
			result.Failed++
			ix.logger.Debug("document not indexed", "index", item.Index, "err", item.Err)
		} else {
			result.Succeeded++
		}
	}

	ix.logger.Info("bulk index complete", "succeeded", result.Succeeded, "failed", result.Failed,
		"duration", time.Since(start))
	ix.metrics.RecordIndex(result.Succeeded, result.Failed, false, time.Since(start))
	return result, nil
}

// embedAll embeds the documents at positions on the worker pool, setting
// each document's Embedding. The returned slice is indexed like docs.
func (ix *Indexer) embedAll(ctx context.Context, docs []*core.Document, positions []int) []error {
	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	for _, i := range positions {
		doc := docs[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			vector, err := ix.embed(ctx, doc)
			if err != nil {
				errs[i] = err
				return
			}
			doc.Embedding = vector
		}
		if err := ix.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submitting embedding task: %w", err)
		}
	}
	wg.Wait()
	return errs
}

// embed computes the embedding for doc's canonical text with retries. Each
// attempt is bounded by the indexer timeout.
func (ix *Indexer) embed(ctx context.Context, doc *core.Document) ([]float32, error) {
	text := core.CanonicalText(doc)
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, ix.timeout)
		defer cancel()
		v, err := ix.embedder.EmbedText(callCtx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return fmt.Errorf("%w: empty embedding", ai.ErrEmbeddingUnavailable)
		}
		vector = v
		return nil
	}, ix.maxAttempts, ix.retryDelay)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ai.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}
	return vector, nil
}

// classify maps timeouts to storage.ErrBackendUnavailable.
func (ix *Indexer) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, storage.ErrBackendUnavailable) {
		return fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, err)
	}
	return err
}
