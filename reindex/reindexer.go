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


package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/indexing"
	"github.com/poiesic/scholar/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of documents sent in each bulk index
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch while the
	// backend is unavailable
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// BulkIndexer writes a batch of documents, recomputing their embeddings.
type BulkIndexer interface {
	IndexBulk(ctx context.Context, docs []*core.Document) (*indexing.BulkResult, error)
}

var _ BulkIndexer = (*indexing.Indexer)(nil)

// Summary reports a finished run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Reindexer re-embeds every document in a store.
type Reindexer struct {
	scanner  storage.DocumentScanner
	indexer  BulkIndexer
	config   *Config
	progress io.Writer
	iterator *DocumentIterator
	logger   *slog.Logger
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(scanner storage.DocumentScanner, indexer BulkIndexer, config *Config, progress io.Writer) (*Reindexer, error) {
	if scanner == nil {
		return nil, ErrScannerRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		scanner:  scanner,
		indexer:  indexer,
		config:   config,
		progress: progress,
		iterator: NewDocumentIterator(scanner, config.BatchSize),
		logger:   slog.Default().With("component", "reindexer"),
	}, nil
}

// Run re-embeds and rewrites every stored document. A batch that still
// finds the backend unavailable after MaxRetries attempts ends the run;
// the returned Summary covers the batches completed before it.
func (r *Reindexer) Run(ctx context.Context) (*Summary, error) {
	total, err := r.scanner.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	summary := &Summary{Total: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents found in store (0 documents)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(batch []*core.Document) error {
		var result *indexing.BulkResult
		err := indexing.RetryWithBackoff(ctx, func() error {
			var err error
			result, err = r.indexer.IndexBulk(ctx, batch)
			if err != nil && !indexing.IsUnavailable(err) {
				return indexing.Permanent(err)
			}
			return err
		}, r.config.MaxRetries, r.config.RetryDelay)
		if err != nil {
			return fmt.Errorf("reindexing batch: %w", err)
		}

		for _, item := range result.Items {
			if item.Err != nil {
				r.logger.Warn("document not reindexed", "title", batch[item.Index].Title, "err", item.Err)
			}
		}

		summary.Succeeded += result.Succeeded
		summary.Failed += result.Failed
		tracker.Add(result.Succeeded, result.Failed)
		return nil
	})
	summary.Elapsed = tracker.Elapsed()
	if err != nil {
		return summary, err
	}

	tracker.Finish()

	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents (%d failed) in %v\n",
		summary.Succeeded+summary.Failed, summary.Failed, summary.Elapsed.Round(time.Millisecond))

	return summary, nil
}
