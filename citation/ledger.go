package citation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/storage"
)

// timestampLayout is used for first_used and usage timestamps. The first
// four characters are always the year.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

const (
	defaultMostCited = 5
	defaultRecent    = 10
)

// Ledger is the citation registry with usage tracking. RecordUsage calls
// are serialized, so concurrent callers never lose updates.
type Ledger struct {
	mu        sync.Mutex
	store     storage.LedgerStore
	registry  *core.Registry
	now       func() time.Time
	mostCited int
	recent    int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithReportSizes sets how many most cited entries and recent usage events
// Report returns. Defaults are 5 and 10.
func WithReportSizes(mostCited, recent int) Option {
	return func(l *Ledger) {
		if mostCited > 0 {
			l.mostCited = mostCited
		}
		if recent > 0 {
			l.recent = recent
		}
	}
}

// WithMetrics records ledger activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
	}
}

// NewLedger loads the registry from store. A registry that cannot be read
// is logged and replaced by an empty one; the next successful RecordUsage
// overwrites the unreadable copy.
func NewLedger(ctx context.Context, store storage.LedgerStore, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	l := &Ledger{
		store:     store,
		now:       time.Now,
		mostCited: defaultMostCited,
		recent:    defaultRecent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "citation-ledger")

	registry, err := store.LoadRegistry(ctx)
	if err != nil {
		l.logger.Warn("could not read citation registry, starting empty", "err", err)
		registry = core.NewRegistry()
	}
	registry.Normalize()
	l.registry = registry

	return l, nil
}

// RecordUsage records that src was cited while answering query and
// persists the whole registry before returning. The first use of a source
// creates its entry; every use increments use_count and appends to both the
// entry's queries and the usage history. Returns the citation ID.
//
// If saving fails the error wraps ErrPersistence and the in-memory registry
// is unchanged.
func (l *Ledger) RecordUsage(ctx context.Context, src core.CitationSource, query string) (string, error) {
	if err := core.ValidateCitationSource(src); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := core.CitationID(src.Title, src.URL)
	stamp := l.now().Format(timestampLayout)

	next := l.registry.Clone()
	bucket := next.Bucket(src.ContentType)
	entry, ok := bucket[id]
	if !ok {
		entry = &core.CitationEntry{
			Title:     src.Title,
			Authors:   append([]string{}, src.Authors...),
			URL:       src.URL,
			FirstUsed: stamp,
			UseCount:  0,
			Queries:   []core.UsageRecord{},
		}
		bucket[id] = entry
	}
	entry.UseCount++
	entry.Queries = append(entry.Queries, core.UsageRecord{Query: query, Timestamp: stamp})
	next.UsageHistory = append(next.UsageHistory, core.UsageEvent{
		CitationID:  id,
		ContentType: src.ContentType,
		Query:       query,
		Timestamp:   stamp,
	})

	if err := l.store.SaveRegistry(ctx, next); err != nil {
		l.logger.Error("failed to persist citation registry", "citation_id", id, "err", err)
		l.metrics.RecordCitation(string(src.ContentType), err)
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	l.registry = next

	l.logger.Debug("recorded citation usage", "citation_id", id, "content_type", src.ContentType, "use_count", entry.UseCount)
	l.metrics.RecordCitation(string(src.ContentType), nil)
	return id, nil
}

// RecordMatches records every match under query. It stops at the first
// persistence failure and returns the IDs recorded so far.
func (l *Ledger) RecordMatches(ctx context.Context, matches []core.CitationMatch, query string) ([]string, error) {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		src := core.CitationSource{ContentType: m.ContentType, Title: m.Title, URL: m.URL}
		if m.Source != nil {
			src.Authors = m.Source.Authors
		}
		id, err := l.RecordUsage(ctx, src, query)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Registry returns a deep copy of the current registry.
func (l *Ledger) Registry() *core.Registry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.Clone()
}
