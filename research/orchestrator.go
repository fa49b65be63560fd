package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/scholar/ai"
	"github.com/poiesic/scholar/citation"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/search"
)

const (
	defaultRelatedCount      = 5
	defaultMemoryTurns       = 10
	defaultGenerationTimeout = 2 * time.Minute
)

// Retriever returns the top k documents for a query. Implementations
// report backend failures as an empty result.
type Retriever interface {
	Search(ctx context.Context, query string, k int) []*core.SearchResult
}

// CitationRecorder records resolved citations against the query that
// produced them.
type CitationRecorder interface {
	RecordMatches(ctx context.Context, matches []core.CitationMatch, query string) ([]string, error)
}

var (
	_ Retriever        = (*search.Searcher)(nil)
	_ CitationRecorder = (*citation.Ledger)(nil)
)

// Answer is the outcome of one query.
type Answer struct {
	QueryID         uuid.UUID            `json:"query_id"`
	Query           string               `json:"query"`
	Answer          string               `json:"answer"`
	Citations       []core.CitationMatch `json:"citations"`
	SourceDocuments []*core.SearchResult `json:"source_documents"`
	RelatedQueries  []string             `json:"related_queries"`
	// Error is set when generation failed; Answer then holds a readable
	// failure message rather than model output.
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Orchestrator runs queries through retrieval, generation, citation
// extraction, ledger recording and related-question generation.
type Orchestrator struct {
	retriever    Retriever
	generator    ai.Generator
	recorder     CitationRecorder
	extractor    *citation.Extractor
	memory       *Memory
	k            int
	relatedCount int
	genTimeout   time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithK sets how many documents are retrieved per query. Default is 10.
func WithK(k int) Option {
	return func(o *Orchestrator) error {
		if k <= 0 {
			return fmt.Errorf("k must be positive, got %d", k)
		}
		o.k = k
		return nil
	}
}

// WithRelatedCount sets how many related questions are requested.
// Default is 5.
func WithRelatedCount(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return fmt.Errorf("related count must be positive, got %d", n)
		}
		o.relatedCount = n
		return nil
	}
}

// WithMemory sets the conversation buffer. Passing nil disables memory.
// Default keeps the last 10 turns.
func WithMemory(m *Memory) Option {
	return func(o *Orchestrator) error {
		o.memory = m
		return nil
	}
}

// WithGenerationTimeout bounds each call to the generator. Default is 2m.
func WithGenerationTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) error {
		if timeout <= 0 {
			return fmt.Errorf("generation timeout must be positive, got %s", timeout)
		}
		o.genTimeout = timeout
		return nil
	}
}

// WithExtractor replaces the default citation extractor.
func WithExtractor(e *citation.Extractor) Option {
	return func(o *Orchestrator) error {
		if e == nil {
			return errors.New("extractor is nil")
		}
		o.extractor = e
		return nil
	}
}

// WithMetrics records generation calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator. recorder may be nil, in which
// case citations are extracted but not recorded.
func NewOrchestrator(retriever Retriever, generator ai.Generator, recorder CitationRecorder, opts ...Option) (*Orchestrator, error) {
	if retriever == nil {
		return nil, ErrSearcherRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	o := &Orchestrator{
		retriever:    retriever,
		generator:    generator,
		recorder:     recorder,
		memory:       NewMemory(defaultMemoryTurns),
		k:            search.DefaultK,
		relatedCount: defaultRelatedCount,
		genTimeout:   defaultGenerationTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.extractor == nil {
		o.extractor = citation.NewExtractor(citation.WithExtractorLogger(o.logger))
	}

	return o, nil
}

// ProcessQuery answers query. The returned Answer is non-nil whenever the
// query is non-empty. If generation fails the Answer carries the error
// payload, the error wraps ErrGenerationFailed, and no citations, memory or
// related queries are produced.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	answer := &Answer{
		QueryID:        uuid.New(),
		Query:          query,
		Citations:      []core.CitationMatch{},
		RelatedQueries: []string{},
	}
	logger := o.logger.With("query_id", answer.QueryID.String())

	results := o.retriever.Search(ctx, query, o.k)
	if results == nil {
		results = []*core.SearchResult{}
	}
	answer.SourceDocuments = results
	logger.Debug("retrieved sources", "count", len(results))

	prompt := buildAnswerPrompt(FormatContext(results), o.memory.String(), query)

	text, err := o.generate(ctx, metrics.GenerationAnswer, prompt)
	if err != nil {
		logger.Error("answer generation failed", "err", err)
		answer.Error = err.Error()
		answer.Answer = "Unable to generate an answer: " + err.Error()
		return answer, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	answer.Answer = text

	answer.Citations = o.extractor.Extract(text, results)
	o.memory.Append(query, text)

	if o.recorder != nil && len(answer.Citations) > 0 {
		if _, err := o.recorder.RecordMatches(ctx, answer.Citations, query); err != nil {
			logger.Error("failed to record citation usage", "err", err)
			answer.Warnings = append(answer.Warnings, "citation usage not recorded: "+err.Error())
		}
	}

	answer.RelatedQueries = o.relatedQueries(ctx, logger, query, text)

	logger.Info("query answered",
		"sources", len(results),
		"citations", len(answer.Citations),
		"related", len(answer.RelatedQueries))
	return answer, nil
}

// generate calls the generator under the generation timeout.
func (o *Orchestrator) generate(ctx context.Context, kind, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.genTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.generator.Generate(ctx, prompt)
	o.metrics.RecordGeneration(kind, err, time.Since(start))
	return text, err
}
