package storage

import (
	"context"
	"time"

	"github.com/poiesic/scholar/core"
)

// FieldWeight is a searchable document field and its relative boost.
type FieldWeight struct {
	Field string
	Boost float64
}

// SearchRequest is a weighted multi-field lexical query with an optional
// query vector for semantic scoring.
type SearchRequest struct {
	// Query is the free-text query.
	Query string
	// K is the maximum number of hits to return.
	K int
	// Fields lists the fields to match and their boosts.
	Fields []FieldWeight
	// Fuzzy enables approximate term matching.
	Fuzzy bool
	// Vector, when set, adds cosine similarity to the lexical score.
	Vector []float32
}

// IndexAck acknowledges a single document write.
type IndexAck struct {
	ID string
	// Result is "created" or "updated".
	Result string
}

// BulkItem is the backend outcome for one document of a bulk write, in
// the order the documents were supplied.
type BulkItem struct {
	ID  string
	Err error
}

// DocumentStore holds research documents and answers lexical and vector
// queries. Implementations must be safe for concurrent use.
type DocumentStore interface {
	// Ping checks that the backend is reachable. Returns an error wrapping
	// ErrBackendUnavailable when it is not.
	Ping(ctx context.Context) error

	// EnsureSchema creates the document index if it does not exist.
	EnsureSchema(ctx context.Context) error

	// IndexDocument writes one document under core.DocumentID, replacing
	// any previous version.
	IndexDocument(ctx context.Context, doc *core.Document) (*IndexAck, error)

	// BulkIndex writes documents in one operation. The returned items line
	// up with docs. A returned error means nothing was written.
	BulkIndex(ctx context.Context, docs []*core.Document) ([]BulkItem, error)

	// Search executes req and returns hits ordered by descending score.
	// Returns ErrVectorUnsupported if req.Vector is set and the backend
	// cannot score vectors.
	Search(ctx context.Context, req *SearchRequest) ([]*core.SearchResult, error)

	// Close releases backend resources.
	Close() error
}

// DocumentScanner is implemented by stores that can enumerate their contents.
type DocumentScanner interface {
	// ScanDocuments calls fn for every stored document. Iteration stops at
	// the first error returned by fn.
	ScanDocuments(ctx context.Context, fn func(doc *core.Document) error) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// LedgerStore persists the citation registry as a single record.
type LedgerStore interface {
	// LoadRegistry reads the registry. An absent store yields an empty
	// registry and no error.
	LoadRegistry(ctx context.Context) (*core.Registry, error)

	// SaveRegistry rewrites the whole registry.
	SaveRegistry(ctx context.Context, registry *core.Registry) error

	// Close releases resources.
	Close() error
}

// Collection is a collected item tracked for indexing bookkeeping.
type Collection struct {
	ID          int64            `json:"id"`
	DocumentID  string           `json:"document_id"`
	ContentType core.ContentType `json:"content_type"`
	Title       string           `json:"title"`
	Source      string           `json:"source"`
	URL         string           `json:"url"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Indexed     bool             `json:"indexed"`
	CreatedAt   time.Time        `json:"created_at"`
	IndexedAt   *time.Time       `json:"indexed_at,omitempty"`
}

// CollectionStats summarizes the collection tracker.
type CollectionStats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type"`
	Indexed    int            `json:"indexed"`
	NotIndexed int            `json:"not_indexed"`
	Recent7d   int            `json:"recent_7_days"`
}

// CollectionStore records collected items and whether they were indexed.
type CollectionStore interface {
	// AddCollection records a collected item and returns its ID. Adding an
	// item with a known DocumentID updates it and clears its indexed flag.
	AddCollection(ctx context.Context, c *Collection) (int64, error)

	// GetCollection returns ErrNotFound if id does not exist.
	GetCollection(ctx context.Context, id int64) (*Collection, error)

	// ListCollections lists items newest first. An empty contentType lists all.
	ListCollections(ctx context.Context, contentType core.ContentType, limit, offset int) ([]*Collection, error)

	// MarkIndexed flags items as indexed.
	MarkIndexed(ctx context.Context, ids ...int64) error

	// SearchCollections matches q against titles and sources.
	SearchCollections(ctx context.Context, q string, limit int) ([]*Collection, error)

	// Statistics summarizes the tracked items.
	Statistics(ctx context.Context) (*CollectionStats, error)

	// Close releases resources.
	Close() error
}
