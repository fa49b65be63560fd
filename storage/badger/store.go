package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
)

const schemaKey = "schema:documents:dims"

// Store implements storage.DocumentStore on an embedded BadgerDB. Lexical
// queries are scored with BM25 over the requested fields; vector queries
// add cosine similarity + 1.0 so scores stay positive.
type Store struct {
	backend    *Backend
	ownBackend bool
	dimensions int
	logger     *slog.Logger
}

var (
	_ storage.DocumentStore   = (*Store)(nil)
	_ storage.DocumentScanner = (*Store)(nil)
)

// StoreOption configures a Store.
type StoreOption func(*Store) error

// WithDimensions sets the expected embedding dimension. Vector queries of
// any other length are rejected with storage.ErrVectorUnsupported. Zero
// accepts any length.
func WithDimensions(dims int) StoreOption {
	return func(s *Store) error {
		if dims < 0 {
			return fmt.Errorf("dimensions must be non-negative, got %d", dims)
		}
		s.dimensions = dims
		return nil
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore opens a document store in the directory at path.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	backend, err := OpenBackend(path, false, nil)
	if err != nil {
		return nil, err
	}
	store, err := NewStoreWithBackend(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	store.ownBackend = true
	return store, nil
}

// NewStoreWithBackend creates a document store on a shared backend. The
// caller keeps ownership of the backend.
func NewStoreWithBackend(backend *Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "document-store", "backend", "badger")
	return s, nil
}

// Close closes the underlying backend when the store opened it.
func (s *Store) Close() error {
	if s.ownBackend {
		return s.backend.Close()
	}
	return nil
}

// Ping reports storage.ErrBackendUnavailable once the database is closed.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, err)
	}
	if s.backend.IsClosed() {
		return fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, storage.ErrStorageClosed)
	}
	return nil
}

// EnsureSchema records the embedding dimension the index was created with.
// A dimension change is logged and the new value recorded; stored vectors
// of the old size stop contributing to vector scores until reindexed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		val, err := getValue(tx, []byte(schemaKey))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			existing, _ := strconv.Atoi(string(val))
			if existing == s.dimensions {
				return nil
			}
			s.logger.Warn("embedding dimension changed, reindex required",
				"previous", existing, "current", s.dimensions)
		}
		if err := tx.Set([]byte(schemaKey), []byte(strconv.Itoa(s.dimensions))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// reject mirrors a mapping failure on a search cluster: documents without
// a valid content type or title are refused.
func reject(doc *core.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", storage.ErrDocumentRejected)
	}
	if !doc.ContentType.Valid() {
		return fmt.Errorf("%w: content_type %q", storage.ErrDocumentRejected, doc.ContentType)
	}
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: missing title", storage.ErrDocumentRejected)
	}
	return nil
}

// IndexDocument writes one document, replacing any stored version.
func (s *Store) IndexDocument(ctx context.Context, doc *core.Document) (*storage.IndexAck, error) {
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	if err := reject(doc); err != nil {
		return nil, err
	}

	id := core.DocumentID(doc)
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}

	ack := &storage.IndexAck{ID: id, Result: "created"}
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		if _, err := tx.Get(key); err == nil {
			ack.Result = "updated"
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// BulkIndex writes all acceptable documents in one batch. Rejected
// documents are reported in their slot and do not stop the batch.
func (s *Store) BulkIndex(ctx context.Context, docs []*core.Document) ([]storage.BulkItem, error) {
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}

	items := make([]storage.BulkItem, len(docs))
	wb := s.backend.db.NewWriteBatch()
	defer wb.Cancel()

	for i, doc := range docs {
		if err := reject(doc); err != nil {
			items[i].Err = err
			continue
		}
		items[i].ID = core.DocumentID(doc)
		value, err := storage.MarshalDocument(doc)
		if err != nil {
			items[i].Err = fmt.Errorf("%w: %w", storage.ErrDocumentRejected, err)
			continue
		}
		if err := wb.Set(makeDocumentKey(items[i].ID), value); err != nil {
			return nil, err
		}
	}

	if err := wb.Flush(); err != nil {
		return nil, err
	}
	return items, nil
}

// Search scores every stored document against req.
func (s *Store) Search(ctx context.Context, req *storage.SearchRequest) ([]*core.SearchResult, error) {
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	if req == nil || req.K <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	if len(req.Vector) > 0 && s.dimensions > 0 && len(req.Vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			storage.ErrVectorUnsupported, len(req.Vector), s.dimensions)
	}

	var analyzed []*analyzedDoc
	err := s.ScanDocuments(ctx, func(doc *core.Document) error {
		analyzed = append(analyzed, analyze(doc, req.Fields))
		return nil
	})
	if err != nil {
		return nil, err
	}

	lexical := lexicalScores(analyzed, req.Query, req.Fields, req.Fuzzy)

	var results []*core.SearchResult
	for i, a := range analyzed {
		score := lexical[i]
		matched := score > 0
		if len(req.Vector) > 0 && len(a.doc.Embedding) == len(req.Vector) {
			score += cosineSimilarity(req.Vector, a.doc.Embedding) + 1.0
			matched = true
		}
		if !matched {
			continue
		}
		results = append(results, &core.SearchResult{Score: score, Source: a.doc})
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(results) > req.K {
		results = results[:req.K]
	}
	return results, nil
}

// ScanDocuments iterates stored documents in key order.
func (s *Store) ScanDocuments(ctx context.Context, fn func(doc *core.Document) error) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = documentKeyPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.Ping(ctx); err != nil {
		return 0, err
	}
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = documentKeyPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}
