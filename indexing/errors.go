package indexing

import (
	"errors"

	"github.com/poiesic/scholar/ai"
	"github.com/poiesic/scholar/storage"
)

var (
	// ErrStoreRequired is returned when a document store is not provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// IsUnavailable reports whether err means the document store or the
// embedding service could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, storage.ErrBackendUnavailable) || errors.Is(err, ai.ErrEmbeddingUnavailable)
}
