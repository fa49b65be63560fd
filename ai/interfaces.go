package ai

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable indicates the embedding service failed or
	// could not be reached.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the text generation service failed
	// or could not be reached.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

// Embedder generates vector embeddings from text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces free text from a prompt. Its output is opaque to callers.
type Generator interface {
	// Generate returns the model's completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the text generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
