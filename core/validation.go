package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ContentType must be paper, video or podcast
//   - Title must not be blank
//
// NOT validated:
//   - Abstract, Content, Transcript (a title-only document is indexable)
//   - Embedding (always recomputed by the indexer)
//   - URL (used for identity but not required to be unique)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if !doc.ContentType.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidContentType, doc.ContentType)
	}

	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyTitle)
	}

	return nil
}

// ValidateCitationSource validates a source before it enters the ledger.
func ValidateCitationSource(src CitationSource) error {
	if !src.ContentType.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidCitation, ErrInvalidContentType, src.ContentType)
	}
	if strings.TrimSpace(src.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCitation, ErrEmptyTitle)
	}
	return nil
}
