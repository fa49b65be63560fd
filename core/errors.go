package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidContentType indicates an unknown content type value.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrInvalidCitation indicates a citation source failed validation.
	ErrInvalidCitation = errors.New("invalid citation")
)
