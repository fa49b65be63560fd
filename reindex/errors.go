package reindex

import "errors"

var (
	// ErrScannerRequired is returned when no document scanner is supplied.
	ErrScannerRequired = errors.New("document scanner is required")

	// ErrIndexerRequired is returned when no indexer is supplied.
	ErrIndexerRequired = errors.New("indexer is required")
)
