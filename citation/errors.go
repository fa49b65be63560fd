package citation

import "errors"

var (
	// ErrStoreRequired is returned when a ledger store is not provided.
	ErrStoreRequired = errors.New("ledger store required")

	// ErrPersistence is returned when the registry could not be saved. The
	// in-memory registry is left as it was before the failed call.
	ErrPersistence = errors.New("citation ledger persistence failed")

	// ErrUnsupportedFormat is returned for an unknown export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
