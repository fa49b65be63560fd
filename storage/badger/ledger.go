package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
)

// LedgerStore implements storage.LedgerStore by keeping the whole citation
// registry under a single key.
type LedgerStore struct {
	backend *Backend
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a LedgerStore on a shared backend.
func NewLedgerStore(backend *Backend) *LedgerStore {
	return &LedgerStore{
		backend: backend,
	}
}

// LoadRegistry returns an empty registry if none has been saved.
func (l *LedgerStore) LoadRegistry(ctx context.Context) (*core.Registry, error) {
	if l.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var registry *core.Registry
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		val, err := getValue(tx, []byte(ledgerKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			registry = core.NewRegistry()
			return nil
		}
		if err != nil {
			return err
		}
		registry, err = storage.UnmarshalRegistry(val)
		return err
	}, false)
	return registry, err
}

// SaveRegistry rewrites the registry.
func (l *LedgerStore) SaveRegistry(ctx context.Context, registry *core.Registry) error {
	if l.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	value, err := storage.MarshalRegistry(registry)
	if err != nil {
		return err
	}
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(ledgerKey), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Close is a no-op; the backend owner closes the database.
func (l *LedgerStore) Close() error {
	return nil
}
