// Package jsonfile persists the citation registry as a single JSON document
// on disk, the format other tools read as citations.json.
package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
)

// Ensure LedgerStore implements the interface.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// LedgerStore is a file-based implementation of storage.LedgerStore.
// Every save rewrites the whole file through a temporary file and rename,
// so readers never observe a half-written registry.
type LedgerStore struct {
	mu       sync.Mutex
	filePath string
}

// NewLedgerStore creates a store for the registry file at path. The parent
// directory is created if needed; the file itself is created on first save.
func NewLedgerStore(path string) (*LedgerStore, error) {
	if path == "" {
		return nil, errors.New("registry path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return &LedgerStore{filePath: path}, nil
}

// LoadRegistry reads the registry file. A missing file yields an empty registry.
func (s *LedgerStore) LoadRegistry(ctx context.Context) (*core.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.NewRegistry(), nil
		}
		return nil, err
	}
	return storage.UnmarshalRegistry(data)
}

// SaveRegistry atomically replaces the registry file.
func (s *LedgerStore) SaveRegistry(ctx context.Context, registry *core.Registry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := storage.MarshalRegistry(registry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), ".citations-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.filePath)
}

// Close is a no-op; the file is not held open between calls.
func (s *LedgerStore) Close() error {
	return nil
}
