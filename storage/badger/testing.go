// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

// NewMemoryStore creates an in-memory document store for testing.
// Closing the store closes its backend.
func NewMemoryStore(opts ...StoreOption) (*Store, error) {
	backend, err := OpenBackend("", true, nil)
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

// NewMemoryStores creates an in-memory document store and ledger store
// sharing one backend. Caller must close the backend when done.
func NewMemoryStores(opts ...StoreOption) (*Store, *LedgerStore, *Backend, error) {
	backend, err := OpenBackend("", true, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := NewStoreWithBackend(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}
	return store, NewLedgerStore(backend), backend, nil
}
