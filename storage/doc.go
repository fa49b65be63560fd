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


// Package storage provides the storage abstraction layer for scholar.
//
// Three narrow interfaces decouple the pipeline from its backends:
//
//   - DocumentStore: the search index (badger or OpenSearch)
//   - LedgerStore: the citation registry (JSON file or badger)
//   - CollectionStore: bookkeeping of collected items (SQLite)
//
// # Usage
//
// Open an embedded document store:
//
//	store, err := badger.NewStore("/path/to/db", badger.WithDimensions(384))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Error Semantics
//
// Unreachable backends are reported with errors wrapping ErrBackendUnavailable,
// so callers can tell "backend down" apart from "no results". Bulk writes
// report per-document outcomes in input order instead of failing the batch.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. All methods accept
// context.Context for cancellation and timeouts.
package storage
