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


// Package indexing validates, embeds and writes research documents into a
// storage.DocumentStore.
//
// The Indexer computes every document's embedding from its canonical text
// (title, abstract and the first 1000 characters of content) and never
// trusts an embedding supplied by the caller. Bulk indexing embeds
// documents concurrently on a worker pool and then performs a single bulk
// write, reporting per-document outcomes in input order:
//
//   - A document that fails validation or embedding is counted as failed
//     and never sent to the store.
//   - A document rejected by the store is counted as failed.
//   - If the store (or the embedding service) is unreachable, nothing is
//     written and the result is flagged Unavailable instead.
package indexing
