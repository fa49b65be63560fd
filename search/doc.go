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


// Package search provides hybrid lexical and semantic search over indexed
// research documents.
//
// The Searcher issues a weighted multi-field query against a
// storage.DocumentStore:
//   - title carries the most weight, abstract and key concepts less,
//     content, transcript and diagram descriptions the base weight
//   - terms are matched approximately to tolerate minor misspellings
//   - when an embedder is configured, the query vector adds cosine
//     similarity to the lexical score
//
// If the backend cannot score vectors the query is retried lexically. If
// the backend is unreachable the search returns no results; the condition
// is logged, counted and reported to the SearchMonitor so operators can
// tell it apart from an empty match.
package search
