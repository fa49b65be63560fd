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


// Package citation links citation markers in generated answers back to the
// documents that justified them and keeps a persistent ledger of how often
// each source has been cited.
//
// The Extractor recognizes three marker shapes:
//
//	[Vaswani, 2017]                  author and year, resolved against papers
//	[Video: Transformer Explained]   resolved against video titles
//	[Podcast: AI Podcast Episode 5]  resolved against podcast titles
//
// Each marker is resolved to the first candidate, in the order supplied,
// that the Matcher accepts. Markers that match nothing are dropped.
//
// The Ledger records every resolved citation keyed by core.CitationID,
// appends to the global usage history, and rewrites the whole registry
// through a storage.LedgerStore before RecordUsage returns. Bibliography
// export covers papers only; videos and podcasts are tracked for reporting.
package citation
