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


// Package research answers questions over the indexed corpus.
//
// An Orchestrator runs one query at a time through a fixed sequence:
//
//  1. retrieve the top k documents with a search.Searcher
//  2. format them into a citation-annotated context block
//  3. ask the Generator for an answer
//  4. resolve the citation markers in the answer against the retrieved documents
//  5. append the turn to conversation memory and record every resolved
//     citation in the ledger
//  6. ask the Generator for related questions, falling back to templates
//
// A failed generation in step 3 ends the query. The returned Answer then
// carries an error payload and the error wraps ErrGenerationFailed. Failures
// in steps 5 and 6 are logged and surfaced as warnings only.
//
// Example:
//
//	orch, err := research.NewOrchestrator(searcher, provider.Generator(), ledger,
//		research.WithMemory(research.NewMemory(10)),
//	)
//	if err != nil {
//		return err
//	}
//	answer, err := orch.ProcessQuery(ctx, "how does self-attention scale?")
package research
