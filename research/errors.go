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


package research

import "errors"

var (
	// ErrSearcherRequired is returned when no retriever is supplied.
	ErrSearcherRequired = errors.New("searcher is required")

	// ErrGeneratorRequired is returned when no generator is supplied.
	ErrGeneratorRequired = errors.New("generator is required")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrGenerationFailed wraps the generator error that ended a query.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrNoRelatedQueries is returned when a related-question response
	// contains no usable questions.
	ErrNoRelatedQueries = errors.New("no related queries in response")
)
