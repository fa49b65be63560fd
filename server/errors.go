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


package server

import "errors"

var (
	// ErrRetrieverRequired is returned when no retriever is provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrAnswererRequired is returned when no answerer is provided.
	ErrAnswererRequired = errors.New("answerer required")

	// ErrLedgerRequired is returned when no citation ledger is provided.
	ErrLedgerRequired = errors.New("citation ledger required")
)
