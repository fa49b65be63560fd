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


// Package server exposes search, question answering, the citation ledger
// and the collection tracker over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/search?q=&k=
//	POST /api/ask                  {"query": "..."}
//	GET  /api/citations/report
//	GET  /api/citations/export?format=bibtex|apa|json
//	GET  /api/collections?content_type=&limit=&offset=
//	GET  /api/collections/search?q=&limit=
//	GET  /api/collections/{id}
//	GET  /api/statistics
//
// Errors are returned as {"error": "..."} with a matching status code.
package server
