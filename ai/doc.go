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


// Package ai provides abstractions for the AI services scholar consumes.
//
// Two capabilities are treated as external collaborators:
//
//   - Embedder: maps text to a fixed-dimension dense vector
//   - Generator: turns a prompt into free text
//
// AIProvider bundles both for convenient initialization.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, vLLM, OpenAI) via langchaingo
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "attention mechanisms")
//	answer, err := provider.Generator().Generate(ctx, prompt)
package ai
