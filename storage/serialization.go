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


package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/scholar/core"
)

// MarshalDocument serializes a Document using the index schema field names.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocument deserializes a Document.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalRegistry serializes the citation registry as indented JSON.
func MarshalRegistry(registry *core.Registry) ([]byte, error) {
	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRegistry deserializes the citation registry. Missing buckets are
// replaced with empty ones.
func UnmarshalRegistry(data []byte) (*core.Registry, error) {
	var registry core.Registry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRegistry, err)
	}
	registry.Normalize()
	return &registry, nil
}
