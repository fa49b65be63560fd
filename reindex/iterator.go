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


package reindex

import (
	"context"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
)

const (
	// DefaultBatchSize is the default number of documents per batch
	DefaultBatchSize = 100
)

// DocumentIterator iterates over all stored documents in batches.
type DocumentIterator struct {
	scanner   storage.DocumentScanner
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch, DefaultBatchSize if <= 0
func NewDocumentIterator(scanner storage.DocumentScanner, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		scanner:   scanner,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of documents. The whole corpus is read
// before the first batch is handed out, so fn may write to the same store.
// Stored embeddings are dropped on read since they are about to be replaced.
// Iteration stops on the first error from fn. Context cancellation is
// checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var docs []*core.Document
	err := it.scanner.ScanDocuments(ctx, func(doc *core.Document) error {
		doc.Embedding = nil
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return err
	}

	for i := 0; i < len(docs); i += it.batchSize {
		end := min(i+it.batchSize, len(docs))

		if err := fn(docs[i:end]); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
