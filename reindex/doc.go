// Package reindex rebuilds the embeddings of every stored document, for
// example after switching embedding models.
//
// Documents are read through a storage.DocumentScanner and written back in
// batches through an indexing.Indexer, which recomputes each embedding from
// the document's canonical text. Batches that fail because the store or the
// embedding service is unreachable are retried with exponential backoff;
// documents the store rejects are counted and skipped.
package reindex
