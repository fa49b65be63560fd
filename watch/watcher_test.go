package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/indexing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink accepts every valid document.
type recordingSink struct {
	mu      sync.Mutex
	sources []string
	titles  []string
	err     error
}

func (s *recordingSink) IndexDocuments(_ context.Context, docs []*core.Document, source string) (*indexing.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return &indexing.BulkResult{Unavailable: true}, s.err
	}
	s.sources = append(s.sources, source)
	result := &indexing.BulkResult{Items: make([]indexing.ItemResult, len(docs))}
	for i, doc := range docs {
		result.Items[i].Index = i
		if err := core.ValidateDocument(doc); err != nil {
			result.Items[i].Err = err
			result.Failed++
			continue
		}
		s.titles = append(s.titles, doc.Title)
		result.Succeeded++
	}
	return result, nil
}

func (s *recordingSink) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

func TestNewWatcher_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewWatcher(dir, nil)
	assert.ErrorIs(t, err, ErrSinkRequired)

	_, err = NewWatcher(filepath.Join(dir, "missing"), &recordingSink{})
	assert.Error(t, err)

	file := writeFile(t, dir, "a.json", "{}")
	_, err = NewWatcher(file, &recordingSink{})
	assert.Error(t, err)
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	w, err := NewWatcher(dir, sink)
	require.NoError(t, err)

	path := writeFile(t, dir, "batch.jsonl",
		`{"content_type": "paper", "title": "Good"}`+"\n"+
			`{"content_type": "paper", "title": ""}`+"\n")

	res := w.ProcessFile(context.Background(), path)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 1, res.Result.Succeeded)
	assert.Equal(t, 1, res.Result.Failed)
	assert.Equal(t, []string{"batch.jsonl"}, sink.sources)
}

func TestProcessFile_Failures(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	var results []FileResult
	w, err := NewWatcher(dir, sink, WithOnProcessed(func(r FileResult) { results = append(results, r) }))
	require.NoError(t, err)

	res := w.ProcessFile(context.Background(), writeFile(t, dir, "bad.json", "{"))
	assert.Error(t, res.Err)

	sink.err = errors.New("backend unavailable")
	res = w.ProcessFile(context.Background(), writeFile(t, dir, "ok.json", `{"content_type": "paper", "title": "T"}`))
	assert.Error(t, res.Err)
	assert.True(t, res.Result.Unavailable)

	assert.Len(t, results, 2)
}

func TestRun_IndexesNewFiles(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	processed := make(chan FileResult, 8)

	w, err := NewWatcher(dir, sink,
		WithDebounce(20*time.Millisecond),
		WithOnProcessed(func(r FileResult) { processed <- r }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "ignored.txt", "not a document")
	writeFile(t, dir, "drop.json", `{"content_type": "video", "title": "Transformer Explained"}`)

	select {
	case res := <-processed:
		require.NoError(t, res.Err)
		assert.Equal(t, filepath.Join(dir, "drop.json"), res.Path)
		assert.Equal(t, 1, res.Result.Succeeded)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for file to be processed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, []string{"Transformer Explained"}, sink.Titles())
}

func TestRun_ProcessExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"content_type": "paper", "title": "Second"}`)
	writeFile(t, dir, "a.jsonl", `{"content_type": "paper", "title": "First"}`)

	sink := &recordingSink{}
	processed := make(chan FileResult, 8)
	w, err := NewWatcher(dir, sink,
		WithProcessExisting(true),
		WithOnProcessed(func(r FileResult) { processed <- r }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-processed:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for existing files")
		}
	}
	assert.Equal(t, []string{"First", "Second"}, sink.Titles())
}
