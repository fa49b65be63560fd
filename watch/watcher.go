package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/indexing"
)

const defaultDebounce = 500 * time.Millisecond

// ErrSinkRequired is returned when no sink is supplied.
var ErrSinkRequired = errors.New("document sink is required")

// Sink indexes the documents loaded from one file. source names the file.
type Sink interface {
	IndexDocuments(ctx context.Context, docs []*core.Document, source string) (*indexing.BulkResult, error)
}

// FileResult reports one processed file.
type FileResult struct {
	Path      string
	Documents int
	Result    *indexing.BulkResult
	Err       error
}

// Watcher feeds document files created or rewritten in a directory to a Sink.
type Watcher struct {
	dir             string
	sink            Sink
	debounce        time.Duration
	processExisting bool
	onProcessed     func(FileResult)
	logger          *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is read.
// Default is 500ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithProcessExisting indexes files already in the directory when Run starts.
func WithProcessExisting(enabled bool) Option {
	return func(w *Watcher) {
		w.processExisting = enabled
	}
}

// WithOnProcessed registers a callback invoked after each file.
func WithOnProcessed(fn func(FileResult)) Option {
	return func(w *Watcher) {
		w.onProcessed = fn
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
	}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, sink Sink, opts ...Option) (*Watcher, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w := &Watcher{
		dir:      dir,
		sink:     sink,
		debounce: defaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watcher", "dir", dir)
	return w, nil
}

// Run watches the directory until ctx is cancelled. Files are processed one
// at a time; a file that fails to load or index is reported and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for document files")

	if w.processExisting {
		if err := w.processDir(ctx); err != nil {
			return err
		}
	}

	ready := make(chan string, 64)
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[path] = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !Supported(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				schedule(event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		case path := <-ready:
			w.ProcessFile(ctx, path)
		}
	}
}

// processDir processes the supported files already present, in name order.
func (w *Watcher) processDir(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		w.ProcessFile(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

// ProcessFile loads and indexes one file.
func (w *Watcher) ProcessFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}
	defer func() {
		if w.onProcessed != nil {
			w.onProcessed(res)
		}
	}()

	docs, err := LoadDocuments(path)
	if err != nil {
		w.logger.Warn("could not load document file", "path", path, "err", err)
		res.Err = err
		return res
	}
	res.Documents = len(docs)
	if len(docs) == 0 {
		return res
	}

	result, err := w.sink.IndexDocuments(ctx, docs, filepath.Base(path))
	res.Result = result
	if err != nil {
		w.logger.Error("indexing document file failed", "path", path, "err", err)
		res.Err = err
		return res
	}

	w.logger.Info("indexed document file", "path", path,
		"succeeded", result.Succeeded, "failed", result.Failed)
	return res
}
