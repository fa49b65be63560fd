package watch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/scholar/core"
)

// ErrUnsupportedFile is returned for files that are neither .json nor .jsonl.
var ErrUnsupportedFile = errors.New("unsupported document file")

// maxLineSize bounds a single .jsonl record.
const maxLineSize = 16 * 1024 * 1024

// Supported reports whether path has a document file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		return true
	}
	return false
}

// LoadDocuments reads the documents in a .json or .jsonl file. Embeddings
// present in the file are discarded.
func LoadDocuments(path string) ([]*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var docs []*core.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		docs, err = decodeJSON(data)
	case ".jsonl":
		docs, err = decodeJSONL(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for _, doc := range docs {
		doc.Embedding = nil
	}
	return docs, nil
}

func decodeJSON(data []byte) ([]*core.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []*core.Document{}, nil
	}

	if trimmed[0] == '[' {
		var docs []*core.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
		out := docs[:0]
		for _, doc := range docs {
			if doc != nil {
				out = append(out, doc)
			}
		}
		return out, nil
	}

	var doc core.Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return []*core.Document{&doc}, nil
}

func decodeJSONL(data []byte) ([]*core.Document, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	docs := []*core.Document{}
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var doc core.Document
		if err := json.Unmarshal(text, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, &doc)
	}
	return docs, scanner.Err()
}
