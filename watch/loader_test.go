package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/scholar/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.json"))
	assert.True(t, Supported("/x/b.JSONL"))
	assert.False(t, Supported("c.txt"))
	assert.False(t, Supported("json"))
}

func TestLoadDocuments_JSONObject(t *testing.T) {
	path := writeFile(t, t.TempDir(), "one.json", `{
		"content_type": "paper",
		"title": "Attention Is All You Need",
		"authors": ["Vaswani"],
		"publication_date": "2017-06-12",
		"embedding": [0.1, 0.2]
	}`)

	docs, err := LoadDocuments(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, core.ContentTypePaper, docs[0].ContentType)
	assert.Equal(t, "2017", docs[0].Year())
	assert.Nil(t, docs[0].Embedding, "stored embeddings are never trusted")
}

func TestLoadDocuments_JSONArray(t *testing.T) {
	path := writeFile(t, t.TempDir(), "many.json", `[
		{"content_type": "video", "title": "Transformer Explained", "authors": ["3Blue1Brown"]},
		null,
		{"content_type": "podcast", "title": "AI Podcast Episode 5"}
	]`)

	docs, err := LoadDocuments(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, core.ContentTypeVideo, docs[0].ContentType)
	assert.Equal(t, "AI Podcast Episode 5", docs[1].Title)
}

func TestLoadDocuments_JSONL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "feed.jsonl",
		`{"content_type": "paper", "title": "A"}`+"\n\n"+
			`{"content_type": "video", "title": "B"}`+"\n")

	docs, err := LoadDocuments(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "B", docs[1].Title)
}

func TestLoadDocuments_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadDocuments(writeFile(t, dir, "notes.txt", "hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = LoadDocuments(writeFile(t, dir, "bad.jsonl", `{"title": "ok"}`+"\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = LoadDocuments(writeFile(t, dir, "bad.json", `{"title": `))
	assert.Error(t, err)

	_, err = LoadDocuments(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDocuments_Empty(t *testing.T) {
	docs, err := LoadDocuments(writeFile(t, t.TempDir(), "empty.json", "  \n"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}
