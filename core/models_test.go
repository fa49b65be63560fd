package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCitationID(t *testing.T) {
	id1 := CitationID("Attention Is All You Need", "https://arxiv.org/abs/1706.03762")
	id2 := CitationID("Attention Is All You Need", "https://arxiv.org/abs/1706.03762")
	id3 := CitationID("Attention Is All You Need", "")

	assert.Len(t, id1, 12)
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestDocumentID(t *testing.T) {
	paper := NewPaper("Same Title", nil, "", "")
	video := NewVideo("Same Title", "", "")

	assert.Equal(t, DocumentID(paper), DocumentID(paper.Clone()))
	assert.NotEqual(t, DocumentID(paper), DocumentID(video), "content type is part of identity")
	assert.Len(t, DocumentID(paper), 32)
}

func TestParseContentType(t *testing.T) {
	tests := []struct {
		in      string
		want    ContentType
		wantErr bool
	}{
		{"paper", ContentTypePaper, false},
		{" Video ", ContentTypeVideo, false},
		{"PODCAST", ContentTypePodcast, false},
		{"book", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseContentType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidContentType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContentType_Plural(t *testing.T) {
	assert.Equal(t, "papers", ContentTypePaper.Plural())
	assert.Equal(t, "videos", ContentTypeVideo.Plural())
	assert.Equal(t, "podcasts", ContentTypePodcast.Plural())
}

func TestDocument_Year(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2017-06-12", "2017"},
		{"2021", "2021"},
		{"", "n.d."},
		{"June 2020", "n.d."},
		{"20", "n.d."},
	}
	for _, tt := range tests {
		doc := &Document{PublicationDate: tt.date}
		assert.Equal(t, tt.want, doc.Year(), "date %q", tt.date)
	}
}

func TestDocument_FirstAuthor(t *testing.T) {
	assert.Equal(t, "Unknown", (&Document{}).FirstAuthor())
	assert.Equal(t, "Unknown", (&Document{Authors: []string{""}}).FirstAuthor())
	assert.Equal(t, "Smith", (&Document{Authors: []string{"Smith", "Jones"}}).FirstAuthor())
}

func TestDocument_PrimaryText(t *testing.T) {
	assert.Equal(t, "body", (&Document{Content: "body", Transcript: "t", Abstract: "a"}).PrimaryText())
	assert.Equal(t, "t", (&Document{Transcript: "t", Abstract: "a"}).PrimaryText())
	assert.Equal(t, "a", (&Document{Abstract: "a"}).PrimaryText())
	assert.Equal(t, "", (&Document{}).PrimaryText())
}

func TestDocument_Clone(t *testing.T) {
	orig := NewPaper("T", []string{"A"}, "abs", "body")
	orig.Embedding = []float32{1, 2}
	orig.Metadata = map[string]any{"k": "v"}

	c := orig.Clone()
	c.Authors[0] = "B"
	c.Embedding[0] = 9
	c.Metadata["k"] = "changed"

	assert.Equal(t, "A", orig.Authors[0])
	assert.Equal(t, float32(1), orig.Embedding[0])
	assert.Equal(t, "v", orig.Metadata["k"])
	assert.Nil(t, (*Document)(nil).Clone())
}

func TestCanonicalText(t *testing.T) {
	doc := NewPaper("Title", nil, "Abstract", strings.Repeat("x", 1500))
	text := CanonicalText(doc)

	assert.True(t, strings.HasPrefix(text, "Title Abstract "))
	assert.Len(t, text, len("Title Abstract ")+1000)

	video := NewVideo("Talk", "", "transcript only")
	assert.Equal(t, "Talk  ", CanonicalText(video))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "héllo", Truncate("héllo", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestRegistry_CloneIsDeep(t *testing.T) {
	r := NewRegistry()
	r.Papers["abc"] = &CitationEntry{Title: "T", Authors: []string{"A"}, UseCount: 1,
		Queries: []UsageRecord{{Query: "q", Timestamp: "2024-01-01T00:00:00Z"}}}
	r.UsageHistory = append(r.UsageHistory, UsageEvent{CitationID: "abc", ContentType: ContentTypePaper})

	c := r.Clone()
	c.Papers["abc"].UseCount = 5
	c.Papers["abc"].Queries = append(c.Papers["abc"].Queries, UsageRecord{Query: "q2"})
	c.UsageHistory = append(c.UsageHistory, UsageEvent{CitationID: "def"})

	assert.Equal(t, 1, r.Papers["abc"].UseCount)
	assert.Len(t, r.Papers["abc"].Queries, 1)
	assert.Len(t, r.UsageHistory, 1)
}

func TestRegistry_Normalize(t *testing.T) {
	r := &Registry{}
	r.Normalize()
	assert.NotNil(t, r.Papers)
	assert.NotNil(t, r.Videos)
	assert.NotNil(t, r.Podcasts)
	assert.NotNil(t, r.UsageHistory)
	assert.Nil(t, r.Bucket("book"))
	assert.NotNil(t, r.Bucket(ContentTypeVideo))
}
