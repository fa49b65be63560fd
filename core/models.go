package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-crypt/x/blake2b"
)

// ContentType discriminates the kinds of research documents held in the index.
type ContentType string

const (
	// ContentTypePaper is an academic paper (abstract and body text).
	ContentTypePaper ContentType = "paper"
	// ContentTypeVideo is a lecture or explainer video (transcript).
	ContentTypeVideo ContentType = "video"
	// ContentTypePodcast is a podcast episode (transcript).
	ContentTypePodcast ContentType = "podcast"
)

// ContentTypes lists every supported content type in registry order.
var ContentTypes = []ContentType{ContentTypePaper, ContentTypeVideo, ContentTypePodcast}

// ParseContentType converts a string to a ContentType.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !ct.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
	}
	return ct, nil
}

// Valid reports whether c is one of the supported content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypePaper, ContentTypeVideo, ContentTypePodcast:
		return true
	}
	return false
}

// Plural returns the registry bucket name for the content type ("papers", ...).
func (c ContentType) Plural() string {
	return string(c) + "s"
}

// InlineCitation is a reference found inside a document's own text.
type InlineCitation struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Document is a unit of indexed content. ContentType selects which of the
// long-form fields are expected to carry text: papers use Abstract and
// Content, videos and podcasts use Transcript. The other fields may be empty.
//
// Embedding is computed by the indexer and never trusted from callers.
type Document struct {
	ContentType         ContentType      `json:"content_type"`
	Title               string           `json:"title"`
	Abstract            string           `json:"abstract,omitempty"`
	Content             string           `json:"content,omitempty"`
	Authors             []string         `json:"authors"`
	PublicationDate     string           `json:"publication_date,omitempty"`
	URL                 string           `json:"url,omitempty"`
	Transcript          string           `json:"transcript,omitempty"`
	DiagramDescriptions string           `json:"diagram_descriptions,omitempty"`
	KeyConcepts         []string         `json:"key_concepts,omitempty"`
	Citations           []InlineCitation `json:"citations,omitempty"`
	Embedding           []float32        `json:"embedding,omitempty"`
	Metadata            map[string]any   `json:"metadata,omitempty"`
}

// NewPaper creates a paper document.
func NewPaper(title string, authors []string, abstract, content string) *Document {
	return &Document{
		ContentType: ContentTypePaper,
		Title:       title,
		Authors:     authors,
		Abstract:    abstract,
		Content:     content,
	}
}

// NewVideo creates a video document. The channel is recorded as the author.
func NewVideo(title, channel, transcript string) *Document {
	doc := &Document{
		ContentType: ContentTypeVideo,
		Title:       title,
		Transcript:  transcript,
	}
	if channel != "" {
		doc.Authors = []string{channel}
	}
	return doc
}

// NewPodcast creates a podcast episode document.
func NewPodcast(title, show, transcript string) *Document {
	doc := &Document{
		ContentType: ContentTypePodcast,
		Title:       title,
		Transcript:  transcript,
	}
	if show != "" {
		doc.Authors = []string{show}
	}
	return doc
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Authors = append([]string(nil), d.Authors...)
	c.KeyConcepts = append([]string(nil), d.KeyConcepts...)
	c.Citations = append([]InlineCitation(nil), d.Citations...)
	c.Embedding = append([]float32(nil), d.Embedding...)
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// FirstAuthor returns the first listed author, or "Unknown".
func (d *Document) FirstAuthor() string {
	if len(d.Authors) == 0 || strings.TrimSpace(d.Authors[0]) == "" {
		return UnknownAuthor
	}
	return d.Authors[0]
}

// Year returns the leading four characters of the publication date when
// they form a year, otherwise "n.d.".
func (d *Document) Year() string {
	return YearOf(d.PublicationDate)
}

// PrimaryText returns the document's main body: content, then transcript,
// then abstract.
func (d *Document) PrimaryText() string {
	switch {
	case d.Content != "":
		return d.Content
	case d.Transcript != "":
		return d.Transcript
	default:
		return d.Abstract
	}
}

// UnknownAuthor is rendered wherever an author list is empty.
const UnknownAuthor = "Unknown"

// NoDate is rendered wherever a year cannot be derived.
const NoDate = "n.d."

// YearOf extracts a four digit year prefix from an ISO or provider date.
func YearOf(date string) string {
	if len(date) < 4 {
		return NoDate
	}
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return NoDate
		}
	}
	return date[:4]
}

// embeddingContentWindow is the number of content characters included in
// the canonical embedding text.
const embeddingContentWindow = 1000

// CanonicalText builds the text an embedding is computed from: title,
// abstract and the first 1000 characters of content, space separated.
func CanonicalText(d *Document) string {
	return d.Title + " " + d.Abstract + " " + Truncate(d.Content, embeddingContentWindow)
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// DocumentID derives the stable storage key for a document from its
// content type, title and URL, so re-indexing replaces the stored copy.
func DocumentID(d *Document) string {
	return hashHex(16, string(d.ContentType)+"\x00"+d.Title+"\x00"+d.URL)
}

// CitationID derives the 12 character registry key for a source from its
// title and URL.
func CitationID(title, url string) string {
	return hashHex(6, title+url)
}

func hashHex(size int, text string) string {
	h, _ := blake2b.New(size, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// SearchResult is a scored hit produced fresh for every query.
type SearchResult struct {
	Score  float64   `json:"score"`
	Source *Document `json:"source"`
}

// CitationMatch links a citation marker found in generated text to the
// candidate document it was resolved to.
type CitationMatch struct {
	// Marker is the raw bracketed marker, e.g. "[Vaswani, 2017]".
	Marker string `json:"citation_text"`
	// Label is the author or title token extracted from the marker.
	Label string `json:"label"`
	// Year is set for author-year markers.
	Year        string      `json:"year,omitempty"`
	ContentType ContentType `json:"content_type"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Source      *Document   `json:"source"`
}
