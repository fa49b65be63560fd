package research

import (
	"fmt"
	"strings"

	"github.com/poiesic/scholar/core"
)

const (
	contentWindow = 500
	diagramWindow = 200
	untitled      = "Untitled"
)

// CitationMarker returns the marker the generator is asked to cite doc
// with. Paper markers use the first author's surname and the publication
// year or "n.d."; video and
// podcast markers carry the full title so the extractor can resolve them.
func CitationMarker(doc *core.Document) string {
	title := doc.Title
	if strings.TrimSpace(title) == "" {
		title = untitled
	}
	switch doc.ContentType {
	case core.ContentTypeVideo:
		return "[Video: " + title + "]"
	case core.ContentTypePodcast:
		return "[Podcast: " + title + "]"
	default:
		return "[" + surname(doc.FirstAuthor()) + ", " + doc.Year() + "]"
	}
}

// surname keeps the part of an author before any comma, so "He, Kaiming"
// cites as "He". The marker syntax has no room for a second comma.
func surname(author string) string {
	if i := strings.IndexByte(author, ','); i > 0 {
		return strings.TrimSpace(author[:i])
	}
	return author
}

// FormatContext renders search results as numbered, citation-annotated
// source blocks separated by blank lines. This block is the only corpus text
// the generator sees.
func FormatContext(results []*core.SearchResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		blocks = append(blocks, formatSource(i+1, r.Source))
	}
	return strings.Join(blocks, "\n\n")
}

func formatSource(n int, doc *core.Document) string {
	title := doc.Title
	if title == "" {
		title = untitled
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source %d %s:\n", n, CitationMarker(doc))
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Type: %s\n", doc.ContentType)
	fmt.Fprintf(&b, "Content: %s", clip(doc.PrimaryText(), contentWindow))
	if doc.DiagramDescriptions != "" {
		fmt.Fprintf(&b, "\nVisual Content: %s", clip(doc.DiagramDescriptions, diagramWindow))
	}
	return b.String()
}

// clip truncates s to n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	t := core.Truncate(s, n)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
