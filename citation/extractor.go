package citation

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/poiesic/scholar/core"
)

var (
	authorYearPattern = regexp.MustCompile(`\[([^,\]]+),\s*(\d{4}|n\.d\.)\]`)
	videoPattern      = regexp.MustCompile(`\[Video:\s*([^\]]+)\]`)
	podcastPattern    = regexp.MustCompile(`\[Podcast:\s*([^\]]+)\]`)
)

// Marker is a citation marker found in generated text.
type Marker struct {
	// Text is the raw bracketed marker.
	Text string
	// ContentType is the kind of source the marker shape refers to.
	ContentType core.ContentType
	// Label is the author (papers) or title fragment (videos, podcasts).
	Label string
	// Year is set for author-year markers, either four digits or "n.d.".
	Year string
}

// ParseMarkers finds every marker in text. Shapes are scanned one after
// another: author-year, then video, then podcast, each in text order.
func ParseMarkers(text string) []Marker {
	var markers []Marker
	for _, m := range authorYearPattern.FindAllStringSubmatch(text, -1) {
		markers = append(markers, Marker{
			Text:        m[0],
			ContentType: core.ContentTypePaper,
			Label:       strings.TrimSpace(m[1]),
			Year:        m[2],
		})
	}
	for _, m := range videoPattern.FindAllStringSubmatch(text, -1) {
		markers = append(markers, Marker{Text: m[0], ContentType: core.ContentTypeVideo, Label: cleanLabel(m[1])})
	}
	for _, m := range podcastPattern.FindAllStringSubmatch(text, -1) {
		markers = append(markers, Marker{Text: m[0], ContentType: core.ContentTypePodcast, Label: cleanLabel(m[1])})
	}
	return markers
}

// cleanLabel drops surrounding space and a trailing ellipsis left by
// truncated titles.
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "...")
	s = strings.TrimSuffix(s, "…")
	return strings.TrimSpace(s)
}

// Extractor resolves citation markers to candidate documents.
type Extractor struct {
	matcher Matcher
	logger  *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMatcher replaces the default SubstringMatcher.
func WithMatcher(m Matcher) ExtractorOption {
	return func(e *Extractor) {
		if m != nil {
			e.matcher = m
		}
	}
}

// WithExtractorLogger sets a custom logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		matcher: SubstringMatcher{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "citation-extractor")
	return e
}

// Extract resolves every marker in text against candidates. A marker is
// linked to the first candidate of its content type that the matcher
// accepts; ties are broken by candidate order and nothing else. Markers
// without a match are dropped. A marker repeated in the text against the
// same source yields one match.
func (e *Extractor) Extract(text string, candidates []*core.SearchResult) []core.CitationMatch {
	matches := []core.CitationMatch{}
	type pair struct{ marker, doc string }
	seen := make(map[pair]bool)

	for _, marker := range ParseMarkers(text) {
		doc := e.resolve(marker, candidates)
		if doc == nil {
			e.logger.Debug("citation marker matched no source", "marker", marker.Text)
			continue
		}
		key := pair{marker.Text, core.DocumentID(doc)}
		if seen[key] {
			continue
		}
		seen[key] = true
		matches = append(matches, core.CitationMatch{
			Marker:      marker.Text,
			Label:       marker.Label,
			Year:        marker.Year,
			ContentType: doc.ContentType,
			URL:         doc.URL,
			Title:       doc.Title,
			Source:      doc,
		})
	}
	return matches
}

func (e *Extractor) resolve(marker Marker, candidates []*core.SearchResult) *core.Document {
	for _, c := range candidates {
		if c == nil || c.Source == nil || c.Source.ContentType != marker.ContentType {
			continue
		}
		var ok bool
		switch marker.ContentType {
		case core.ContentTypePaper:
			ok = e.matcher.MatchPaper(marker.Label, c.Source)
		case core.ContentTypeVideo:
			ok = e.matcher.MatchVideo(marker.Label, c.Source)
		case core.ContentTypePodcast:
			ok = e.matcher.MatchPodcast(marker.Label, c.Source)
		}
		if ok {
			return c.Source
		}
	}
	return nil
}
