package citation

import (
	"strings"

	"github.com/poiesic/scholar/core"
)

// Matcher decides whether a marker label refers to a candidate document.
// There is one method per content type; the Extractor only offers a
// candidate to the method for its own type.
type Matcher interface {
	// MatchPaper reports whether author names the paper's first author.
	MatchPaper(author string, doc *core.Document) bool
	// MatchVideo reports whether label names the video.
	MatchVideo(label string, doc *core.Document) bool
	// MatchPodcast reports whether label names the podcast episode.
	MatchPodcast(label string, doc *core.Document) bool
}

// SubstringMatcher matches a paper when the marker's author token is a
// substring of its first listed author (or "Unknown" for a paper without
// authors), and a video or podcast when the
// marker's label is a substring of its title.
type SubstringMatcher struct {
	// IgnoreCase compares case-insensitively.
	IgnoreCase bool
}

var _ Matcher = SubstringMatcher{}

func (m SubstringMatcher) contains(s, substr string) bool {
	if substr == "" {
		return false
	}
	if m.IgnoreCase {
		return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
	}
	return strings.Contains(s, substr)
}

// MatchPaper implements Matcher.
func (m SubstringMatcher) MatchPaper(author string, doc *core.Document) bool {
	if len(doc.Authors) == 0 || strings.TrimSpace(doc.Authors[0]) == "" {
		return author == core.UnknownAuthor || (m.IgnoreCase && strings.EqualFold(author, core.UnknownAuthor))
	}
	return m.contains(doc.Authors[0], author)
}

// MatchVideo implements Matcher.
func (m SubstringMatcher) MatchVideo(label string, doc *core.Document) bool {
	return m.contains(doc.Title, label)
}

// MatchPodcast implements Matcher.
func (m SubstringMatcher) MatchPodcast(label string, doc *core.Document) bool {
	return m.contains(doc.Title, label)
}
