package citation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
)

// Format is a bibliography export format.
type Format string

const (
	FormatBibTeX Format = "bibtex"
	FormatAPA    Format = "apa"
	FormatJSON   Format = "json"
)

// ParseFormat parses a format name, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatBibTeX, FormatAPA, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Export renders the ledger. BibTeX and APA cover paper citations only;
// JSON is the full registry.
func (l *Ledger) Export(format Format) (string, error) {
	reg := l.Registry()
	switch format {
	case FormatBibTeX:
		return exportBibTeX(reg), nil
	case FormatAPA:
		return exportAPA(reg), nil
	case FormatJSON:
		data, err := storage.MarshalRegistry(reg)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// paperRefs returns paper entry IDs in first-cited order.
func paperRefs(reg *core.Registry) []string {
	var ids []string
	for _, ref := range insertionOrder(reg) {
		if ref.contentType == core.ContentTypePaper {
			ids = append(ids, ref.id)
		}
	}
	return ids
}

// exportBibTeX emits one @article per paper, keyed by citation ID, with the
// year taken from first_used.
func exportBibTeX(reg *core.Registry) string {
	var entries []string
	for _, id := range paperRefs(reg) {
		p := reg.Papers[id]
		authors := p.Authors
		if len(authors) == 0 {
			authors = []string{core.UnknownAuthor}
		}
		entries = append(entries, fmt.Sprintf("@article{%s,\n    title={%s},\n    author={%s},\n    year={%s},\n    url={%s}\n}",
			id, p.Title, strings.Join(authors, " and "), core.YearOf(p.FirstUsed), p.URL))
	}
	return strings.Join(entries, "\n\n")
}

// exportAPA emits one line per paper, sorted by the rendered line.
func exportAPA(reg *core.Registry) string {
	lines := make([]string, 0, len(reg.Papers))
	for _, p := range reg.Papers {
		var author string
		switch len(p.Authors) {
		case 0:
			author = core.UnknownAuthor
		case 1:
			author = p.Authors[0]
		default:
			author = p.Authors[0] + " et al."
		}
		year := core.YearOf(p.FirstUsed)
		url := p.URL
		if url == "" {
			url = "N/A"
		}
		lines = append(lines, fmt.Sprintf("%s (%s). %s. Retrieved from %s", author, year, p.Title, url))
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}
