package citation

import (
	"slices"

	"github.com/poiesic/scholar/core"
)

// CitationSummary is one entry of the most cited list.
type CitationSummary struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	UseCount int    `json:"use_count"`
}

// Report summarizes the ledger.
type Report struct {
	TotalPapers     int               `json:"total_papers"`
	TotalVideos     int               `json:"total_videos"`
	TotalPodcasts   int               `json:"total_podcasts"`
	MostCited       []CitationSummary `json:"most_cited"`
	RecentCitations []core.UsageEvent `json:"recent_citations"`
}

// Report counts entries per content type, lists the most cited entries by
// use_count descending, and the most recent usage events newest first.
// Entries with equal use_count keep the order in which they were first
// cited.
func (l *Ledger) Report() *Report {
	reg := l.Registry()

	report := &Report{
		TotalPapers:     len(reg.Papers),
		TotalVideos:     len(reg.Videos),
		TotalPodcasts:   len(reg.Podcasts),
		MostCited:       []CitationSummary{},
		RecentCitations: []core.UsageEvent{},
	}

	var all []CitationSummary
	for _, ref := range insertionOrder(reg) {
		e := reg.Bucket(ref.contentType)[ref.id]
		all = append(all, CitationSummary{
			ID:       ref.id,
			Type:     ref.contentType.Plural(),
			Title:    e.Title,
			UseCount: e.UseCount,
		})
	}
	slices.SortStableFunc(all, func(a, b CitationSummary) int {
		return b.UseCount - a.UseCount
	})
	if len(all) > l.mostCited {
		all = all[:l.mostCited]
	}
	report.MostCited = append(report.MostCited, all...)

	history := reg.UsageHistory
	for i := len(history) - 1; i >= 0 && len(report.RecentCitations) < l.recent; i-- {
		report.RecentCitations = append(report.RecentCitations, history[i])
	}

	return report
}

type entryRef struct {
	contentType core.ContentType
	id          string
}

// insertionOrder lists registry entries in the order they were first
// cited, taken from the usage history. Entries absent from the history
// (from hand-edited or legacy registries) follow, ordered by first_used
// and then ID.
func insertionOrder(reg *core.Registry) []entryRef {
	var refs []entryRef
	seen := make(map[entryRef]bool)
	for _, ev := range reg.UsageHistory {
		ref := entryRef{ev.ContentType, ev.CitationID}
		if seen[ref] {
			continue
		}
		if _, ok := reg.Bucket(ev.ContentType)[ev.CitationID]; !ok {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}

	var rest []entryRef
	for _, ct := range core.ContentTypes {
		for id := range reg.Bucket(ct) {
			ref := entryRef{ct, id}
			if !seen[ref] {
				rest = append(rest, ref)
			}
		}
	}
	slices.SortFunc(rest, func(a, b entryRef) int {
		ea, eb := reg.Bucket(a.contentType)[a.id], reg.Bucket(b.contentType)[b.id]
		switch {
		case ea.FirstUsed < eb.FirstUsed:
			return -1
		case ea.FirstUsed > eb.FirstUsed:
			return 1
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return append(refs, rest...)
}
