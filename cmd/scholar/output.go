package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/research"
	"github.com/poiesic/scholar/storage"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(w io.Writer, results []*core.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	for i, r := range results {
		doc := r.Source
		fmt.Fprintf(w, "%d. [%.3f] %s (%s)\n", i+1, r.Score, doc.Title, doc.ContentType)
		if author := doc.FirstAuthor(); author != core.UnknownAuthor {
			fmt.Fprintf(w, "   %s, %s\n", author, doc.Year())
		}
		if doc.URL != "" {
			fmt.Fprintf(w, "   %s\n", doc.URL)
		}
	}
}

func printAnswer(w io.Writer, a *research.Answer) {
	fmt.Fprintln(w, a.Answer)

	if len(a.Citations) > 0 {
		fmt.Fprintln(w, "\nCitations:")
		for _, c := range a.Citations {
			line := "  " + c.Marker
			if c.URL != "" {
				line += " " + c.URL
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(a.RelatedQueries) > 0 {
		fmt.Fprintln(w, "\nRelated questions:")
		for _, q := range a.RelatedQueries {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
	for _, warning := range a.Warnings {
		fmt.Fprintf(w, "\nwarning: %s\n", warning)
	}
}

func printCollections(w io.Writer, items []*storage.Collection) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No collections.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tINDEXED\tADDED\tTITLE\tSOURCE")
	for _, c := range items {
		indexed := "no"
		if c.Indexed {
			indexed = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.ContentType, indexed, c.CreatedAt.Format("2006-01-02"), core.Truncate(c.Title, 60), c.Source)
	}
	tw.Flush()
}

func printStats(w io.Writer, s *storage.CollectionStats) {
	fmt.Fprintf(w, "Total:        %d\n", s.Total)
	fmt.Fprintf(w, "Indexed:      %d\n", s.Indexed)
	fmt.Fprintf(w, "Not indexed:  %d\n", s.NotIndexed)
	fmt.Fprintf(w, "Last 7 days:  %d\n", s.Recent7d)

	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-10s %d\n", t+":", s.ByType[t])
	}
}
