package search

import (
	"github.com/poiesic/scholar/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, k int)
	QueryEmbedded(vector []float32)
	// LexicalFallback reports that vector scoring was skipped.
	LexicalFallback(reason error)
	// BackendUnavailable reports that the empty result is due to an outage.
	BackendUnavailable(err error)
	// VerbatimHit reports a result whose title contains every query term.
	VerbatimHit(result *core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)            {}
func (n *noopMonitor) QueryEmbedded(_ []float32)        {}
func (n *noopMonitor) LexicalFallback(_ error)          {}
func (n *noopMonitor) BackendUnavailable(_ error)       {}
func (n *noopMonitor) VerbatimHit(_ *core.SearchResult) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)    {}
