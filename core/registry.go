package core

// UsageRecord is one query that referenced a citation.
type UsageRecord struct {
	Query     string `json:"query"`
	Timestamp string `json:"timestamp"`
}

// CitationEntry is the registry entry for a previously cited source.
// UseCount never decreases and Queries is append-only.
type CitationEntry struct {
	Title     string        `json:"title"`
	Authors   []string      `json:"authors"`
	URL       string        `json:"url"`
	FirstUsed string        `json:"first_used"`
	UseCount  int           `json:"use_count"`
	Queries   []UsageRecord `json:"queries"`
}

// UsageEvent is an append-only log entry in the global usage history.
type UsageEvent struct {
	CitationID  string      `json:"citation_id"`
	ContentType ContentType `json:"content_type"`
	Query       string      `json:"query"`
	Timestamp   string      `json:"timestamp"`
}

// CitationSource is the subset of a document the ledger records.
type CitationSource struct {
	ContentType ContentType
	Title       string
	Authors     []string
	URL         string
}

// Registry is the persisted citation ledger: one bucket per content type
// plus the global usage history in creation order.
type Registry struct {
	Papers       map[string]*CitationEntry `json:"papers"`
	Videos       map[string]*CitationEntry `json:"videos"`
	Podcasts     map[string]*CitationEntry `json:"podcasts"`
	UsageHistory []UsageEvent              `json:"usage_history"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		Papers:       map[string]*CitationEntry{},
		Videos:       map[string]*CitationEntry{},
		Podcasts:     map[string]*CitationEntry{},
		UsageHistory: []UsageEvent{},
	}
}

// Normalize replaces nil buckets left by partial or legacy stores.
func (r *Registry) Normalize() {
	if r.Papers == nil {
		r.Papers = map[string]*CitationEntry{}
	}
	if r.Videos == nil {
		r.Videos = map[string]*CitationEntry{}
	}
	if r.Podcasts == nil {
		r.Podcasts = map[string]*CitationEntry{}
	}
	if r.UsageHistory == nil {
		r.UsageHistory = []UsageEvent{}
	}
}

// Bucket returns the entry map for a content type, or nil if unsupported.
func (r *Registry) Bucket(ct ContentType) map[string]*CitationEntry {
	switch ct {
	case ContentTypePaper:
		return r.Papers
	case ContentTypeVideo:
		return r.Videos
	case ContentTypePodcast:
		return r.Podcasts
	}
	return nil
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		Papers:       cloneBucket(r.Papers),
		Videos:       cloneBucket(r.Videos),
		Podcasts:     cloneBucket(r.Podcasts),
		UsageHistory: append([]UsageEvent{}, r.UsageHistory...),
	}
	return c
}

func cloneBucket(in map[string]*CitationEntry) map[string]*CitationEntry {
	out := make(map[string]*CitationEntry, len(in))
	for id, e := range in {
		entry := *e
		entry.Authors = append([]string{}, e.Authors...)
		entry.Queries = append([]UsageRecord{}, e.Queries...)
		out[id] = &entry
	}
	return out
}
