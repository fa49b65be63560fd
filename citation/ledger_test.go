package citation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
	"github.com/poiesic/scholar/storage/badger"
	"github.com/poiesic/scholar/storage/jsonfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

// flakyStore fails saves while failing is set.
type flakyStore struct {
	storage.LedgerStore
	failing bool
	loadErr error
}

func (s *flakyStore) LoadRegistry(ctx context.Context) (*core.Registry, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.LedgerStore.LoadRegistry(ctx)
}

func (s *flakyStore) SaveRegistry(ctx context.Context, r *core.Registry) error {
	if s.failing {
		return errors.New("disk full")
	}
	return s.LedgerStore.SaveRegistry(ctx, r)
}

func setupLedger(t *testing.T, opts ...Option) (*Ledger, *jsonfile.LedgerStore) {
	t.Helper()
	store, err := jsonfile.NewLedgerStore(filepath.Join(t.TempDir(), "citations.json"))
	require.NoError(t, err)
	opts = append([]Option{WithClock(newClock().Now)}, opts...)
	ledger, err := NewLedger(context.Background(), store, opts...)
	require.NoError(t, err)
	return ledger, store
}

func paperSource(title, url string, authors ...string) core.CitationSource {
	return core.CitationSource{ContentType: core.ContentTypePaper, Title: title, URL: url, Authors: authors}
}

func TestNewLedger_RequiresStore(t *testing.T) {
	_, err := NewLedger(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestRecordUsage_CreatesThenIncrements(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	src := paperSource("Attention Is All You Need", "http://x", "Vaswani")

	id1, err := ledger.RecordUsage(ctx, src, "what is attention")
	require.NoError(t, err)
	id2, err := ledger.RecordUsage(ctx, src, "transformers")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, core.CitationID(src.Title, src.URL), id1)

	reg := ledger.Registry()
	require.Len(t, reg.Papers, 1)
	entry := reg.Papers[id1]
	assert.Equal(t, 2, entry.UseCount)
	require.Len(t, entry.Queries, 2)
	assert.Equal(t, "what is attention", entry.Queries[0].Query)
	assert.Equal(t, "transformers", entry.Queries[1].Query)
	assert.Equal(t, "2024-05-01T09:00:01.000000Z", entry.FirstUsed)
	assert.Equal(t, []string{"Vaswani"}, entry.Authors)

	require.Len(t, reg.UsageHistory, 2)
	assert.Equal(t, core.UsageEvent{CitationID: id1, ContentType: core.ContentTypePaper, Query: "transformers", Timestamp: "2024-05-01T09:00:02.000000Z"}, reg.UsageHistory[1])
}

func TestRecordUsage_DistinctSources(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordUsage(ctx, paperSource("A", "http://a"), "q")
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, paperSource("A", "http://b"), "q")
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, core.CitationSource{ContentType: core.ContentTypeVideo, Title: "V"}, "q")
	require.NoError(t, err)

	reg := ledger.Registry()
	assert.Len(t, reg.Papers, 2)
	assert.Len(t, reg.Videos, 1)
	assert.Empty(t, reg.Podcasts)
}

func TestRecordUsage_Invalid(t *testing.T) {
	ledger, _ := setupLedger(t)

	_, err := ledger.RecordUsage(context.Background(), core.CitationSource{ContentType: "book", Title: "x"}, "q")
	assert.ErrorIs(t, err, core.ErrInvalidCitation)
	_, err = ledger.RecordUsage(context.Background(), core.CitationSource{ContentType: core.ContentTypePaper}, "q")
	assert.ErrorIs(t, err, core.ErrEmptyTitle)
}

func TestRecordUsage_PersistsAcrossInstances(t *testing.T) {
	ledger, store := setupLedger(t)
	ctx := context.Background()
	_, err := ledger.RecordUsage(ctx, paperSource("X", "http://x", "A"), "q1")
	require.NoError(t, err)

	reopened, err := NewLedger(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, ledger.Registry(), reopened.Registry())
}

func TestRecordUsage_PersistenceFailure(t *testing.T) {
	_, ledgerStore, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	store := &flakyStore{LedgerStore: ledgerStore}
	ledger, err := NewLedger(context.Background(), store, WithClock(newClock().Now))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ledger.RecordUsage(ctx, paperSource("X", "http://x"), "q1")
	require.NoError(t, err)

	store.failing = true
	_, err = ledger.RecordUsage(ctx, paperSource("X", "http://x"), "q2")
	assert.ErrorIs(t, err, ErrPersistence)

	reg := ledger.Registry()
	entry := reg.Papers[core.CitationID("X", "http://x")]
	assert.Equal(t, 1, entry.UseCount, "failed save leaves registry unchanged")
	assert.Len(t, reg.UsageHistory, 1)

	store.failing = false
	_, err = ledger.RecordUsage(ctx, paperSource("X", "http://x"), "q3")
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.Registry().Papers[core.CitationID("X", "http://x")].UseCount)
}

func TestNewLedger_UnreadableRegistryStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citations.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	store, err := jsonfile.NewLedgerStore(path)
	require.NoError(t, err)

	ledger, err := NewLedger(context.Background(), store)
	require.NoError(t, err)
	reg := ledger.Registry()
	assert.Empty(t, reg.Papers)
	assert.Empty(t, reg.UsageHistory)

	_, err = ledger.RecordUsage(context.Background(), paperSource("X", ""), "q")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestRecordUsage_Concurrent(t *testing.T) {
	ledger, store := setupLedger(t)
	ctx := context.Background()
	src := paperSource("Shared", "http://shared")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.RecordUsage(ctx, src, fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	id := core.CitationID(src.Title, src.URL)
	assert.Equal(t, 20, ledger.Registry().Papers[id].UseCount)

	persisted, err := store.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, persisted.Papers[id].UseCount)
	assert.Len(t, persisted.UsageHistory, 20)
}

func TestRecordMatches(t *testing.T) {
	ledger, _ := setupLedger(t)
	matches := NewExtractor().Extract("[Vaswani, 2017] [Video: Transformer Explained]", candidates())

	ids, err := ledger.RecordMatches(context.Background(), matches, "what is attention")
	require.NoError(t, err)
	require.Len(t, ids, 2)

	reg := ledger.Registry()
	paper := reg.Papers[ids[0]]
	require.NotNil(t, paper)
	assert.Equal(t, []string{"Vaswani", "Shazeer"}, paper.Authors)
	assert.Contains(t, reg.Videos, ids[1])
}

func TestReport(t *testing.T) {
	ledger, _ := setupLedger(t, WithReportSizes(2, 3))
	ctx := context.Background()

	for _, title := range []string{"First", "Second", "Third"} {
		_, err := ledger.RecordUsage(ctx, paperSource(title, ""), "q")
		require.NoError(t, err)
	}
	_, err := ledger.RecordUsage(ctx, core.CitationSource{ContentType: core.ContentTypePodcast, Title: "Pod"}, "q2")
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, core.CitationSource{ContentType: core.ContentTypePodcast, Title: "Pod"}, "q3")
	require.NoError(t, err)

	report := ledger.Report()
	assert.Equal(t, 3, report.TotalPapers)
	assert.Equal(t, 0, report.TotalVideos)
	assert.Equal(t, 1, report.TotalPodcasts)

	require.Len(t, report.MostCited, 2)
	assert.Equal(t, "Pod", report.MostCited[0].Title)
	assert.Equal(t, "podcasts", report.MostCited[0].Type)
	assert.Equal(t, 2, report.MostCited[0].UseCount)
	assert.Equal(t, "First", report.MostCited[1].Title)

	require.Len(t, report.RecentCitations, 3)
	assert.Equal(t, "q3", report.RecentCitations[0].Query)
	assert.Equal(t, "q2", report.RecentCitations[1].Query)
	assert.Equal(t, core.CitationID("Third", ""), report.RecentCitations[2].CitationID)
}

func TestReport_TiesKeepInsertionOrder(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()
	titles := []string{"Zeta", "Alpha", "Mu"}
	for _, title := range titles {
		_, err := ledger.RecordUsage(ctx, paperSource(title, "http://"+strings.ToLower(title)), "q")
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		report := ledger.Report()
		require.Len(t, report.MostCited, 3)
		for j, title := range titles {
			assert.Equal(t, title, report.MostCited[j].Title)
			assert.Equal(t, 1, report.MostCited[j].UseCount)
		}
	}
}

func TestReport_Empty(t *testing.T) {
	ledger, _ := setupLedger(t)
	report := ledger.Report()
	assert.NotNil(t, report.MostCited)
	assert.NotNil(t, report.RecentCitations)
	assert.Zero(t, report.TotalPapers)
}

func TestNewLedger_LoadFailureStartsEmpty(t *testing.T) {
	_, ledgerStore, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	store := &flakyStore{LedgerStore: ledgerStore, loadErr: errors.New("permission denied")}
	ledger, err := NewLedger(context.Background(), store)
	require.NoError(t, err)
	assert.Empty(t, ledger.Registry().Papers)
}
