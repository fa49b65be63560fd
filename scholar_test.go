package scholar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/scholar/ai/mock"
	"github.com/poiesic/scholar/config"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Ledger.Path = filepath.Join(dir, "citations.json")
	return cfg
}

func openAssistant(t *testing.T, cfg *config.AppConfig, generator *mock.MockGenerator) *Assistant {
	t.Helper()
	if generator == nil {
		generator = mock.NewMockGenerator()
	}
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), generator)
	a, err := Open(context.Background(), cfg, WithProvider(provider), WithMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

func documents() []*core.Document {
	paper := core.NewPaper("Attention Is All You Need", []string{"Vaswani"},
		"The dominant sequence transduction models are based on recurrent networks.",
		"We propose the Transformer, based solely on attention mechanisms.")
	paper.PublicationDate = "2017-06-12"
	paper.URL = "http://arxiv.org/abs/1706.03762"
	video := core.NewVideo("Transformer Explained", "3Blue1Brown", "How attention works inside a transformer.")
	invalid := &core.Document{ContentType: core.ContentTypePaper}
	return []*core.Document{paper, video, invalid}
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Store.Type = "elastic"
	_, err = Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.type")
}

func TestOpen_Components(t *testing.T) {
	a := openAssistant(t, testConfig(t), nil)

	assert.NotNil(t, a.Config())
	assert.NotNil(t, a.Store())
	assert.NotNil(t, a.Ledger())
	assert.NotNil(t, a.Collections())
	assert.NotNil(t, a.Provider())
	assert.NotNil(t, a.Indexer())

	searcher, err := a.NewSearcher()
	require.NoError(t, err)
	assert.NotNil(t, searcher)

	srv, err := a.NewServer()
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr())
}

func TestAssistant_IndexDocuments(t *testing.T) {
	a := openAssistant(t, testConfig(t), nil)
	ctx := context.Background()

	result, err := a.IndexDocuments(ctx, documents(), "batch.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Items[2].Err, core.ErrInvalidDocument)

	stats, err := a.Collections().Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Indexed)

	items, err := a.Collections().SearchCollections(ctx, "batch.jsonl", 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	searcher, err := a.NewSearcher()
	require.NoError(t, err)
	results := searcher.Search(ctx, "attention mechanisms", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "Attention Is All You Need", results[0].Source.Title)
}

func TestAssistant_AskRecordsCitations(t *testing.T) {
	generator := mock.NewMockGenerator(
		"The Transformer relies on attention [Vaswani, 2017].",
		`["What is multi-head attention?"]`,
	)
	a := openAssistant(t, testConfig(t), generator)
	ctx := context.Background()
	_, err := a.IndexDocuments(ctx, documents()[:2], "seed")
	require.NoError(t, err)

	orch, err := a.NewOrchestrator()
	require.NoError(t, err)
	answer, err := orch.ProcessQuery(ctx, "What is the Transformer?")
	require.NoError(t, err)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, []string{"What is multi-head attention?"}, answer.RelatedQueries)

	report := a.Ledger().Report()
	assert.Equal(t, 1, report.TotalPapers)
	assert.Equal(t, "What is the Transformer?", report.RecentCitations[0].Query)
}

func TestAssistant_CitationIgnoreCase(t *testing.T) {
	tests := []struct {
		name       string
		ignoreCase bool
		want       int
	}{
		{"case sensitive by default", false, 0},
		{"ignore case", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Research.CitationIgnoreCase = tt.ignoreCase
			generator := mock.NewMockGenerator("Attention suffices [vaswani, 2017].", `["q?"]`)
			a := openAssistant(t, cfg, generator)
			ctx := context.Background()
			_, err := a.IndexDocuments(ctx, documents()[:2], "seed")
			require.NoError(t, err)

			orch, err := a.NewOrchestrator()
			require.NoError(t, err)
			answer, err := orch.ProcessQuery(ctx, "attention")
			require.NoError(t, err)
			assert.Len(t, answer.Citations, tt.want)
		})
	}
}

func TestAssistant_ServerKeepsNoConversation(t *testing.T) {
	generator := mock.NewMockGenerator()
	a := openAssistant(t, testConfig(t), generator)
	srv, err := a.NewServer()
	require.NoError(t, err)
	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	for _, q := range []string{"first private question", "second question"} {
		resp, err := http.Post(api.URL+"/api/ask", "application/json", strings.NewReader(`{"query":"`+q+`"}`))
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	prompts := generator.Prompts()
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[2], "second question")
	assert.NotContains(t, prompts[2], "first private question")
}

func TestAssistant_BadgerLedgerPersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Type = config.LedgerBadger
	ctx := context.Background()
	src := core.CitationSource{
		ContentType: core.ContentTypePaper,
		Title:       "Attention Is All You Need",
		Authors:     []string{"Vaswani"},
		URL:         "http://arxiv.org/abs/1706.03762",
	}

	provider := mock.NewMockProvider()
	first, err := Open(ctx, cfg, WithProvider(provider))
	require.NoError(t, err)
	_, err = first.Ledger().RecordUsage(ctx, src, "q1")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, cfg, WithProvider(provider))
	require.NoError(t, err)
	defer second.Close()
	assert.Len(t, second.Ledger().Registry().Papers, 1)
}

func TestAssistant_OpenSearchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := testConfig(t)
	cfg.Store.Type = config.StoreOpenSearch
	cfg.Store.OpenSearch = &config.OpenSearchConfig{
		Addresses:   []string{url},
		Index:       "research_assistant",
		TimeoutSecs: 1,
	}
	a := openAssistant(t, cfg, nil)

	result, err := a.IndexDocuments(context.Background(), documents()[:2], "seed")
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
	assert.True(t, result.Unavailable)

	stats, err := a.Collections().Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Indexed)

	_, err = a.NewReindexer(a.Indexer(), nil, io.Discard)
	assert.NoError(t, err, "opensearch stores can be scanned")
}

func TestAssistant_Reindex(t *testing.T) {
	a := openAssistant(t, testConfig(t), nil)
	ctx := context.Background()
	_, err := a.IndexDocuments(ctx, documents()[:2], "seed")
	require.NoError(t, err)

	r, err := a.NewReindexer(a.Indexer(), nil, io.Discard)
	require.NoError(t, err)
	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
}

func TestFieldWeights(t *testing.T) {
	got := fieldWeights(map[string]float64{"content": 1, "title": 3, "abstract": 2, "authors": 2})
	assert.Equal(t, []storage.FieldWeight{
		{Field: "title", Boost: 3},
		{Field: "abstract", Boost: 2},
		{Field: "authors", Boost: 2},
		{Field: "content", Boost: 1},
	}, got)
}
