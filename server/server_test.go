package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/scholar/ai/mock"
	"github.com/poiesic/scholar/citation"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/research"
	"github.com/poiesic/scholar/storage"
	"github.com/poiesic/scholar/storage/jsonfile"
	"github.com/poiesic/scholar/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answerText = "Self-attention replaces recurrence [Vaswani, 2017]."

type staticRetriever struct {
	results []*core.SearchResult
	lastK   int
}

func (r *staticRetriever) Search(_ context.Context, _ string, k int) []*core.SearchResult {
	r.lastK = k
	return r.results
}

type fixture struct {
	server      *Server
	retriever   *staticRetriever
	generator   *mock.MockGenerator
	ledger      *citation.Ledger
	collections *sqlite.Store
	metrics     *metrics.Metrics
}

func setupServer(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	paper := core.NewPaper("Attention Is All You Need", []string{"Vaswani"}, "We propose the Transformer.", "")
	paper.PublicationDate = "2017-06-12"
	paper.URL = "http://arxiv.org/abs/1706.03762"
	retriever := &staticRetriever{results: []*core.SearchResult{{Score: 2.5, Source: paper}}}

	ledgerStore, err := jsonfile.NewLedgerStore(filepath.Join(t.TempDir(), "citations.json"))
	require.NoError(t, err)
	ledger, err := citation.NewLedger(ctx, ledgerStore)
	require.NoError(t, err)

	generator := mock.NewMockGenerator(answerText, `["What is multi-head attention?", "How are positions encoded?"]`)
	orch, err := research.NewOrchestrator(retriever, generator, ledger)
	require.NoError(t, err)

	collections, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { collections.Close() })

	m := metrics.New()
	opts = append([]Option{WithCollections(collections), WithMetrics(m)}, opts...)
	srv, err := NewServer(retriever, orch, ledger, opts...)
	require.NoError(t, err)

	return &fixture{
		server:      srv,
		retriever:   retriever,
		generator:   generator,
		ledger:      ledger,
		collections: collections,
		metrics:     m,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer_Validation(t *testing.T) {
	f := setupServer(t)
	orch, err := research.NewOrchestrator(f.retriever, f.generator, nil)
	require.NoError(t, err)

	_, err = NewServer(nil, orch, f.ledger)
	assert.ErrorIs(t, err, ErrRetrieverRequired)
	_, err = NewServer(f.retriever, nil, f.ledger)
	assert.ErrorIs(t, err, ErrAnswererRequired)
	_, err = NewServer(f.retriever, orch, nil)
	assert.ErrorIs(t, err, ErrLedgerRequired)

	srv, err := NewServer(f.retriever, orch, f.ledger, WithAddr(""), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr())
}

func TestHealth(t *testing.T) {
	f := setupServer(t)
	rec := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestSearch(t *testing.T) {
	f := setupServer(t)

	t.Run("default k", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/search?q=attention", "")
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[searchResponse](t, rec)
		assert.Equal(t, "attention", resp.Query)
		assert.Equal(t, 10, resp.K)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Attention Is All You Need", resp.Results[0].Source.Title)
		assert.Equal(t, 2.5, resp.Results[0].Score)
	})

	t.Run("explicit k", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/search?q=attention&k=3", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, f.retriever.lastK)
	})

	t.Run("empty results encode as a list", func(t *testing.T) {
		saved := f.retriever.results
		f.retriever.results = nil
		defer func() { f.retriever.results = saved }()

		rec := f.do(t, http.MethodGet, "/api/search?q=nothing", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"results":[]`)
	})

	for _, target := range []string{"/api/search", "/api/search?q=%20", "/api/search?q=x&k=0", "/api/search?q=x&k=abc", "/api/search?q=x&k=1000"} {
		t.Run("rejects "+target, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestAsk(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/ask", `{"query":"How does attention work?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	answer := decode[research.Answer](t, rec)
	assert.Equal(t, "How does attention work?", answer.Query)
	assert.Equal(t, answerText, answer.Answer)
	assert.Empty(t, answer.Error)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "Vaswani", answer.Citations[0].Label)
	assert.Equal(t, "2017", answer.Citations[0].Year)
	assert.Equal(t, []string{"What is multi-head attention?", "How are positions encoded?"}, answer.RelatedQueries)
	require.Len(t, answer.SourceDocuments, 1)

	report := decode[citation.Report](t, f.do(t, http.MethodGet, "/api/citations/report", ""))
	assert.Equal(t, 1, report.TotalPapers)
	require.Len(t, report.MostCited, 1)
	assert.Equal(t, 1, report.MostCited[0].UseCount)
	require.Len(t, report.RecentCitations, 1)
	assert.Equal(t, "How does attention work?", report.RecentCitations[0].Query)
}

func TestAsk_Errors(t *testing.T) {
	f := setupServer(t)

	t.Run("empty query", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/ask", `{"query":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/ask", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/ask", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("generation failure returns the error payload", func(t *testing.T) {
		f.generator.Err = errors.New("model offline")
		defer func() { f.generator.Err = nil }()

		rec := f.do(t, http.MethodPost, "/api/ask", `{"query":"anything"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		answer := decode[research.Answer](t, rec)
		assert.Equal(t, "model offline", answer.Error)
		assert.Contains(t, answer.Answer, "model offline")
		assert.Empty(t, answer.Citations)
		assert.Empty(t, f.ledger.Registry().Papers)
	})
}

func TestCitationExport(t *testing.T) {
	f := setupServer(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/ask", `{"query":"attention"}`).Code)

	t.Run("bibtex by default", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/citations/export", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
		assert.Contains(t, rec.Body.String(), "@article{")
		assert.Contains(t, rec.Body.String(), "title={Attention Is All You Need}")
	})

	t.Run("apa", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/citations/export?format=APA", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Vaswani (")
		assert.Contains(t, rec.Body.String(), "Retrieved from http://arxiv.org/abs/1706.03762")
	})

	t.Run("json", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/citations/export?format=json", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		reg := decode[map[string]any](t, rec)
		assert.Len(t, reg["papers"], 1)
	})

	t.Run("unsupported", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/citations/export?format=mla", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[map[string]string](t, rec)["error"], "unsupported export format")
	})
}

func TestCollections(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	paperID, err := f.collections.AddCollection(ctx, &storage.Collection{
		ContentType: core.ContentTypePaper, Title: "Attention Is All You Need", Source: "arxiv",
	})
	require.NoError(t, err)
	_, err = f.collections.AddCollection(ctx, &storage.Collection{
		ContentType: core.ContentTypeVideo, Title: "Transformer Explained", Source: "youtube",
	})
	require.NoError(t, err)
	require.NoError(t, f.collections.MarkIndexed(ctx, paperID))

	t.Run("list", func(t *testing.T) {
		items := decode[[]storage.Collection](t, f.do(t, http.MethodGet, "/api/collections", ""))
		assert.Len(t, items, 2)
	})

	t.Run("list by type", func(t *testing.T) {
		items := decode[[]storage.Collection](t, f.do(t, http.MethodGet, "/api/collections?content_type=video", ""))
		require.Len(t, items, 1)
		assert.Equal(t, "Transformer Explained", items[0].Title)
	})

	t.Run("list page past the end", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/collections?limit=5&offset=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("search", func(t *testing.T) {
		items := decode[[]storage.Collection](t, f.do(t, http.MethodGet, "/api/collections/search?q=arxiv", ""))
		require.Len(t, items, 1)
		assert.Equal(t, paperID, items[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/collections/"+strconv.FormatInt(paperID, 10), "")
		require.Equal(t, http.StatusOK, rec.Code)
		item := decode[storage.Collection](t, rec)
		assert.Equal(t, "Attention Is All You Need", item.Title)
		assert.True(t, item.Indexed)
	})

	t.Run("statistics", func(t *testing.T) {
		stats := decode[storage.CollectionStats](t, f.do(t, http.MethodGet, "/api/statistics", ""))
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.Indexed)
		assert.Equal(t, 1, stats.NotIndexed)
		assert.Equal(t, map[string]int{"paper": 1, "video": 1}, stats.ByType)
	})

	tests := []struct {
		target string
		code   int
	}{
		{"/api/collections/9999", http.StatusNotFound},
		{"/api/collections/abc", http.StatusBadRequest},
		{"/api/collections?content_type=book", http.StatusBadRequest},
		{"/api/collections?limit=-1", http.StatusBadRequest},
		{"/api/collections?offset=x", http.StatusBadRequest},
		{"/api/collections/search", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.code, f.do(t, http.MethodGet, tt.target, "").Code)
		})
	}
}

func TestCollections_NotConfigured(t *testing.T) {
	f := setupServer(t, WithCollections(nil))

	for _, target := range []string{"/api/collections", "/api/collections/1", "/api/collections/search?q=x", "/api/statistics"} {
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, target, "").Code, target)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupServer(t)
	f.do(t, http.MethodGet, "/health", "")
	f.do(t, http.MethodGet, "/api/search", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "scholar_http_requests_total")
	assert.Contains(t, body, `route="GET /health"`)
	assert.Contains(t, body, `code="400"`)
}

func TestServe_GracefulShutdown(t *testing.T) {
	f := setupServer(t, WithShutdownTimeout(time.Second))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
