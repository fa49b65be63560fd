// Package opensearch implements storage.DocumentStore on an OpenSearch
// cluster with the k-NN plugin.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
)

const (
	DefaultIndex      = "research_assistant"
	DefaultDimensions = 384
	DefaultTimeout    = 10 * time.Second

	scrollKeepAlive = time.Minute
	scrollPageSize  = 200
)

// Store talks to one OpenSearch index.
type Store struct {
	client     *opensearch.Client
	index      string
	dimensions int
	timeout    time.Duration
	refresh    string
	username   string
	password   string
	transport  http.RoundTripper
	logger     *slog.Logger
}

var (
	_ storage.DocumentStore   = (*Store)(nil)
	_ storage.DocumentScanner = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store) error

// WithIndex sets the index name.
func WithIndex(name string) Option {
	return func(s *Store) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("index name cannot be empty")
		}
		s.index = name
		return nil
	}
}

// WithDimensions sets the knn_vector dimension used when creating the index.
func WithDimensions(dims int) Option {
	return func(s *Store) error {
		if dims <= 0 {
			return fmt.Errorf("dimensions must be positive, got %d", dims)
		}
		s.dimensions = dims
		return nil
	}
}

// WithTimeout bounds every request. Requests exceeding it are reported as
// storage.ErrBackendUnavailable.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithRefresh makes writes visible to search before they return.
func WithRefresh(enabled bool) Option {
	return func(s *Store) error {
		if enabled {
			s.refresh = "true"
		} else {
			s.refresh = ""
		}
		return nil
	}
}

// WithBasicAuth sets cluster credentials.
func WithBasicAuth(username, password string) Option {
	return func(s *Store) error {
		s.username = username
		s.password = password
		return nil
	}
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Store) error {
		s.transport = rt
		return nil
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore creates a store for the cluster at addresses. No request is
// made until the first call.
func NewStore(addresses []string, opts ...Option) (*Store, error) {
	if len(addresses) == 0 {
		return nil, errors.New("at least one address is required")
	}
	s := &Store{
		index:      DefaultIndex,
		dimensions: DefaultDimensions,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "document-store", "backend", "opensearch", "index", s.index)

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: addresses,
		Username:  s.username,
		Password:  s.password,
		Transport: s.transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}
	s.client = client
	return s, nil
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (s *Store) Close() error {
	return nil
}

// do runs a request with the store timeout and maps transport failures
// and 5xx answers to storage.ErrBackendUnavailable.
func (s *Store) do(ctx context.Context, req opensearchapi.Request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", storage.ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("%w: reading response: %w", storage.ErrBackendUnavailable, err)
	}
	if res.StatusCode >= 500 {
		return res.StatusCode, body, fmt.Errorf("%w: status %d: %s", storage.ErrBackendUnavailable, res.StatusCode, errorReason(body))
	}
	return res.StatusCode, body, nil
}

// Ping checks cluster reachability.
func (s *Store) Ping(ctx context.Context) error {
	status, body, err := s.do(ctx, opensearchapi.PingRequest{})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("%w: ping status %d: %s", storage.ErrBackendUnavailable, status, errorReason(body))
	}
	return nil
}

// EnsureSchema creates the index with the document mapping if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	status, _, err := s.do(ctx, opensearchapi.IndicesExistsRequest{Index: []string{s.index}})
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping(s.dimensions))
	if err != nil {
		return err
	}
	status, resp, err := s.do(ctx, opensearchapi.IndicesCreateRequest{Index: s.index, Body: bytes.NewReader(body)})
	if err != nil {
		return err
	}
	if status >= 400 {
		if strings.Contains(string(resp), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("creating index %s: status %d: %s", s.index, status, errorReason(resp))
	}
	s.logger.Info("created index", "dimensions", s.dimensions)
	return nil
}

// IndexDocument writes one document under its derived ID.
func (s *Store) IndexDocument(ctx context.Context, doc *core.Document) (*storage.IndexAck, error) {
	id := core.DocumentID(doc)
	body, err := storage.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}

	status, resp, err := s.do(ctx, opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    s.refresh,
	})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: status %d: %s", storage.ErrDocumentRejected, status, errorReason(resp))
	}

	var ack struct {
		ID     string `json:"_id"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(resp, &ack); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return &storage.IndexAck{ID: ack.ID, Result: ack.Result}, nil
}

// BulkIndex writes docs with one _bulk call and maps each response item
// back to its input slot.
func (s *Store) BulkIndex(ctx context.Context, docs []*core.Document) ([]storage.BulkItem, error) {
	items := make([]storage.BulkItem, len(docs))
	if len(docs) == 0 {
		return items, nil
	}

	var buf bytes.Buffer
	for i, doc := range docs {
		items[i].ID = core.DocumentID(doc)
		action := map[string]any{"index": map[string]any{"_index": s.index, "_id": items[i].ID}}
		line, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		source, err := storage.MarshalDocument(doc)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}

	status, resp, err := s.do(ctx, opensearchapi.BulkRequest{Body: &buf, Refresh: s.refresh})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: bulk status %d: %s", storage.ErrDocumentRejected, status, errorReason(resp))
	}

	var parsed bulkResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	if len(parsed.Items) != len(docs) {
		return nil, fmt.Errorf("%w: bulk returned %d items for %d documents", storage.ErrSerializationFailed, len(parsed.Items), len(docs))
	}

	for i, entry := range parsed.Items {
		for _, result := range entry {
			if result.Status >= 300 || result.Error != nil {
				reason := "unknown"
				if result.Error != nil {
					reason = result.Error.Type + ": " + result.Error.Reason
				}
				items[i].Err = fmt.Errorf("%w: status %d: %s", storage.ErrDocumentRejected, result.Status, reason)
			}
		}
	}
	return items, nil
}

// Search runs a best_fields multi_match with fuzziness, adding a cosine
// script_score clause when req.Vector is set.
func (s *Store) Search(ctx context.Context, req *storage.SearchRequest) ([]*core.SearchResult, error) {
	if req == nil || req.K <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	body, err := json.Marshal(searchBody(req))
	if err != nil {
		return nil, err
	}

	status, resp, err := s.do(ctx, opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 400 {
		if len(req.Vector) > 0 {
			return nil, fmt.Errorf("%w: status %d: %s", storage.ErrVectorUnsupported, status, errorReason(resp))
		}
		return nil, fmt.Errorf("%w: status %d: %s", storage.ErrInvalidQuery, status, errorReason(resp))
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	results := make([]*core.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, &core.SearchResult{Score: hit.Score, Source: hit.Source})
	}
	return results, nil
}

// Count returns the number of documents in the index.
func (s *Store) Count(ctx context.Context) (int, error) {
	status, resp, err := s.do(ctx, opensearchapi.CountRequest{Index: []string{s.index}})
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	if status >= 400 {
		return 0, fmt.Errorf("count status %d: %s", status, errorReason(resp))
	}
	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return parsed.Count, nil
}

// ScanDocuments walks the index with the scroll API.
func (s *Store) ScanDocuments(ctx context.Context, fn func(doc *core.Document) error) error {
	size := scrollPageSize
	status, resp, err := s.do(ctx, opensearchapi.SearchRequest{
		Index:  []string{s.index},
		Body:   strings.NewReader(`{"query":{"match_all":{}},"sort":["_doc"]}`),
		Scroll: scrollKeepAlive,
		Size:   &size,
	})
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}

	var scrollID string
	defer func() {
		if scrollID != "" {
			s.do(context.WithoutCancel(ctx), opensearchapi.ClearScrollRequest{ScrollID: []string{scrollID}})
		}
	}()

	for {
		if status >= 400 {
			return fmt.Errorf("scroll status %d: %s", status, errorReason(resp))
		}
		var page searchResponse
		if err := json.Unmarshal(resp, &page); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		scrollID = page.ScrollID
		if len(page.Hits.Hits) == 0 {
			return nil
		}
		for _, hit := range page.Hits.Hits {
			if err := fn(hit.Source); err != nil {
				return err
			}
		}
		status, resp, err = s.do(ctx, opensearchapi.ScrollRequest{ScrollID: scrollID, Scroll: scrollKeepAlive})
		if err != nil {
			return err
		}
	}
}

type bulkResponse struct {
	Errors bool                           `json:"errors"`
	Items  []map[string]bulkResponseEntry `json:"items"`
}

type bulkResponseEntry struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Source *core.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// errorReason extracts error.reason from an OpenSearch error body.
func errorReason(body []byte) string {
	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Type != "" {
		return parsed.Error.Type + ": " + parsed.Error.Reason
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// formatFields renders boosts in multi_match syntax ("title^3").
func formatFields(fields []storage.FieldWeight) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Boost == 1 {
			out = append(out, f.Field)
			continue
		}
		out = append(out, f.Field+"^"+strconv.FormatFloat(f.Boost, 'f', -1, 64))
	}
	return out
}

func searchBody(req *storage.SearchRequest) map[string]any {
	multiMatch := map[string]any{
		"query":  req.Query,
		"fields": formatFields(req.Fields),
		"type":   "best_fields",
	}
	if req.Fuzzy {
		multiMatch["fuzziness"] = "AUTO"
	}
	lexical := map[string]any{"multi_match": multiMatch}

	if len(req.Vector) == 0 {
		return map[string]any{"size": req.K, "query": lexical}
	}

	return map[string]any{
		"size": req.K,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					lexical,
					map[string]any{
						"script_score": map[string]any{
							"query": map[string]any{"match_all": map[string]any{}},
							"script": map[string]any{
								"source": "cosineSimilarity(params.query_vector, doc[params.field]) + 1.0",
								"params": map[string]any{
									"field":        "embedding",
									"query_vector": req.Vector,
								},
							},
						},
					},
				},
			},
		},
	}
}

func indexMapping(dimensions int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":   2,
				"number_of_replicas": 1,
				"knn":                true,
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"content_type": map[string]any{"type": "keyword"},
				"title": map[string]any{
					"type":   "text",
					"fields": map[string]any{"keyword": map[string]any{"type": "keyword"}},
				},
				"abstract":             map[string]any{"type": "text"},
				"content":              map[string]any{"type": "text"},
				"authors":              map[string]any{"type": "keyword"},
				"publication_date":     map[string]any{"type": "date"},
				"url":                  map[string]any{"type": "keyword"},
				"transcript":           map[string]any{"type": "text"},
				"diagram_descriptions": map[string]any{"type": "text"},
				"key_concepts":         map[string]any{"type": "keyword"},
				"citations": map[string]any{
					"type": "nested",
					"properties": map[string]any{
						"text":   map[string]any{"type": "text"},
						"source": map[string]any{"type": "keyword"},
					},
				},
				"embedding": map[string]any{
					"type":       "knn_vector",
					"dimension":  dimensions,
					"space_type": "cosinesimil",
				},
				"metadata": map[string]any{"type": "object", "enabled": true},
			},
		},
	}
}
