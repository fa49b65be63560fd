package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/poiesic/scholar/citation"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/research"
	"github.com/poiesic/scholar/search"
	"github.com/poiesic/scholar/storage"
)

const maxAskBody = 64 << 10

type searchResponse struct {
	Query   string               `json:"query"`
	K       int                  `json:"k"`
	Results []*core.SearchResult `json:"results"`
}

type askRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	k, err := intParam(r, "k", search.DefaultK)
	if err != nil || k <= 0 || k > maxK {
		writeError(w, http.StatusBadRequest, "k must be between 1 and "+strconv.Itoa(maxK))
		return
	}

	results := s.retriever.Search(r.Context(), query, k)
	if results == nil {
		results = []*core.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, K: k, Results: results})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	answer, err := s.answerer.ProcessQuery(r.Context(), req.Query)
	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, research.ErrGenerationFailed) && answer != nil:
		// The payload carries the failure in its error field.
		s.logger.Warn("answer generation failed", "query_id", answer.QueryID.String(), "err", err)
	case err != nil:
		s.logger.Error("query failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Report())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(citation.FormatBibTeX)
	}
	format, err := citation.ParseFormat(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.ledger.Export(format)
	if err != nil {
		s.logger.Error("export failed", "format", format, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := "text/plain; charset=utf-8"
	if format == citation.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if !s.requireCollections(w) {
		return
	}

	var contentType core.ContentType
	if raw := r.URL.Query().Get("content_type"); raw != "" {
		ct, err := core.ParseContentType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		contentType = ct
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	items, err := s.collections.ListCollections(r.Context(), contentType, limit, offset)
	if err != nil {
		s.internalError(w, "listing collections", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (s *Server) handleSearchCollections(w http.ResponseWriter, r *http.Request) {
	if !s.requireCollections(w) {
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	items, err := s.collections.SearchCollections(r.Context(), q, limit)
	if err != nil {
		s.internalError(w, "searching collections", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	if !s.requireCollections(w) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collection id")
		return
	}

	item, err := s.collections.GetCollection(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	if err != nil {
		s.internalError(w, "getting collection", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !s.requireCollections(w) {
		return
	}

	stats, err := s.collections.Statistics(r.Context())
	if err != nil {
		s.internalError(w, "collecting statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) requireCollections(w http.ResponseWriter) bool {
	if s.collections == nil {
		writeError(w, http.StatusServiceUnavailable, "collection tracking is not configured")
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func nonNil(items []*storage.Collection) []*storage.Collection {
	if items == nil {
		return []*storage.Collection{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
