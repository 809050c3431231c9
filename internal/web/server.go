// Package web serves the archive tools and read endpoints over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/metrics"
	"github.com/renderinc/briefing/internal/tools"
)

const maxBodyBytes = 1 << 20

// Archive is the read side the HTTP endpoints need
type Archive interface {
	GetItem(ctx context.Context, id string) (*archive.ContentItem, error)
	SearchItems(ctx context.Context, q archive.ItemQuery) ([]archive.ContentItem, error)
	SearchDigests(ctx context.Context, daysBack int, query string) ([]archive.DigestSnapshot, error)
	Counts(ctx context.Context) (items, digests int, err error)
	EmbedderHealth(ctx context.Context) error
}

type Server struct {
	archive  Archive
	registry *tools.Registry
	metrics  *metrics.Metrics
	logger   *log.Logger
}

type SearchResponse struct {
	Results []archive.ContentItem `json:"results"`
	Query   string                `json:"query"`
	Mode    string                `json:"mode"`
	Count   int                   `json:"count"`
}

func NewServer(a Archive, registry *tools.Registry, m *metrics.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		archive:  a,
		registry: registry,
		metrics:  m,
		logger:   logger.WithPrefix("http"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("POST /api/tools/{name}", s.handleCallTool)
	mux.HandleFunc("GET /api/items/{id}", s.handleGetItem)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/digests", s.handleDigests)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.withRequestLog(mux)
}

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("Request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status,
			"duration", time.Since(start), "request_id", id)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	items, digests, err := s.archive.Counts(r.Context())
	if err != nil {
		status = "degraded"
	}
	embedErr := s.archive.EmbedderHealth(r.Context())

	body := map[string]any{
		"status":             status,
		"items":              items,
		"digests":            digests,
		"embedder_available": embedErr == nil,
	}

	if embedErr != nil {
		body["embedder_error"] = embedErr.Error()
	}

	code := http.StatusOK
	if err != nil {
		body["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Definitions())
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.registry.Get(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown tool: %s", name))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	res, err := s.registry.Execute(r.Context(), name, string(body))
	if err != nil {
		s.logger.Error("Tool failed", "tool", name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Error != "" {
		writeError(w, http.StatusUnprocessableEntity, res.Error)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Output))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.archive.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprintf(w, "# %s\n\n%s\n", item.Title, item.Body)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	req := archive.ItemQuery{
		Query:  query,
		Mode:   q.Get("mode"),
		Source: q.Get("source"),
		Topic:  q.Get("topic"),
	}
	if req.Mode == "" {
		req.Mode = archive.ModeSemantic
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		req.Limit = l
	}
	if weightStr := q.Get("weight"); weightStr != "" {
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil || weight < 0 || weight > 1 {
			writeError(w, http.StatusBadRequest, "weight must be between 0 and 1")
			return
		}
		req.KeywordWeight = &weight
	}

	results, err := s.archive.SearchItems(r.Context(), req)
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results, Query: query, Mode: req.Mode, Count: len(results)})
}

func (s *Server) handleDigests(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}

	digests, err := s.archive.SearchDigests(r.Context(), days, r.URL.Query().Get("q"))
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": digests, "count": len(digests)})
}

func writeArchiveError(w http.ResponseWriter, err error) {
	if errors.Is(err, archive.ErrNotInitialized) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
