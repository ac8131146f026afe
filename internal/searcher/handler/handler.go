// Package handler exposes the search server over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/dedup"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/batch"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/paginate"
)

const (
	defaultPageSize = 100
	maxPageSize     = 10000
	maxBodyBytes    = 1 << 20
)

// Tracker receives analytics events. Both collector.BatchCollector and
// analytics.Aggregator implement it.
type Tracker interface {
	Track(key string, value any)
}

// Journal accepts document writes that are applied later, in log order.
// *publisher.Publisher implements it.
type Journal interface {
	Add(ctx context.Context, docID int, text string, status index.Status, ratings []int) error
	Remove(ctx context.Context, docID int, mode search.Mode) error
}

// Options tunes the handler. Without a Journal, writes are applied to the
// server directly and reported to the tracker; with one, they are
// published, answered with 202 Accepted, and reported by whoever applies
// them.
type Options struct {
	DefaultMode     search.Mode
	MaxBatchQueries int
	BatchWorkers    int
	Journal         Journal
}

type Handler struct {
	server    *search.Server
	queue     *analytics.RequestQueue
	cache     *cache.QueryCache
	batch     *batch.Dispatcher
	tracker   Tracker
	analytics *analytics.Handler
	parser    *parser.Parser
	opts      Options
	logger    *slog.Logger
}

// New wires the HTTP surface. queryCache and tracker may be nil. queue must
// search through queryCache when one is given, so that every request is
// counted exactly once.
func New(server *search.Server, queue *analytics.RequestQueue, queryCache *cache.QueryCache, tracker Tracker, stats *analytics.Handler, opts Options) *Handler {
	if opts.MaxBatchQueries <= 0 {
		opts.MaxBatchQueries = 100
	}
	var searcher batch.Searcher = server
	if queryCache != nil {
		searcher = queryCache
	}
	return &Handler{
		server:    server,
		queue:     queue,
		cache:     queryCache,
		batch:     batch.New(searcher, opts.BatchWorkers),
		tracker:   tracker,
		analytics: stats,
		parser:    parser.New(server.StopWords()),
		opts:      opts,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.AddDocument)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/words", h.WordFrequencies)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search/batch", h.BatchSearch)
	mux.HandleFunc("GET /api/v1/match", h.Match)
	mux.HandleFunc("POST /api/v1/dedup", h.Dedup)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type addDocumentRequest struct {
	ID      *int         `json:"id"`
	Text    string       `json:"text"`
	Status  index.Status `json:"status"`
	Ratings []int        `json:"ratings"`
}

func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if req.ID == nil {
		h.writeErr(w, r, apperrors.InvalidArgument("field 'id' is required"))
		return
	}
	if h.opts.Journal != nil {
		if err := h.opts.Journal.Add(r.Context(), *req.ID, req.Text, req.Status, req.Ratings); err != nil {
			h.writeErr(w, r, err)
			return
		}
		logger.FromContext(r.Context()).Debug("document add published", "doc_id", *req.ID)
		h.writeJSON(w, http.StatusAccepted, map[string]any{
			"id":      *req.ID,
			"status":  req.Status,
			"pending": true,
		})
		return
	}
	if err := h.server.AddDocument(*req.ID, req.Text, req.Status, req.Ratings); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.trackDocument(analytics.EventDocumentAdded, *req.ID, "")
	logger.FromContext(r.Context()).Debug("document added", "doc_id", *req.ID)
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":     *req.ID,
		"status": req.Status,
	})
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	mode, err := h.mode(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if h.opts.Journal != nil {
		if err := h.opts.Journal.Remove(r.Context(), docID, mode); err != nil {
			h.writeErr(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, map[string]any{"removed": docID, "mode": mode.String(), "pending": true})
		return
	}
	if err := h.server.RemoveDocument(docID, mode); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.trackDocument(analytics.EventDocumentRemoved, docID, mode.String())
	h.writeJSON(w, http.StatusOK, map[string]any{"removed": docID, "mode": mode.String()})
}

func (h *Handler) WordFrequencies(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":    docID,
		"words": h.server.GetWordFrequencies(docID),
	})
}

type listResponse struct {
	IDs        []int `json:"ids"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	Total      int   `json:"total"`
}

// ListDocuments pages over the live ids in ascending order. Pages are
// zero-based.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 0)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	size, err := intParam(r, "page_size", defaultPageSize)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	ids := slices.Collect(h.server.IDs())
	items, pages, err := paginate.At(ids, size, page)
	if err != nil {
		h.writeErr(w, r, apperrors.InvalidArgument("%v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{
		IDs:        append([]int{}, items...),
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
		Total:      len(ids),
	})
}

type searchResponse struct {
	Query    string            `json:"query"`
	Mode     string            `json:"mode"`
	Results  []ranker.Document `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	raw := r.URL.Query().Get("q")
	opts, mode, err := h.findOptions(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	cacheHit := false
	docs, err := h.queue.Track(func() ([]ranker.Document, error) {
		if h.cache == nil {
			return h.server.FindTopDocuments(raw, opts...)
		}
		docs, hit, err := h.cache.Find(ctx, raw, opts...)
		cacheHit = hit
		return docs, err
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	latency := time.Since(start)
	log.Info("search completed",
		"query", raw,
		"mode", mode,
		"returned", len(docs),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.trackSearch(r, raw, mode, len(docs), latency, cacheHit)

	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:    raw,
		Mode:     mode.String(),
		Results:  nonNil(docs),
		CacheHit: cacheHit,
	})
}

type batchRequest struct {
	Queries []string      `json:"queries"`
	Join    bool          `json:"join"`
	Status  *index.Status `json:"status"`
	Mode    string        `json:"mode"`
}

// BatchSearch runs every query concurrently. Results are grouped per query
// unless join is set.
func (h *Handler) BatchSearch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if len(req.Queries) > h.opts.MaxBatchQueries {
		h.writeErr(w, r, apperrors.InvalidArgument("at most %d queries per batch", h.opts.MaxBatchQueries))
		return
	}
	mode := h.opts.DefaultMode
	if req.Mode != "" {
		var err error
		if mode, err = search.ParseMode(req.Mode); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	opts := []search.FindOption{search.WithMode(mode)}
	if req.Status != nil {
		opts = append(opts, search.WithStatus(*req.Status))
	}

	if req.Join {
		docs, err := h.batch.ProcessQueriesJoined(r.Context(), req.Queries, opts...)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(docs)})
		return
	}
	grouped, err := h.batch.ProcessQueries(r.Context(), req.Queries, opts...)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	for i := range grouped {
		grouped[i] = nonNil(grouped[i])
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": grouped})
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	docID, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		h.writeErr(w, r, apperrors.InvalidArgument("query parameter 'id' must be an integer"))
		return
	}
	mode, err := h.mode(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	words, status, err := h.server.MatchDocument(r.URL.Query().Get("q"), docID, mode)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":     docID,
		"words":  words,
		"status": status,
	})
}

// journaledIndex reads from the server but sends removals to the journal.
type journaledIndex struct {
	*search.Server
	ctx     context.Context
	journal Journal
}

func (j journaledIndex) RemoveDocument(docID int, mode search.Mode) error {
	return j.journal.Remove(j.ctx, docID, mode)
}

func (h *Handler) Dedup(w http.ResponseWriter, r *http.Request) {
	if h.opts.Journal != nil {
		removed, err := dedup.RemoveDuplicates(r.Context(), journaledIndex{
			Server:  h.server,
			ctx:     r.Context(),
			journal: h.opts.Journal,
		})
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, map[string]any{"removed": nonNilIDs(removed), "pending": true})
		return
	}
	removed, err := dedup.RemoveDuplicates(r.Context(), h.server)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	for _, docID := range removed {
		h.trackDocument(analytics.EventDocumentRemoved, docID, search.Sequential.String())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"removed": nonNilIDs(removed)})
}

type statsResponse struct {
	Documents  int               `json:"documents"`
	Words      int               `json:"words"`
	Generation uint64            `json:"generation"`
	NoResult   int               `json:"no_result_requests"`
	Analytics  *analytics.Report `json:"analytics,omitempty"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Documents:  h.server.DocumentCount(),
		Words:      h.server.WordCount(),
		Generation: h.server.Generation(),
		NoResult:   h.queue.NoResultRequests(),
	}
	if h.analytics != nil {
		report := h.analytics.Report()
		resp.Analytics = &report
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses, bypassed := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"bypassed": bypassed,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) trackSearch(r *http.Request, raw string, mode search.Mode, returned int, latency time.Duration, cacheHit bool) {
	if h.tracker == nil {
		return
	}
	event := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     raw,
		Mode:      mode.String(),
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r.Context()),
	}
	if q, err := h.parser.Parse(raw); err == nil {
		event.Plus, event.Minus = q.Plus, q.Minus
	}
	h.tracker.Track(raw, event)
}

func (h *Handler) trackDocument(kind analytics.EventType, docID int, mode string) {
	if h.tracker == nil {
		return
	}
	h.tracker.Track(strconv.Itoa(docID), analytics.DocumentEvent{
		Type:       kind,
		DocumentID: docID,
		Mode:       mode,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *Handler) findOptions(r *http.Request) ([]search.FindOption, search.Mode, error) {
	mode, err := h.mode(r)
	if err != nil {
		return nil, 0, err
	}
	opts := []search.FindOption{search.WithMode(mode)}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := index.ParseStatus(s)
		if err != nil {
			return nil, 0, apperrors.InvalidArgument("%v", err)
		}
		opts = append(opts, search.WithStatus(status))
	}
	return opts, mode, nil
}

func (h *Handler) mode(r *http.Request) (search.Mode, error) {
	if m := r.URL.Query().Get("mode"); m != "" {
		return search.ParseMode(m)
	}
	return h.opts.DefaultMode, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidArgument("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int, error) {
	docID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, apperrors.InvalidArgument("document id %q is not an integer", r.PathValue("id"))
	}
	return docID, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.InvalidArgument("query parameter '%s' must be a non-negative integer", name)
	}
	return n, nil
}

func nonNil(docs []ranker.Document) []ranker.Document {
	if docs == nil {
		return []ranker.Document{}
	}
	return docs
}

func nonNilIDs(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
