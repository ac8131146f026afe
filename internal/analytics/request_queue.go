package analytics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
)

// DefaultWindow is how many of the latest requests a RequestQueue keeps: one
// per minute of a day.
const DefaultWindow = 1440

// Searcher is the part of search.Server a RequestQueue drives.
type Searcher interface {
	FindTopDocuments(raw string, opts ...search.FindOption) ([]ranker.Document, error)
}

// WindowSnapshot is a point-in-time view of a RequestQueue.
type WindowSnapshot struct {
	Tick     int64     `json:"tick"`
	Window   int       `json:"window"`
	Size     int       `json:"size"`
	NoResult int       `json:"no_result_requests"`
	TakenAt  time.Time `json:"taken_at"`
}

// RequestQueue runs searches on behalf of callers and remembers how many
// results each of the last Window requests returned. Requests that fail are
// not recorded.
type RequestQueue struct {
	mu       sync.Mutex
	searcher Searcher
	counts   []int
	head     int
	size     int
	tick     int64
	noResult int

	gauge  prometheus.Gauge
	logger *slog.Logger
}

// NewRequestQueue builds a queue over s. window <= 0 selects DefaultWindow.
func NewRequestQueue(s Searcher, window int) *RequestQueue {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RequestQueue{
		searcher: s,
		counts:   make([]int, window),
		logger:   slog.Default().With("component", "request-queue"),
	}
}

// WithGauge mirrors the no-result count into g.
func (q *RequestQueue) WithGauge(g prometheus.Gauge) *RequestQueue {
	q.gauge = g
	return q
}

// AddFindRequest runs the query and logs its result count.
func (q *RequestQueue) AddFindRequest(raw string, opts ...search.FindOption) ([]ranker.Document, error) {
	return q.Track(func() ([]ranker.Document, error) {
		return q.searcher.FindTopDocuments(raw, opts...)
	})
}

// Track records the outcome of a search run by the caller, for callers that
// need more from the search than the queue's Searcher returns.
func (q *RequestQueue) Track(find func() ([]ranker.Document, error)) ([]ranker.Document, error) {
	docs, err := find()
	if err != nil {
		return nil, err
	}
	q.record(len(docs))
	return docs, nil
}

func (q *RequestQueue) record(results int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tick++
	window := len(q.counts)
	if q.size == window {
		if q.counts[q.head] == 0 {
			q.noResult--
		}
		q.head = (q.head + 1) % window
		q.size--
	}
	q.counts[(q.head+q.size)%window] = results
	q.size++
	if results == 0 {
		q.noResult++
	}
	if q.gauge != nil {
		q.gauge.Set(float64(q.noResult))
	}
}

// NoResultRequests is the number of requests in the window that returned no
// documents.
func (q *RequestQueue) NoResultRequests() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.noResult
}

func (q *RequestQueue) Snapshot() WindowSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return WindowSnapshot{
		Tick:     q.tick,
		Window:   len(q.counts),
		Size:     q.size,
		NoResult: q.noResult,
		TakenAt:  time.Now().UTC(),
	}
}
