package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	DocumentsAdded    int64        `json:"documents_added"`
	DocumentsRemoved  int64        `json:"documents_removed"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	ParallelSearches  int64        `json:"parallel_searches"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and document events, usually consumed back from
// the analytics topic, into running statistics.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	docsAdded         atomic.Int64
	docsRemoved       atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	parallel          atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 10000),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

type envelope struct {
	Type EventType `json:"type"`
}

// HandleEvent is a kafka.MessageHandler. Undecodable messages are logged and
// acknowledged so they do not block the partition.
func (a *Aggregator) HandleEvent(ctx context.Context, key []byte, value []byte) error {
	head, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
		return nil
	}
	switch head.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		a.RecordSearch(event)
	case EventDocumentAdded, EventDocumentRemoved:
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			a.logger.Error("failed to decode document event", "error", err)
			return nil
		}
		a.RecordDocument(event)
	default:
		a.logger.Warn("unknown analytics event type", "type", head.Type)
	}
	return nil
}

// Track records an event directly, for deployments without Kafka. It has
// the signature of collector.BatchCollector.Track so either can sit behind
// the same interface.
func (a *Aggregator) Track(_ string, value any) {
	switch event := value.(type) {
	case SearchEvent:
		a.RecordSearch(event)
	case DocumentEvent:
		a.RecordDocument(event)
	default:
		a.logger.Warn("untracked analytics value", "type", fmt.Sprintf("%T", value))
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.totalSearches.Add(1)

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Returned == 0 {
		a.zeroResults.Add(1)
	}
	if event.Mode == "parallel" {
		a.parallel.Add(1)
	}

	a.mu.Lock()
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.Returned == 0 {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) RecordDocument(event DocumentEvent) {
	switch event.Type {
	case EventDocumentAdded:
		a.docsAdded.Add(1)
	case EventDocumentRemoved:
		a.docsRemoved.Add(1)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches.Load(),
		DocumentsAdded:   a.docsAdded.Load(),
		DocumentsRemoved: a.docsRemoved.Load(),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		ZeroResultCount:  a.zeroResults.Load(),
		ParallelSearches: a.parallel.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query text so equal counts are deterministic.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
