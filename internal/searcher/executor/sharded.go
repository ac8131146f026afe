package executor

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/accumulator"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
)

// ParallelEvaluator spreads plus and minus words over at most workers
// goroutines. The predicate passed to FindAll is called concurrently.
type ParallelEvaluator struct {
	src     Source
	shards  int
	workers int
	logger  *slog.Logger
}

// NewParallel builds a ParallelEvaluator. shards sizes the per-query
// accumulator; workers <= 0 leaves the fan-out unbounded.
func NewParallel(src Source, shards, workers int) *ParallelEvaluator {
	if shards <= 0 {
		shards = accumulator.DefaultShards
	}
	return &ParallelEvaluator{
		src:     src,
		shards:  shards,
		workers: workers,
		logger:  slog.Default().With("component", "parallel-evaluator"),
	}
}

// fanOut calls task(i) for every i in [0, n) on at most e.workers
// goroutines and returns once all calls have finished.
func (e *ParallelEvaluator) fanOut(n int, task func(i int)) {
	limit := e.workers
	if limit <= 0 || limit > n {
		limit = n
	}
	if limit == 0 {
		return
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := range n {
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			task(i)
		})
	}
	wg.Wait()
}

// FindAll adds every plus-word contribution, waits for all of them, and only
// then erases documents hit by minus words, so an erase can never be undone
// by a late addition.
func (e *ParallelEvaluator) FindAll(q parser.Query, pred ranker.Predicate) []ranker.Document {
	acc := accumulator.New[float64](e.shards)
	total := e.src.DocCount()

	e.fanOut(len(q.Plus), func(i int) {
		docs, ok := e.src.Postings(q.Plus[i])
		if !ok {
			return
		}
		idf := ranker.ComputeIDF(total, len(docs))
		for docID, tf := range docs {
			rec, _ := e.src.Record(docID)
			if pred(docID, rec.Status, rec.Rating) {
				acc.Do(docID, func(relevance *float64) {
					*relevance += tf * idf
				})
			}
		}
	})

	e.fanOut(len(q.Minus), func(i int) {
		docs, ok := e.src.Postings(q.Minus[i])
		if !ok {
			return
		}
		for docID := range docs {
			acc.Erase(docID)
		}
	})

	scores := acc.Flatten()
	e.logger.Debug("parallel evaluation finished",
		"plus_words", len(q.Plus),
		"minus_words", len(q.Minus),
		"candidates", len(scores),
	)
	return collect(e.src, scores)
}

// Match checks the minus words concurrently, then the plus words, and sorts
// and deduplicates the matched words once at the end. q may come from
// parser.ParseUnsorted.
func (e *ParallelEvaluator) Match(q parser.Query, docID int) []string {
	var excluded atomic.Bool
	e.fanOut(len(q.Minus), func(i int) {
		if !excluded.Load() && e.src.ContainsWord(q.Minus[i], docID) {
			excluded.Store(true)
		}
	})
	if excluded.Load() {
		return []string{}
	}

	hits := make([]bool, len(q.Plus))
	e.fanOut(len(q.Plus), func(i int) {
		hits[i] = e.src.ContainsWord(q.Plus[i], docID)
	})

	matched := make([]string, 0, len(q.Plus))
	for i, word := range q.Plus {
		if hits[i] {
			matched = append(matched, word)
		}
	}
	slices.Sort(matched)
	return slices.Compact(matched)
}
