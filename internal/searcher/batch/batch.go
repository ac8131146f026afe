// Package batch runs many queries against one searcher concurrently.
package batch

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
)

type Searcher interface {
	FindTopDocuments(raw string, opts ...search.FindOption) ([]ranker.Document, error)
}

// Dispatcher evaluates each query of a batch on its own goroutine, with at
// most Workers running at once.
type Dispatcher struct {
	searcher Searcher
	workers  int
}

// New builds a Dispatcher. workers <= 0 means GOMAXPROCS.
func New(s Searcher, workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Dispatcher{searcher: s, workers: workers}
}

// ProcessQueries returns the results of every query in input order. The
// first failing query cancels the ones not yet started and its error is
// returned.
func (d *Dispatcher) ProcessQueries(ctx context.Context, queries []string, opts ...search.FindOption) ([][]ranker.Document, error) {
	results := make([][]ranker.Document, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, raw := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs, err := d.searcher.FindTopDocuments(raw, opts...)
			if err != nil {
				return fmt.Errorf("query %d %q: %w", i, raw, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessQueriesJoined flattens the results of ProcessQueries, keeping the
// documents of each query together and the queries in input order.
func (d *Dispatcher) ProcessQueriesJoined(ctx context.Context, queries []string, opts ...search.FindOption) ([]ranker.Document, error) {
	grouped, err := d.ProcessQueries(ctx, queries, opts...)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, docs := range grouped {
		total += len(docs)
	}
	joined := make([]ranker.Document, 0, total)
	for _, docs := range grouped {
		joined = append(joined, docs...)
	}
	return joined, nil
}
