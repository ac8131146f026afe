package search

import (
	"runtime"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/accumulator"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

// Mode selects how a query or removal is evaluated.
type Mode int

const (
	Sequential Mode = iota
	Parallel
)

func (m Mode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "sequential"
}

// ParseMode accepts "sequential"/"seq" and "parallel"/"par". An empty
// string is Sequential.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "seq", "sequential":
		return Sequential, nil
	case "par", "parallel":
		return Parallel, nil
	default:
		return Sequential, apperrors.InvalidArgument("unknown execution mode %q", s)
	}
}

// Config carries the ranking and concurrency tunables of a Server. Zero
// fields fall back to DefaultConfig.
type Config struct {
	MaxResults int
	Epsilon    float64
	Shards     int
	Workers    int
}

func DefaultConfig() Config {
	return Config{
		MaxResults: ranker.DefaultMaxResults,
		Epsilon:    ranker.DefaultEpsilon,
		Shards:     accumulator.DefaultShards,
		Workers:    runtime.GOMAXPROCS(0),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxResults <= 0 {
		c.MaxResults = d.MaxResults
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.Shards <= 0 {
		c.Shards = d.Shards
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

type findOptions struct {
	pred   ranker.Predicate
	mode   Mode
	status *index.Status
}

// FindOption customizes a single FindTopDocuments call.
type FindOption func(*findOptions)

// WithStatus keeps only documents with the given status. It replaces any
// earlier WithPredicate.
func WithStatus(status index.Status) FindOption {
	return func(o *findOptions) {
		o.pred = ranker.ByStatus(status)
		o.status = &status
	}
}

// WithPredicate keeps only documents accepted by pred. In Parallel mode pred
// is called from several goroutines at once. A nil pred leaves the filter
// unchanged.
func WithPredicate(pred ranker.Predicate) FindOption {
	return func(o *findOptions) {
		if pred == nil {
			return
		}
		o.pred = pred
		o.status = nil
	}
}

func WithMode(mode Mode) FindOption {
	return func(o *findOptions) {
		o.mode = mode
	}
}

func resolve(opts []FindOption) findOptions {
	actual := index.StatusActual
	o := findOptions{
		pred:   ranker.ByStatus(actual),
		mode:   Sequential,
		status: &actual,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Describe reports the evaluation mode and, when the filter is a plain
// status filter, that status. Caches use it to decide whether a call is
// cacheable.
func Describe(opts ...FindOption) (Mode, index.Status, bool) {
	o := resolve(opts)
	if o.status == nil {
		return o.mode, 0, false
	}
	return o.mode, *o.status, true
}
