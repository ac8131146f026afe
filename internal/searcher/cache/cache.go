// Package cache keeps ranked results of status-filtered queries in Redis.
//
// Keys embed the index generation, so every add or remove makes earlier
// entries unreachable without a round trip; they then age out by TTL.
// Queries with a custom predicate are never cached.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend, normally *pkgredis.Client. Get reports a
// missing key with an error for which pkgredis.IsNilError is true.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Backend is the searcher being cached.
type Backend interface {
	FindTopDocuments(raw string, opts ...search.FindOption) ([]ranker.Document, error)
	Generation() uint64
	StopWords() tokenizer.StopWords
}

// Config tunes a QueryCache.
type Config struct {
	TTL            time.Duration
	OpTimeout      time.Duration
	Breaker        resilience.CircuitBreakerConfig
	InstancePrefix string
}

// QueryCache wraps a Backend and itself satisfies the FindTopDocuments
// contract, so it can sit under a request queue or batch dispatcher.
type QueryCache struct {
	backend  Backend
	store    Store
	parser   *parser.Parser
	cfg      Config
	prefix   string
	group    singleflight.Group
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
	bypassed atomic.Int64
}

func New(backend Backend, store Store, cfg Config) *QueryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 100 * time.Millisecond
	}
	instance := cfg.InstancePrefix
	if instance == "" {
		instance = uuid.NewString()
	}
	return &QueryCache{
		backend: backend,
		store:   store,
		parser:  parser.New(backend.StopWords()),
		cfg:     cfg,
		prefix:  keyPrefix + instance + ":",
		breaker: resilience.NewCircuitBreaker("query-cache", cfg.Breaker),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// WithMetrics reports hits, misses and breaker state to m.
func (c *QueryCache) WithMetrics(m *metrics.Metrics) *QueryCache {
	c.metrics = m
	c.cfg.Breaker.OnStateChange = func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
	c.breaker = resilience.NewCircuitBreaker("query-cache", c.cfg.Breaker)
	return c
}

// FindTopDocuments answers from the cache when it can and from the backend
// otherwise. Cache failures never fail the query.
func (c *QueryCache) FindTopDocuments(raw string, opts ...search.FindOption) ([]ranker.Document, error) {
	docs, _, err := c.Find(context.Background(), raw, opts...)
	return docs, err
}

// Find is FindTopDocuments with a context for the cache round trips. The
// boolean reports a cache hit.
func (c *QueryCache) Find(ctx context.Context, raw string, opts ...search.FindOption) ([]ranker.Document, bool, error) {
	mode, status, cacheable := search.Describe(opts...)
	if !cacheable {
		c.bypassed.Add(1)
		docs, err := c.backend.FindTopDocuments(raw, opts...)
		return docs, false, err
	}
	q, err := c.parser.Parse(raw)
	if err != nil {
		return nil, false, err
	}

	key := c.buildKey(c.backend.Generation(), mode, status, q)
	if docs, ok := c.get(ctx, key); ok {
		return docs, true, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		docs, err := c.backend.FindTopDocuments(raw, opts...)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.Document), false, nil
}

// Invalidate drops every entry written by this instance.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, c.prefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses, bypassed int64) {
	return c.hits.Load(), c.misses.Load(), c.bypassed.Load()
}

func (c *QueryCache) get(ctx context.Context, key string) ([]ranker.Document, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.OpTimeout, "cache-get", func(ctx context.Context) error {
			var err error
			data, err = c.store.Get(ctx, key)
			if pkgredis.IsNilError(err) {
				data = nil
				return nil
			}
			return err
		})
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	var docs []ranker.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return docs, true
}

func (c *QueryCache) set(ctx context.Context, key string, docs []ranker.Document) {
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.OpTimeout, "cache-set", func(ctx context.Context) error {
			return c.store.Set(ctx, key, data, c.cfg.TTL)
		})
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the canonical query so that word order, repetition and
// stop words do not split the cache.
func (c *QueryCache) buildKey(generation uint64, mode search.Mode, status index.Status, q parser.Query) string {
	raw := fmt.Sprintf("gen=%d|mode=%s|status=%s|%s", generation, mode, status, q.Key())
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}
