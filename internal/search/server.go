// Package search is the public face of the index: a Server that owns the
// document store and answers ranked and per-document match queries.
//
// All methods are safe for concurrent use. Mutations take an exclusive
// lock, queries share a read lock, so a query never observes a half-applied
// add or remove.
package search

import (
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
)

type Server struct {
	mu         sync.RWMutex
	idx        *index.MemoryIndex
	generation uint64

	parser     *parser.Parser
	sequential executor.Evaluator
	parallel   executor.Evaluator
	params     ranker.RankParams
	workers    int

	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(stopWords tokenizer.StopWords, cfg Config) *Server {
	cfg = cfg.withDefaults()
	idx := index.NewMemoryIndex(stopWords)
	return &Server{
		idx:        idx,
		parser:     parser.New(stopWords),
		sequential: executor.NewSequential(idx),
		parallel:   executor.NewParallel(idx, cfg.Shards, cfg.Workers),
		params:     ranker.RankParams{MaxResults: cfg.MaxResults, Epsilon: cfg.Epsilon},
		workers:    cfg.Workers,
		logger:     slog.Default().With("component", "search-server"),
	}
}

// NewFromText builds a Server whose stop words are the space-separated words
// of stopWords.
func NewFromText(stopWords string, cfg Config) (*Server, error) {
	sw, err := tokenizer.ParseStopWords(stopWords)
	if err != nil {
		return nil, err
	}
	return New(sw, cfg), nil
}

// WithMetrics makes the server report to m. It must be called before the
// server is shared.
func (s *Server) WithMetrics(m *metrics.Metrics) *Server {
	s.metrics = m
	return s
}

func (s *Server) AddDocument(docID int, text string, status index.Status, ratings []int) error {
	s.mu.Lock()
	if err := s.idx.AddDocument(docID, text, status, ratings); err != nil {
		s.mu.Unlock()
		return err
	}
	s.generation++
	live := s.idx.DocCount()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DocsAddedTotal.Inc()
		s.metrics.LiveDocuments.Set(float64(live))
	}
	s.logger.Debug("document added", "doc_id", docID, "status", status, "live", live)
	return nil
}

// RemoveDocument deletes a live document. Parallel mode spreads the posting
// updates over the configured workers; the final state is the same.
func (s *Server) RemoveDocument(docID int, mode Mode) error {
	s.mu.Lock()
	var err error
	if mode == Parallel {
		err = s.idx.RemoveDocumentParallel(docID, s.workers)
	} else {
		err = s.idx.RemoveDocument(docID)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.generation++
	live := s.idx.DocCount()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DocsRemovedTotal.WithLabelValues(mode.String()).Inc()
		s.metrics.LiveDocuments.Set(float64(live))
	}
	s.logger.Debug("document removed", "doc_id", docID, "mode", mode, "live", live)
	return nil
}

// FindTopDocuments returns at most MaxResults documents ranked by TF-IDF
// relevance. Without options only ACTUAL documents are considered and the
// query is evaluated sequentially.
func (s *Server) FindTopDocuments(raw string, opts ...FindOption) ([]ranker.Document, error) {
	o := resolve(opts)
	start := time.Now()

	q, err := s.parser.Parse(raw)
	if err != nil {
		s.observeQuery(o.mode, start, 0, err)
		return nil, err
	}

	s.mu.RLock()
	docs := s.evaluator(o.mode).FindAll(q, o.pred)
	s.mu.RUnlock()

	docs = ranker.Top(docs, s.params)
	s.observeQuery(o.mode, start, len(docs), nil)
	return docs, nil
}

// MatchDocument returns the plus words of raw found in the document along
// with its status. The word list is empty when any minus word matches.
func (s *Server) MatchDocument(raw string, docID int, mode Mode) ([]string, index.Status, error) {
	var (
		q   parser.Query
		err error
	)
	if mode == Parallel {
		q, err = s.parser.ParseUnsorted(raw)
	} else {
		q, err = s.parser.Parse(raw)
	}
	if err != nil {
		return nil, index.StatusActual, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idx.Record(docID)
	if !ok {
		return nil, index.StatusActual, apperrors.NotFound(docID)
	}
	return s.evaluator(mode).Match(q, docID), rec.Status, nil
}

// GetWordFrequencies returns a copy of the word -> term frequency map of a
// document. Unknown ids yield an empty map.
func (s *Server) GetWordFrequencies(docID int) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.WordFrequencies(docID)
}

// IDs yields the live document ids in ascending order as of the call.
func (s *Server) IDs() iter.Seq[int] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.IDs()
}

func (s *Server) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.DocCount()
}

// WordCount is the number of distinct indexed words.
func (s *Server) WordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.WordCount()
}

// Generation increases by one with every successful mutation.
func (s *Server) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// StopWords returns the stop words the server was built with.
func (s *Server) StopWords() tokenizer.StopWords {
	return s.idx.StopWords()
}

// CheckConsistency verifies that the inverted and forward indices mirror
// each other.
func (s *Server) CheckConsistency() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.CheckConsistency()
}

func (s *Server) evaluator(mode Mode) executor.Evaluator {
	if mode == Parallel {
		return s.parallel
	}
	return s.sequential
}

func (s *Server) observeQuery(mode Mode, start time.Time, results int, err error) {
	elapsed := time.Since(start)
	resultType := "hit"
	switch {
	case err != nil:
		resultType = "error"
	case results == 0:
		resultType = "zero_result"
	}
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(mode.String(), resultType).Inc()
		s.metrics.SearchLatency.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
		if err == nil {
			s.metrics.SearchResultsCount.Observe(float64(results))
		}
	}
	s.logger.Debug("query executed",
		"mode", mode,
		"result_type", resultType,
		"results", results,
		"latency", elapsed,
	)
}
