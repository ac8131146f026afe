// Package executor evaluates parsed queries against the index. Two
// strategies share one contract: SequentialEvaluator accumulates relevance in
// a plain map on the calling goroutine, ParallelEvaluator fans the query
// words out over worker goroutines that write into a sharded accumulator.
// For the same index and query both return the same documents, with
// relevances that differ at most by floating-point summation order.
package executor

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
)

// Source is the read-only view of the index the evaluators need.
type Source interface {
	DocCount() int
	Postings(word string) (map[int]float64, bool)
	Record(docID int) (index.Record, bool)
	ContainsWord(word string, docID int) bool
}

// Evaluator runs the relevance and match steps of a query. Implementations
// only read from their Source.
type Evaluator interface {
	// FindAll returns every document matching at least one plus word,
	// accepted by pred and containing no minus word, in ascending id order.
	FindAll(q parser.Query, pred ranker.Predicate) []ranker.Document
	// Match returns the sorted plus words of q present in docID, or an
	// empty list when any minus word is present. docID must be live.
	Match(q parser.Query, docID int) []string
}

type SequentialEvaluator struct {
	src Source
}

func NewSequential(src Source) *SequentialEvaluator {
	return &SequentialEvaluator{src: src}
}

func (e *SequentialEvaluator) FindAll(q parser.Query, pred ranker.Predicate) []ranker.Document {
	scores := make(map[int]float64)
	total := e.src.DocCount()
	for _, word := range q.Plus {
		docs, ok := e.src.Postings(word)
		if !ok {
			continue
		}
		idf := ranker.ComputeIDF(total, len(docs))
		for docID, tf := range docs {
			rec, _ := e.src.Record(docID)
			if pred(docID, rec.Status, rec.Rating) {
				scores[docID] += tf * idf
			}
		}
	}
	for _, word := range q.Minus {
		docs, ok := e.src.Postings(word)
		if !ok {
			continue
		}
		for docID := range docs {
			delete(scores, docID)
		}
	}
	return collect(e.src, scores)
}

func (e *SequentialEvaluator) Match(q parser.Query, docID int) []string {
	for _, word := range q.Minus {
		if e.src.ContainsWord(word, docID) {
			return []string{}
		}
	}
	matched := make([]string, 0, len(q.Plus))
	for _, word := range q.Plus {
		if e.src.ContainsWord(word, docID) {
			matched = append(matched, word)
		}
	}
	return matched
}

// collect turns accumulated scores into documents ordered by id.
func collect(src Source, scores map[int]float64) []ranker.Document {
	ids := make([]int, 0, len(scores))
	for docID := range scores {
		ids = append(ids, docID)
	}
	sort.Ints(ids)
	docs := make([]ranker.Document, 0, len(ids))
	for _, docID := range ids {
		rec, _ := src.Record(docID)
		docs = append(docs, ranker.Document{
			ID:        docID,
			Relevance: scores[docID],
			Rating:    rec.Rating,
		})
	}
	return docs
}
