package ranker

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
)

const (
	DefaultMaxResults = 5
	DefaultEpsilon    = 1e-6
)

// Document is one ranked search hit.
type Document struct {
	ID        int     `json:"document_id"`
	Relevance float64 `json:"relevance"`
	Rating    int     `json:"rating"`
}

func (d Document) String() string {
	return fmt.Sprintf("{ document_id = %d, relevance = %g, rating = %d }", d.ID, d.Relevance, d.Rating)
}

// Predicate filters candidate documents before they contribute relevance.
type Predicate func(docID int, status index.Status, rating int) bool

// ByStatus accepts documents with the given status.
func ByStatus(status index.Status) Predicate {
	return func(_ int, s index.Status, _ int) bool {
		return s == status
	}
}

// RankParams bounds and orders the output of Top.
type RankParams struct {
	MaxResults int
	Epsilon    float64
}

func DefaultParams() RankParams {
	return RankParams{MaxResults: DefaultMaxResults, Epsilon: DefaultEpsilon}
}

// Top orders docs by relevance, highest first. Relevances closer than
// params.Epsilon count as equal and are ordered by rating, highest first;
// remaining ties keep their input order. The result is cut to
// params.MaxResults entries. docs is reordered in place.
func Top(docs []Document, params RankParams) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if math.Abs(docs[i].Relevance-docs[j].Relevance) < params.Epsilon {
			return docs[i].Rating > docs[j].Rating
		}
		return docs[i].Relevance > docs[j].Relevance
	})
	if params.MaxResults > 0 && len(docs) > params.MaxResults {
		docs = docs[:params.MaxResults]
	}
	return docs
}

// ComputeIDF is ln(totalDocs / docFreq).
func ComputeIDF(totalDocs, docFreq int) float64 {
	return math.Log(float64(totalDocs) / float64(docFreq))
}
