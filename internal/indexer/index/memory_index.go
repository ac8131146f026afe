// Package index is the document store of the search server. It owns the
// canonical text of every live document together with its metadata and
// keeps two mirrored indices over the text: word -> (document -> term
// frequency) and document -> (word -> term frequency).
//
// Index is not safe for concurrent mutation. Concurrent readers are fine as
// long as no Add or Remove runs at the same time; search.Server enforces
// that with a read/write lock.
package index

import (
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

type MemoryIndex struct {
	stopWords tokenizer.StopWords
	texts     map[int]string
	records   map[int]Record
	ids       *roaring64.Bitmap
	inverted  map[string]map[int]float64
	forward   map[int]map[string]float64
	logger    *slog.Logger
}

func NewMemoryIndex(stopWords tokenizer.StopWords) *MemoryIndex {
	return &MemoryIndex{
		stopWords: stopWords,
		texts:     make(map[int]string),
		records:   make(map[int]Record),
		ids:       roaring64.New(),
		inverted:  make(map[string]map[int]float64),
		forward:   make(map[int]map[string]float64),
		logger:    slog.Default().With("component", "memory-index"),
	}
}

// AddDocument validates and indexes a document. Every check runs before the
// first write, so a failed call leaves the index untouched.
func (m *MemoryIndex) AddDocument(docID int, text string, status Status, ratings []int) error {
	if err := ValidateDocument(docID, text, status); err != nil {
		return err
	}
	if _, exists := m.records[docID]; exists {
		return apperrors.InvalidArgument("document id %d already exists", docID)
	}

	owned := strings.Clone(text)
	words := m.splitNoStop(owned)
	termData := make(map[string]float64, len(words))
	if len(words) > 0 {
		inv := 1.0 / float64(len(words))
		for _, w := range words {
			termData[w] += inv
		}
	}

	for word, freq := range termData {
		docs, ok := m.inverted[word]
		if !ok {
			docs = make(map[int]float64)
			m.inverted[word] = docs
		}
		docs[docID] = freq
	}
	m.forward[docID] = termData
	m.texts[docID] = owned
	m.records[docID] = Record{Rating: averageRating(ratings), Status: status}
	m.ids.Add(uint64(docID))

	m.logger.Debug("document indexed",
		"doc_id", docID,
		"word_count", len(words),
		"distinct_words", len(termData),
	)
	return nil
}

// RemoveDocument drops a live document from every structure.
func (m *MemoryIndex) RemoveDocument(docID int) error {
	words, ok := m.forward[docID]
	if !ok {
		return apperrors.NotFound(docID)
	}
	for word := range words {
		m.unlinkWord(word, docID)
	}
	m.dropEmptyWords(words)
	m.forget(docID)
	return nil
}

// RemoveDocumentParallel behaves like RemoveDocument but spreads the
// per-word unlinking across up to workers goroutines. Each worker touches a
// distinct inner posting map; the outer word map is only read until every
// worker has finished.
func (m *MemoryIndex) RemoveDocumentParallel(docID int, workers int) error {
	words, ok := m.forward[docID]
	if !ok {
		return apperrors.NotFound(docID)
	}
	list := make([]string, 0, len(words))
	for word := range words {
		list = append(list, word)
	}

	if workers <= 0 || workers > len(list) {
		workers = len(list)
	}
	sem := make(chan struct{}, max(workers, 1))
	var wg sync.WaitGroup
	for _, word := range list {
		docs := m.inverted[word]
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			delete(docs, docID)
		})
	}
	wg.Wait()
	m.dropEmptyWords(words)
	m.forget(docID)
	return nil
}

func (m *MemoryIndex) unlinkWord(word string, docID int) {
	if docs, ok := m.inverted[word]; ok {
		delete(docs, docID)
	}
}

func (m *MemoryIndex) dropEmptyWords(words map[string]float64) {
	for word := range words {
		if docs, ok := m.inverted[word]; ok && len(docs) == 0 {
			delete(m.inverted, word)
		}
	}
}

func (m *MemoryIndex) forget(docID int) {
	delete(m.forward, docID)
	delete(m.records, docID)
	delete(m.texts, docID)
	m.ids.Remove(uint64(docID))
	m.logger.Debug("document removed", "doc_id", docID)
}

// WordFrequencies returns a copy of the document's word -> term frequency
// map, or an empty map for an unknown id.
func (m *MemoryIndex) WordFrequencies(docID int) map[string]float64 {
	words := m.forward[docID]
	out := make(map[string]float64, len(words))
	for w, f := range words {
		out[w] = f
	}
	return out
}

// IDs yields the live document ids in ascending order. The ids are
// snapshotted when IDs is called, so the sequence may be ranged over again
// and is unaffected by later mutation.
func (m *MemoryIndex) IDs() iter.Seq[int] {
	snapshot := m.ids.ToArray()
	return func(yield func(int) bool) {
		for _, id := range snapshot {
			if !yield(int(id)) {
				return
			}
		}
	}
}

func (m *MemoryIndex) DocCount() int {
	return int(m.ids.GetCardinality())
}

// WordCount is the number of distinct indexed words.
func (m *MemoryIndex) WordCount() int {
	return len(m.inverted)
}

func (m *MemoryIndex) Record(docID int) (Record, bool) {
	r, ok := m.records[docID]
	return r, ok
}

func (m *MemoryIndex) Text(docID int) (string, bool) {
	t, ok := m.texts[docID]
	return t, ok
}

func (m *MemoryIndex) StopWords() tokenizer.StopWords {
	return m.stopWords
}

// Postings returns the live document -> term frequency map of word. The map
// belongs to the index and must not be modified.
func (m *MemoryIndex) Postings(word string) (map[int]float64, bool) {
	docs, ok := m.inverted[word]
	return docs, ok && len(docs) > 0
}

// Search returns the postings of word ordered by document id.
func (m *MemoryIndex) Search(word string) PostingList {
	docs, ok := m.Postings(word)
	if !ok {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for id, freq := range docs {
		result = append(result, Posting{DocID: id, Frequency: freq})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// ContainsWord reports whether docID has word among its indexed words.
func (m *MemoryIndex) ContainsWord(word string, docID int) bool {
	_, ok := m.inverted[word][docID]
	return ok
}

// InverseDocumentFrequency is ln(live documents / documents containing
// word). The second result is false when no live document contains word.
func (m *MemoryIndex) InverseDocumentFrequency(word string) (float64, bool) {
	docs, ok := m.Postings(word)
	if !ok {
		return 0, false
	}
	return math.Log(float64(m.DocCount()) / float64(len(docs))), true
}

// CheckConsistency verifies that the forward and inverted indices describe
// the same (document, word, frequency) triples and that both agree with the
// live id set.
func (m *MemoryIndex) CheckConsistency() error {
	if len(m.forward) != m.DocCount() || len(m.records) != m.DocCount() {
		return fmt.Errorf("live set has %d ids, forward index %d, records %d",
			m.DocCount(), len(m.forward), len(m.records))
	}
	pairs := 0
	for id, words := range m.forward {
		if !m.ids.Contains(uint64(id)) {
			return fmt.Errorf("document %d indexed but not live", id)
		}
		for word, freq := range words {
			got, ok := m.inverted[word][id]
			if !ok {
				return fmt.Errorf("word %q of document %d missing from inverted index", word, id)
			}
			if got != freq {
				return fmt.Errorf("word %q of document %d: forward %v, inverted %v", word, id, freq, got)
			}
			pairs++
		}
	}
	inverted := 0
	for word, docs := range m.inverted {
		if len(docs) == 0 {
			return fmt.Errorf("word %q has an empty posting map", word)
		}
		inverted += len(docs)
	}
	if pairs != inverted {
		return fmt.Errorf("forward index holds %d pairs, inverted index %d", pairs, inverted)
	}
	return nil
}

func (m *MemoryIndex) splitNoStop(text string) []string {
	words := make([]string, 0, 8)
	for w := range tokenizer.SplitIntoWords(text) {
		if !m.stopWords.Contains(w) {
			words = append(words, w)
		}
	}
	return words
}

func averageRating(ratings []int) int {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return sum / len(ratings)
}
