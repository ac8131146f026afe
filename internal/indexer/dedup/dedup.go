// Package dedup removes documents whose set of indexed words repeats the
// set of an earlier document.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
)

// Index is the part of search.Server the detector needs.
type Index interface {
	IDs() iter.Seq[int]
	GetWordFrequencies(docID int) map[string]float64
	RemoveDocument(docID int, mode search.Mode) error
}

// Duplicates returns, in ascending order, every id whose word set equals
// the word set of a smaller id. Frequencies and word order are ignored.
func Duplicates(idx Index) []int {
	seen := make(map[string]struct{})
	var dups []int
	for docID := range idx.IDs() {
		key := wordSetKey(idx.GetWordFrequencies(docID))
		if _, ok := seen[key]; ok {
			dups = append(dups, docID)
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// RemoveDuplicates removes every id reported by Duplicates and returns them.
// Ids that disappear concurrently are skipped.
func RemoveDuplicates(ctx context.Context, idx Index) ([]int, error) {
	log := logger.FromContext(ctx).With("component", "dedup")
	dups := Duplicates(idx)
	removed := make([]int, 0, len(dups))
	for _, docID := range dups {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		log.Info("found duplicate document", "doc_id", docID)
		if err := idx.RemoveDocument(docID, search.Sequential); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return removed, fmt.Errorf("removing duplicate %d: %w", docID, err)
		}
		removed = append(removed, docID)
	}
	return removed, nil
}

// wordSetKey joins the sorted words with spaces. Indexed words never contain
// a space, so the key is unambiguous.
func wordSetKey(freqs map[string]float64) string {
	words := make([]string, 0, len(freqs))
	for w := range freqs {
		words = append(words, w)
	}
	slices.Sort(words)
	return strings.Join(words, " ")
}
