// Package tokenizer splits document and query text into words and holds the
// stop-word set shared by the index and the query parser. Only the ASCII
// space separates words; no case folding or stemming is applied.
package tokenizer

import (
	"iter"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

// SplitIntoWords returns the maximal runs of non-space bytes in text. The
// sequence is lazy and can be ranged over any number of times; each word is
// a substring of text and shares its backing storage.
func SplitIntoWords(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			rest = strings.TrimLeft(rest, " ")
			if rest == "" {
				return
			}
			end := strings.IndexByte(rest, ' ')
			if end < 0 {
				end = len(rest)
			}
			if !yield(rest[:end]) {
				return
			}
			rest = rest[end:]
		}
	}
}

// Words collects SplitIntoWords into a slice.
func Words(text string) []string {
	words := make([]string, 0, strings.Count(text, " ")+1)
	for w := range SplitIntoWords(text) {
		words = append(words, w)
	}
	return words
}

// HasControlChars reports whether text contains a byte below 0x20.
func HasControlChars(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] < ' ' {
			return true
		}
	}
	return false
}

// StopWords is an immutable set of words that are never indexed or matched.
type StopWords struct {
	words map[string]struct{}
}

// NewStopWords builds a stop-word set. Empty strings are dropped and
// duplicates collapse. A word containing a control character is rejected.
func NewStopWords(words ...string) (StopWords, error) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if HasControlChars(w) {
			return StopWords{}, apperrors.InvalidArgument("invalid characters in stop word %q", w)
		}
		set[strings.Clone(w)] = struct{}{}
	}
	return StopWords{words: set}, nil
}

// ParseStopWords splits text on spaces and builds a stop-word set from the
// resulting words.
func ParseStopWords(text string) (StopWords, error) {
	return NewStopWords(Words(text)...)
}

func (s StopWords) Contains(word string) bool {
	_, ok := s.words[word]
	return ok
}

func (s StopWords) Len() int {
	return len(s.words)
}

// Words returns the stop words in ascending order.
func (s StopWords) Words() []string {
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
