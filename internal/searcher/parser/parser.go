package parser

import (
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

const minusPrefix = '-'

// Query holds the plus and minus words of a parsed query. After Parse both
// lists are sorted and free of duplicates.
type Query struct {
	Plus  []string
	Minus []string
}

// IsEmpty reports whether the query has no plus and no minus words.
func (q Query) IsEmpty() bool {
	return len(q.Plus) == 0 && len(q.Minus) == 0
}

// Key is a canonical text form of the query, stable under word reordering
// and repetition.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(strings.Join(q.Plus, " "))
	if len(q.Minus) > 0 {
		b.WriteString("|-")
		b.WriteString(strings.Join(q.Minus, " -"))
	}
	return b.String()
}

type Parser struct {
	stopWords tokenizer.StopWords
}

func New(stopWords tokenizer.StopWords) *Parser {
	return &Parser{stopWords: stopWords}
}

// Parse classifies every word of raw as a stop word, plus word or minus word
// and returns the sorted, deduplicated plus and minus sets.
func (p *Parser) Parse(raw string) (Query, error) {
	q, err := p.ParseUnsorted(raw)
	if err != nil {
		return Query{}, err
	}
	q.Plus = sortUnique(q.Plus)
	q.Minus = sortUnique(q.Minus)
	return q, nil
}

// ParseUnsorted validates and classifies like Parse but keeps the words in
// query order, duplicates included.
func (p *Parser) ParseUnsorted(raw string) (Query, error) {
	if tokenizer.HasControlChars(raw) {
		return Query{}, apperrors.InvalidArgument("invalid characters in query %q", raw)
	}
	q := Query{
		Plus:  make([]string, 0),
		Minus: make([]string, 0),
	}
	for word := range tokenizer.SplitIntoWords(raw) {
		minus := false
		if word[0] == minusPrefix {
			minus = true
			word = word[1:]
		}
		if word == "" || word[0] == minusPrefix {
			return Query{}, apperrors.InvalidArgument("incorrect spelling of minus-word in query %q", raw)
		}
		if p.stopWords.Contains(word) {
			continue
		}
		if minus {
			q.Minus = append(q.Minus, word)
		} else {
			q.Plus = append(q.Plus, word)
		}
	}
	return q, nil
}

func sortUnique(words []string) []string {
	slices.Sort(words)
	return slices.Compact(words)
}
