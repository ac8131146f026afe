package index

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

// Status is the caller-assigned lifecycle label of a document.
type Status int

const (
	StatusActual Status = iota
	StatusIrrelevant
	StatusBanned
	StatusRemoved
)

var statusNames = [...]string{"ACTUAL", "IRRELEVANT", "BANNED", "REMOVED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Valid reports whether s is one of the four named statuses.
func (s Status) Valid() bool {
	return s >= StatusActual && s <= StatusRemoved
}

// ParseStatus accepts the upper- or lower-case status name.
func ParseStatus(name string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == upper {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown document status %q", name)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ValidateDocument runs the checks of AddDocument that do not depend on
// index contents.
func ValidateDocument(docID int, text string, status Status) error {
	if docID < 0 {
		return apperrors.InvalidArgument("document id %d is negative", docID)
	}
	if !status.Valid() {
		return apperrors.InvalidArgument("document %d has unknown status %v", docID, status)
	}
	if tokenizer.HasControlChars(text) {
		return apperrors.InvalidArgument("invalid characters in text of document %d", docID)
	}
	return nil
}

// Record is the per-document metadata kept by the store. It never changes
// after the document is added.
type Record struct {
	Rating int
	Status Status
}

// Posting is one (document, term frequency) pair of an inverted entry.
type Posting struct {
	DocID     int
	Frequency float64
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting
