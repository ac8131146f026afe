package analytics

import "time"

type EventType string

const (
	EventSearch          EventType = "search"
	EventDocumentAdded   EventType = "document_added"
	EventDocumentRemoved EventType = "document_removed"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Plus      []string  `json:"plus"`
	Minus     []string  `json:"minus"`
	Mode      string    `json:"mode"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type DocumentEvent struct {
	Type       EventType `json:"type"`
	DocumentID int       `json:"document_id"`
	Mode       string    `json:"mode,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
