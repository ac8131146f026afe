package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Report is the body served by Handler.Stats.
type Report struct {
	Window WindowSnapshot   `json:"window"`
	Events *AggregatedStats `json:"events,omitempty"`
}

type Handler struct {
	queue      *RequestQueue
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewHandler serves the request window of queue and, when aggregator is not
// nil, the aggregated event statistics.
func NewHandler(queue *RequestQueue, aggregator *Aggregator) *Handler {
	return &Handler{
		queue:      queue,
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	report := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

// Report assembles the current report. It backs both Stats and the
// periodic snapshot writer.
func (h *Handler) Report() Report {
	report := Report{Window: h.queue.Snapshot()}
	if h.aggregator != nil {
		stats := h.aggregator.Stats()
		report.Events = &stats
	}
	return report
}
