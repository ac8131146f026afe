// Package publisher accepts document writes by appending them to the Kafka
// document topic. The index itself is only changed by the consumer reading
// that topic back, so live instances and replays see one order of writes.
package publisher

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
)

// EventPublisher is the part of *kafka.Producer the publisher uses.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher turns add and remove requests into DocumentCommands.
type Publisher struct {
	producer EventPublisher
	origin   string
	logger   *slog.Logger
}

// New creates a Publisher stamping every command with origin.
func New(producer EventPublisher, origin string) *Publisher {
	return &Publisher{
		producer: producer,
		origin:   origin,
		logger:   slog.Default().With("component", "document-publisher"),
	}
}

func (p *Publisher) Origin() string {
	return p.origin
}

// Add publishes an add command. Checks that do not depend on the index run
// first; a duplicate id is only detected when the command is applied.
func (p *Publisher) Add(ctx context.Context, docID int, text string, status index.Status, ratings []int) error {
	if err := index.ValidateDocument(docID, text, status); err != nil {
		return err
	}
	return p.publish(ctx, consumer.DocumentCommand{
		Action:  consumer.ActionAdd,
		ID:      docID,
		Text:    text,
		Status:  status,
		Ratings: ratings,
	})
}

// Remove publishes a remove command. An unknown id is only detected when the
// command is applied.
func (p *Publisher) Remove(ctx context.Context, docID int, mode search.Mode) error {
	if docID < 0 {
		return apperrors.InvalidArgument("document id %d is negative", docID)
	}
	return p.publish(ctx, consumer.DocumentCommand{
		Action: consumer.ActionRemove,
		ID:     docID,
		Mode:   mode.String(),
	})
}

func (p *Publisher) publish(ctx context.Context, cmd consumer.DocumentCommand) error {
	cmd.Origin = p.origin
	if err := p.producer.Publish(ctx, kafka.Event{Key: cmd.Key(), Value: cmd}); err != nil {
		p.logger.Error("failed to publish document command",
			"action", cmd.Action,
			"doc_id", cmd.ID,
			"error", err,
		)
		return apperrors.Newf(apperrors.ErrInternal, http.StatusServiceUnavailable,
			"%s of document %d not accepted", cmd.Action, cmd.ID)
	}
	p.logger.Debug("document command published", "action", cmd.Action, "doc_id", cmd.ID)
	return nil
}
