// Package consumer applies document add and remove commands read from Kafka
// to the in-memory index. The document topic is the write log of the index:
// writers publish commands (see internal/indexer/publisher) and every
// instance applies them in log order. Read from the first offset under a
// fresh group, the topic rebuilds the same corpus after a restart.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// DocumentCommand is the JSON payload on the document topic. Text, Status
// and Ratings are only read for adds, Mode only for removes. Origin names
// the instance that published the command.
type DocumentCommand struct {
	Action  Action       `json:"action"`
	ID      int          `json:"id"`
	Text    string       `json:"text,omitempty"`
	Status  index.Status `json:"status,omitempty"`
	Ratings []int        `json:"ratings,omitempty"`
	Mode    string       `json:"mode,omitempty"`
	Origin  string       `json:"origin,omitempty"`
}

// Key returns the partition key, so commands for one document stay ordered.
func (c DocumentCommand) Key() string {
	return strconv.Itoa(c.ID)
}

// Target is what the consumer mutates, normally *search.Server.
type Target interface {
	AddDocument(docID int, text string, status index.Status, ratings []int) error
	RemoveDocument(docID int, mode search.Mode) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

type handlerOptions struct {
	origin  string
	applied func(DocumentCommand)
}

type Option func(*handlerOptions)

// WithOrigin calls applied for every command published by origin once it
// has been applied. Commands replayed from earlier runs carry other origins
// and are not reported.
func WithOrigin(origin string, applied func(DocumentCommand)) Option {
	return func(o *handlerOptions) {
		o.origin = origin
		o.applied = applied
	}
}

// HandleMessage returns a kafka.MessageHandler applying each command to
// target. Malformed or rejected commands are logged and acknowledged; only
// unexpected failures are returned. m may be nil.
func HandleMessage(target Target, m *metrics.Metrics, opts ...Option) kafka.MessageHandler {
	var o handlerOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := slog.Default().With("component", "index-consumer")
	observe := func(action Action, outcome string) {
		if m != nil {
			m.IngestEventsTotal.WithLabelValues(string(action), outcome).Inc()
		}
	}

	return func(ctx context.Context, key []byte, value []byte) error {
		cmd, err := kafka.DecodeJSON[DocumentCommand](value)
		if err != nil {
			logger.Error("failed to decode document command",
				"error", err,
				"key", string(key),
			)
			observe("unknown", "malformed")
			return nil
		}

		err = apply(target, cmd)
		switch {
		case err == nil:
			observe(cmd.Action, "applied")
			logger.Debug("document command applied", "action", cmd.Action, "doc_id", cmd.ID)
			if o.applied != nil && o.origin != "" && cmd.Origin == o.origin {
				o.applied(cmd)
			}
			return nil
		case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrNotFound):
			observe(cmd.Action, "rejected")
			logger.Warn("document command rejected",
				"action", cmd.Action,
				"doc_id", cmd.ID,
				"error", err,
			)
			return nil
		default:
			observe(cmd.Action, "failed")
			return fmt.Errorf("applying %s for document %d: %w", cmd.Action, cmd.ID, err)
		}
	}
}

func apply(target Target, cmd DocumentCommand) error {
	switch cmd.Action {
	case ActionAdd:
		return target.AddDocument(cmd.ID, cmd.Text, cmd.Status, cmd.Ratings)
	case ActionRemove:
		mode, err := search.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		return target.RemoveDocument(cmd.ID, mode)
	default:
		return apperrors.InvalidArgument("unknown action %q", cmd.Action)
	}
}
