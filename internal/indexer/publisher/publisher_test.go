package publisher

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
)

type recordingPublisher struct {
	events []kafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func TestPublishCommands(t *testing.T) {
	rec := &recordingPublisher{}
	p := New(rec, "node-1")
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, 7, "white cat", index.StatusBanned, []int{1, 2}))
	require.NoError(t, p.Remove(ctx, 7, search.Parallel))

	require.Len(t, rec.events, 2)
	assert.Equal(t, "7", rec.events[0].Key)
	assert.Equal(t, consumer.DocumentCommand{
		Action:  consumer.ActionAdd,
		ID:      7,
		Text:    "white cat",
		Status:  index.StatusBanned,
		Ratings: []int{1, 2},
		Origin:  "node-1",
	}, rec.events[0].Value)
	assert.Equal(t, "7", rec.events[1].Key)
	assert.Equal(t, consumer.DocumentCommand{
		Action: consumer.ActionRemove,
		ID:     7,
		Mode:   "parallel",
		Origin: "node-1",
	}, rec.events[1].Value)
	assert.Equal(t, "node-1", p.Origin())
}

func TestInvalidCommandsAreNotPublished(t *testing.T) {
	rec := &recordingPublisher{}
	p := New(rec, "node-1")
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
	}{
		{"negative id", p.Add(ctx, -1, "cat", index.StatusActual, nil)},
		{"control character", p.Add(ctx, 1, "c\x01at", index.StatusActual, nil)},
		{"unknown status", p.Add(ctx, 1, "cat", index.Status(42), nil)},
		{"negative remove", p.Remove(ctx, -3, search.Sequential)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, apperrors.ErrInvalidArgument)
		})
	}
	assert.Empty(t, rec.events)
}

func TestPublishFailure(t *testing.T) {
	p := New(&recordingPublisher{err: errors.New("broker down")}, "node-1")
	err := p.Add(context.Background(), 1, "cat", index.StatusActual, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}
