package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

func newServer(t *testing.T) *search.Server {
	t.Helper()
	s, err := search.NewFromText("and with", search.Config{})
	require.NoError(t, err)
	texts := []string{
		"funny pet and nasty rat",
		"funny pet with curly hair",
		"funny pet and not very nasty rat",
		"pet with rat and rat and rat",
		"nasty rat with curly hair",
	}
	for i, text := range texts {
		require.NoError(t, s.AddDocument(i+1, text, index.StatusActual, []int{1, 2}))
	}
	return s
}

func TestProcessQueriesMatchesSingleCalls(t *testing.T) {
	s := newServer(t)
	queries := []string{"nasty rat -not", "not very funny nasty pet", "curly hair", "unknown"}

	got, err := New(s, 2).ProcessQueries(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, got, len(queries))
	for i, q := range queries {
		want, err := s.FindTopDocuments(q)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], q)
	}
	assert.Empty(t, got[3])
}

func TestProcessQueriesJoinedKeepsGrouping(t *testing.T) {
	s := newServer(t)
	queries := []string{"nasty rat -not", "not very funny nasty pet", "curly hair"}
	d := New(s, 0)

	grouped, err := d.ProcessQueries(context.Background(), queries)
	require.NoError(t, err)
	joined, err := d.ProcessQueriesJoined(context.Background(), queries)
	require.NoError(t, err)

	var want []ranker.Document
	for _, docs := range grouped {
		want = append(want, docs...)
	}
	assert.Equal(t, want, joined)
}

func TestProcessQueriesError(t *testing.T) {
	s := newServer(t)
	_, err := New(s, 1).ProcessQueries(context.Background(), []string{"rat", "--rat"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = New(s, 1).ProcessQueriesJoined(context.Background(), []string{"rat -"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestProcessQueriesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newServer(t), 1).ProcessQueries(ctx, []string{"rat"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessQueriesOptions(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.AddDocument(9, "rat banned", index.StatusBanned, nil))
	got, err := New(s, 2).ProcessQueries(context.Background(), []string{"banned", "rat"}, search.WithStatus(index.StatusBanned), search.WithMode(search.Parallel))
	require.NoError(t, err)
	require.Len(t, got[0], 1)
	assert.Equal(t, 9, got[0][0].ID)
	require.Len(t, got[1], 1)
}

func TestEmptyBatch(t *testing.T) {
	got, err := New(newServer(t), 0).ProcessQueries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
