package search

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
)

func newServer(t testing.TB, stopWords string) *Server {
	t.Helper()
	s, err := NewFromText(stopWords, Config{Workers: 4})
	require.NoError(t, err)
	return s
}

func docIDs(docs []ranker.Document) []int {
	out := make([]int, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestFluffyCat(t *testing.T) {
	s := newServer(t, "and")
	require.NoError(t, s.AddDocument(1, "white cat long tail", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, s.AddDocument(2, "fluffy cat fluffy tail", index.StatusActual, []int{8, 3}))

	for _, mode := range []Mode{Sequential, Parallel} {
		t.Run(mode.String(), func(t *testing.T) {
			docs, err := s.FindTopDocuments("fluffy well-groomed cat", WithMode(mode))
			require.NoError(t, err)
			require.Equal(t, []int{2, 1}, docIDs(docs))
			assert.InDelta(t, 0.5*math.Log(2), docs[0].Relevance, 1e-12)
			assert.Equal(t, 5, docs[0].Rating)
		})
	}
}

func TestFindTopDocumentsDefaultsToActual(t *testing.T) {
	s := newServer(t, "")
	require.NoError(t, s.AddDocument(1, "cat", index.StatusActual, nil))
	require.NoError(t, s.AddDocument(2, "cat", index.StatusBanned, nil))
	require.NoError(t, s.AddDocument(3, "cat dog", index.StatusIrrelevant, nil))

	docs, err := s.FindTopDocuments("cat")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, docIDs(docs))

	docs, err = s.FindTopDocuments("cat", WithStatus(index.StatusBanned))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, docIDs(docs))

	docs, err = s.FindTopDocuments("cat", WithPredicate(func(id int, _ index.Status, _ int) bool { return id > 1 }), WithMode(Parallel))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 3}, docIDs(docs))
}

func TestFindTopDocumentsLimitAndOrder(t *testing.T) {
	s := newServer(t, "")
	for id := 0; id < 10; id++ {
		text := strings.Repeat("cat ", id+1) + strings.Repeat("dog ", 10-id)
		require.NoError(t, s.AddDocument(id, strings.TrimSpace(text), index.StatusActual, []int{id}))
	}
	require.NoError(t, s.AddDocument(10, "bird", index.StatusActual, nil))

	for _, mode := range []Mode{Sequential, Parallel} {
		docs, err := s.FindTopDocuments("cat", WithMode(mode))
		require.NoError(t, err)
		require.Len(t, docs, 5)
		for i := 1; i < len(docs); i++ {
			prev, cur := docs[i-1], docs[i]
			if math.Abs(prev.Relevance-cur.Relevance) < ranker.DefaultEpsilon {
				assert.GreaterOrEqual(t, prev.Rating, cur.Rating)
			} else {
				assert.Greater(t, prev.Relevance, cur.Relevance)
			}
		}
		assert.Equal(t, 9, docs[0].ID)
	}
}

func TestFindTopDocumentsConfigurableLimit(t *testing.T) {
	s, err := NewFromText("", Config{MaxResults: 2})
	require.NoError(t, err)
	for id := 0; id < 4; id++ {
		require.NoError(t, s.AddDocument(id, "cat", index.StatusActual, []int{id}))
	}
	docs, err := s.FindTopDocuments("cat")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, docIDs(docs))
}

func TestFindTopDocumentsInvalidQuery(t *testing.T) {
	s := newServer(t, "")
	for _, raw := range []string{"cat -", "cat --dog", "cat\x01"} {
		_, err := s.FindTopDocuments(raw)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument, raw)
	}
}

func TestMatchDocument(t *testing.T) {
	s := newServer(t, "and")
	require.NoError(t, s.AddDocument(3, "white cat and long tail", index.StatusBanned, nil))

	for _, mode := range []Mode{Sequential, Parallel} {
		t.Run(mode.String(), func(t *testing.T) {
			words, status, err := s.MatchDocument("tail cat cat dog", 3, mode)
			require.NoError(t, err)
			assert.Equal(t, []string{"cat", "tail"}, words)
			assert.Equal(t, index.StatusBanned, status)

			words, status, err = s.MatchDocument("cat -white", 3, mode)
			require.NoError(t, err)
			assert.Empty(t, words)
			assert.Equal(t, index.StatusBanned, status)

			_, _, err = s.MatchDocument("cat", 4, mode)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)

			_, _, err = s.MatchDocument("--cat", 3, mode)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func TestDuplicateAddLeavesIndexUnchanged(t *testing.T) {
	s := newServer(t, "")
	require.NoError(t, s.AddDocument(1, "white cat", index.StatusActual, []int{1}))
	before := s.GetWordFrequencies(1)
	beforeIDs := slices.Collect(s.IDs())

	err := s.AddDocument(1, "black dog", index.StatusActual, []int{5})
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	assert.Equal(t, before, s.GetWordFrequencies(1))
	assert.Equal(t, beforeIDs, slices.Collect(s.IDs()))
	assert.Empty(t, s.GetWordFrequencies(2))
	require.NoError(t, s.CheckConsistency())
}

func TestRemoveDocument(t *testing.T) {
	for _, mode := range []Mode{Sequential, Parallel} {
		t.Run(mode.String(), func(t *testing.T) {
			s := newServer(t, "")
			require.NoError(t, s.AddDocument(1, "white cat", index.StatusActual, nil))
			require.NoError(t, s.AddDocument(2, "black cat", index.StatusActual, nil))

			require.NoError(t, s.RemoveDocument(1, mode))
			assert.Empty(t, s.GetWordFrequencies(1))
			assert.Equal(t, []int{2}, slices.Collect(s.IDs()))
			assert.Equal(t, 1, s.DocumentCount())
			assert.Equal(t, 2, s.WordCount())
			require.NoError(t, s.CheckConsistency())

			err := s.RemoveDocument(1, mode)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestGenerationCountsMutations(t *testing.T) {
	s := newServer(t, "")
	require.NoError(t, s.AddDocument(1, "cat", index.StatusActual, nil))
	require.Error(t, s.AddDocument(1, "cat", index.StatusActual, nil))
	require.Error(t, s.AddDocument(2, "cat", index.Status(42), nil))
	require.NoError(t, s.RemoveDocument(1, Sequential))
	require.Error(t, s.RemoveDocument(1, Parallel))

	assert.Equal(t, uint64(2), s.Generation())
}

func TestFindTopDocumentsNilPredicate(t *testing.T) {
	s := newServer(t, "")
	require.NoError(t, s.AddDocument(1, "cat", index.StatusActual, nil))
	require.NoError(t, s.AddDocument(2, "cat", index.StatusBanned, nil))

	for _, mode := range []Mode{Sequential, Parallel} {
		docs, err := s.FindTopDocuments("cat", WithPredicate(nil), WithMode(mode))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 1, docs[0].ID)

		docs, err = s.FindTopDocuments("cat", WithStatus(index.StatusBanned), WithPredicate(nil), WithMode(mode))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 2, docs[0].ID)
	}

	_, status, ok := Describe(WithPredicate(nil))
	assert.True(t, ok)
	assert.Equal(t, index.StatusActual, status)
}

func TestMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := newServer(t, "").WithMetrics(m)

	require.NoError(t, s.AddDocument(1, "cat", index.StatusActual, nil))
	require.NoError(t, s.AddDocument(2, "dog", index.StatusActual, nil))
	require.NoError(t, s.RemoveDocument(2, Parallel))
	_, err := s.FindTopDocuments("cat")
	require.NoError(t, err)
	_, err = s.FindTopDocuments("bird", WithMode(Parallel))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsAddedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsRemovedTotal.WithLabelValues("parallel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveDocuments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("sequential", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("parallel", "zero_result")))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Sequential, "seq": Sequential, "Parallel": Parallel, "par": Parallel} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("fast")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestDescribe(t *testing.T) {
	mode, status, ok := Describe()
	assert.True(t, ok)
	assert.Equal(t, Sequential, mode)
	assert.Equal(t, index.StatusActual, status)

	mode, status, ok = Describe(WithStatus(index.StatusRemoved), WithMode(Parallel))
	assert.True(t, ok)
	assert.Equal(t, Parallel, mode)
	assert.Equal(t, index.StatusRemoved, status)

	_, _, ok = Describe(WithPredicate(func(int, index.Status, int) bool { return true }))
	assert.False(t, ok)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := newServer(t, "the")
	vocab := strings.Fields("cat dog tail white black fluffy long the")
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < 200; i++ {
				id := w*1000 + i
				text := fmt.Sprintf("%s %s %s", vocab[rng.Intn(len(vocab))], vocab[rng.Intn(len(vocab))], vocab[rng.Intn(len(vocab))])
				_ = s.AddDocument(id, text, index.StatusActual, []int{rng.Intn(10)})
				if i%3 == 0 {
					mode := Sequential
					if i%2 == 0 {
						mode = Parallel
					}
					_ = s.RemoveDocument(id, mode)
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				mode := Sequential
				if (i+r)%2 == 0 {
					mode = Parallel
				}
				docs, err := s.FindTopDocuments("cat fluffy -dog", WithMode(mode))
				if assert.NoError(t, err) {
					assert.LessOrEqual(t, len(docs), ranker.DefaultMaxResults)
				}
			}
		}(r)
	}
	wg.Wait()
	require.NoError(t, s.CheckConsistency())
}

func BenchmarkFindTopDocuments(b *testing.B) {
	s := newServer(b, "and in on")
	rng := rand.New(rand.NewSource(1))
	vocab := strings.Fields("distributed search analytics platform indexing query engine ranking shard cache and in on")
	for id := 0; id < 20000; id++ {
		words := make([]string, 8)
		for i := range words {
			words[i] = vocab[rng.Intn(len(vocab))]
		}
		_ = s.AddDocument(id, strings.Join(words, " "), index.StatusActual, []int{rng.Intn(10)})
	}
	for _, mode := range []Mode{Sequential, Parallel} {
		b.Run(mode.String(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = s.FindTopDocuments("search engine ranking -cache", WithMode(mode))
			}
		})
	}
}
