package index

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/errors"
)

func newTestIndex(t testing.TB, stop ...string) *MemoryIndex {
	t.Helper()
	sw, err := tokenizer.NewStopWords(stop...)
	require.NoError(t, err)
	return NewMemoryIndex(sw)
}

func TestAddDocumentFrequencies(t *testing.T) {
	m := newTestIndex(t, "and", "in")
	require.NoError(t, m.AddDocument(1, "fluffy cat and fluffy tail", StatusActual, []int{8, 3}))

	freqs := m.WordFrequencies(1)
	assert.InDelta(t, 0.5, freqs["fluffy"], 1e-9)
	assert.InDelta(t, 0.25, freqs["cat"], 1e-9)
	assert.InDelta(t, 0.25, freqs["tail"], 1e-9)
	assert.NotContains(t, freqs, "and")

	var sum float64
	for _, f := range freqs {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	rec, ok := m.Record(1)
	require.True(t, ok)
	assert.Equal(t, 5, rec.Rating)
	assert.Equal(t, StatusActual, rec.Status)
	require.NoError(t, m.CheckConsistency())
}

func TestAddDocumentRatingAverage(t *testing.T) {
	tests := []struct {
		ratings []int
		want    int
	}{
		{nil, 0},
		{[]int{7, 2, 7}, 5},
		{[]int{-7, -2}, -4},
		{[]int{1, 2}, 1},
	}
	for i, tt := range tests {
		m := newTestIndex(t)
		require.NoError(t, m.AddDocument(i, "word", StatusActual, tt.ratings))
		rec, _ := m.Record(i)
		assert.Equal(t, tt.want, rec.Rating, "ratings %v", tt.ratings)
	}
}

func TestAddDocumentOnlyStopWords(t *testing.T) {
	m := newTestIndex(t, "in", "the")
	require.NoError(t, m.AddDocument(3, "in the", StatusBanned, nil))
	assert.Empty(t, m.WordFrequencies(3))
	assert.Equal(t, 1, m.DocCount())
	assert.Equal(t, []int{3}, slices.Collect(m.IDs()))
	require.NoError(t, m.RemoveDocument(3))
	assert.Equal(t, 0, m.DocCount())
}

func TestAddDocumentRejectsInvalidInput(t *testing.T) {
	m := newTestIndex(t)
	require.NoError(t, m.AddDocument(1, "white cat", StatusActual, []int{1}))
	before := m.WordFrequencies(1)

	tests := []struct {
		name   string
		id     int
		text   string
		status Status
	}{
		{"negative id", -1, "black dog", StatusActual},
		{"duplicate id", 1, "black dog", StatusActual},
		{"control character", 2, "black\x07dog", StatusActual},
		{"status above range", 2, "black dog", Status(42)},
		{"negative status", 2, "black dog", Status(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddDocument(tt.id, tt.text, tt.status, nil)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
			assert.Equal(t, []int{1}, slices.Collect(m.IDs()))
			assert.Equal(t, before, m.WordFrequencies(1))
			assert.Empty(t, m.WordFrequencies(2))
			_, ok := m.Postings("dog")
			assert.False(t, ok)
			require.NoError(t, m.CheckConsistency())
		})
	}
}

func TestRemoveDocument(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			m := newTestIndex(t)
			require.NoError(t, m.AddDocument(1, "white cat long tail", StatusActual, nil))
			require.NoError(t, m.AddDocument(2, "fluffy cat fluffy tail", StatusActual, nil))

			var err error
			if parallel {
				err = m.RemoveDocumentParallel(2, 4)
			} else {
				err = m.RemoveDocument(2)
			}
			require.NoError(t, err)

			assert.Empty(t, m.WordFrequencies(2))
			assert.Equal(t, []int{1}, slices.Collect(m.IDs()))
			_, ok := m.Postings("fluffy")
			assert.False(t, ok)
			assert.Equal(t, PostingList{{DocID: 1, Frequency: 0.25}}, m.Search("cat"))
			_, ok = m.Text(2)
			assert.False(t, ok)
			require.NoError(t, m.CheckConsistency())

			if parallel {
				err = m.RemoveDocumentParallel(2, 4)
			} else {
				err = m.RemoveDocument(2)
			}
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestReAddRemovedID(t *testing.T) {
	m := newTestIndex(t)
	require.NoError(t, m.AddDocument(5, "old text", StatusActual, nil))
	require.NoError(t, m.RemoveDocument(5))
	require.NoError(t, m.AddDocument(5, "new words", StatusIrrelevant, []int{4}))
	assert.Contains(t, m.WordFrequencies(5), "new")
	assert.NotContains(t, m.WordFrequencies(5), "old")
	require.NoError(t, m.CheckConsistency())
}

func TestRemoveDocumentParallelWorkerBounds(t *testing.T) {
	for _, workers := range []int{0, 1, 2, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			m := newTestIndex(t)
			require.NoError(t, m.AddDocument(1, "a b c d e f g h", StatusActual, nil))
			require.NoError(t, m.AddDocument(2, "a", StatusActual, nil))
			require.NoError(t, m.AddDocument(3, "", StatusActual, nil))

			require.NoError(t, m.RemoveDocumentParallel(1, workers))
			require.NoError(t, m.RemoveDocumentParallel(3, workers))
			assert.Equal(t, []int{2}, slices.Collect(m.IDs()))
			assert.Equal(t, 1, m.WordCount())
			require.NoError(t, m.CheckConsistency())
		})
	}
}

func TestIDsSnapshot(t *testing.T) {
	m := newTestIndex(t)
	for _, id := range []int{9, 2, 40, 0} {
		require.NoError(t, m.AddDocument(id, "text", StatusActual, nil))
	}
	ids := m.IDs()
	require.NoError(t, m.RemoveDocument(40))
	assert.Equal(t, []int{0, 2, 9, 40}, slices.Collect(ids))
	assert.Equal(t, []int{0, 2, 9}, slices.Collect(m.IDs()))
}

func TestInverseDocumentFrequency(t *testing.T) {
	m := newTestIndex(t)
	require.NoError(t, m.AddDocument(1, "white cat", StatusActual, nil))
	require.NoError(t, m.AddDocument(2, "black cat", StatusActual, nil))
	require.NoError(t, m.AddDocument(3, "black dog", StatusActual, nil))

	idf, ok := m.InverseDocumentFrequency("white")
	require.True(t, ok)
	assert.InDelta(t, math.Log(3), idf, 1e-12)
	idf, ok = m.InverseDocumentFrequency("cat")
	require.True(t, ok)
	assert.InDelta(t, math.Log(1.5), idf, 1e-12)
	_, ok = m.InverseDocumentFrequency("bird")
	assert.False(t, ok)
}

func TestConsistencyUnderRandomMutation(t *testing.T) {
	vocab := []string{"cat", "dog", "tail", "white", "black", "fluffy", "and", "long"}
	rng := rand.New(rand.NewSource(42))
	m := newTestIndex(t, "and")
	live := map[int]bool{}

	for step := 0; step < 500; step++ {
		id := rng.Intn(40)
		if live[id] {
			var err error
			if rng.Intn(2) == 0 {
				err = m.RemoveDocument(id)
			} else {
				err = m.RemoveDocumentParallel(id, 3)
			}
			require.NoError(t, err)
			delete(live, id)
			assert.Empty(t, m.WordFrequencies(id))
		} else {
			n := rng.Intn(6)
			words := make([]string, n)
			for i := range words {
				words[i] = vocab[rng.Intn(len(vocab))]
			}
			text := fmt.Sprint(words)
			text = text[1 : len(text)-1]
			require.NoError(t, m.AddDocument(id, text, StatusActual, nil))
			live[id] = true
		}
		require.NoError(t, m.CheckConsistency(), "step %d", step)
	}
	assert.Equal(t, len(live), m.DocCount())
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusActual, StatusIrrelevant, StatusBanned, StatusRemoved} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	got, err := ParseStatus("banned")
	require.NoError(t, err)
	assert.Equal(t, StatusBanned, got)
	_, err = ParseStatus("deleted")
	assert.Error(t, err)
	assert.Equal(t, "Status(9)", Status(9).String())
	assert.True(t, StatusRemoved.Valid())
	assert.False(t, Status(4).Valid())
}

func BenchmarkMemoryIndexAdd(b *testing.B) {
	m := newTestIndex(b, "with", "the", "of")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.AddDocument(i, "this is a benchmark document with several terms for testing the indexing performance of the memory index", StatusActual, []int{1, 2, 3})
	}
}

func BenchmarkMemoryIndexRemove(b *testing.B) {
	for _, parallel := range []bool{false, true} {
		b.Run(fmt.Sprintf("parallel=%v", parallel), func(b *testing.B) {
			m := newTestIndex(b)
			for i := 0; i < b.N; i++ {
				_ = m.AddDocument(i, "search engine with distributed indexing and query processing", StatusActual, nil)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if parallel {
					_ = m.RemoveDocumentParallel(i, 4)
				} else {
					_ = m.RemoveDocument(i)
				}
			}
		})
	}
}
