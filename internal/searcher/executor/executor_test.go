package executor

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/ranker"
)

var (
	_ Evaluator = (*SequentialEvaluator)(nil)
	_ Evaluator = (*ParallelEvaluator)(nil)
)

func acceptAll(int, index.Status, int) bool { return true }

type fixture struct {
	idx    *index.MemoryIndex
	parser *parser.Parser
	seq    Evaluator
	par    Evaluator
}

func newFixture(t testing.TB, stop ...string) *fixture {
	t.Helper()
	sw, err := tokenizer.NewStopWords(stop...)
	require.NoError(t, err)
	idx := index.NewMemoryIndex(sw)
	return &fixture{
		idx:    idx,
		parser: parser.New(sw),
		seq:    NewSequential(idx),
		par:    NewParallel(idx, 4, 3),
	}
}

func (f *fixture) query(t testing.TB, raw string) parser.Query {
	t.Helper()
	q, err := f.parser.Parse(raw)
	require.NoError(t, err)
	return q
}

func TestFindAllExample(t *testing.T) {
	f := newFixture(t, "and")
	require.NoError(t, f.idx.AddDocument(1, "white cat long tail", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, f.idx.AddDocument(2, "fluffy cat fluffy tail", index.StatusActual, []int{8, 3}))

	q := f.query(t, "fluffy well-groomed cat")
	for name, ev := range map[string]Evaluator{"sequential": f.seq, "parallel": f.par} {
		t.Run(name, func(t *testing.T) {
			docs := ev.FindAll(q, acceptAll)
			require.Len(t, docs, 2)
			assert.Equal(t, 1, docs[0].ID)
			assert.Equal(t, 2, docs[1].ID)
			assert.InDelta(t, 0, docs[0].Relevance, 1e-12)
			assert.InDelta(t, 0.5*math.Log(2), docs[1].Relevance, 1e-12)
			assert.Equal(t, 5, docs[0].Rating)
			assert.Equal(t, 5, docs[1].Rating)

			top := ranker.Top(docs, ranker.DefaultParams())
			assert.Equal(t, 2, top[0].ID)
		})
	}
}

func TestFindAllMinusWordsExclude(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.idx.AddDocument(1, "white cat", index.StatusActual, nil))
	require.NoError(t, f.idx.AddDocument(2, "black cat collar", index.StatusActual, nil))
	require.NoError(t, f.idx.AddDocument(3, "black dog collar", index.StatusActual, nil))

	q := f.query(t, "cat -collar")
	for name, ev := range map[string]Evaluator{"sequential": f.seq, "parallel": f.par} {
		t.Run(name, func(t *testing.T) {
			docs := ev.FindAll(q, acceptAll)
			require.Len(t, docs, 1)
			assert.Equal(t, 1, docs[0].ID)
		})
	}
}

func TestFindAllPredicate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.idx.AddDocument(1, "cat", index.StatusActual, []int{1}))
	require.NoError(t, f.idx.AddDocument(2, "cat", index.StatusBanned, []int{2}))
	require.NoError(t, f.idx.AddDocument(3, "cat dog", index.StatusActual, []int{3}))

	q := f.query(t, "cat")
	for name, ev := range map[string]Evaluator{"sequential": f.seq, "parallel": f.par} {
		t.Run(name, func(t *testing.T) {
			banned := ev.FindAll(q, ranker.ByStatus(index.StatusBanned))
			require.Len(t, banned, 1)
			assert.Equal(t, 2, banned[0].ID)

			even := ev.FindAll(q, func(id int, _ index.Status, _ int) bool { return id%2 == 1 })
			require.Len(t, even, 2)
			assert.Equal(t, []int{1, 3}, []int{even[0].ID, even[1].ID})
		})
	}
}

func TestMatch(t *testing.T) {
	f := newFixture(t, "and")
	require.NoError(t, f.idx.AddDocument(1, "white cat and long tail", index.StatusActual, nil))

	tests := []struct {
		raw  string
		want []string
	}{
		{"cat tail dog", []string{"cat", "tail"}},
		{"tail cat tail cat", []string{"cat", "tail"}},
		{"cat -long", []string{}},
		{"cat -dog", []string{"cat"}},
		{"and", []string{}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, f.seq.Match(f.query(t, tt.raw), 1))

			unsorted, err := f.parser.ParseUnsorted(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.par.Match(unsorted, 1))
		})
	}
}

func TestSequentialParallelEquivalence(t *testing.T) {
	vocab := strings.Fields("cat dog tail white black fluffy long short collar and in the groomed")
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 30; round++ {
		f := newFixture(t, "and", "in", "the")
		docs := rng.Intn(25)
		for id := 0; id < docs; id++ {
			n := 1 + rng.Intn(8)
			words := make([]string, n)
			for i := range words {
				words[i] = vocab[rng.Intn(len(vocab))]
			}
			status := index.Status(rng.Intn(4))
			require.NoError(t, f.idx.AddDocument(id*3, strings.Join(words, " "), status, []int{rng.Intn(10), rng.Intn(10)}))
		}
		for qn := 0; qn < 10; qn++ {
			n := rng.Intn(5)
			words := make([]string, n)
			for i := range words {
				w := vocab[rng.Intn(len(vocab))]
				if rng.Intn(4) == 0 {
					w = "-" + w
				}
				words[i] = w
			}
			raw := strings.Join(words, " ")
			q := f.query(t, raw)
			pred := ranker.ByStatus(index.StatusActual)

			seq := f.seq.FindAll(q, pred)
			par := f.par.FindAll(q, pred)
			require.Equal(t, len(seq), len(par), "round %d query %q", round, raw)
			for i := range seq {
				assert.Equal(t, seq[i].ID, par[i].ID)
				assert.Equal(t, seq[i].Rating, par[i].Rating)
				assert.InDelta(t, seq[i].Relevance, par[i].Relevance, ranker.DefaultEpsilon)
			}

			for id := range f.idx.IDs() {
				assert.Equal(t, f.seq.Match(q, id), f.par.Match(q, id), fmt.Sprintf("match %q doc %d", raw, id))
			}
		}
	}
}

func TestEmptyCorpusAndQuery(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.seq.FindAll(f.query(t, "cat"), acceptAll))
	assert.Empty(t, f.par.FindAll(f.query(t, "cat"), acceptAll))

	require.NoError(t, f.idx.AddDocument(1, "cat", index.StatusActual, nil))
	assert.Empty(t, f.seq.FindAll(f.query(t, ""), acceptAll))
	assert.Empty(t, f.par.FindAll(f.query(t, ""), acceptAll))
}

func TestFanOutBoundsConcurrency(t *testing.T) {
	for _, workers := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			e := NewParallel(nil, 1, workers)
			var running, peak atomic.Int32
			seen := make([]atomic.Bool, 20)
			e.fanOut(len(seen), func(i int) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				seen[i].Store(true)
				running.Add(-1)
			})
			for i := range seen {
				assert.True(t, seen[i].Load(), "task %d", i)
			}
			if workers > 0 {
				assert.LessOrEqual(t, int(peak.Load()), workers)
			}
			assert.Zero(t, running.Load())
		})
	}
	NewParallel(nil, 1, 2).fanOut(0, func(int) { t.Fatal("no tasks expected") })
}

func BenchmarkFindAll(b *testing.B) {
	terms := strings.Fields("distributed search analytics platform indexing query engine ranking")
	f := newFixture(b)
	for i := 0; i < 10000; i++ {
		text := fmt.Sprintf("%s %s %s %s", terms[i%len(terms)], terms[(i+1)%len(terms)], terms[(i+3)%len(terms)], terms[(i*7)%len(terms)])
		_ = f.idx.AddDocument(i, text, index.StatusActual, []int{i % 10})
	}
	q := f.query(b, "search engine ranking -platform")
	for name, ev := range map[string]Evaluator{"sequential": f.seq, "parallel": NewParallel(f.idx, 64, 0)} {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = ev.FindAll(q, acceptAll)
			}
		})
	}
}
