package accumulator

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCreatesAndUpdates(t *testing.T) {
	acc := New[float64](4)
	acc.Do(7, func(v *float64) { *v += 1.5 })
	acc.Do(7, func(v *float64) { *v += 0.5 })
	acc.Do(3, func(v *float64) {})

	got := acc.Flatten()
	assert.Equal(t, map[int]float64{7: 2.0, 3: 0}, got)
	assert.Equal(t, 2, acc.Len())
}

func TestErase(t *testing.T) {
	acc := New[float64](4)
	acc.Do(1, func(v *float64) { *v = 1 })
	acc.Do(5, func(v *float64) { *v = 5 })
	acc.Erase(1)
	acc.Erase(100)
	assert.Equal(t, map[int]float64{5: 5}, acc.Flatten())
}

func TestDefaultShards(t *testing.T) {
	assert.Equal(t, DefaultShards, New[int](0).Shards())
	assert.Equal(t, 3, New[int](3).Shards())
}

func TestDoReleasesLockOnPanic(t *testing.T) {
	acc := New[int](1)
	require.Panics(t, func() {
		acc.Do(1, func(v *int) {
			*v = 10
			panic("boom")
		})
	})
	acc.Do(2, func(v *int) { *v = 2 })
	assert.Equal(t, map[int]int{1: 10, 2: 2}, acc.Flatten())
}

func TestConcurrentAddAndErase(t *testing.T) {
	const (
		workers = 16
		ids     = 200
		rounds  = 50
	)
	acc := New[int](8)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				for id := 0; id < ids; id++ {
					acc.Do(id, func(v *int) { *v++ })
				}
			}
		}()
	}
	wg.Wait()

	flat := acc.Flatten()
	require.Len(t, flat, ids)
	for id := 0; id < ids; id++ {
		assert.Equal(t, workers*rounds, flat[id])
	}

	wg = sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for id := offset; id < ids; id += workers {
				acc.Erase(id)
				acc.Do(id+ids, func(v *int) { *v = id })
			}
		}(w)
	}
	wg.Wait()

	flat = acc.Flatten()
	require.Len(t, flat, ids)
	for id := 0; id < ids; id++ {
		assert.Equal(t, id, flat[id+ids])
	}
}

func BenchmarkDoParallel(b *testing.B) {
	for _, shards := range []int{1, 64} {
		acc := New[float64](shards)
		b.Run("shards_"+strconv.Itoa(shards), func(b *testing.B) {
			b.RunParallel(func(pb *testing.PB) {
				id := 0
				for pb.Next() {
					acc.Do(id%1024, func(v *float64) { *v += 0.1 })
					id++
				}
			})
		})
	}
}
