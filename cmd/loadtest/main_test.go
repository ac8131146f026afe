package main

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestRandomQueryShape(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 100 {
		words := strings.Fields(randomQuery(rng))
		assert.GreaterOrEqual(t, len(words), 2)
		assert.LessOrEqual(t, len(words), 4)
		assert.False(t, strings.HasPrefix(words[0], "-"), "first word is always a plus word")
		for _, w := range words {
			assert.False(t, strings.HasPrefix(w, "--"))
		}
	}
}
