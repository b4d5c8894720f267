package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

type countingRetriever struct {
	calls int
	err   error
}

func (r *countingRetriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []domain.ScoredChunk{{Chunk: domain.Chunk{ID: query}, Score: float64(k)}}, nil
}

func TestCachedRetriever_HitsAndInvalidate(t *testing.T) {
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	first, err := r.Search("budget", 3)
	require.NoError(t, err)
	second, err := r.Search("budget", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	_, err = r.Search("budget", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "top-k is part of the key")

	r.Invalidate()
	_, err = r.Search("budget", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedRetriever_ErrorsAreNotCached(t *testing.T) {
	inner := &countingRetriever{err: errors.New("boom")}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	_, err := r.Search("q", 1)
	require.Error(t, err)
	_, err = r.Search("q", 1)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestQueryCache_MaxSize(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("a", 1, nil)
	c.Put("b", 1, nil)
	c.Put("c", 1, nil)

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("c", 1)
	assert.False(t, ok)
}
