package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"docsearch/internal/domain"
	"docsearch/internal/port"
)

// QueryCache memoizes retrieval results of one index handle. Entries expire
// after ttl and are all dropped by Invalidate whenever the index changes.
type QueryCache struct {
	entries *gocache.Cache
	maxSize int
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: gocache.New(ttl, 2*ttl),
		maxSize: maxSize,
	}
}

func cacheKey(query string, topK int) string {
	hash := sha256.Sum256([]byte(strconv.Itoa(topK) + "\x00" + query))
	return hex.EncodeToString(hash[:16])
}

func (c *QueryCache) Get(query string, topK int) ([]domain.ScoredChunk, bool) {
	v, ok := c.entries.Get(cacheKey(query, topK))
	if !ok {
		return nil, false
	}
	return v.([]domain.ScoredChunk), true
}

// Put stores results unless the cache is full of live entries.
func (c *QueryCache) Put(query string, topK int, results []domain.ScoredChunk) {
	if c.entries.ItemCount() >= c.maxSize {
		c.entries.DeleteExpired()
		if c.entries.ItemCount() >= c.maxSize {
			return
		}
	}
	c.entries.SetDefault(cacheKey(query, topK), results)
}

func (c *QueryCache) Invalidate() {
	c.entries.Flush()
}

func (c *QueryCache) Size() int {
	return c.entries.ItemCount()
}

// CachedRetriever puts a QueryCache in front of a retriever.
type CachedRetriever struct {
	retriever port.Retriever
	cache     *QueryCache
}

var _ port.Retriever = (*CachedRetriever)(nil)

func NewCachedRetriever(retriever port.Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	if results, hit := r.cache.Get(query, k); hit {
		return results, nil
	}

	results, err := r.retriever.Search(query, k)
	if err != nil {
		return nil, err
	}

	r.cache.Put(query, k, results)
	return results, nil
}

func (r *CachedRetriever) Invalidate() {
	r.cache.Invalidate()
}
