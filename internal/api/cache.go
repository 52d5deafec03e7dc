package api

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// pageCache holds history list responses. Every write bumps a generation,
// and a page is only stored if no write happened since its query started,
// so a page read before a write is never served after it.
type pageCache struct {
	mu         sync.Mutex
	generation uint64
	pages      *cache.Cache
}

func newPageCache(ttl time.Duration) *pageCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &pageCache{pages: cache.New(ttl, cacheCleanup)}
}

func (p *pageCache) get(key string) (any, bool) {
	return p.pages.Get(key)
}

// begin returns the generation to pass to store once the query finishes.
func (p *pageCache) begin() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// store caches page unless a write invalidated the cache after begin.
func (p *pageCache) store(generation uint64, key string, page any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if generation != p.generation {
		return false
	}
	p.pages.SetDefault(key, page)
	return true
}

func (p *pageCache) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.pages.Flush()
}
