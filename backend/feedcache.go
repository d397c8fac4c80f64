package backend

import (
	"bytes"
	"sync"
	"time"
)

// feedCache memoizes rendered feed bodies. Entries live for ttl or until
// the next stored fix, whichever comes first. gen counts invalidations; a
// body built from data read before an invalidation is never stored.
type feedCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	gen     uint64
	entries map[string]cachedFeed
}

type cachedFeed struct {
	data    []byte
	builtAt time.Time
}

func newFeedCache(ttl time.Duration) *feedCache {
	return &feedCache{ttl: ttl, entries: map[string]cachedFeed{}}
}

func memoKey(args ...string) string {
	var b bytes.Buffer
	for i, a := range args {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(a)
	}
	return b.String()
}

// get returns the cached body for key, plus the generation to hand back to
// put when the caller has to build it.
func (c *feedCache) get(key string, now time.Time) ([]byte, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return nil, c.gen, false
	}
	e, ok := c.entries[key]
	if !ok || now.Sub(e.builtAt) >= c.ttl {
		return nil, c.gen, false
	}
	return e.data, c.gen, true
}

// put stores data unless the cache was invalidated after gen was read.
func (c *feedCache) put(key string, data []byte, now time.Time, gen uint64) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.entries[key] = cachedFeed{data: data, builtAt: now}
	return true
}

func (c *feedCache) invalidate() {
	c.mu.Lock()
	c.gen++
	clear(c.entries)
	c.mu.Unlock()
}
