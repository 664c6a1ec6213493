package ahci

import (
	"container/list"
	"sync"
	"time"
)

// sectorCache is a per-port TTL-bounded LRU cache of recently accessed
// sectors, spec.md §4.8's write-through cache: a read hit avoids the
// bounce-buffer round trip entirely, and a write updates (or inserts) the
// cached copy in place rather than evicting it, so a subsequent read
// still hits with the freshly written data. Entries older than ttl are
// treated as misses even if still resident, since the teacher's
// equivalent cache (biscuit/src/fs's block cache) never serves stale
// blocks past their declared lifetime.
type sectorCache struct {
	mu  sync.Mutex
	cap int
	ttl time.Duration

	ll    *list.List // container/list of *cacheEntry, front = most recent
	index map[uint64]*list.Element
}

type cacheEntry struct {
	sector uint64
	data   []byte
	at     time.Time
}

func newSectorCache(capacity int, ttl time.Duration) *sectorCache {
	return &sectorCache{
		cap:   capacity,
		ttl:   ttl,
		ll:    list.New(),
		index: make(map[uint64]*list.Element),
	}
}

func (c *sectorCache) get(sector uint64) ([]byte, bool) {
	if c.cap == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[sector]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && time.Since(entry.at) > c.ttl {
		c.ll.Remove(el)
		delete(c.index, sector)
		return nil, false
	}
	c.ll.MoveToFront(el)
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, true
}

func (c *sectorCache) put(sector uint64, data []byte) {
	if c.cap == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[sector]; ok {
		c.ll.Remove(el)
		delete(c.index, sector)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	el := c.ll.PushFront(&cacheEntry{sector: sector, data: cp, at: time.Now()})
	c.index[sector] = el

	for c.ll.Len() > c.cap {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.ll.Remove(back)
		delete(c.index, back.Value.(*cacheEntry).sector)
	}
}

func (c *sectorCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
