package cache

import (
	"container/list"
	"sync"
)

// Memory is an in-process LRU cache holding at most Capacity entries.
type Memory struct {
	capacity int

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	bytes    int64
	stats    Stats
}

type memoryItem struct {
	digest string
	entry  *Entry
}

// NewMemory returns an LRU cache for capacity entries (minimum 1).
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity: max(capacity, 1),
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the entry for key and marks it most recently used.
func (c *Memory) Get(key Key) (*Entry, bool) {
	digest := key.Digest()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[digest]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	c.stats.Hits++

	return elem.Value.(*memoryItem).entry, true
}

// Put stores entry, evicting the least recently used entries over capacity.
func (c *Memory) Put(key Key, entry *Entry) error {
	digest := key.Digest()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[digest]; ok {
		item := elem.Value.(*memoryItem)
		c.bytes += entry.size() - item.entry.size()
		item.entry = entry
		c.eviction.MoveToFront(elem)

		return nil
	}

	c.items[digest] = c.eviction.PushFront(&memoryItem{digest: digest, entry: entry})
	c.bytes += entry.size()

	for c.eviction.Len() > c.capacity {
		oldest := c.eviction.Back()
		item := oldest.Value.(*memoryItem)

		c.eviction.Remove(oldest)
		delete(c.items, item.digest)
		c.bytes -= item.entry.size()
		c.stats.Evictions++
	}

	return nil
}

// Stats returns a snapshot of the counters.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.items)
	s.Bytes = c.bytes

	return s
}
