package xgcache

import (
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CrossingKey is C9's cache key: an FSM fingerprint, the state within that
// FSM (in the complete FSM's numbering), and the tokenizer the mask was
// compiled against. Identical keys across two unrelated grammars share mask
// work whenever both embed structurally identical sub-automata.
type CrossingKey struct {
	FSMHash       uint64
	NodeID        int32
	TokenizerHash uint64
}

type crossingEntry struct {
	mask Mask
	size int64
}

// Crossing is the C9 bounded-by-bytes LRU. A single mutex guards both the
// underlying LRU and the byte accountant; callers never hold any other lock
// while calling Get/Add (spec.md §4.8's concurrency note).
type Crossing struct {
	mu       sync.Mutex
	cache    *lru.Cache[CrossingKey, crossingEntry]
	bytes    int64
	capacity int64
}

// NewCrossing returns a Crossing bounded to capacityBytes. A negative
// capacity means unlimited (never evicts).
func NewCrossing(capacityBytes int64) *Crossing {
	c, _ := lru.New[CrossingKey, crossingEntry](math.MaxInt32)
	return &Crossing{cache: c, capacity: capacityBytes}
}

// Get returns a copy of the cached mask for key, moving it to MRU on hit.
func (c *Crossing) Get(key CrossingKey) (Mask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache.Get(key)
	if !ok {
		return Mask{}, false
	}
	return e.mask, true
}

// Add inserts mask under key. No-op (returns false) if key is already
// present or mask alone exceeds capacity; otherwise evicts LRU entries until
// the running total is back under capacity.
func (c *Crossing) Add(key CrossingKey, mask Mask) bool {
	size := mask.SizeBytes()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache.Peek(key); ok {
		return false
	}
	if c.capacity >= 0 && size > c.capacity {
		return false
	}

	c.cache.Add(key, crossingEntry{mask: mask, size: size})
	c.bytes += size
	c.evictLocked()
	return true
}

func (c *Crossing) evictLocked() {
	if c.capacity < 0 {
		return
	}
	for c.bytes > c.capacity {
		_, e, ok := c.cache.RemoveOldest()
		if !ok {
			break
		}
		c.bytes -= e.size
	}
}

// Clear empties the cache.
func (c *Crossing) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	c.bytes = 0
}

// SizeBytes reports the current tracked byte total.
func (c *Crossing) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
