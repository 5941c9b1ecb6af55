package xgcache

import (
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// InputKind tags which of the five front-end entry points produced a
// CompiledKey (spec.md §4.9).
type InputKind uint8

const (
	KindBuiltinJSON InputKind = iota
	KindJSONSchema
	KindStructuralTag
	KindEBNF
	KindRegex
)

// CompiledKey is C10's cache key: a tagged union over the five input kinds.
// Fields unused by a given Kind are left zero.
type CompiledKey struct {
	Kind    InputKind
	Text    string // schema text / structural-tag JSON / EBNF text / regex text
	Options string // JSON-schema compile options, serialized
	Root    string // EBNF root-rule name
}

type compiledEntry[T any] struct {
	value T
	size  int64
}

// Compiled is the C10 bounded-by-bytes, thread-safe LRU over an arbitrary
// compiled-grammar type T. sizeOf estimates a value's footprint for the byte
// accountant. A singleflight.Group collapses concurrent compiles of the same
// key into one call to fill.
type Compiled[T any] struct {
	mu       sync.Mutex
	cache    *lru.Cache[CompiledKey, compiledEntry[T]]
	bytes    int64
	capacity int64
	sizeOf   func(T) int64
	group    singleflight.Group
}

// NewCompiled returns a Compiled bounded to capacityBytes (negative =
// unlimited).
func NewCompiled[T any](capacityBytes int64, sizeOf func(T) int64) *Compiled[T] {
	c, _ := lru.New[CompiledKey, compiledEntry[T]](math.MaxInt32)
	return &Compiled[T]{cache: c, capacity: capacityBytes, sizeOf: sizeOf}
}

// Get returns the cached value for key, if present.
func (c *Compiled[T]) Get(key CompiledKey) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetOrCompile returns the cached value for key, or calls fill exactly once
// across any concurrently-racing callers for the same key, caching and
// returning its result.
func (c *Compiled[T]) GetOrCompile(key CompiledKey, fill func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(keyString(key), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fill()
		if err != nil {
			return v, err
		}
		c.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Add inserts value under key, evicting LRU entries until back under budget.
func (c *Compiled[T]) Add(key CompiledKey, value T) bool {
	size := c.sizeOf(value)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache.Peek(key); ok {
		return false
	}
	if c.capacity >= 0 && size > c.capacity {
		return false
	}

	c.cache.Add(key, compiledEntry[T]{value: value, size: size})
	c.bytes += size
	c.evictLocked()
	return true
}

func (c *Compiled[T]) evictLocked() {
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
func (c *Compiled[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	c.bytes = 0
}

// SizeBytes reports the current tracked byte total.
func (c *Compiled[T]) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func keyString(k CompiledKey) string {
	return string([]byte{byte(k.Kind)}) + "\x00" + k.Text + "\x00" + k.Options + "\x00" + k.Root
}
