package xgcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizeOfString(s string) int64 { return int64(len(s)) }

func TestCompiledGetOrCompileFillsOnceAndCaches(t *testing.T) {
	c := NewCompiled[string](-1, sizeOfString)
	key := CompiledKey{Kind: KindEBNF, Text: "root ::= \"a\""}

	var calls int32
	fill := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "compiled", nil
	}

	v, err := c.GetOrCompile(key, fill)
	require.NoError(t, err)
	assert.Equal(t, "compiled", v)

	v2, err := c.GetOrCompile(key, fill)
	require.NoError(t, err)
	assert.Equal(t, "compiled", v2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCompiledGetOrCompileCollapsesConcurrentCallers(t *testing.T) {
	c := NewCompiled[string](-1, sizeOfString)
	key := CompiledKey{Kind: KindRegex, Text: "a+"}

	var calls int32
	release := make(chan struct{})
	fill := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := c.GetOrCompile(key, fill)
			results[i] = v
		}(i)
	}
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "v", r)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCompiledGetOrCompilePropagatesError(t *testing.T) {
	c := NewCompiled[string](-1, sizeOfString)
	key := CompiledKey{Kind: KindJSONSchema, Text: "{}"}
	wantErr := errors.New("bad schema")

	_, err := c.GetOrCompile(key, func() (string, error) { return "", wantErr })
	assert.ErrorIs(t, err, wantErr)

	_, ok := c.Get(key)
	assert.False(t, ok, "a failed fill must not be cached")
}

func TestCompiledAddRejectsDuplicateAndOversized(t *testing.T) {
	c := NewCompiled[string](4, sizeOfString)
	key := CompiledKey{Kind: KindStructuralTag, Text: "x"}

	assert.True(t, c.Add(key, "abcd"))
	assert.False(t, c.Add(key, "abcd"))

	other := CompiledKey{Kind: KindStructuralTag, Text: "y"}
	assert.False(t, c.Add(other, "toolong"))
}

func TestCompiledEvictsOldestUnderByteBudget(t *testing.T) {
	c := NewCompiled[string](4, sizeOfString)
	k1 := CompiledKey{Kind: KindBuiltinJSON, Text: "1"}
	k2 := CompiledKey{Kind: KindBuiltinJSON, Text: "2"}

	c.Add(k1, "abcd")
	c.Add(k2, "wxyz")

	_, ok1 := c.Get(k1)
	_, ok2 := c.Get(k2)
	assert.False(t, ok1)
	assert.True(t, ok2)
}

func TestCompiledClearResetsByteTotal(t *testing.T) {
	c := NewCompiled[string](-1, sizeOfString)
	c.Add(CompiledKey{Kind: KindEBNF, Text: "a"}, "a")
	require.Greater(t, c.SizeBytes(), int64(0))

	c.Clear()
	assert.Equal(t, int64(0), c.SizeBytes())
}
