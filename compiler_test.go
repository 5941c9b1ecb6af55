package xgrammar

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/xgrammar/frontend"
)

func smallVocab() ([]string, []int32) {
	decoded := []string{"a", "ab", "abc", "b", "c", "true", "false", "null", "{", "}", "\"", ":", ","}
	return decoded, nil
}

func TestNewCompilerRejectsNegativeMaxThreads(t *testing.T) {
	decoded, special := smallVocab()
	_, err := NewCompiler(Configuration{MaxThreads: -1}, decoded, special)
	assert.Error(t, err)
}

func TestNewCompilerRejectsNegativeMaxMemoryBytes(t *testing.T) {
	decoded, special := smallVocab()
	_, err := NewCompiler(Configuration{MaxMemoryBytes: -1}, decoded, special)
	assert.Error(t, err)
}

func TestNewCompilerFillsDefaultsAndSucceeds(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(-1), c.CacheLimitBytes(), "zero MaxMemoryBytes means unbounded")
}

func TestCompilerCacheLimitBytesReflectsConfiguration(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{MaxMemoryBytes: 9000}, decoded, special)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), c.CacheLimitBytes())
}

func TestCompilerCompileRegexProducesMasks(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	cg, err := c.CompileRegex("abc")
	require.NoError(t, err)
	assert.NotNil(t, cg.Grammar)
	assert.NotEmpty(t, cg.Masks, "a non-trivial grammar over a non-empty vocabulary should produce scannable-state masks")
}

func TestCompilerCompileBuiltinJSONGrammar(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	cg, err := c.CompileBuiltinJSONGrammar()
	require.NoError(t, err)
	assert.NotNil(t, cg.Grammar)
}

func TestCompilerCompileJSONSchema(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	_, err = c.CompileJSONSchema([]byte(`{"type":"object","properties":{"a":{"type":"string"}}}`), frontend.JSONSchemaOptions{})
	assert.NoError(t, err)
}

func TestCompilerCompileEBNF(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	_, err = c.CompileEBNF(`root = "a" | "b" .`, "root")
	assert.NoError(t, err)
}

func TestCompilerCompileStructuralTag(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	_, err = c.CompileStructuralTag([]byte(`{
		"format": "triggered_tags",
		"tags": [{"begin": "<T>", "schema": {"type": "string"}, "end": "</T>"}],
		"triggers": ["<T>"]
	}`))
	assert.NoError(t, err)
}

func TestCompilerCompileRegexIsCachedAcrossCalls(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	first, err := c.CompileRegex("abc")
	require.NoError(t, err)
	before := c.GetCacheSizeBytes()
	assert.Positive(t, before)

	second, err := c.CompileRegex("abc")
	require.NoError(t, err)
	assert.Same(t, first.Grammar, second.Grammar, "identical pattern should hit the C10 cache, not recompile")
	assert.Equal(t, before, c.GetCacheSizeBytes(), "a cache hit must not grow the tracked size")
}

func TestCompilerClearCacheEmptiesBothCaches(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	_, err = c.CompileRegex("abc")
	require.NoError(t, err)
	require.Positive(t, c.GetCacheSizeBytes())

	c.ClearCache()
	assert.Zero(t, c.GetCacheSizeBytes())
}

func TestCompilerCacheDisabledSkipsCache(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{CacheDisabled: true}, decoded, special)
	require.NoError(t, err)

	_, err = c.CompileRegex("abc")
	require.NoError(t, err)
	assert.Zero(t, c.GetCacheSizeBytes(), "caching disabled means nothing is tracked")
}

func TestCompilerSetLoggerReplacesLogger(t *testing.T) {
	decoded, special := smallVocab()
	c, err := NewCompiler(Configuration{}, decoded, special)
	require.NoError(t, err)

	var buf bytes.Buffer
	c.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	_, err = c.CompileRegex("abc")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "mask compilation complete")
}
