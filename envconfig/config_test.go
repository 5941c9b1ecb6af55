package envconfig

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsFallsBackWhenUnset(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, runtime.NumCPU(), cfg.MaxThreads)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, int64(0), cfg.MaxMemoryBytes)
	assert.False(t, cfg.Debug)
}

func TestDefaultsReadsMaxThreads(t *testing.T) {
	t.Setenv("XGRAMMAR_MAX_THREADS", "4")
	cfg := Defaults()
	assert.Equal(t, 4, cfg.MaxThreads)
}

func TestDefaultsIgnoresInvalidMaxThreads(t *testing.T) {
	t.Setenv("XGRAMMAR_MAX_THREADS", "not-a-number")
	cfg := Defaults()
	assert.Equal(t, runtime.NumCPU(), cfg.MaxThreads)
}

func TestDefaultsIgnoresNegativeMaxThreads(t *testing.T) {
	t.Setenv("XGRAMMAR_MAX_THREADS", "-1")
	cfg := Defaults()
	assert.Equal(t, runtime.NumCPU(), cfg.MaxThreads)
}

func TestDefaultsReadsCacheEnabled(t *testing.T) {
	t.Setenv("XGRAMMAR_CACHE_ENABLED", "false")
	cfg := Defaults()
	assert.False(t, cfg.CacheEnabled)
}

func TestDefaultsReadsMaxMemoryBytes(t *testing.T) {
	t.Setenv("XGRAMMAR_MAX_MEMORY_BYTES", "1024")
	cfg := Defaults()
	assert.Equal(t, int64(1024), cfg.MaxMemoryBytes)
}

func TestDefaultsIgnoresNegativeMaxMemoryBytes(t *testing.T) {
	t.Setenv("XGRAMMAR_MAX_MEMORY_BYTES", "-5")
	cfg := Defaults()
	assert.Equal(t, int64(0), cfg.MaxMemoryBytes)
}

func TestDefaultsReadsDebug(t *testing.T) {
	t.Setenv("XGRAMMAR_DEBUG", "true")
	cfg := Defaults()
	assert.True(t, cfg.Debug)
}

func TestDefaultsTrimsQuotesAndSpaces(t *testing.T) {
	t.Setenv("XGRAMMAR_MAX_THREADS", ` "8" `)
	cfg := Defaults()
	assert.Equal(t, 8, cfg.MaxThreads)
}
