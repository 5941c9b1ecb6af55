// Package envconfig reads process-wide defaults from the environment.
package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Configuration holds the process-wide defaults a Compiler is constructed
// with absent explicit overrides.
type Configuration struct {
	// MaxThreads bounds the worker pool C8's mask compiler uses. Zero means
	// runtime.NumCPU().
	MaxThreads int

	// CacheEnabled turns the C9/C10 cross-grammar caches on or off.
	CacheEnabled bool

	// MaxMemoryBytes bounds the combined size of the C9 adaptive-token-mask
	// cache and the C10 compiled-grammar cache (split per spec.md §4.8/§4.9's
	// one-third/two-thirds rule). Zero means unbounded.
	MaxMemoryBytes int64

	// Debug enables verbose logging.
	Debug bool
}

// Defaults reads XGRAMMAR_MAX_THREADS, XGRAMMAR_CACHE_ENABLED,
// XGRAMMAR_MAX_MEMORY_BYTES, and XGRAMMAR_DEBUG from the environment,
// falling back to sensible defaults (threads = 0 meaning NumCPU, caching on,
// memory unbounded) for anything unset or unparsable. The exception is
// XGRAMMAR_DEBUG: a value that does not parse as a boolean turns debug on.
func Defaults() Configuration {
	cfg := Configuration{
		MaxThreads:   0,
		CacheEnabled: true,
	}

	if v := clean("XGRAMMAR_MAX_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			slog.Error("invalid setting, ignoring", "XGRAMMAR_MAX_THREADS", v, "error", err)
		} else {
			cfg.MaxThreads = n
		}
	}
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = runtime.NumCPU()
	}

	if v := clean("XGRAMMAR_CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Error("invalid setting, ignoring", "XGRAMMAR_CACHE_ENABLED", v, "error", err)
		} else {
			cfg.CacheEnabled = b
		}
	}

	if v := clean("XGRAMMAR_MAX_MEMORY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			slog.Error("invalid setting, ignoring", "XGRAMMAR_MAX_MEMORY_BYTES", v, "error", err)
		} else {
			cfg.MaxMemoryBytes = n
		}
	}

	if v := clean("XGRAMMAR_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.Debug = b
		} else {
			cfg.Debug = true
		}
	}

	return cfg
}

// clean trims quotes and spaces from an environment value.
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}
