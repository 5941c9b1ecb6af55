package xgrammar

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jmorganca/xgrammar/envconfig"
	"github.com/jmorganca/xgrammar/frontend"
	"github.com/jmorganca/xgrammar/grammar"
	"github.com/jmorganca/xgrammar/logutil"
	"github.com/jmorganca/xgrammar/mask"
	"github.com/jmorganca/xgrammar/types/errtypes"
	"github.com/jmorganca/xgrammar/vocab"
	"github.com/jmorganca/xgrammar/xgcache"
)

// Configuration controls one Compiler instance (spec.md §6).
type Configuration struct {
	// MaxThreads bounds C8's mask-compilation worker pool. Zero means
	// envconfig.Defaults().MaxThreads (runtime.NumCPU()).
	MaxThreads int

	// CacheDisabled turns off the C9/C10 caches. Caching is on by default
	// (the zero value), matching spec.md's assumption that compiles are
	// normally cached.
	CacheDisabled bool

	// MaxMemoryBytes bounds the combined C9+C10 cache footprint, split
	// one-third/two-thirds per spec.md §4.8/§4.9. Zero means unbounded.
	MaxMemoryBytes int64

	// Debug raises the default logger to trace level. Ignored if Logger is
	// set. Falls back to envconfig.Defaults().Debug when false.
	Debug bool

	Logger *slog.Logger
}

func (c Configuration) validate() error {
	if c.MaxThreads < 0 {
		return &errtypes.InvalidConfigurationError{Field: "MaxThreads", Reason: "must be >= 0"}
	}
	if c.MaxMemoryBytes < 0 {
		return &errtypes.InvalidConfigurationError{Field: "MaxMemoryBytes", Reason: "must be >= 0"}
	}
	return nil
}

// Compiler wires the frontend → grammar → mask → xgcache pipeline together
// for one tokenizer vocabulary.
type Compiler struct {
	cfg    Configuration
	tok    *vocab.Info
	logger *slog.Logger

	crossing *xgcache.Crossing
	compiled *xgcache.Compiled[CompiledGrammar]
}

// NewCompiler returns a Compiler for decodedVocab (index = token id) and
// specialIDs (BOS/EOS/control tokens, per vocab.New). A zero Configuration
// is filled in from envconfig.Defaults().
func NewCompiler(cfg Configuration, decodedVocab []string, specialIDs []int32) (*Compiler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = envconfig.Defaults().MaxThreads
	}
	if !cfg.Debug {
		cfg.Debug = envconfig.Defaults().Debug
	}
	logger := cfg.Logger
	if logger == nil {
		level := slog.LevelInfo
		if cfg.Debug {
			level = logutil.LevelTrace
		}
		logger = logutil.NewLogger(os.Stderr, level)
	}

	crossingCap, compiledCap := splitMemoryBudget(cfg.MaxMemoryBytes)

	return &Compiler{
		cfg:      cfg,
		tok:      vocab.New(decodedVocab, specialIDs),
		logger:   logger,
		crossing: xgcache.NewCrossing(crossingCap),
		compiled: xgcache.NewCompiled[CompiledGrammar](compiledCap, sizeOfCompiled),
	}, nil
}

// splitMemoryBudget divides budget one-third to the crossing-grammar mask
// cache (C9) and two-thirds to the outer compiled-grammar cache (C10), per
// spec.md §4.8/§4.9. Zero (or negative) means unbounded for both.
func splitMemoryBudget(budget int64) (crossingCap, compiledCap int64) {
	if budget <= 0 {
		return -1, -1
	}
	return budget / 3, budget - budget/3
}

func sizeOfCompiled(cg CompiledGrammar) int64 {
	var n int64
	for _, m := range cg.Masks {
		n += m.SizeBytes()
	}
	return n
}

// SetLogger replaces the Compiler's logger.
func (c *Compiler) SetLogger(l *slog.Logger) { c.logger = l }

// ClearCache empties both the C9 and C10 caches.
func (c *Compiler) ClearCache() {
	c.crossing.Clear()
	c.compiled.Clear()
}

// GetCacheSizeBytes reports the combined tracked byte total of both caches.
func (c *Compiler) GetCacheSizeBytes() int64 {
	return c.crossing.SizeBytes() + c.compiled.SizeBytes()
}

// CacheLimitBytes reports the configured combined cache budget (-1 meaning
// unbounded, mirroring Configuration.MaxMemoryBytes == 0).
func (c *Compiler) CacheLimitBytes() int64 {
	if c.cfg.MaxMemoryBytes <= 0 {
		return -1
	}
	return c.cfg.MaxMemoryBytes
}

// Compile runs C3 normalize → C4 optimize (which runs C5/C6 internally) →
// C8 mask compilation over an already-built grammar IR (e.g. one produced by
// one of the frontend.Compile* front ends below).
func (c *Compiler) Compile(g *grammar.Grammar) (CompiledGrammar, error) {
	return c.compileIR(g)
}

func (c *Compiler) compileIR(g *grammar.Grammar) (CompiledGrammar, error) {
	b := grammar.WrapBuilder(g)
	if err := grammar.Normalize(b); err != nil {
		return CompiledGrammar{}, fmt.Errorf("xgrammar: normalize: %w", err)
	}
	if err := grammar.Optimize(b, grammar.OptimizeOptions{BuildFSM: true, EnableCaching: !c.cfg.CacheDisabled}); err != nil {
		return CompiledGrammar{}, fmt.Errorf("xgrammar: optimize: %w", err)
	}
	c.logger.Debug("grammar normalized and optimized", "rules", len(g.Rules))

	masks, err := mask.CompileRuleMasks(g, mask.Options{
		Tokenizer:          c.tok,
		Crossing:           c.crossing,
		CacheEnabled:       !c.cfg.CacheDisabled,
		UseBitsetThreshold: mask.DefaultUseBitsetThreshold,
		Workers:            c.cfg.MaxThreads,
	})
	if err != nil {
		return CompiledGrammar{}, fmt.Errorf("xgrammar: compile masks: %w", err)
	}
	c.logger.Debug("mask compilation complete", "states", len(masks))
	return CompiledGrammar{Grammar: g, Masks: masks}, nil
}

// CompileEBNF parses text as an EBNF grammar rooted at rootRule and compiles
// it.
func (c *Compiler) CompileEBNF(text, rootRule string) (CompiledGrammar, error) {
	return c.compileCached(xgcache.CompiledKey{Kind: xgcache.KindEBNF, Text: text, Root: rootRule}, func() (*grammar.Grammar, error) {
		return frontend.CompileEBNF(text, rootRule)
	})
}

// CompileJSONSchema compiles a JSON Schema document.
func (c *Compiler) CompileJSONSchema(schemaJSON []byte, opts frontend.JSONSchemaOptions) (CompiledGrammar, error) {
	key := xgcache.CompiledKey{Kind: xgcache.KindJSONSchema, Text: string(schemaJSON), Options: fmt.Sprintf("%+v", opts)}
	return c.compileCached(key, func() (*grammar.Grammar, error) {
		return frontend.CompileJSONSchema(schemaJSON, opts)
	})
}

// CompileRegex compiles a regular expression.
func (c *Compiler) CompileRegex(pattern string) (CompiledGrammar, error) {
	return c.compileCached(xgcache.CompiledKey{Kind: xgcache.KindRegex, Text: pattern}, func() (*grammar.Grammar, error) {
		return frontend.CompileRegex(pattern)
	})
}

// CompileStructuralTag compiles a structural-tag document.
func (c *Compiler) CompileStructuralTag(tagJSON []byte) (CompiledGrammar, error) {
	return c.compileCached(xgcache.CompiledKey{Kind: xgcache.KindStructuralTag, Text: string(tagJSON)}, func() (*grammar.Grammar, error) {
		return frontend.CompileStructuralTag(tagJSON)
	})
}

// CompileBuiltinJSONGrammar compiles the precompiled RFC 7159 JSON grammar.
func (c *Compiler) CompileBuiltinJSONGrammar() (CompiledGrammar, error) {
	return c.compileCached(xgcache.CompiledKey{Kind: xgcache.KindBuiltinJSON}, frontend.CompileBuiltinJSONGrammar)
}

// compileCached runs the C10 outer cache around a front end + the C3/C4/C8
// pipeline, collapsing concurrent identical compiles via singleflight.
func (c *Compiler) compileCached(key xgcache.CompiledKey, front func() (*grammar.Grammar, error)) (CompiledGrammar, error) {
	if c.cfg.CacheDisabled {
		g, err := front()
		if err != nil {
			return CompiledGrammar{}, err
		}
		return c.compileIR(g)
	}
	return c.compiled.GetOrCompile(key, func() (CompiledGrammar, error) {
		g, err := front()
		if err != nil {
			return CompiledGrammar{}, err
		}
		return c.compileIR(g)
	})
}
