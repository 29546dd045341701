// Package analysis answers the static questions the coverage core asks about
// a source file: which lines are executable and which are ignored.
package analysis

import (
	"fmt"
	"maps"
	"sync"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"

	// Register the language processors.
	_ "github.com/sebastianbergmann/php-code-coverage-sub000/internal/language/default"
	_ "github.com/sebastianbergmann/php-code-coverage-sub000/internal/language/golang"
	_ "github.com/sebastianbergmann/php-code-coverage-sub000/internal/language/php"
)

// FileNotReadableError is returned when a source file cannot be read.
type FileNotReadableError struct {
	Path string
	Err  error
}

func (e *FileNotReadableError) Error() string {
	return fmt.Sprintf("source file %s is not readable: %v", e.Path, e.Err)
}

func (e *FileNotReadableError) Unwrap() error { return e.Err }

// sourceCache analyzes each path once.
type sourceCache struct {
	reader filereader.FileReader

	mu      sync.Mutex
	entries map[string]*language.FileAnalysis
}

func newSourceCache(reader filereader.FileReader) *sourceCache {
	return &sourceCache{reader: reader, entries: make(map[string]*language.FileAnalysis)}
}

func (c *sourceCache) analyze(path string) (*language.FileAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.entries[path]; ok {
		return a, nil
	}
	src, err := c.reader.ReadFile(path)
	if err != nil {
		return nil, &FileNotReadableError{Path: path, Err: err}
	}
	processor := language.FindProcessorForFile(path)
	a, err := processor.Analyze(path, src)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s with the %s processor: %w", path, processor.Name(), err)
	}
	c.entries[path] = a
	return a, nil
}

// IgnoredLinesFinder computes the lines of a file excluded from coverage.
type IgnoredLinesFinder struct {
	cache *sourceCache
}

func NewIgnoredLinesFinder(reader filereader.FileReader) *IgnoredLinesFinder {
	return &IgnoredLinesFinder{cache: newSourceCache(reader)}
}

// Find returns the ignored lines of path. Scaffolding is always ignored;
// annotated regions only with useAnnotations and deprecated units only with
// ignoreDeprecated.
func (f *IgnoredLinesFinder) Find(path string, useAnnotations, ignoreDeprecated bool) (language.LineSet, error) {
	a, err := f.cache.analyze(path)
	if err != nil {
		return nil, err
	}
	ignored := make(language.LineSet, len(a.ScaffoldingLines))
	ignored.Union(a.ScaffoldingLines)
	if useAnnotations {
		ignored.Union(a.AnnotatedLines)
	}
	if ignoreDeprecated {
		ignored.Union(a.DeprecatedLines)
	}
	return ignored, nil
}

// Analyser serves the collector and the node builder. It holds the ignore
// policy so callers only pass paths.
type Analyser struct {
	cache            *sourceCache
	finder           *IgnoredLinesFinder
	useAnnotations   bool
	ignoreDeprecated bool
}

func NewAnalyser(reader filereader.FileReader, useAnnotations, ignoreDeprecated bool) *Analyser {
	cache := newSourceCache(reader)
	return &Analyser{
		cache:            cache,
		finder:           &IgnoredLinesFinder{cache: cache},
		useAnnotations:   useAnnotations,
		ignoreDeprecated: ignoreDeprecated,
	}
}

// AnalyzeFile returns the cached analysis of path. Callers must not modify it.
func (a *Analyser) AnalyzeFile(path string) (*language.FileAnalysis, error) {
	return a.cache.analyze(path)
}

func (a *Analyser) ExecutableLinesIn(path string) (map[int]int, error) {
	fa, err := a.cache.analyze(path)
	if err != nil {
		return nil, err
	}
	return maps.Clone(fa.ExecutableLines), nil
}

func (a *Analyser) IgnoredLinesFor(path string) (map[int]struct{}, error) {
	return a.finder.Find(path, a.useAnnotations, a.ignoreDeprecated)
}
