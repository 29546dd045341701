package language

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrNotSupported is returned by a Processor that cannot analyze a file.
var ErrNotSupported = errors.New("feature not supported for this language")

// LineSet is a set of 1-based line numbers.
type LineSet map[int]struct{}

func (s LineSet) Add(lines ...int) {
	for _, l := range lines {
		s[l] = struct{}{}
	}
}

// AddRange adds every line in [from, to].
func (s LineSet) AddRange(from, to int) {
	for l := from; l <= to; l++ {
		s[l] = struct{}{}
	}
}

func (s LineSet) Contains(line int) bool {
	_, ok := s[line]
	return ok
}

// Union adds every line of other to s.
func (s LineSet) Union(other LineSet) {
	for l := range other {
		s[l] = struct{}{}
	}
}

func (s LineSet) Sorted() []int {
	return slices.Sorted(maps.Keys(s))
}

// ClassKind distinguishes the kinds of class-like units.
type ClassKind string

const (
	KindClass     ClassKind = "class"
	KindTrait     ClassKind = "trait"
	KindEnum      ClassKind = "enum"
	KindInterface ClassKind = "interface"
)

type Method struct {
	Name       string
	Visibility string
	StartLine  int
	EndLine    int
	Complexity int
}

type Class struct {
	Name      string
	Namespace string
	Kind      ClassKind
	StartLine int
	EndLine   int
	Methods   []Method
}

// QualifiedName joins namespace and name with a backslash.
func (c Class) QualifiedName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + `\` + c.Name
}

type Function struct {
	Name       string
	Namespace  string
	StartLine  int
	EndLine    int
	Complexity int
}

func (f Function) QualifiedName() string {
	if f.Namespace == "" {
		return f.Name
	}
	return f.Namespace + `\` + f.Name
}

type LinesOfCode struct {
	Lines           int
	CommentLines    int
	NonCommentLines int
}

// FileAnalysis is the static view of one source file.
type FileAnalysis struct {
	Classes   []Class
	Functions []Function

	// ExecutableLines maps each executable line to the first line of the
	// statement it belongs to.
	ExecutableLines map[int]int

	// ScaffoldingLines are always ignored: imports and namespace
	// declarations, interface bodies, bodiless signatures and the braces of
	// empty bodies. Other lines missing from ExecutableLines are simply not
	// executable and must not be treated as ignored.
	ScaffoldingLines LineSet
	// AnnotatedLines are excluded by ignore annotations.
	AnnotatedLines LineSet
	// DeprecatedLines belong to units marked deprecated.
	DeprecatedLines LineSet

	LinesOfCode LinesOfCode
}

// NewFileAnalysis returns an analysis with all sets allocated.
func NewFileAnalysis() *FileAnalysis {
	return &FileAnalysis{
		ExecutableLines:  make(map[int]int),
		ScaffoldingLines: make(LineSet),
		AnnotatedLines:   make(LineSet),
		DeprecatedLines:  make(LineSet),
	}
}

// Processor defines the contract for all language-specific logic.
type Processor interface {
	// Name returns the unique, human-readable name of the processor (e.g., "PHP", "Go").
	Name() string

	// Detect checks if this processor should be used for a given source file path.
	Detect(filePath string) bool

	// Analyze inspects the source of filePath.
	Analyze(filePath string, src []byte) (*FileAnalysis, error)
}

var (
	mu                   sync.RWMutex
	registeredProcessors []Processor
)

// RegisterProcessor adds a processor to the list of available processors.
// This should be called by each processor implementation in its init() function.
func RegisterProcessor(p Processor) {
	mu.Lock()
	defer mu.Unlock()
	registeredProcessors = append(registeredProcessors, p)
}

// FindProcessorForFile iterates through registered processors to find one that
// can handle the given file path, falling back to the "Default" processor.
func FindProcessorForFile(filePath string) Processor {
	mu.RLock()
	defer mu.RUnlock()

	var defaultProcessor Processor
	for _, p := range registeredProcessors {
		if p.Name() == "Default" {
			defaultProcessor = p
			continue
		}
		if p.Detect(filePath) {
			return p
		}
	}

	if defaultProcessor != nil {
		return defaultProcessor
	}

	panic("FATAL: Default language processor was not registered.")
}
