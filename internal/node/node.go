// Package node builds the report tree consumed by reporters: directories,
// files, classes and methods with their coverage metrics.
package node

import (
	"path"
	"slices"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"
)

// Counts are the metrics every node aggregates.
type Counts struct {
	ExecutableLines    int
	ExecutedLines      int
	ExecutableBranches int
	ExecutedBranches   int
	ExecutablePaths    int
	ExecutedPaths      int

	Classes         int
	TestedClasses   int
	Traits          int
	TestedTraits    int
	Methods         int
	TestedMethods   int
	Functions       int
	TestedFunctions int

	LinesOfCode language.LinesOfCode
}

func (c *Counts) add(o Counts) {
	c.ExecutableLines += o.ExecutableLines
	c.ExecutedLines += o.ExecutedLines
	c.ExecutableBranches += o.ExecutableBranches
	c.ExecutedBranches += o.ExecutedBranches
	c.ExecutablePaths += o.ExecutablePaths
	c.ExecutedPaths += o.ExecutedPaths
	c.Classes += o.Classes
	c.TestedClasses += o.TestedClasses
	c.Traits += o.Traits
	c.TestedTraits += o.TestedTraits
	c.Methods += o.Methods
	c.TestedMethods += o.TestedMethods
	c.Functions += o.Functions
	c.TestedFunctions += o.TestedFunctions
	c.LinesOfCode.Lines += o.LinesOfCode.Lines
	c.LinesOfCode.CommentLines += o.LinesOfCode.CommentLines
	c.LinesOfCode.NonCommentLines += o.LinesOfCode.NonCommentLines
}

// ClassesAndTraits combines both kinds the way text reports show them.
func (c Counts) ClassesAndTraits() (tested, total int) {
	return c.TestedClasses + c.TestedTraits, c.Classes + c.Traits
}

// Percent returns covered/total as a percentage, 100 when total is zero.
func Percent(covered, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(covered) / float64(total) * 100
}

// Node is implemented by Directory and File.
type Node interface {
	Name() string
	// ID is the path of the node relative to the root.
	ID() string
	Counts() Counts
}

// Unit is a method or a function with its metrics.
type Unit struct {
	Name       string
	Visibility string
	StartLine  int
	EndLine    int

	ExecutableLines    int
	ExecutedLines      int
	ExecutableBranches int
	ExecutedBranches   int
	ExecutablePaths    int
	ExecutedPaths      int

	CCN      int
	Coverage float64
	CRAP     float64
}

// Tested reports whether every executable line of the unit was executed.
func (u *Unit) Tested() bool {
	return u.ExecutableLines > 0 && u.ExecutedLines == u.ExecutableLines
}

type Class struct {
	Name      string
	Namespace string
	Kind      language.ClassKind
	StartLine int
	EndLine   int
	Methods   []*Unit

	ExecutableLines int
	ExecutedLines   int
	CCN             int
	Coverage        float64
	CRAP            float64
}

// counted reports whether any method has executable lines.
func (c *Class) counted() bool {
	return slices.ContainsFunc(c.Methods, func(m *Unit) bool { return m.ExecutableLines > 0 })
}

// Tested reports whether all methods with executable lines are fully covered.
func (c *Class) Tested() bool {
	if !c.counted() {
		return false
	}
	for _, m := range c.Methods {
		if m.ExecutableLines > 0 && !m.Tested() {
			return false
		}
	}
	return true
}

type File struct {
	name   string
	id     string
	path   string
	counts Counts

	lines     map[int]coverage.TestSet
	functions map[string]*coverage.ProcessedFunction

	Classes   []*Class
	Functions []*Unit
}

func (f *File) Name() string   { return f.name }
func (f *File) ID() string     { return f.id }
func (f *File) Counts() Counts { return f.counts }

// Path is the path of the source file as recorded in the coverage data.
func (f *File) Path() string { return f.path }

// LineCoverage returns the tests per executable line.
func (f *File) LineCoverage() map[int]coverage.TestSet { return f.lines }

func (f *File) FunctionCoverage() map[string]*coverage.ProcessedFunction { return f.functions }

// CoveringTests returns the sorted ids of the tests that executed line.
func (f *File) CoveringTests(line int) []string {
	tests, ok := f.lines[line]
	if !ok {
		return nil
	}
	return tests.Sorted()
}

type Directory struct {
	name        string
	id          string
	counts      Counts
	Directories []*Directory
	Files       []*File
}

func (d *Directory) Name() string   { return d.name }
func (d *Directory) ID() string     { return d.id }
func (d *Directory) Counts() Counts { return d.counts }

// AllFiles returns every file below d in path order.
func (d *Directory) AllFiles() []*File {
	var files []*File
	for _, sub := range d.Directories {
		files = append(files, sub.AllFiles()...)
	}
	files = append(files, d.Files...)
	slices.SortFunc(files, func(a, b *File) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return files
}

func (d *Directory) child(name string) *Directory {
	for _, sub := range d.Directories {
		if sub.name == name {
			return sub
		}
	}
	sub := &Directory{name: name, id: path.Join(d.id, name)}
	d.Directories = append(d.Directories, sub)
	return sub
}

func (d *Directory) aggregate() {
	d.counts = Counts{}
	for _, sub := range d.Directories {
		sub.aggregate()
		d.counts.add(sub.counts)
	}
	for _, f := range d.Files {
		d.counts.add(f.counts)
	}
}
