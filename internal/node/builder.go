package node

import (
	"fmt"
	"math"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"
)

// SourceAnalyser provides the static structure of a source file.
type SourceAnalyser interface {
	AnalyzeFile(path string) (*language.FileAnalysis, error)
}

type Builder struct {
	analyser SourceAnalyser
}

func NewBuilder(analyser SourceAnalyser) *Builder {
	return &Builder{analyser: analyser}
}

// Build creates the report tree of data. The root is named after the common
// directory of all covered files.
func (b *Builder) Build(data *coverage.ProcessedCoverageData) (*Directory, error) {
	files := data.CoveredFiles()
	common, relative := reducePaths(files)
	root := &Directory{name: common}

	for i, file := range files {
		analysis, err := b.analyser.AnalyzeFile(file)
		if err != nil {
			return nil, fmt.Errorf("building node for %s: %w", file, err)
		}

		parts := strings.Split(relative[i], "/")
		dir := root
		for _, part := range parts[:len(parts)-1] {
			dir = dir.child(part)
		}
		node := &File{
			name:      parts[len(parts)-1],
			id:        path.Join(dir.id, parts[len(parts)-1]),
			path:      file,
			lines:     data.LineCoverage()[file],
			functions: data.FunctionCoverage()[file],
		}
		node.calculate(analysis)
		dir.Files = append(dir.Files, node)
	}

	root.aggregate()
	return root, nil
}

func (f *File) calculate(a *language.FileAnalysis) {
	c := &f.counts
	c.LinesOfCode = a.LinesOfCode
	for _, tests := range f.lines {
		c.ExecutableLines++
		if tests.Len() > 0 {
			c.ExecutedLines++
		}
	}
	for _, fn := range f.functions {
		c.ExecutableBranches += len(fn.Branches)
		c.ExecutablePaths += len(fn.Paths)
		for _, br := range fn.Branches {
			if br.Hit > 0 {
				c.ExecutedBranches++
			}
		}
		for _, p := range fn.Paths {
			if p.Hit > 0 {
				c.ExecutedPaths++
			}
		}
	}

	for _, lc := range a.Classes {
		class := &Class{
			Name:      lc.Name,
			Namespace: lc.Namespace,
			Kind:      lc.Kind,
			StartLine: lc.StartLine,
			EndLine:   lc.EndLine,
		}
		for _, lm := range lc.Methods {
			m := f.unit(lm.Name, lc.QualifiedName()+"->"+lm.Name, lm.StartLine, lm.EndLine, lm.Complexity)
			m.Visibility = lm.Visibility
			class.Methods = append(class.Methods, m)
			class.ExecutableLines += m.ExecutableLines
			class.ExecutedLines += m.ExecutedLines
			class.CCN += m.CCN
			if m.ExecutableLines > 0 {
				c.Methods++
				if m.Tested() {
					c.TestedMethods++
				}
			}
		}
		class.Coverage = Percent(class.ExecutedLines, class.ExecutableLines)
		class.CRAP = crap(class.CCN, class.Coverage)

		if class.counted() {
			if class.Kind == language.KindTrait {
				c.Traits++
				if class.Tested() {
					c.TestedTraits++
				}
			} else {
				c.Classes++
				if class.Tested() {
					c.TestedClasses++
				}
			}
		}
		f.Classes = append(f.Classes, class)
	}

	for _, lf := range a.Functions {
		fn := f.unit(lf.QualifiedName(), lf.QualifiedName(), lf.StartLine, lf.EndLine, lf.Complexity)
		fn.Visibility = "public"
		if fn.ExecutableLines > 0 {
			c.Functions++
			if fn.Tested() {
				c.TestedFunctions++
			}
		}
		f.Functions = append(f.Functions, fn)
	}
}

// unit computes the metrics of the lines [start, end]; key selects the
// branch and path data of the unit.
func (f *File) unit(name, key string, start, end, ccn int) *Unit {
	u := &Unit{Name: name, StartLine: start, EndLine: end, CCN: ccn}
	for line, tests := range f.lines {
		if line < start || line > end {
			continue
		}
		u.ExecutableLines++
		if tests.Len() > 0 {
			u.ExecutedLines++
		}
	}
	if fn, ok := f.functions[key]; ok {
		u.ExecutableBranches = len(fn.Branches)
		u.ExecutablePaths = len(fn.Paths)
		for _, br := range fn.Branches {
			if br.Hit > 0 {
				u.ExecutedBranches++
			}
		}
		for _, p := range fn.Paths {
			if p.Hit > 0 {
				u.ExecutedPaths++
			}
		}
	}
	u.Coverage = Percent(u.ExecutedLines, u.ExecutableLines)
	u.CRAP = crap(u.CCN, u.Coverage)
	return u
}

// crap calculates the CRAP index of a unit. coverage is a percentage.
func crap(ccn int, coverage float64) float64 {
	complexity := float64(ccn)
	switch {
	case coverage >= 95:
		return complexity
	case coverage <= 0:
		return complexity*complexity + complexity
	}
	uncoveredRatio := 1.0 - coverage/100
	// CRAP = (complexity^2 * uncoveredRatio^3) + complexity
	return math.Pow(complexity, 2)*math.Pow(uncoveredRatio, 3) + complexity
}

// reducePaths strips the directory prefix all files share. It returns the
// prefix and the remaining slash-separated path of each file.
func reducePaths(files []string) (string, []string) {
	relative := make([]string, len(files))
	if len(files) == 0 {
		return "", relative
	}
	split := make([][]string, len(files))
	for i, f := range files {
		split[i] = strings.Split(filepath.ToSlash(f), "/")
	}

	if len(files) == 1 {
		parts := split[0]
		relative[0] = parts[len(parts)-1]
		return strings.Join(parts[:len(parts)-1], "/"), relative
	}

	shared := 0
	for {
		if shared >= len(split[0])-1 {
			break
		}
		part := split[0][shared]
		same := !slices.ContainsFunc(split, func(parts []string) bool {
			return shared >= len(parts)-1 || parts[shared] != part
		})
		if !same {
			break
		}
		shared++
	}
	for i, parts := range split {
		relative[i] = strings.Join(parts[shared:], "/")
	}
	return strings.Join(split[0][:shared], "/"), relative
}
