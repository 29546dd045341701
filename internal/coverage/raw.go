package coverage

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// LineStatuses maps line numbers of one file to their status.
type LineStatuses map[int]Status

// RawBranch is a basic block of a function's control-flow graph as seen in one run.
type RawBranch struct {
	ID          int
	OpStart     int
	OpEnd       int
	LineStart   int
	LineEnd     int
	Hit         int
	OutEdges    []int
	OutEdgeHits map[int]int
}

// Key identifies the branch independently of its backend-assigned id.
func (b RawBranch) Key() BranchKey {
	return BranchKey{StartLine: b.LineStart, EndLine: b.LineEnd, OpStart: b.OpStart, OpEnd: b.OpEnd}
}

// RawPath is one concrete traversal of branch ids.
type RawPath struct {
	Path []int
	Hit  int
}

// RawFunction groups the branches and paths of one function, keyed by backend id.
type RawFunction struct {
	Branches map[int]RawBranch
	Paths    map[int]RawPath
}

// FileAnalyser supplies the static facts used to filter collected coverage and
// to synthesize coverage for a file that no test executed.
type FileAnalyser interface {
	// ExecutableLinesIn maps every executable line to its statement group.
	ExecutableLinesIn(path string) (map[int]int, error)
	// IgnoredLinesFor returns the lines excluded from coverage accounting.
	IgnoredLinesFor(path string) (map[int]struct{}, error)
}

// FileReader reads source files. It is satisfied by filereader.DefaultReader.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// RawCoverageData is the coverage of one test run (or one accumulation window)
// exactly as an instrumentation backend reported it, normalized to a single shape.
type RawCoverageData struct {
	lineCoverage     map[string]LineStatuses
	functionCoverage map[string]map[string]RawFunction
}

func newRaw() *RawCoverageData {
	return &RawCoverageData{
		lineCoverage:     make(map[string]LineStatuses),
		functionCoverage: make(map[string]map[string]RawFunction),
	}
}

// FromLineOnly wraps line-only coverage: {file: {line: code}}.
func FromLineOnly(lines map[string]map[int]int) *RawCoverageData {
	raw := newRaw()
	for file, codes := range lines {
		raw.lineCoverage[file] = statusesFromCodes(codes)
	}
	return raw
}

// FromPathAware wraps coverage where every file carries lines and functions.
func FromPathAware(files map[string]XdebugFile) (*RawCoverageData, error) {
	raw := newRaw()
	for file, data := range files {
		if err := raw.addWrapped(file, data); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// FromMixedPathAware wraps coverage where some files carry function data and
// others, typically files without any function or class, only a bare line map.
func FromMixedPathAware(files map[string]json.RawMessage) (*RawCoverageData, error) {
	raw := newRaw()
	for file, payload := range files {
		var fields map[string]json.RawMessage
		isObject := bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{"))
		if isObject {
			if err := json.Unmarshal(payload, &fields); err != nil {
				return nil, malformed(file, "%v", err)
			}
		}
		_, hasFunctions := fields["functions"]
		_, hasLines := fields["lines"]
		switch {
		case hasFunctions:
			var data XdebugFile
			if err := json.Unmarshal(payload, &data); err != nil {
				return nil, malformed(file, "%v", err)
			}
			if err := raw.addWrapped(file, data); err != nil {
				return nil, err
			}
		case hasLines:
			return nil, malformed(file, "wrapped coverage without %q", "functions")
		default:
			var codes IndexedMap[int]
			if err := json.Unmarshal(payload, &codes); err != nil {
				return nil, malformed(file, "bare line coverage: %v", err)
			}
			raw.lineCoverage[file] = statusesFromCodes(codes)
		}
	}
	return raw, nil
}

// FromUncoveredFile synthesizes coverage for a file no test executed: each
// executable line that is not ignored is NotExecuted.
func FromUncoveredFile(path string, analyser FileAnalyser) (*RawCoverageData, error) {
	executable, err := analyser.ExecutableLinesIn(path)
	if err != nil {
		return nil, err
	}
	ignored, err := analyser.IgnoredLinesFor(path)
	if err != nil {
		return nil, err
	}
	lines := make(LineStatuses, len(executable))
	for line := range executable {
		if _, skip := ignored[line]; skip {
			continue
		}
		lines[line] = NotExecuted
	}
	raw := newRaw()
	raw.lineCoverage[path] = lines
	return raw, nil
}

func (r *RawCoverageData) addWrapped(file string, data XdebugFile) error {
	if data.Lines == nil {
		return malformed(file, "missing %q", "lines")
	}
	if data.Functions == nil {
		return malformed(file, "missing %q", "functions")
	}
	functions, err := translateFunctions(file, data.Functions)
	if err != nil {
		return err
	}
	r.lineCoverage[file] = statusesFromCodes(data.Lines)
	r.functionCoverage[file] = functions
	return nil
}

func statusesFromCodes(codes map[int]int) LineStatuses {
	out := make(LineStatuses, len(codes))
	for line, code := range codes {
		out[line] = StatusFromCode(code)
	}
	return out
}

// LineCoverage returns the per-file line statuses. Callers must not mutate it.
func (r *RawCoverageData) LineCoverage() map[string]LineStatuses {
	return r.lineCoverage
}

// FunctionCoverage returns the per-file function data. Callers must not mutate it.
func (r *RawCoverageData) FunctionCoverage() map[string]map[string]RawFunction {
	return r.functionCoverage
}

// Files lists every file with line data, sorted.
func (r *RawCoverageData) Files() []string {
	return slices.Sorted(maps.Keys(r.lineCoverage))
}

func (r *RawCoverageData) Clear() {
	r.lineCoverage = make(map[string]LineStatuses)
	r.functionCoverage = make(map[string]map[string]RawFunction)
}

func (r *RawCoverageData) RemoveCoverageDataForFile(path string) {
	delete(r.lineCoverage, path)
	delete(r.functionCoverage, path)
}

// KeepLineCoverageDataOnlyForLines discards every line of path not in lines.
func (r *RawCoverageData) KeepLineCoverageDataOnlyForLines(path string, lines []int) {
	current, ok := r.lineCoverage[path]
	if !ok {
		return
	}
	keep := lineSet(lines)
	for line := range current {
		if _, ok := keep[line]; !ok {
			delete(current, line)
		}
	}
}

// KeepFunctionCoverageDataOnlyForLines drops every branch whose line range is
// not fully contained in lines, together with the paths through it.
func (r *RawCoverageData) KeepFunctionCoverageDataOnlyForLines(path string, lines []int) {
	functions, ok := r.functionCoverage[path]
	if !ok {
		return
	}
	keep := lineSet(lines)
	for _, fn := range functions {
		for id, b := range fn.Branches {
			if !coversRange(keep, b.LineStart, b.LineEnd) {
				fn.removeBranch(id)
			}
		}
	}
}

// RemoveCoverageDataForLines deletes the given lines of path. A branch whose
// whole line range is removed goes too, along with the paths through it.
// Branches that keep at least one line are left alone.
func (r *RawCoverageData) RemoveCoverageDataForLines(path string, lines []int) {
	if len(lines) == 0 {
		return
	}
	current, ok := r.lineCoverage[path]
	if !ok {
		return
	}
	remove := lineSet(lines)
	for line := range remove {
		delete(current, line)
	}
	for _, fn := range r.functionCoverage[path] {
		for id, b := range fn.Branches {
			if coversRange(remove, b.LineStart, b.LineEnd) {
				fn.removeBranch(id)
			}
		}
	}
}

// MarkExecutableLineByBranch gives every line of a statement group the status
// of the first line seen for it; a group already seen as executed keeps that.
func (r *RawCoverageData) MarkExecutableLineByBranch(path string, lineToBranch map[int]int) {
	current, ok := r.lineCoverage[path]
	if !ok {
		return
	}
	linesByBranch := make(map[int][]int)
	for line, branch := range lineToBranch {
		linesByBranch[branch] = append(linesByBranch[branch], line)
	}
	original := maps.Clone(current)
	for _, line := range slices.Sorted(maps.Keys(original)) {
		branch, ok := lineToBranch[line]
		if !ok {
			continue
		}
		group, ok := linesByBranch[branch]
		if !ok {
			continue
		}
		status := original[line]
		for _, other := range group {
			current[other] = status
		}
		if status == Executed {
			delete(linesByBranch, branch)
		}
	}
}

// SkipEmptyLines drops line entries that point at blank source lines; backends
// report an implicit return on the trailing empty line of a file.
func (r *RawCoverageData) SkipEmptyLines(reader FileReader) {
	for file, lines := range r.lineCoverage {
		src, err := reader.ReadFile(file)
		if err != nil {
			continue
		}
		for i, text := range strings.Split(string(src), "\n") {
			if strings.TrimSpace(text) == "" {
				delete(lines, i+1)
			}
		}
	}
}

func (fn RawFunction) removeBranch(id int) {
	delete(fn.Branches, id)
	for pid, p := range fn.Paths {
		for _, step := range p.Path {
			if step == id {
				delete(fn.Paths, pid)
				break
			}
		}
	}
}

func lineSet(lines []int) map[int]struct{} {
	set := make(map[int]struct{}, len(lines))
	for _, l := range lines {
		set[l] = struct{}{}
	}
	return set
}

// coversRange reports whether every line in [from, to] is in set.
func coversRange(set map[int]struct{}, from, to int) bool {
	for line := from; line <= to; line++ {
		if _, ok := set[line]; !ok {
			return false
		}
	}
	return true
}
