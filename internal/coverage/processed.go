package coverage

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// TestSet is the set of test identifiers that executed a line.
type TestSet map[string]struct{}

// NewTestSet returns a set holding ids.
func NewTestSet(ids ...string) TestSet {
	s := make(TestSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s TestSet) Add(id string) { s[id] = struct{}{} }

func (s TestSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s TestSet) Len() int { return len(s) }

// Sorted returns the ids in lexical order.
func (s TestSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Union adds every id of other to s.
func (s TestSet) Union(other TestSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func (s TestSet) Clone() TestSet {
	out := make(TestSet, len(s))
	out.Union(s)
	return out
}

// LineCoverage maps file → line → tests that executed it. A line with an empty
// set is executable but never executed; an absent line is not executable.
type LineCoverage map[string]map[int]TestSet

// BranchKey is the identity of a branch across collection runs.
type BranchKey struct {
	StartLine int
	EndLine   int
	OpStart   int
	OpEnd     int
}

// ProcessedBranch is a branch with hit counts accumulated over every merged run.
type ProcessedBranch struct {
	ID          int
	StartLine   int
	EndLine     int
	OpStart     int
	OpEnd       int
	Hit         int
	OutEdges    []int
	OutEdgeHits map[int]int
}

func (b ProcessedBranch) Key() BranchKey {
	return BranchKey{StartLine: b.StartLine, EndLine: b.EndLine, OpStart: b.OpStart, OpEnd: b.OpEnd}
}

func (b ProcessedBranch) clone() ProcessedBranch {
	b.OutEdges = cloneInts(b.OutEdges)
	b.OutEdgeHits = maps.Clone(b.OutEdgeHits)
	return b
}

// ProcessedPath is a branch-id sequence with its accumulated traversal count.
type ProcessedPath struct {
	Path []int
	Hit  int
}

func (p ProcessedPath) key() string {
	var sb strings.Builder
	for i, id := range p.Path {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	return sb.String()
}

// ProcessedFunction holds the reconciled branches and paths of one function.
type ProcessedFunction struct {
	Branches []ProcessedBranch
	Paths    []ProcessedPath
}

func (f *ProcessedFunction) Clone() *ProcessedFunction {
	out := &ProcessedFunction{}
	if f.Branches != nil {
		out.Branches = make([]ProcessedBranch, len(f.Branches))
		for i, b := range f.Branches {
			out.Branches[i] = b.clone()
		}
	}
	if f.Paths != nil {
		out.Paths = make([]ProcessedPath, len(f.Paths))
		for i, p := range f.Paths {
			out.Paths[i] = ProcessedPath{Path: cloneInts(p.Path), Hit: p.Hit}
		}
	}
	return out
}

// absorb folds src into f by branch key and path sequence. It returns the
// number of src branches that matched an existing branch and the number of
// paths appended.
func (f *ProcessedFunction) absorb(src *ProcessedFunction) (matched, addedPaths int) {
	branchIndex := make(map[BranchKey]int, len(f.Branches))
	for i, b := range f.Branches {
		branchIndex[b.Key()] = i
	}
	for _, in := range src.Branches {
		i, ok := branchIndex[in.Key()]
		if !ok {
			branchIndex[in.Key()] = len(f.Branches)
			f.Branches = append(f.Branches, in.clone())
			continue
		}
		matched++
		b := &f.Branches[i]
		b.Hit += in.Hit
		for _, target := range in.OutEdges {
			if !slices.Contains(b.OutEdges, target) {
				b.OutEdges = append(b.OutEdges, target)
			}
		}
		if len(in.OutEdgeHits) > 0 && b.OutEdgeHits == nil {
			b.OutEdgeHits = make(map[int]int, len(in.OutEdgeHits))
		}
		for target, hits := range in.OutEdgeHits {
			b.OutEdgeHits[target] += hits
		}
	}

	pathIndex := make(map[string]int, len(f.Paths))
	for i, p := range f.Paths {
		pathIndex[p.key()] = i
	}
	for _, in := range src.Paths {
		k := in.key()
		i, ok := pathIndex[k]
		if !ok {
			pathIndex[k] = len(f.Paths)
			f.Paths = append(f.Paths, ProcessedPath{Path: cloneInts(in.Path), Hit: in.Hit})
			addedPaths++
			continue
		}
		f.Paths[i].Hit += in.Hit
	}
	return matched, addedPaths
}

// FunctionCoverage maps file → function name → reconciled function data.
type FunctionCoverage map[string]map[string]*ProcessedFunction

// ProcessedCoverageData is the canonical accumulator across test runs. It has a
// single owner and is not safe for concurrent mutation.
type ProcessedCoverageData struct {
	lineCoverage     LineCoverage
	functionCoverage FunctionCoverage
}

func NewProcessedCoverageData() *ProcessedCoverageData {
	return &ProcessedCoverageData{
		lineCoverage:     make(LineCoverage),
		functionCoverage: make(FunctionCoverage),
	}
}

// FromRaw ingests one test run: every executable line gets an entry and the
// executed ones are attributed to testID.
func FromRaw(testID string, raw *RawCoverageData) *ProcessedCoverageData {
	p := NewProcessedCoverageData()
	p.InitializeUnseenData(raw)
	p.MarkCodeAsExecutedByTestCase(testID, raw)
	return p
}

// InitializeUnseenData registers every executable line, branch and path of raw
// without attributing any execution to them.
func (p *ProcessedCoverageData) InitializeUnseenData(raw *RawCoverageData) {
	for file, lines := range raw.lineCoverage {
		for line, status := range lines {
			if status == NotExecutable {
				continue
			}
			p.ensureLine(file, line)
		}
	}
	for file, functions := range raw.functionCoverage {
		for name, fn := range functions {
			p.absorbFunction(file, name, processedFromRaw(fn, false))
		}
	}
}

// MarkCodeAsExecutedByTestCase attributes every executed line of raw to testID
// and adds raw's hit counts to the matching branches and paths.
func (p *ProcessedCoverageData) MarkCodeAsExecutedByTestCase(testID string, raw *RawCoverageData) {
	for file, lines := range raw.lineCoverage {
		for line, status := range lines {
			if status != Executed {
				continue
			}
			p.ensureLine(file, line).Add(testID)
		}
	}
	for file, functions := range raw.functionCoverage {
		for name, fn := range functions {
			p.absorbFunction(file, name, processedFromRaw(fn, true))
		}
	}
}

func (p *ProcessedCoverageData) ensureLine(file string, line int) TestSet {
	lines, ok := p.lineCoverage[file]
	if !ok {
		lines = make(map[int]TestSet)
		p.lineCoverage[file] = lines
	}
	set, ok := lines[line]
	if !ok {
		set = make(TestSet)
		lines[line] = set
	}
	return set
}

func (p *ProcessedCoverageData) absorbFunction(file, name string, fn *ProcessedFunction) {
	functions, ok := p.functionCoverage[file]
	if !ok {
		functions = make(map[string]*ProcessedFunction)
		p.functionCoverage[file] = functions
	}
	existing, ok := functions[name]
	if !ok {
		functions[name] = fn
		return
	}
	existing.absorb(fn)
}

// processedFromRaw orders branches and paths by backend id. Hit counts are
// kept only when withHits is set.
func processedFromRaw(fn RawFunction, withHits bool) *ProcessedFunction {
	out := &ProcessedFunction{
		Branches: make([]ProcessedBranch, 0, len(fn.Branches)),
		Paths:    make([]ProcessedPath, 0, len(fn.Paths)),
	}
	for _, id := range slices.Sorted(maps.Keys(fn.Branches)) {
		rb := fn.Branches[id]
		b := ProcessedBranch{
			ID:          rb.ID,
			StartLine:   rb.LineStart,
			EndLine:     rb.LineEnd,
			OpStart:     rb.OpStart,
			OpEnd:       rb.OpEnd,
			OutEdges:    cloneInts(rb.OutEdges),
			OutEdgeHits: make(map[int]int, len(rb.OutEdgeHits)),
		}
		if b.OutEdges == nil {
			b.OutEdges = []int{}
		}
		for target, hits := range rb.OutEdgeHits {
			if withHits {
				b.OutEdgeHits[target] = hits
			} else {
				b.OutEdgeHits[target] = 0
			}
		}
		if withHits {
			b.Hit = rb.Hit
		}
		out.Branches = append(out.Branches, b)
	}
	for _, id := range slices.Sorted(maps.Keys(fn.Paths)) {
		rp := fn.Paths[id]
		path := ProcessedPath{Path: cloneInts(rp.Path)}
		if withHits {
			path.Hit = rp.Hit
		}
		out.Paths = append(out.Paths, path)
	}
	return out
}

// LineCoverage returns the internal line map. Mutate only through the setters.
func (p *ProcessedCoverageData) LineCoverage() LineCoverage {
	return p.lineCoverage
}

// FunctionCoverage returns the internal function map. Mutate only through the setters.
func (p *ProcessedCoverageData) FunctionCoverage() FunctionCoverage {
	return p.functionCoverage
}

func (p *ProcessedCoverageData) SetLineCoverage(lc LineCoverage) {
	if lc == nil {
		lc = make(LineCoverage)
	}
	p.lineCoverage = lc
}

func (p *ProcessedCoverageData) SetFunctionCoverage(fc FunctionCoverage) {
	if fc == nil {
		fc = make(FunctionCoverage)
	}
	p.functionCoverage = fc
}

// CoveredFiles lists every file with line data, sorted.
func (p *ProcessedCoverageData) CoveredFiles() []string {
	return slices.Sorted(maps.Keys(p.lineCoverage))
}

// RenameFile moves all data recorded for oldPath to newPath. Data already
// recorded for newPath is merged with it.
func (p *ProcessedCoverageData) RenameFile(oldPath, newPath string) {
	if oldPath == newPath {
		return
	}
	moved := NewProcessedCoverageData()
	if lines, ok := p.lineCoverage[oldPath]; ok {
		moved.lineCoverage[newPath] = lines
		delete(p.lineCoverage, oldPath)
	}
	if functions, ok := p.functionCoverage[oldPath]; ok {
		moved.functionCoverage[newPath] = functions
		delete(p.functionCoverage, oldPath)
	}
	p.Merge(moved)
}

// Clone returns a deep copy sharing no mutable state with p.
func (p *ProcessedCoverageData) Clone() *ProcessedCoverageData {
	out := NewProcessedCoverageData()
	for file, lines := range p.lineCoverage {
		out.lineCoverage[file] = cloneLines(lines)
	}
	for file, functions := range p.functionCoverage {
		out.functionCoverage[file] = cloneFunctions(functions)
	}
	return out
}

// Merge folds incoming into p. See MergeWithWarnings.
func (p *ProcessedCoverageData) Merge(incoming *ProcessedCoverageData) {
	p.MergeWithWarnings(incoming)
}

// MergeWithWarnings folds incoming into p. Line test sets are unioned. Branches
// are matched by BranchKey and paths by exact sequence; matches have their hit
// counts summed and everything else is appended. A function known to both sides
// whose branches share no key is reported, in file then function order, but is
// merged all the same.
func (p *ProcessedCoverageData) MergeWithWarnings(incoming *ProcessedCoverageData) []InconsistentMergeWarning {
	if incoming == nil {
		return nil
	}
	if incoming == p {
		incoming = p.Clone()
	}

	for file, lines := range incoming.lineCoverage {
		current, ok := p.lineCoverage[file]
		if !ok {
			p.lineCoverage[file] = cloneLines(lines)
			continue
		}
		for line, tests := range lines {
			if set, ok := current[line]; ok {
				set.Union(tests)
				continue
			}
			current[line] = tests.Clone()
		}
	}

	var warnings []InconsistentMergeWarning
	for _, file := range slices.Sorted(maps.Keys(incoming.functionCoverage)) {
		functions := incoming.functionCoverage[file]
		current, ok := p.functionCoverage[file]
		if !ok {
			p.functionCoverage[file] = cloneFunctions(functions)
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(functions)) {
			fn := functions[name]
			existing, ok := current[name]
			if !ok {
				current[name] = fn.Clone()
				continue
			}
			hadBranches := len(existing.Branches) > 0
			matched, addedPaths := existing.absorb(fn)
			if matched == 0 && hadBranches && len(fn.Branches) > 0 {
				warnings = append(warnings, InconsistentMergeWarning{
					File:        file,
					Function:    name,
					NewBranches: len(fn.Branches),
					NewPaths:    addedPaths,
				})
			}
		}
	}
	return warnings
}

func cloneLines(lines map[int]TestSet) map[int]TestSet {
	out := make(map[int]TestSet, len(lines))
	for line, tests := range lines {
		out[line] = tests.Clone()
	}
	return out
}

func cloneFunctions(functions map[string]*ProcessedFunction) map[string]*ProcessedFunction {
	out := make(map[string]*ProcessedFunction, len(functions))
	for name, fn := range functions {
		out[name] = fn.Clone()
	}
	return out
}

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	return append(make([]int, 0, len(s)), s...)
}
