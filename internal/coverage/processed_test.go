package coverage

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBranch(start, end, opStart, opEnd, hit int, outHits map[int]int) ProcessedBranch {
	b := ProcessedBranch{
		StartLine:   start,
		EndLine:     end,
		OpStart:     opStart,
		OpEnd:       opEnd,
		Hit:         hit,
		OutEdges:    []int{},
		OutEdgeHits: map[int]int{},
	}
	for target, hits := range outHits {
		b.OutEdges = append(b.OutEdges, target)
		b.OutEdgeHits[target] = hits
	}
	return b
}

func newData(lines LineCoverage, functions FunctionCoverage) *ProcessedCoverageData {
	p := NewProcessedCoverageData()
	if lines != nil {
		p.SetLineCoverage(lines)
	}
	if functions != nil {
		p.SetFunctionCoverage(functions)
	}
	return p
}

func sampleA() *ProcessedCoverageData {
	return newData(
		LineCoverage{
			"/src/Foo.php": {3: NewTestSet("testA"), 4: NewTestSet(), 5: NewTestSet("testA")},
		},
		FunctionCoverage{
			"/src/Foo.php": {
				"Foo->bar": {
					Branches: []ProcessedBranch{newBranch(10, 15, 0, 5, 3, map[int]int{1: 2})},
					Paths:    []ProcessedPath{{Path: []int{0, 1}, Hit: 3}},
				},
			},
		},
	)
}

func sampleB() *ProcessedCoverageData {
	return newData(
		LineCoverage{
			"/src/Foo.php": {3: NewTestSet("testB"), 4: NewTestSet("testB")},
			"/src/Baz.php": {8: NewTestSet()},
		},
		FunctionCoverage{
			"/src/Foo.php": {
				"Foo->bar": {
					Branches: []ProcessedBranch{newBranch(10, 15, 0, 5, 4, map[int]int{1: 1, 2: 5})},
					Paths:    []ProcessedPath{{Path: []int{0, 1}, Hit: 1}, {Path: []int{0, 2}, Hit: 5}},
				},
			},
		},
	)
}

func sampleC() *ProcessedCoverageData {
	return newData(
		LineCoverage{
			"/src/Foo.php": {5: NewTestSet("testC"), 6: NewTestSet("testC")},
		},
		FunctionCoverage{
			"/src/Foo.php": {
				"Foo->qux": {
					Branches: []ProcessedBranch{newBranch(20, 22, 0, 3, 1, nil)},
					Paths:    []ProcessedPath{{Path: []int{0}, Hit: 1}},
				},
			},
		},
	)
}

func TestTestSet(t *testing.T) {
	s := NewTestSet("b", "a")
	s.Add("a")
	s.Add("c")

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("b"))
	assert.False(t, s.Contains("d"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Sorted())

	other := NewTestSet("d")
	s.Union(other)
	assert.True(t, s.Contains("d"))

	clone := s.Clone()
	clone.Add("e")
	assert.False(t, s.Contains("e"))
}

func TestMergeSelfIsIdempotentForLines(t *testing.T) {
	p := sampleA()
	before := p.Clone()

	p.Merge(p)

	if diff := cmp.Diff(before.LineCoverage(), p.LineCoverage()); diff != "" {
		t.Errorf("self-merge changed line coverage (-before +after):\n%s", diff)
	}
	fn := p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
	require.Len(t, fn.Branches, 1)
	assert.Equal(t, 6, fn.Branches[0].Hit, "branch hits are raw tallies and double on self-merge")
	assert.Equal(t, 4, fn.Branches[0].OutEdgeHits[1])
	require.Len(t, fn.Paths, 1)
	assert.Equal(t, 6, fn.Paths[0].Hit)
}

func TestMergeLineCoverageIsCommutative(t *testing.T) {
	ab := sampleA()
	ab.Merge(sampleB())

	ba := sampleB()
	ba.Merge(sampleA())

	if diff := cmp.Diff(ab.LineCoverage(), ba.LineCoverage()); diff != "" {
		t.Errorf("merge(A,B) and merge(B,A) line coverage differ:\n%s", diff)
	}

	want := LineCoverage{
		"/src/Foo.php": {
			3: NewTestSet("testA", "testB"),
			4: NewTestSet("testB"),
			5: NewTestSet("testA"),
		},
		"/src/Baz.php": {8: NewTestSet()},
	}
	if diff := cmp.Diff(want, ab.LineCoverage()); diff != "" {
		t.Errorf("unexpected merged line coverage (-want +got):\n%s", diff)
	}
}

func TestMergeIsAssociative(t *testing.T) {
	left := sampleA()
	left.Merge(sampleB())
	left.Merge(sampleC())

	bc := sampleB()
	bc.Merge(sampleC())
	right := sampleA()
	right.Merge(bc)

	if diff := cmp.Diff(left.LineCoverage(), right.LineCoverage()); diff != "" {
		t.Errorf("line coverage differs:\n%s", diff)
	}
	if diff := cmp.Diff(left.FunctionCoverage(), right.FunctionCoverage()); diff != "" {
		t.Errorf("function coverage differs:\n%s", diff)
	}
}

func TestMergeSumsMatchingBranches(t *testing.T) {
	p := sampleA()
	p.Merge(sampleB())

	fn := p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
	require.Len(t, fn.Branches, 1)
	b := fn.Branches[0]
	assert.Equal(t, BranchKey{StartLine: 10, EndLine: 15, OpStart: 0, OpEnd: 5}, b.Key())
	assert.Equal(t, 7, b.Hit)
	assert.Equal(t, map[int]int{1: 3, 2: 5}, b.OutEdgeHits)
	assert.ElementsMatch(t, []int{1, 2}, b.OutEdges)

	assert.Equal(t, []ProcessedPath{
		{Path: []int{0, 1}, Hit: 4},
		{Path: []int{0, 2}, Hit: 5},
	}, fn.Paths)
}

func TestMergeAppendsNonMatchingBranch(t *testing.T) {
	existing := newData(nil, FunctionCoverage{
		"/src/Foo.php": {"f": {Branches: []ProcessedBranch{newBranch(5, 9, 0, 3, 2, nil)}}},
	})
	incoming := newData(nil, FunctionCoverage{
		"/src/Foo.php": {"f": {Branches: []ProcessedBranch{newBranch(1, 2, 0, 0, 1, nil)}}},
	})

	warnings := existing.MergeWithWarnings(incoming)

	fn := existing.FunctionCoverage()["/src/Foo.php"]["f"]
	require.Len(t, fn.Branches, 2)
	assert.Equal(t, BranchKey{5, 9, 0, 3}, fn.Branches[0].Key())
	assert.Equal(t, 2, fn.Branches[0].Hit)
	assert.Equal(t, BranchKey{1, 2, 0, 0}, fn.Branches[1].Key())
	assert.Equal(t, 1, fn.Branches[1].Hit)

	require.Len(t, warnings, 1)
	assert.Equal(t, InconsistentMergeWarning{File: "/src/Foo.php", Function: "f", NewBranches: 1, NewPaths: 0}, warnings[0])
	assert.Contains(t, warnings[0].Error(), "f in /src/Foo.php")
}

func TestMergeWarningCountsOnlyAppendedPaths(t *testing.T) {
	existing := newData(nil, FunctionCoverage{
		"/src/Foo.php": {"f": {
			Branches: []ProcessedBranch{newBranch(5, 9, 0, 3, 2, nil)},
			Paths:    []ProcessedPath{{Path: []int{0}, Hit: 2}},
		}},
	})
	incoming := newData(nil, FunctionCoverage{
		"/src/Foo.php": {"f": {
			Branches: []ProcessedBranch{newBranch(1, 2, 0, 0, 1, nil)},
			Paths:    []ProcessedPath{{Path: []int{0}, Hit: 1}, {Path: []int{0, 1}, Hit: 1}},
		}},
	})

	warnings := existing.MergeWithWarnings(incoming)

	require.Len(t, warnings, 1)
	assert.Equal(t, 1, warnings[0].NewBranches)
	assert.Equal(t, 1, warnings[0].NewPaths, "the shared [0] path is summed, not appended")
	assert.Equal(t, []ProcessedPath{
		{Path: []int{0}, Hit: 3},
		{Path: []int{0, 1}, Hit: 1},
	}, existing.FunctionCoverage()["/src/Foo.php"]["f"].Paths)
}

func TestMergeWithoutConflictHasNoWarnings(t *testing.T) {
	p := sampleA()
	assert.Empty(t, p.MergeWithWarnings(sampleB()))
	assert.Empty(t, p.MergeWithWarnings(sampleC()))
	assert.Nil(t, p.MergeWithWarnings(nil))
}

func TestMergeCopiesNewDataWithoutAliasing(t *testing.T) {
	p := NewProcessedCoverageData()
	incoming := sampleA()
	p.Merge(incoming)

	p.LineCoverage()["/src/Foo.php"][3].Add("other")
	p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"].Branches[0].Hit = 100
	p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"].Branches[0].OutEdgeHits[1] = 100

	assert.False(t, incoming.LineCoverage()["/src/Foo.php"][3].Contains("other"))
	assert.Equal(t, 3, incoming.FunctionCoverage()["/src/Foo.php"]["Foo->bar"].Branches[0].Hit)
	assert.Equal(t, 2, incoming.FunctionCoverage()["/src/Foo.php"]["Foo->bar"].Branches[0].OutEdgeHits[1])
}

func TestMergeAddsFunctionToKnownFile(t *testing.T) {
	p := sampleA()
	p.Merge(sampleC())

	functions := p.FunctionCoverage()["/src/Foo.php"]
	assert.Len(t, functions, 2)
	assert.Equal(t, 1, functions["Foo->qux"].Branches[0].Hit)
}

func TestFromRaw(t *testing.T) {
	raw, err := DecodeMixed(strings.NewReader(pathAwareFixture))
	require.NoError(t, err)

	p := FromRaw("FooTest::testBar", raw)

	assert.Equal(t, map[int]TestSet{
		3: NewTestSet("FooTest::testBar"),
		4: NewTestSet("FooTest::testBar"),
		5: NewTestSet(),
	}, p.LineCoverage()["/src/Foo.php"], "not executable lines get no entry")

	fn := p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
	require.Len(t, fn.Branches, 3)
	assert.Equal(t, 1, fn.Branches[0].Hit)
	assert.Equal(t, map[int]int{1: 1, 2: 0}, fn.Branches[0].OutEdgeHits)
	assert.Equal(t, 0, fn.Branches[1].Hit)
	require.Len(t, fn.Paths, 2)
	assert.Equal(t, []int{0, 2}, fn.Paths[0].Path)
	assert.Equal(t, 1, fn.Paths[0].Hit)
}

func TestInitializeUnseenDataThenMark(t *testing.T) {
	first, err := DecodePathAware(strings.NewReader(pathAwareFixture))
	require.NoError(t, err)
	second, err := DecodePathAware(strings.NewReader(pathAwareFixture))
	require.NoError(t, err)

	p := NewProcessedCoverageData()
	p.InitializeUnseenData(first)

	fn := p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
	for _, b := range fn.Branches {
		assert.Zero(t, b.Hit)
		for _, hits := range b.OutEdgeHits {
			assert.Zero(t, hits)
		}
	}
	for _, line := range p.LineCoverage()["/src/Foo.php"] {
		assert.Zero(t, line.Len())
	}

	p.MarkCodeAsExecutedByTestCase("t1", first)
	p.InitializeUnseenData(second)
	p.MarkCodeAsExecutedByTestCase("t2", second)

	fn = p.FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
	require.Len(t, fn.Branches, 3, "initialization matches by key and appends nothing")
	assert.Equal(t, 2, fn.Branches[0].Hit)
	assert.Equal(t, 2, fn.Branches[0].OutEdgeHits[1])
	assert.Equal(t, 2, fn.Paths[0].Hit)
	assert.Equal(t, NewTestSet("t1", "t2"), p.LineCoverage()["/src/Foo.php"][3])
}

func TestRenameFileAndCoveredFiles(t *testing.T) {
	p := sampleB()
	p.RenameFile("/src/Foo.php", "/app/Foo.php")

	assert.Equal(t, []string{"/app/Foo.php", "/src/Baz.php"}, p.CoveredFiles())
	assert.Contains(t, p.FunctionCoverage(), "/app/Foo.php")
	assert.NotContains(t, p.FunctionCoverage(), "/src/Foo.php")

	p.RenameFile("/app/Foo.php", "/app/Foo.php")
	assert.Contains(t, p.LineCoverage(), "/app/Foo.php")

	t.Run("onto a known file merges", func(t *testing.T) {
		p := sampleA()
		p.Merge(newData(LineCoverage{"/build/Foo.php": {3: NewTestSet("testB"), 6: NewTestSet()}}, nil))
		p.RenameFile("/build/Foo.php", "/src/Foo.php")

		assert.Equal(t, []string{"/src/Foo.php"}, p.CoveredFiles())
		lines := p.LineCoverage()["/src/Foo.php"]
		assert.Equal(t, NewTestSet("testA", "testB"), lines[3])
		assert.Equal(t, NewTestSet(), lines[6])
		assert.Equal(t, NewTestSet("testA"), lines[5])
	})
}

func TestSettersReplaceNilWithEmpty(t *testing.T) {
	p := sampleA()
	p.SetLineCoverage(nil)
	p.SetFunctionCoverage(nil)

	assert.NotNil(t, p.LineCoverage())
	assert.NotNil(t, p.FunctionCoverage())
	p.Merge(sampleB())
	assert.Len(t, p.CoveredFiles(), 2)
}
