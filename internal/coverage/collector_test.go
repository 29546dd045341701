package coverage

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/analysis"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixFilter string

func (p prefixFilter) IsIncluded(path string) bool { return strings.HasPrefix(path, string(p)) }

func TestCollectorAppend(t *testing.T) {
	reader := memReader{
		"/src/a.php": "<?php\n$a = 1;\n$b = 2;\n\n$c = 3;\n",
	}
	analyser := stubAnalyser{
		executable: map[string]map[int]int{"/src/a.php": {2: 2, 3: 3, 5: 5}},
		ignored:    map[string]map[int]struct{}{"/src/a.php": {3: {}}},
	}
	c := NewCollector(CollectorOptions{
		Filter:   prefixFilter("/src/"),
		Analyser: analyser,
		Reader:   reader,
	})

	raw := FromLineOnly(map[string]map[int]int{
		"/src/a.php":        {2: 1, 3: 1, 4: 1, 5: -1},
		"/vendor/lib/x.php": {1: 1},
	})
	require.NoError(t, c.Append(raw, "ATest::one"))

	lines := c.Data().LineCoverage()
	assert.NotContains(t, lines, "/vendor/lib/x.php", "filtered file")
	assert.Equal(t, map[int]TestSet{
		2: NewTestSet("ATest::one"),
		5: NewTestSet(),
	}, lines["/src/a.php"], "line 3 is ignored and line 4 is blank")

	second := FromLineOnly(map[string]map[int]int{"/src/a.php": {2: 1, 5: 1}})
	require.NoError(t, c.Append(second, "ATest::two"))
	assert.Equal(t, NewTestSet("ATest::one", "ATest::two"), c.Data().LineCoverage()["/src/a.php"][2])
	assert.Equal(t, NewTestSet("ATest::two"), c.Data().LineCoverage()["/src/a.php"][5])
}

func TestCollectorAppendKeepsOnlyExecutableLines(t *testing.T) {
	analyser := stubAnalyser{
		executable: map[string]map[int]int{"/src/a.php": {2: 2, 3: 2, 4: 2, 6: 6}},
	}
	c := NewCollector(CollectorOptions{Analyser: analyser})

	raw := FromLineOnly(map[string]map[int]int{"/src/a.php": {2: 1, 5: 1, 6: -1, 7: -2}})
	require.NoError(t, c.Append(raw, "t"))

	assert.Equal(t, map[int]TestSet{
		2: NewTestSet("t"),
		3: NewTestSet("t"),
		4: NewTestSet("t"),
		6: NewTestSet(),
	}, c.Data().LineCoverage()["/src/a.php"], "statement lines share their status and line 5 is not executable")
}

// functionEndingInIf is reported with an implicit return branch on the
// closing brace at line 6.
const functionEndingInIf = `<?php
function f($a) {
    if ($a) {
        return 1;
    }
}
`

// pathAwareRun is one run of f taking the if branch (then) or falling through
// to the implicit return (end); each is 0 or 1.
func pathAwareRun(t *testing.T, file string, then, end int) *RawCoverageData {
	t.Helper()
	payload := fmt.Sprintf(`{%q: {
  "lines": {"3": 1, "4": %d, "5": -2, "6": %d},
  "functions": {"f": {
    "branches": [
      {"op_start": 0, "op_end": 2, "line_start": 3, "line_end": 3, "hit": 1, "out": [1, 2], "out_hit": [%d, %d]},
      {"op_start": 3, "op_end": 4, "line_start": 4, "line_end": 4, "hit": %d, "out": [], "out_hit": []},
      {"op_start": 5, "op_end": 6, "line_start": 6, "line_end": 6, "hit": %d, "out": [], "out_hit": []}
    ],
    "paths": [
      {"path": [0, 1], "hit": %d},
      {"path": [0, 2], "hit": %d}
    ]
  }}
}}`, file, then*2-1, end*2-1, then, end, then, end, then, end)
	raw, err := DecodePathAware(strings.NewReader(payload))
	require.NoError(t, err)
	return raw
}

func TestCollectorAppendWithSourceAnalysis(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f.php")
	require.NoError(t, os.WriteFile(file, []byte(functionEndingInIf), 0o644))

	reader := filereader.NewDefaultReader()
	c := NewCollector(CollectorOptions{
		Analyser: analysis.NewAnalyser(reader, true, false),
		Reader:   reader,
	})

	require.NoError(t, c.Append(pathAwareRun(t, file, 1, 0), "testTrue"))
	require.NoError(t, c.Append(pathAwareRun(t, file, 0, 1), "testFalse"))

	assert.Equal(t, map[int]TestSet{
		3: NewTestSet("testTrue", "testFalse"),
		4: NewTestSet("testTrue"),
	}, c.Data().LineCoverage()[file], "the closing brace lines are not executable")

	fn := c.Data().FunctionCoverage()[file]["f"]
	require.NotNil(t, fn)
	require.Len(t, fn.Branches, 3, "the implicit return branch on the closing brace is kept")
	assert.Equal(t, BranchKey{StartLine: 6, EndLine: 6, OpStart: 5, OpEnd: 6}, fn.Branches[2].Key())
	assert.Equal(t, 1, fn.Branches[2].Hit)
	assert.Equal(t, []ProcessedPath{
		{Path: []int{0, 1}, Hit: 1},
		{Path: []int{0, 2}, Hit: 1},
	}, fn.Paths)
}

func TestCollectorAppendCovering(t *testing.T) {
	raw, err := DecodePathAware(strings.NewReader(pathAwareFixture))
	require.NoError(t, err)
	raw.lineCoverage["/src/Other.php"] = LineStatuses{1: Executed}

	c := NewCollector(CollectorOptions{})
	require.NoError(t, c.AppendCovering(raw, "t", map[string][]int{"/src/Foo.php": {3, 4, 5}}))

	assert.Equal(t, []string{"/src/Foo.php"}, c.Data().CoveredFiles(), "files outside the covered code are dropped")
	assert.Equal(t, map[int]TestSet{
		3: NewTestSet("t"),
		4: NewTestSet("t"),
		5: NewTestSet(),
	}, c.Data().LineCoverage()["/src/Foo.php"])

	fn := c.Data().FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
	require.Len(t, fn.Branches, 2, "the branch on line 6 lies outside the covered lines")
	assert.Empty(t, fn.Paths, "every path ends in the dropped branch")
}

func TestCollectorAppendPropagatesAnalysisErrors(t *testing.T) {
	c := NewCollector(CollectorOptions{Analyser: stubAnalyser{err: os.ErrNotExist}})
	err := c.Append(FromLineOnly(map[string]map[int]int{"/src/a.php": {1: 1}}), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCollectorAddUncoveredFiles(t *testing.T) {
	analyser := stubAnalyser{
		executable: map[string]map[int]int{
			"/src/a.php": {2: 2},
			"/src/b.php": {3: 3, 4: 4, 6: 6},
		},
		ignored: map[string]map[int]struct{}{"/src/b.php": {6: {}}},
	}
	c := NewCollector(CollectorOptions{Analyser: analyser, Filter: prefixFilter("/src/")})
	require.NoError(t, c.Append(FromLineOnly(map[string]map[int]int{"/src/a.php": {2: 1}}), "t"))

	require.NoError(t, c.AddUncoveredFiles([]string{"/src/a.php", "/src/b.php", "/other/c.php"}))

	lines := c.Data().LineCoverage()
	assert.Equal(t, NewTestSet("t"), lines["/src/a.php"][2], "already covered file is untouched")
	assert.Equal(t, map[int]TestSet{3: NewTestSet(), 4: NewTestSet()}, lines["/src/b.php"])
	assert.NotContains(t, lines, "/other/c.php")

	assert.Error(t, NewCollector(CollectorOptions{}).AddUncoveredFiles([]string{"/src/a.php"}))
}

func TestCollectorMergeLogsInconsistentFunctions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	left := NewCollector(CollectorOptions{Logger: logger})
	left.MergeData(newData(nil, FunctionCoverage{
		"/src/a.php": {"f": {Branches: []ProcessedBranch{newBranch(1, 2, 0, 1, 1, nil)}}},
	}))
	right := NewCollector(CollectorOptions{})
	right.MergeData(newData(nil, FunctionCoverage{
		"/src/a.php": {"f": {Branches: []ProcessedBranch{newBranch(7, 8, 0, 1, 1, nil)}}},
	}))

	left.Merge(right)

	assert.Len(t, left.Data().FunctionCoverage()["/src/a.php"]["f"].Branches, 2)
	assert.Contains(t, buf.String(), "Inconsistent branch data merged")
	assert.Contains(t, buf.String(), "function=f")

	left.Clear()
	assert.Empty(t, left.Data().FunctionCoverage())
}
