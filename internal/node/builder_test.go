package node

import (
	"testing"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/analysis"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankAccount = "testdata/BankAccount.php"

var bankAccountExecutable = []int{9, 14, 15, 16, 17, 19, 25, 27, 32, 34}

// runFor simulates one test run executing the given lines of BankAccount.
func runFor(testID string, executed ...int) *coverage.ProcessedCoverageData {
	lines := map[int]int{}
	for _, l := range bankAccountExecutable {
		lines[l] = coverage.CodeNotExecuted
	}
	for _, l := range executed {
		lines[l] = coverage.CodeExecuted
	}
	raw := coverage.FromLineOnly(map[string]map[int]int{bankAccount: lines})
	return coverage.FromRaw(testID, raw)
}

func buildBankAccount(t *testing.T) *Directory {
	t.Helper()
	data := runFor("BankAccountTest::testDeposit", 9, 25, 27)
	data.Merge(runFor("BankAccountTest::testWithdraw", 9, 32, 34))

	root, err := NewBuilder(analysis.NewAnalyser(filereader.NewDefaultReader(), true, false)).Build(data)
	require.NoError(t, err)
	return root
}

func TestBuild_BankAccount(t *testing.T) {
	root := buildBankAccount(t)

	assert.Equal(t, "testdata", root.Name())
	require.Len(t, root.Files, 1)
	file := root.Files[0]
	assert.Equal(t, "BankAccount.php", file.Name())
	assert.Equal(t, "BankAccount.php", file.ID())
	assert.Equal(t, bankAccount, file.Path())

	counts := root.Counts()
	assert.Equal(t, 10, counts.ExecutableLines)
	assert.Equal(t, 5, counts.ExecutedLines)
	assert.Equal(t, 4, counts.Methods)
	assert.Equal(t, 3, counts.TestedMethods)
	assert.Equal(t, 1, counts.Classes)
	assert.Equal(t, 0, counts.TestedClasses)
	assert.Equal(t, 36, counts.LinesOfCode.Lines)

	require.Len(t, file.Classes, 1)
	class := file.Classes[0]
	assert.Equal(t, "BankAccount", class.Name)
	assert.Equal(t, 6, class.CCN)
	assert.InDelta(t, 50.0, class.Coverage, 0.001)

	crap := map[string]float64{}
	for _, m := range class.Methods {
		crap[m.Name] = m.CRAP
	}
	assert.Equal(t, map[string]float64{
		"getBalance":    1,
		"setBalance":    12,
		"depositMoney":  1,
		"withdrawMoney": 1,
	}, crap)
	assert.Equal(t, "protected", class.Methods[1].Visibility)
}

func TestBuild_OverlappingRunsAreUnioned(t *testing.T) {
	data := runFor("BankAccountTest::testDepositAndWithdraw", 9, 25, 27, 32, 34)
	data.Merge(runFor("BankAccountTest::testOverdraft", 9, 25, 27, 32, 34, 14, 16))

	root, err := NewBuilder(analysis.NewAnalyser(filereader.NewDefaultReader(), true, false)).Build(data)
	require.NoError(t, err)

	counts := root.Counts()
	assert.Equal(t, 10, counts.ExecutableLines)
	assert.Equal(t, 7, counts.ExecutedLines, "lines hit by both runs count once")
	assert.Equal(t, 4, counts.Methods)
	assert.Equal(t, 3, counts.TestedMethods)

	class := root.Files[0].Classes[0]
	assert.InDelta(t, 70.0, class.Coverage, 0.001)
	setBalance := class.Methods[1]
	require.Equal(t, "setBalance", setBalance.Name)
	assert.Equal(t, 5, setBalance.ExecutableLines)
	assert.Equal(t, 2, setBalance.ExecutedLines)

	file := root.Files[0]
	assert.Equal(t, []string{"BankAccountTest::testDepositAndWithdraw", "BankAccountTest::testOverdraft"}, file.CoveringTests(9))
	assert.Equal(t, []string{"BankAccountTest::testOverdraft"}, file.CoveringTests(16))
}

func TestFile_CoveringTests(t *testing.T) {
	file := buildBankAccount(t).Files[0]

	assert.Equal(t, []string{"BankAccountTest::testDeposit", "BankAccountTest::testWithdraw"}, file.CoveringTests(9))
	assert.Equal(t, []string{"BankAccountTest::testWithdraw"}, file.CoveringTests(32))
	assert.Empty(t, file.CoveringTests(14))
	assert.Nil(t, file.CoveringTests(2))
}

type stubAnalyser map[string]*language.FileAnalysis

func (s stubAnalyser) AnalyzeFile(path string) (*language.FileAnalysis, error) {
	if a, ok := s[path]; ok {
		return a, nil
	}
	return language.NewFileAnalysis(), nil
}

func TestBuild_DirectoryTree(t *testing.T) {
	data := coverage.FromRaw("t", coverage.FromLineOnly(map[string]map[int]int{
		"/app/src/Model/User.php":   {3: 1, 4: -1},
		"/app/src/Model/Order.php":  {5: 1},
		"/app/src/Controller/A.php": {7: -1},
	}))

	root, err := NewBuilder(stubAnalyser{}).Build(data)
	require.NoError(t, err)

	assert.Equal(t, "/app/src", root.Name())
	require.Len(t, root.Directories, 2)
	assert.Equal(t, "Controller", root.Directories[0].Name())
	assert.Equal(t, "Model", root.Directories[1].Name())
	assert.Equal(t, "Model/Order.php", root.Directories[1].Files[0].ID())

	assert.Equal(t, 4, root.Counts().ExecutableLines)
	assert.Equal(t, 2, root.Counts().ExecutedLines)
	assert.Equal(t, 3, root.Directories[1].Counts().ExecutableLines)

	var ids []string
	for _, f := range root.AllFiles() {
		ids = append(ids, f.ID())
	}
	assert.Equal(t, []string{"Controller/A.php", "Model/Order.php", "Model/User.php"}, ids)
}

func TestBuild_BranchesAndFunctions(t *testing.T) {
	data := coverage.NewProcessedCoverageData()
	data.SetLineCoverage(coverage.LineCoverage{
		"/src/functions.php": {
			3: coverage.NewTestSet("t1"),
			4: coverage.NewTestSet(),
		},
	})
	data.SetFunctionCoverage(coverage.FunctionCoverage{
		"/src/functions.php": {
			`App\helper`: {
				Branches: []coverage.ProcessedBranch{
					{ID: 0, StartLine: 3, EndLine: 3, Hit: 2},
					{ID: 1, StartLine: 4, EndLine: 4},
				},
				Paths: []coverage.ProcessedPath{{Path: []int{0, 1}}},
			},
		},
	})
	analyser := stubAnalyser{"/src/functions.php": &language.FileAnalysis{
		Functions: []language.Function{{Name: "helper", Namespace: "App", StartLine: 2, EndLine: 5, Complexity: 2}},
	}}

	root, err := NewBuilder(analyser).Build(data)
	require.NoError(t, err)
	assert.Equal(t, "/src", root.Name())

	file := root.Files[0]
	require.Len(t, file.Functions, 1)
	fn := file.Functions[0]
	assert.Equal(t, `App\helper`, fn.Name)
	assert.Equal(t, 2, fn.ExecutableBranches)
	assert.Equal(t, 1, fn.ExecutedBranches)
	assert.Equal(t, 1, fn.ExecutablePaths)
	assert.Equal(t, 0, fn.ExecutedPaths)
	assert.InDelta(t, 50.0, fn.Coverage, 0.001)
	assert.InDelta(t, 4*0.125+2, fn.CRAP, 0.0001)

	counts := root.Counts()
	assert.Equal(t, 1, counts.Functions)
	assert.Equal(t, 0, counts.TestedFunctions)
	assert.Equal(t, 2, counts.ExecutableBranches)
	assert.Equal(t, 1, counts.ExecutedBranches)
}

func TestCrap(t *testing.T) {
	assert.Equal(t, 3.0, crap(3, 100))
	assert.Equal(t, 3.0, crap(3, 95))
	assert.Equal(t, 12.0, crap(3, 0))
	assert.InDelta(t, 9*0.125+3, crap(3, 50), 0.0001)
}

func TestReducePaths(t *testing.T) {
	common, rel := reducePaths([]string{"/a/b/c.php"})
	assert.Equal(t, "/a/b", common)
	assert.Equal(t, []string{"c.php"}, rel)

	common, rel = reducePaths([]string{"/a/b/c.php", "/a/b/d/e.php"})
	assert.Equal(t, "/a/b", common)
	assert.Equal(t, []string{"c.php", "d/e.php"}, rel)

	common, rel = reducePaths(nil)
	assert.Empty(t, common)
	assert.Empty(t, rel)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100.0, Percent(0, 0))
	assert.Equal(t, 50.0, Percent(1, 2))
}
