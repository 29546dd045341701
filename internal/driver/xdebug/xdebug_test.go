package xdebug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDump(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const pathAwareDump = `{
  "/src/Foo.php": {
    "lines": {"3": 1, "4": -1},
    "functions": {
      "Foo->bar": {
        "branches": {
          "0": {"op_start": 0, "op_end": 4, "line_start": 3, "line_end": 3, "hit": 1, "out": [1], "out_hit": [1]},
          "1": {"op_start": 5, "op_end": 7, "line_start": 4, "line_end": 4, "hit": 0, "out": [], "out_hit": []}
        },
        "paths": {"0": {"path": [0, 1], "hit": 0}}
      }
    }
  }
}`

func TestParse(t *testing.T) {
	t.Run("lines", func(t *testing.T) {
		raw, err := NewDriver(LineOnly).Parse(writeDump(t, "run.json", `{"/src/Foo.php": {"3": 1, "4": -1, "5": -2}}`), driver.Options{})
		require.NoError(t, err)
		assert.Equal(t, coverage.LineStatuses{3: coverage.Executed, 4: coverage.NotExecuted, 5: coverage.NotExecutable},
			raw.LineCoverage()["/src/Foo.php"])
	})

	t.Run("paths", func(t *testing.T) {
		raw, err := NewDriver(PathAware).Parse(writeDump(t, "run.json", pathAwareDump), driver.Options{})
		require.NoError(t, err)
		fn := raw.FunctionCoverage()["/src/Foo.php"]["Foo->bar"]
		assert.Len(t, fn.Branches, 2)
		assert.Len(t, fn.Paths, 1)
	})

	t.Run("mixed", func(t *testing.T) {
		dump := `{"/src/A.php": {"3": 1}, "/src/B.php": {"lines": {"7": -1}, "functions": {}}}`
		raw, err := NewDriver(Mixed).Parse(writeDump(t, "run.json", dump), driver.Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"/src/A.php", "/src/B.php"}, raw.Files())
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := NewDriver(PathAware).Parse(writeDump(t, "run.json", `{"/src/Foo.php": {"3": 1}}`), driver.Options{})
		assert.ErrorIs(t, err, coverage.ErrMalformedData)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewDriver(LineOnly).Parse(filepath.Join(t.TempDir(), "absent.json"), driver.Options{})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{LineOnly, PathAware, Mixed} {
		d, err := driver.Find(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}

	d, err := driver.FindForFile("/tmp/run.JSON")
	require.NoError(t, err)
	assert.Equal(t, Mixed, d.Name())

	_, err = driver.Find("cobertura")
	assert.Error(t, err)
	_, err = driver.FindForFile("/tmp/run.xml")
	assert.Error(t, err)
}

func TestNewDriver_UnknownShape(t *testing.T) {
	assert.Panics(t, func() { NewDriver("xml") })
}
