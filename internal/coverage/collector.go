package coverage

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Filter decides which source files take part in coverage accounting.
type Filter interface {
	IsIncluded(path string) bool
}

// CollectorOptions wires a Collector to its collaborators. Nil collaborators
// disable the corresponding step.
type CollectorOptions struct {
	Filter   Filter
	Analyser FileAnalyser
	Reader   FileReader
	Logger   *slog.Logger
}

// Collector drives ingestion of one test run after another into a single
// ProcessedCoverageData. It has a single owner.
type Collector struct {
	opts CollectorOptions
	data *ProcessedCoverageData
}

func NewCollector(opts CollectorOptions) *Collector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Collector{opts: opts, data: NewProcessedCoverageData()}
}

// Append filters raw and records it as the execution of testID. raw is
// modified in place.
func (c *Collector) Append(raw *RawCoverageData, testID string) error {
	return c.AppendCovering(raw, testID, nil)
}

// AppendCovering is Append for a test that declares the code it covers:
// when covers is not empty, only those lines of those files are recorded,
// and branches reaching outside them are dropped.
func (c *Collector) AppendCovering(raw *RawCoverageData, testID string, covers map[string][]int) error {
	if c.opts.Filter != nil {
		for _, file := range raw.Files() {
			if !c.opts.Filter.IsIncluded(file) {
				raw.RemoveCoverageDataForFile(file)
			}
		}
		for file := range raw.functionCoverage {
			if !c.opts.Filter.IsIncluded(file) {
				delete(raw.functionCoverage, file)
			}
		}
	}
	if len(covers) > 0 {
		for _, file := range raw.Files() {
			lines, ok := covers[file]
			if !ok {
				raw.RemoveCoverageDataForFile(file)
				continue
			}
			raw.KeepLineCoverageDataOnlyForLines(file, lines)
			raw.KeepFunctionCoverageDataOnlyForLines(file, lines)
		}
	}
	if c.opts.Reader != nil {
		raw.SkipEmptyLines(c.opts.Reader)
	}
	if c.opts.Analyser != nil {
		if err := c.applyAnalysis(raw); err != nil {
			return err
		}
	}

	c.data.InitializeUnseenData(raw)
	c.data.MarkCodeAsExecutedByTestCase(testID, raw)
	c.opts.Logger.Debug("Appended coverage", "test", testID, "files", len(raw.lineCoverage))
	return nil
}

// applyAnalysis keeps only executable lines, spreads each statement's status
// over all of its lines, then removes the ignored lines. Branch data is only
// touched by the ignored step.
func (c *Collector) applyAnalysis(raw *RawCoverageData) error {
	for _, file := range raw.Files() {
		executable, err := c.opts.Analyser.ExecutableLinesIn(file)
		if err != nil {
			return fmt.Errorf("finding executable lines of %s: %w", file, err)
		}
		raw.KeepLineCoverageDataOnlyForLines(file, slices.Collect(maps.Keys(executable)))
		raw.MarkExecutableLineByBranch(file, executable)

		ignored, err := c.opts.Analyser.IgnoredLinesFor(file)
		if err != nil {
			return fmt.Errorf("finding ignored lines of %s: %w", file, err)
		}
		raw.RemoveCoverageDataForLines(file, slices.Collect(maps.Keys(ignored)))
	}
	return nil
}

// AddUncoveredFiles registers every file of paths that no test has touched yet,
// with all of its executable lines unexecuted.
func (c *Collector) AddUncoveredFiles(paths []string) error {
	if c.opts.Analyser == nil {
		return fmt.Errorf("adding uncovered files: no file analyser configured")
	}
	added := 0
	for _, path := range paths {
		if _, seen := c.data.lineCoverage[path]; seen {
			continue
		}
		if c.opts.Filter != nil && !c.opts.Filter.IsIncluded(path) {
			continue
		}
		raw, err := FromUncoveredFile(path, c.opts.Analyser)
		if err != nil {
			return fmt.Errorf("synthesizing coverage for %s: %w", path, err)
		}
		c.data.InitializeUnseenData(raw)
		added++
	}
	c.opts.Logger.Debug("Added uncovered files", "count", added)
	return nil
}

// Merge folds another collector's data into this one.
func (c *Collector) Merge(other *Collector) {
	c.MergeData(other.data)
}

// MergeData folds processed data, e.g. a snapshot from another process.
func (c *Collector) MergeData(data *ProcessedCoverageData) {
	for _, w := range c.data.MergeWithWarnings(data) {
		c.opts.Logger.Debug("Inconsistent branch data merged", "file", w.File, "function", w.Function,
			"branches", w.NewBranches, "paths", w.NewPaths)
	}
}

// Data returns the accumulated coverage.
func (c *Collector) Data() *ProcessedCoverageData {
	return c.data
}

func (c *Collector) Clear() {
	c.data = NewProcessedCoverageData()
}
