// Package store persists processed coverage snapshots between processes.
// Snapshots are JSON documents, LZ4 frame compressed when the file name ends
// in ".lz4".
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
)

const compressedSuffix = ".lz4"

func compressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), compressedSuffix)
}

// Save writes data to path, replacing any existing file.
func Save(path string, data *coverage.ProcessedCoverageData) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close snapshot %s: %w", path, cerr)
		}
	}()

	if !compressed(path) {
		return Write(file, data)
	}
	zw := lz4.NewWriter(file)
	if err := Write(zw, data); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress snapshot %s: %w", path, err)
	}
	return nil
}

// Write encodes data as JSON to w.
func Write(w io.Writer, data *coverage.ProcessedCoverageData) error {
	return json.NewEncoder(w).Encode(data)
}

// Load reads a snapshot written by Save.
func Load(path string) (*coverage.ProcessedCoverageData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	var r io.Reader = file
	if compressed(path) {
		r = lz4.NewReader(file)
	}
	data, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return data, nil
}

// Read decodes one JSON snapshot from r.
func Read(r io.Reader) (*coverage.ProcessedCoverageData, error) {
	data := coverage.NewProcessedCoverageData()
	if err := json.NewDecoder(r).Decode(data); err != nil {
		return nil, err
	}
	return data, nil
}

// LoadAndMerge decodes the snapshots with at most workers running at once and
// merges them in input order on the calling goroutine. The first error
// cancels the remaining loads.
func LoadAndMerge(ctx context.Context, paths []string, workers int, logger *slog.Logger) (*coverage.ProcessedCoverageData, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	loaded := make([]*coverage.ProcessedCoverageData, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := Load(path)
			if err != nil {
				return err
			}
			loaded[i] = data
			logger.Debug("Loaded snapshot", "file", path, "files", len(data.CoveredFiles()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := coverage.NewProcessedCoverageData()
	for i, data := range loaded {
		for _, w := range merged.MergeWithWarnings(data) {
			logger.Warn("Inconsistent branch data merged",
				"snapshot", paths[i], "file", w.File, "function", w.Function,
				"branches", w.NewBranches, "paths", w.NewPaths)
		}
	}
	logger.Info("Merged snapshots", "count", len(paths), "files", len(merged.CoveredFiles()))
	return merged, nil
}
