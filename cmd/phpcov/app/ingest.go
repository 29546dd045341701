package app

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/analysis"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/driver"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filesystem"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/store"
	"github.com/spf13/cobra"
)

const autoFormat = "auto"

// NewIngestCommand creates the "ingest" subcommand.
func NewIngestCommand() *cobra.Command {
	var (
		format string
		testID string
		output string
		covers []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [flags] dump...",
		Short: "Turn raw coverage dumps into a processed snapshot.",
		Long: `Each dump is the raw coverage of one test. Dumps are filtered, reduced to
executable lines, stripped of ignored lines and recorded under their test id. The result is written as a
snapshot that "merge" and "summary" accept.

Formats:
  auto     pick per dump: cover profiles by their "mode:" header, .json as mixed
  lines    line-only dump: {"file": {"line": status}}
  paths    path-aware dump: {"file": {"lines": {...}, "functions": {...}}}
  mixed    either shape per file
  gocover  Go cover profile

Examples:
  phpcov ingest --format lines -o unit.cov.lz4 build/coverage/*.json
  phpcov ingest --covers src/Calc.php:4-9 -o calc.cov build/testAdd.json
  phpcov ingest --format gocover --test-id go-unit -o go.cov cover.out`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var drv driver.Driver
			if format != autoFormat {
				if drv, err = driver.Find(format); err != nil {
					return err
				}
			}
			files, err := expandArgs(args, logger)
			if err != nil {
				return err
			}
			covered, err := parseCovers(covers)
			if err != nil {
				return err
			}
			filter, err := cfg.Filter()
			if err != nil {
				return err
			}
			var fileFilter coverage.Filter
			if filter.HasCustomFilters() {
				fileFilter = filter
			} else {
				logger.Debug("No file filters configured, every file is included")
			}

			reader := filereader.NewDefaultReader()
			collector := coverage.NewCollector(coverage.CollectorOptions{
				Filter:   fileFilter,
				Analyser: analysis.NewAnalyser(reader, cfg.UseAnnotations, cfg.IgnoreDeprecatedCode),
				Reader:   reader,
				Logger:   logger,
			})

			opts := driver.Options{SourceDirectories: cfg.SourceDirectories}
			for _, file := range files {
				d := drv
				if d == nil {
					if d, err = driver.FindForFile(file); err != nil {
						return err
					}
				}
				raw, err := d.Parse(file, opts)
				if err != nil {
					return fmt.Errorf("failed to parse %s: %w", file, err)
				}
				id := testID
				if id == "" {
					id = testIDFromPath(file)
				}
				if err := collector.AppendCovering(raw, id, covered); err != nil {
					return err
				}
				logger.Info("Ingested coverage", "file", file, "driver", d.Name(), "test", id)
			}

			if cfg.IncludeUncoveredFiles && len(cfg.SourceDirectories) > 0 {
				sources, err := filesystem.FindSourceFiles(filesystem.DefaultFS{}, cfg.SourceDirectories, cfg.Suffixes)
				if err != nil {
					return fmt.Errorf("failed to find source files: %w", err)
				}
				if err := collector.AddUncoveredFiles(sources); err != nil {
					return err
				}
			}

			if err := store.Save(output, collector.Data()); err != nil {
				return err
			}
			logger.Info("Wrote snapshot", "path", output, "files", len(collector.Data().CoveredFiles()))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", autoFormat, "dump format: auto, lines, paths, mixed or gocover")
	cmd.Flags().StringVar(&testID, "test-id", "", "test id recorded for every dump (default is the dump's base name)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "snapshot file to write, lz4 compressed when ending in .lz4")
	cmd.Flags().StringArrayVar(&covers, "covers", nil, "record only these lines, as file:line or file:from-to (repeatable)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// parseCovers turns file:line and file:from-to targets into absolute file
// paths and their lines.
func parseCovers(targets []string) (map[string][]int, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	covered := make(map[string][]int, len(targets))
	for _, target := range targets {
		i := strings.LastIndexByte(target, ':')
		if i <= 0 {
			return nil, fmt.Errorf("invalid covers target '%s': want file:line or file:from-to", target)
		}
		from, to, isRange := strings.Cut(target[i+1:], "-")
		if !isRange {
			to = from
		}
		start, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("invalid covers target '%s': %w", target, err)
		}
		end, err := strconv.Atoi(to)
		if err != nil {
			return nil, fmt.Errorf("invalid covers target '%s': %w", target, err)
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("invalid covers target '%s': bad line range", target)
		}
		file, err := filepath.Abs(target[:i])
		if err != nil {
			return nil, err
		}
		for line := start; line <= end; line++ {
			covered[file] = append(covered[file], line)
		}
	}
	return covered, nil
}

// testIDFromPath strips directories and every extension from path.
func testIDFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}
