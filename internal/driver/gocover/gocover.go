// Package gocover turns "go test -coverprofile" output into raw line coverage,
// so Go packages can be reported through the same pipeline as PHP code.
package gocover

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/tools/cover"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/driver"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/utils"
)

const Name = "gocover"

func init() {
	driver.Register(NewGoCoverDriver(filereader.NewDefaultReader()))
}

// GoCoverDriver reads Go cover profiles. Source files are read to apply the
// closing-brace rule; a missing source only disables that rule.
type GoCoverDriver struct {
	fileReader filereader.FileReader
}

func NewGoCoverDriver(fileReader filereader.FileReader) *GoCoverDriver {
	return &GoCoverDriver{fileReader: fileReader}
}

func (d *GoCoverDriver) Name() string { return Name }

// SupportsFile checks for the "mode:" header of a cover profile.
func (d *GoCoverDriver) SupportsFile(filePath string) bool {
	f, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return strings.HasPrefix(scanner.Text(), "mode:")
	}
	return false
}

func (d *GoCoverDriver) Parse(filePath string, opts driver.Options) (*coverage.RawCoverageData, error) {
	profiles, err := cover.ParseProfiles(filePath)
	if err != nil {
		return nil, fmt.Errorf("parse cover profile %s: %w", filePath, err)
	}

	lines := make(map[string]map[int]int, len(profiles))
	for _, profile := range profiles {
		resolved, err := utils.FindFileInSourceDirs(profile.FileName, opts.SourceDirectories, d.fileReader)
		if err != nil {
			slog.Warn("Source file not found, closing braces stay coverable.", "file", profile.FileName, "error", err)
			resolved = profile.FileName
		}
		source, _ := d.fileReader.ReadLines(resolved)
		lines[resolved] = profileLines(profile.Blocks, source)
	}
	return coverage.FromLineOnly(lines), nil
}

type lineInfo struct {
	executed      bool
	isLastInBlock bool
}

// profileLines maps the blocks of one file to status codes. A line is
// executed when any block covering it ran. A line holding only the "}" that
// ends a block is not coverable.
func profileLines(blocks []cover.ProfileBlock, source []string) map[int]int {
	lineData := make(map[int]lineInfo)
	for _, block := range blocks {
		for line := block.StartLine; line <= block.EndLine; line++ {
			info := lineData[line]
			if block.Count > 0 {
				info.executed = true
			}
			if line == block.EndLine {
				info.isLastInBlock = true
			}
			lineData[line] = info
		}
	}

	codes := make(map[int]int, len(lineData))
	for line, info := range lineData {
		isJustBrace := line-1 < len(source) && strings.TrimSpace(source[line-1]) == "}"
		if isJustBrace && info.isLastInBlock {
			continue
		}
		if info.executed {
			codes[line] = coverage.CodeExecuted
		} else {
			codes[line] = coverage.CodeNotExecuted
		}
	}
	return codes
}
