// Package xdebug reads the JSON dumps of PHP coverage backends: line-only
// maps, path-aware maps and mixed dumps that hold both shapes.
package xdebug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/driver"
)

const (
	LineOnly  = "lines"
	PathAware = "paths"
	Mixed     = "mixed"
)

func init() {
	driver.Register(NewDriver(Mixed))
	driver.Register(NewDriver(LineOnly))
	driver.Register(NewDriver(PathAware))
}

// Driver decodes one of the dump shapes.
type Driver struct {
	name   string
	decode func(io.Reader) (*coverage.RawCoverageData, error)
}

// NewDriver returns the driver for shape, one of LineOnly, PathAware or
// Mixed. It panics on an unknown shape.
func NewDriver(shape string) *Driver {
	d := &Driver{name: shape}
	switch shape {
	case LineOnly:
		d.decode = coverage.DecodeLineOnly
	case PathAware:
		d.decode = coverage.DecodePathAware
	case Mixed:
		d.decode = coverage.DecodeMixed
	default:
		panic(fmt.Sprintf("xdebug: unknown dump shape %q", shape))
	}
	return d
}

func (d *Driver) Name() string { return d.name }

// SupportsFile claims .json files for the mixed driver only, since it
// accepts every shape.
func (d *Driver) SupportsFile(filePath string) bool {
	return d.name == Mixed && strings.EqualFold(filepath.Ext(filePath), ".json")
}

func (d *Driver) Parse(filePath string, _ driver.Options) (*coverage.RawCoverageData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open coverage dump: %w", err)
	}
	defer file.Close()

	raw, err := d.decode(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s dump %s: %w", d.name, filePath, err)
	}
	return raw, nil
}
