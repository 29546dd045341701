package utils

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Stater is the part of a file reader needed to look up files.
type Stater interface {
	Stat(name string) (fs.FileInfo, error)
}

// FindFileInSourceDirs locates a file reported by a coverage producer. An
// existing absolute path is returned as is. Otherwise the path, and then each
// of its suffixes, is joined to every source directory until a file exists,
// so build paths from another machine still map onto the local tree.
func FindFileInSourceDirs(reported string, sourceDirs []string, fsys Stater) (string, error) {
	if filepath.IsAbs(reported) {
		if _, err := fsys.Stat(reported); err == nil {
			return reported, nil
		}
	}

	cleaned := filepath.Clean(filepath.FromSlash(reported))
	parts := strings.Split(cleaned, string(filepath.Separator))
	for _, dir := range sourceDirs {
		dir = filepath.Clean(dir)
		for i := range parts {
			suffix := filepath.Join(parts[i:]...)
			if suffix == "" {
				continue
			}
			candidate := filepath.Join(dir, suffix)
			if _, err := fsys.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("file %q not found in any source directory (%v) or as absolute path", reported, sourceDirs)
}
