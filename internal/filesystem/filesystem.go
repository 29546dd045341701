package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Filesystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Getwd() (string, error)
	Abs(path string) (string, error)
}

// DefaultFS implements the Filesystem interface using the standard `os` and `filepath` packages.
type DefaultFS struct{}

func (DefaultFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (DefaultFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (DefaultFS) Getwd() (string, error) {
	return os.Getwd()
}

func (DefaultFS) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

// FindSourceFiles walks dirs and returns the absolute paths of all regular
// files whose name ends in one of suffixes (compared case-insensitively),
// sorted and without duplicates.
func FindSourceFiles(fsys Filesystem, dirs []string, suffixes []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range dirs {
		abs, err := fsys.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving source directory %s: %w", dir, err)
		}
		info, err := fsys.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("source directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			if hasSuffix(abs, suffixes) {
				seen[abs] = struct{}{}
			}
			continue
		}
		if err := walk(fsys, abs, suffixes, seen); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func walk(fsys Filesystem, dir string, suffixes []string, seen map[string]struct{}) error {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := walk(fsys, path, suffixes, seen); err != nil {
				return err
			}
			continue
		}
		if entry.Type().IsRegular() && hasSuffix(path, suffixes) {
			seen[path] = struct{}{}
		}
	}
	return nil
}

func hasSuffix(path string, suffixes []string) bool {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
