package filtering

import (
	"fmt"
	"regexp"
	"strings"
)

// FileFilter includes or excludes source files by glob-like patterns.
// Patterns start with '+' (include) or '-' (exclude); '*' matches any run of
// characters and '?' a single one. Matching is case-insensitive and treats '/'
// and '\' as the same separator.
type FileFilter struct {
	includeFilters []*regexp.Regexp
	excludeFilters []*regexp.Regexp
	hasCustom      bool
}

// NewFileFilter compiles patterns. Without any include pattern every file not
// excluded is included.
func NewFileFilter(patterns []string) (*FileFilter, error) {
	ff := &FileFilter{}
	var errs []string

	for _, f := range patterns {
		f = strings.TrimSpace(f)
		switch {
		case f == "":
			continue
		case strings.HasPrefix(f, "+"):
			re, err := createFilterRegex(f)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid include filter '%s': %v", f, err))
				continue
			}
			ff.includeFilters = append(ff.includeFilters, re)
		case strings.HasPrefix(f, "-"):
			re, err := createFilterRegex(f)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid exclude filter '%s': %v", f, err))
				continue
			}
			ff.excludeFilters = append(ff.excludeFilters, re)
		default:
			errs = append(errs, fmt.Sprintf("filter '%s' must start with '+' or '-'", f))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("error creating file filter: %s", strings.Join(errs, "; "))
	}

	ff.hasCustom = len(ff.includeFilters) > 0 || len(ff.excludeFilters) > 0
	if len(ff.includeFilters) == 0 {
		re, _ := createFilterRegex("+*")
		ff.includeFilters = append(ff.includeFilters, re)
	}
	return ff, nil
}

// IsIncluded reports whether path passes the filter. Exclusions win.
func (ff *FileFilter) IsIncluded(path string) bool {
	for _, re := range ff.excludeFilters {
		if re.MatchString(path) {
			return false
		}
	}
	for _, re := range ff.includeFilters {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// HasCustomFilters returns true if any include or exclude pattern was given.
func (ff *FileFilter) HasCustomFilters() bool {
	return ff.hasCustom
}

func createFilterRegex(filter string) (*regexp.Regexp, error) {
	if len(filter) < 2 {
		return nil, fmt.Errorf("empty pattern")
	}
	pattern := regexp.QuoteMeta(filter[1:])

	// QuoteMeta escapes the wildcards, so match on their escaped form.
	pattern = strings.ReplaceAll(pattern, `\*`, ".*")
	pattern = strings.ReplaceAll(pattern, `\?`, ".")
	pattern = strings.ReplaceAll(pattern, `\\`, "/")
	pattern = strings.ReplaceAll(pattern, "/", `[/\\]`)

	return regexp.Compile("(?i)^" + pattern + "$")
}
