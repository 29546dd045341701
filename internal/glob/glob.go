// Package glob expands path patterns into the files they match.
//
// Supported syntax:
//   - `?` matches one character of a name
//   - `*` matches any run of characters within a name
//   - `**` matches zero or more directories
//   - `[...]` matches a set of characters, `[!...]` its complement
//   - `{a,b}` matches any of the comma separated groups
//
// Matching ignores case unless IgnoreCase is cleared.
package glob

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

const globChars = "*?[{"

// Glob holds a pattern and its matching options.
type Glob struct {
	Pattern    string
	IgnoreCase bool
}

// New returns a case-insensitive Glob for pattern.
func New(pattern string) *Glob {
	return &Glob{Pattern: pattern, IgnoreCase: true}
}

func (g *Glob) String() string {
	return g.Pattern
}

// Expand returns the absolute paths of all regular files matching the
// pattern, sorted. A pattern without wildcards yields the file itself when
// it exists.
func (g *Glob) Expand() ([]string, error) {
	root, rest := splitRoot(filepath.ToSlash(g.Pattern))
	if rest == "" {
		info, err := os.Stat(filepath.FromSlash(root))
		if err != nil || info.IsDir() {
			return nil, nil
		}
		abs, err := filepath.Abs(filepath.FromSlash(root))
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}

	absRoot, err := filepath.Abs(filepath.FromSlash(root))
	if err != nil {
		return nil, err
	}
	matches, err := g.Match(os.DirFS(absRoot), rest)
	if err != nil {
		return nil, err
	}
	for i, m := range matches {
		matches[i] = filepath.Join(absRoot, filepath.FromSlash(m))
	}
	return matches, nil
}

// Match walks fsys and returns the slash separated paths of the regular
// files matching pattern, sorted.
func (g *Glob) Match(fsys fs.FS, pattern string) ([]string, error) {
	re, err := compile(pattern, g.IgnoreCase)
	if err != nil {
		return nil, err
	}
	// Without "**" nothing deeper than the pattern itself can match.
	maxDepth := -1
	if !strings.Contains(pattern, "**") {
		maxDepth = strings.Count(pattern, "/")
	}

	var matches []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			slog.Warn("Skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			if maxDepth >= 0 && strings.Count(p, "/") >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && re.MatchString(p) {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking '%s': %w", pattern, err)
	}
	slices.Sort(matches)
	return matches, nil
}

// splitRoot separates the leading wildcard-free directories of pattern from
// the rest. rest is empty when the pattern contains no wildcard at all.
func splitRoot(pattern string) (root, rest string) {
	if !strings.ContainsAny(pattern, globChars) {
		return pattern, ""
	}
	segments := strings.Split(pattern, "/")
	i := 0
	for i < len(segments)-1 && !strings.ContainsAny(segments[i], globChars) {
		i++
	}
	root = strings.Join(segments[:i], "/")
	switch {
	case root == "" && strings.HasPrefix(pattern, "/"):
		root = "/"
	case root == "":
		root = "."
	case strings.HasSuffix(root, ":"):
		root += "/"
	}
	return path.Clean(root), strings.Join(segments[i:], "/")
}

// compile translates a slash separated pattern into an anchored regular
// expression.
func compile(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if ignoreCase {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	groups := 0
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
				if i+1 < len(pattern) && pattern[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end <= 0 {
				return nil, fmt.Errorf("invalid pattern '%s': unterminated character set", pattern)
			}
			set := pattern[i+1 : i+1+end]
			if set[0] == '!' {
				set = "^" + set[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(set, `\`, `\\`) + "]")
			i += end + 1
		case '{':
			groups++
			b.WriteString("(?:")
		case '}':
			if groups == 0 {
				return nil, fmt.Errorf("invalid pattern '%s': unbalanced '}'", pattern)
			}
			groups--
			b.WriteByte(')')
		case ',':
			if groups > 0 {
				b.WriteByte('|')
			} else {
				b.WriteByte(',')
			}
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	if groups > 0 {
		return nil, fmt.Errorf("invalid pattern '%s': unterminated group", pattern)
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// ExpandAll expands every pattern and returns the distinct files in order of
// first appearance, along with the patterns that matched nothing.
func ExpandAll(patterns []string) (files []string, unmatched []string, err error) {
	seen := make(map[string]struct{})
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		matches, err := New(p).Expand()
		if err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			unmatched = append(unmatched, p)
			continue
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	return files, unmatched, nil
}
