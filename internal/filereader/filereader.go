package filereader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// FileReader reads source files. Production code reads from disk; tests use
// an in-memory implementation.
type FileReader interface {
	// ReadFile returns the content of path decoded to UTF-8.
	ReadFile(path string) ([]byte, error)
	// ReadLines returns the content of path split into lines.
	ReadLines(path string) ([]string, error)
	// CountLines counts the physical lines of path.
	CountLines(path string) (int, error)
	Stat(name string) (fs.FileInfo, error)
}

// DefaultReader reads files from the local filesystem. A UTF-8 or UTF-16 byte
// order mark selects the decoding and is stripped; without one the content is
// taken as UTF-8.
type DefaultReader struct{}

func NewDefaultReader() DefaultReader { return DefaultReader{} }

func (DefaultReader) ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded, err := io.ReadAll(decodingReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return decoded, nil
}

func (r DefaultReader) ReadLines(path string) ([]string, error) {
	content, err := r.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return SplitLines(content)
}

func (r DefaultReader) CountLines(path string) (int, error) {
	lines, err := r.ReadLines(path)
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

func (DefaultReader) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// SplitLines splits content into lines without their terminators. A trailing
// newline does not start another line.
func SplitLines(content []byte) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func decodingReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(encoding.Nop.NewDecoder()))
}
