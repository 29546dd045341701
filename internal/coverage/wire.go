package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// IndexedMap is an integer-keyed map as emitted by PHP's json_encode: a JSON
// object with numeric keys, or a JSON array when the keys happen to be 0..n-1.
type IndexedMap[T any] map[int]T

func (m *IndexedMap[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	out := make(IndexedMap[T])
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for i, item := range items {
			out[i] = item
		}
		*m = out
		return nil
	}
	var raw map[string]T
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("non-numeric key %q", k)
		}
		out[idx] = v
	}
	*m = out
	return nil
}

// NamedMap is a string-keyed map that also accepts the empty JSON array PHP
// emits for an empty associative array.
type NamedMap[T any] map[string]T

func (m *NamedMap[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if bytes.Equal(data, []byte("[]")) {
		*m = make(NamedMap[T])
		return nil
	}
	var raw map[string]T
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = make(map[string]T)
	}
	*m = raw
	return nil
}

// XdebugFile is the path-aware per-file payload: {"lines": ..., "functions": ...}.
type XdebugFile struct {
	Lines     IndexedMap[int]            `json:"lines"`
	Functions NamedMap[XdebugFunction] `json:"functions"`
}

// XdebugFunction holds the control-flow data of one function as numbered
// branches and paths.
type XdebugFunction struct {
	Branches IndexedMap[XdebugBranch] `json:"branches"`
	Paths    IndexedMap[XdebugPath]   `json:"paths"`
}

// XdebugBranch is one basic block; Out and OutHit are parallel arrays.
type XdebugBranch struct {
	OpStart   *int  `json:"op_start"`
	OpEnd     *int  `json:"op_end"`
	LineStart *int  `json:"line_start"`
	LineEnd   *int  `json:"line_end"`
	Hit       int   `json:"hit"`
	Out       []int `json:"out"`
	OutHit    []int `json:"out_hit"`
}

// XdebugPath is one traversal through a function's branches.
type XdebugPath struct {
	Path []int `json:"path"`
	Hit  int   `json:"hit"`
}

// DecodeLineOnly reads {file: {line: code}}.
func DecodeLineOnly(r io.Reader) (*RawCoverageData, error) {
	var files map[string]IndexedMap[int]
	if err := json.NewDecoder(r).Decode(&files); err != nil {
		return nil, malformed("", "decoding line coverage: %v", err)
	}
	lines := make(map[string]map[int]int, len(files))
	for file, l := range files {
		lines[file] = l
	}
	return FromLineOnly(lines), nil
}

// DecodePathAware reads {file: {"lines": ..., "functions": ...}} for every file.
func DecodePathAware(r io.Reader) (*RawCoverageData, error) {
	var files map[string]XdebugFile
	if err := json.NewDecoder(r).Decode(&files); err != nil {
		return nil, malformed("", "decoding path coverage: %v", err)
	}
	return FromPathAware(files)
}

// DecodeMixed reads a payload where each file is either wrapped or a bare line map.
func DecodeMixed(r io.Reader) (*RawCoverageData, error) {
	var files map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&files); err != nil {
		return nil, malformed("", "decoding mixed coverage: %v", err)
	}
	return FromMixedPathAware(files)
}

func translateFunctions(file string, functions NamedMap[XdebugFunction]) (map[string]RawFunction, error) {
	out := make(map[string]RawFunction, len(functions))
	for name, fn := range functions {
		branches := make(map[int]RawBranch, len(fn.Branches))
		for id, b := range fn.Branches {
			if b.OpStart == nil || b.OpEnd == nil || b.LineStart == nil || b.LineEnd == nil {
				return nil, malformed(file, "branch %d of %s lacks op_start/op_end/line_start/line_end", id, name)
			}
			if len(b.Out) != len(b.OutHit) {
				return nil, malformed(file, "branch %d of %s has %d out edges but %d out_hit entries", id, name, len(b.Out), len(b.OutHit))
			}
			rb := RawBranch{
				ID:          id,
				OpStart:     *b.OpStart,
				OpEnd:       *b.OpEnd,
				LineStart:   *b.LineStart,
				LineEnd:     *b.LineEnd,
				Hit:         b.Hit,
				OutEdges:    make([]int, 0, len(b.Out)),
				OutEdgeHits: make(map[int]int, len(b.Out)),
			}
			for i, target := range b.Out {
				if _, seen := rb.OutEdgeHits[target]; !seen {
					rb.OutEdges = append(rb.OutEdges, target)
				}
				rb.OutEdgeHits[target] += b.OutHit[i]
			}
			branches[id] = rb
		}
		paths := make(map[int]RawPath, len(fn.Paths))
		for id, p := range fn.Paths {
			if len(p.Path) == 0 {
				return nil, malformed(file, "path %d of %s is empty", id, name)
			}
			paths[id] = RawPath{Path: append([]int(nil), p.Path...), Hit: p.Hit}
		}
		out[name] = RawFunction{Branches: branches, Paths: paths}
	}
	return out, nil
}
