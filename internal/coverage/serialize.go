package coverage

import (
	"encoding/json"
	"fmt"
)

// Top-level keys of the serialized form.
const (
	KeyLineCoverage     = "lineCoverage"
	KeyFunctionCoverage = "functionCoverage"
)

// Serialized is the JSON-compatible tree of a ProcessedCoverageData.
type Serialized struct {
	LineCoverage     map[string]map[int][]string                `json:"lineCoverage"`
	FunctionCoverage map[string]map[string]SerializedFunction `json:"functionCoverage"`
}

type SerializedFunction struct {
	Branches []SerializedBranch `json:"branches"`
	Paths    []SerializedPath   `json:"paths"`
}

type SerializedBranch struct {
	ID        int         `json:"id"`
	LineStart int         `json:"line_start"`
	LineEnd   int         `json:"line_end"`
	OpStart   int         `json:"op_start"`
	OpEnd     int         `json:"op_end"`
	Hit       int         `json:"hit"`
	Out       []int       `json:"out"`
	OutHit    map[int]int `json:"out_hit"`
}

type SerializedPath struct {
	Path []int `json:"path"`
	Hit  int   `json:"hit"`
}

// ToSerialized converts p into its serialized tree. Test sets become sorted arrays.
func ToSerialized(p *ProcessedCoverageData) Serialized {
	s := Serialized{
		LineCoverage:     make(map[string]map[int][]string, len(p.lineCoverage)),
		FunctionCoverage: make(map[string]map[string]SerializedFunction, len(p.functionCoverage)),
	}
	for file, lines := range p.lineCoverage {
		out := make(map[int][]string, len(lines))
		for line, tests := range lines {
			ids := tests.Sorted()
			if ids == nil {
				ids = []string{}
			}
			out[line] = ids
		}
		s.LineCoverage[file] = out
	}
	for file, functions := range p.functionCoverage {
		out := make(map[string]SerializedFunction, len(functions))
		for name, fn := range functions {
			out[name] = serializeFunction(fn)
		}
		s.FunctionCoverage[file] = out
	}
	return s
}

func serializeFunction(fn *ProcessedFunction) SerializedFunction {
	var out SerializedFunction
	if fn.Branches != nil {
		out.Branches = make([]SerializedBranch, len(fn.Branches))
		for i, b := range fn.Branches {
			b = b.clone()
			out.Branches[i] = SerializedBranch{
				ID:        b.ID,
				LineStart: b.StartLine,
				LineEnd:   b.EndLine,
				OpStart:   b.OpStart,
				OpEnd:     b.OpEnd,
				Hit:       b.Hit,
				Out:       b.OutEdges,
				OutHit:    b.OutEdgeHits,
			}
		}
	}
	if fn.Paths != nil {
		out.Paths = make([]SerializedPath, len(fn.Paths))
		for i, p := range fn.Paths {
			out.Paths[i] = SerializedPath{Path: cloneInts(p.Path), Hit: p.Hit}
		}
	}
	return out
}

// FromSerialized rebuilds processed data from its serialized tree. Both
// top-level entries must be present.
func FromSerialized(s Serialized) (*ProcessedCoverageData, error) {
	if s.LineCoverage == nil {
		return nil, malformed("", "missing %q", KeyLineCoverage)
	}
	if s.FunctionCoverage == nil {
		return nil, malformed("", "missing %q", KeyFunctionCoverage)
	}
	p := NewProcessedCoverageData()
	for file, lines := range s.LineCoverage {
		out := make(map[int]TestSet, len(lines))
		for line, ids := range lines {
			out[line] = NewTestSet(ids...)
		}
		p.lineCoverage[file] = out
	}
	for file, functions := range s.FunctionCoverage {
		out := make(map[string]*ProcessedFunction, len(functions))
		for name, fn := range functions {
			out[name] = deserializeFunction(fn)
		}
		p.functionCoverage[file] = out
	}
	return p, nil
}

func deserializeFunction(fn SerializedFunction) *ProcessedFunction {
	out := &ProcessedFunction{}
	if fn.Branches != nil {
		out.Branches = make([]ProcessedBranch, len(fn.Branches))
		for i, b := range fn.Branches {
			out.Branches[i] = ProcessedBranch{
				ID:          b.ID,
				StartLine:   b.LineStart,
				EndLine:     b.LineEnd,
				OpStart:     b.OpStart,
				OpEnd:       b.OpEnd,
				Hit:         b.Hit,
				OutEdges:    b.Out,
				OutEdgeHits: b.OutHit,
			}.clone()
		}
	}
	if fn.Paths != nil {
		out.Paths = make([]ProcessedPath, len(fn.Paths))
		for i, p := range fn.Paths {
			out.Paths[i] = ProcessedPath{Path: cloneInts(p.Path), Hit: p.Hit}
		}
	}
	return out
}

func (p *ProcessedCoverageData) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToSerialized(p))
}

func (p *ProcessedCoverageData) UnmarshalJSON(data []byte) error {
	var s Serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return &MalformedDataError{Reason: fmt.Sprintf("decoding processed coverage: %v", err)}
	}
	decoded, err := FromSerialized(s)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}
