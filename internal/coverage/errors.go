package coverage

import (
	"errors"
	"fmt"
)

// ErrMalformedData is matched by every MalformedDataError through errors.Is.
var ErrMalformedData = errors.New("malformed coverage data")

// MalformedDataError reports raw or serialized coverage that matches none of the
// recognised shapes.
type MalformedDataError struct {
	File   string
	Reason string
}

func (e *MalformedDataError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedData, e.Reason)
	}
	return fmt.Sprintf("%s for %s: %s", ErrMalformedData, e.File, e.Reason)
}

func (e *MalformedDataError) Is(target error) bool {
	return target == ErrMalformedData
}

func malformed(file, format string, args ...any) error {
	return &MalformedDataError{File: file, Reason: fmt.Sprintf(format, args...)}
}

// InconsistentMergeWarning is returned by MergeWithWarnings when a function is
// known to both sides of a merge but none of the incoming branches could be
// matched. The merge still happens; every incoming branch and path is appended.
type InconsistentMergeWarning struct {
	File        string
	Function    string
	NewBranches int
	NewPaths    int
}

func (w InconsistentMergeWarning) Error() string {
	return fmt.Sprintf("no branch of %s in %s matched the accumulated data (%d branches and %d paths appended)",
		w.Function, w.File, w.NewBranches, w.NewPaths)
}
