package coverage

// Status is the coverage state of a single source line as reported by an
// instrumentation backend.
type Status int

const (
	NotExecutable Status = iota
	NotExecuted
	Executed
)

// Backend line codes.
const (
	CodeExecuted      = 1
	CodeNotExecuted   = -1
	CodeNotExecutable = -2
)

// StatusFromCode maps a backend line code onto a Status. Any positive code is an
// execution count and collapses to Executed.
func StatusFromCode(code int) Status {
	switch {
	case code >= CodeExecuted:
		return Executed
	case code <= CodeNotExecutable:
		return NotExecutable
	default:
		return NotExecuted
	}
}

// Code returns the backend code for s.
func (s Status) Code() int {
	switch s {
	case Executed:
		return CodeExecuted
	case NotExecuted:
		return CodeNotExecuted
	default:
		return CodeNotExecutable
	}
}

func (s Status) String() string {
	switch s {
	case Executed:
		return "Executed"
	case NotExecuted:
		return "NotExecuted"
	case NotExecutable:
		return "NotExecutable"
	default:
		return "Unknown"
	}
}
