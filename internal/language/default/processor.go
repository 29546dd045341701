package defaultprocessor

import (
	"strings"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"
)

// DefaultProcessor is the fallback for languages without a dedicated
// processor: every non-blank line is its own executable statement.
type DefaultProcessor struct{}

func init() {
	language.RegisterProcessor(NewDefaultProcessor())
}

func NewDefaultProcessor() language.Processor {
	return &DefaultProcessor{}
}

func (p *DefaultProcessor) Name() string {
	return "Default"
}

// Detect always returns false. FindProcessorForFile picks this processor only
// as a fallback.
func (p *DefaultProcessor) Detect(filePath string) bool {
	return false
}

func (p *DefaultProcessor) Analyze(filePath string, src []byte) (*language.FileAnalysis, error) {
	a := language.NewFileAnalysis()
	lines := strings.Split(string(src), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	a.LinesOfCode.Lines = len(lines)
	a.LinesOfCode.NonCommentLines = len(lines)
	for i, text := range lines {
		if strings.TrimSpace(text) != "" {
			a.ExecutableLines[i+1] = i + 1
		}
	}
	return a, nil
}
