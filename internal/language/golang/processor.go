package golang

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/fzipp/gocyclo"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"
)

// GoProcessor implements the language.Processor interface for Go.
type GoProcessor struct{}

func init() {
	language.RegisterProcessor(NewGoProcessor())
}

// NewGoProcessor creates a new, stateless GoProcessor.
func NewGoProcessor() language.Processor {
	return &GoProcessor{}
}

// Name returns the unique, human-readable name of the processor.
func (p *GoProcessor) Name() string {
	return "Go"
}

// Detect checks if the file path has a .go extension.
func (p *GoProcessor) Detect(filePath string) bool {
	return strings.HasSuffix(strings.ToLower(filePath), ".go")
}

// Analyze parses a Go source file. Types play the role of classes and their
// methods are attached to them; complexity comes from gocyclo.
func (p *GoProcessor) Analyze(filePath string, src []byte) (*language.FileAnalysis, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}

	a := language.NewFileAnalysis()
	lines := strings.Split(string(src), "\n")
	line := func(pos token.Pos) int { return fset.Position(pos).Line }
	blank := func(l int) bool { return l-1 >= len(lines) || strings.TrimSpace(lines[l-1]) == "" }

	pkg := file.Name.Name
	a.ScaffoldingLines.AddRange(line(file.Package), line(file.Name.End()))
	classes := map[string]int{}
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if ok && gen.Tok == token.IMPORT {
			a.ScaffoldingLines.AddRange(line(gen.Pos()), line(gen.End()))
		}
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			start, end := line(ts.Pos()), line(ts.End())
			if len(gen.Specs) == 1 {
				start = line(gen.Pos())
			}
			if _, isInterface := ts.Type.(*ast.InterfaceType); isInterface {
				a.ScaffoldingLines.AddRange(start, end)
				continue
			}
			classes[ts.Name.Name] = len(a.Classes)
			a.Classes = append(a.Classes, language.Class{
				Name:      ts.Name.Name,
				Namespace: pkg,
				Kind:      language.KindClass,
				StartLine: start,
				EndLine:   end,
			})
			unitAnnotations(a, gen.Doc, start, end)
		}
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start, end := line(fn.Pos()), line(fn.End())
		complexity := gocyclo.Complexity(fn)
		unitAnnotations(a, fn.Doc, start, end)

		if fn.Body != nil {
			markStatements(a, fn.Body, line, blank)
			if len(fn.Body.List) == 0 {
				a.ExecutableLines[start] = start
				a.ScaffoldingLines.AddRange(start+1, end)
			}
		}

		if fn.Recv == nil || len(fn.Recv.List) == 0 {
			a.Functions = append(a.Functions, language.Function{
				Name:       fn.Name.Name,
				Namespace:  pkg,
				StartLine:  start,
				EndLine:    end,
				Complexity: complexity,
			})
			continue
		}

		recv := receiverName(fn.Recv.List[0].Type)
		idx, ok := classes[recv]
		if !ok {
			idx = len(a.Classes)
			classes[recv] = idx
			a.Classes = append(a.Classes, language.Class{
				Name:      recv,
				Namespace: pkg,
				Kind:      language.KindClass,
				StartLine: start,
				EndLine:   end,
			})
		}
		c := &a.Classes[idx]
		c.StartLine = min(c.StartLine, start)
		c.EndLine = max(c.EndLine, end)
		visibility := "private"
		if fn.Name.IsExported() {
			visibility = "public"
		}
		c.Methods = append(c.Methods, language.Method{
			Name:       fn.Name.Name,
			Visibility: visibility,
			StartLine:  start,
			EndLine:    end,
			Complexity: complexity,
		})
	}

	var ignoreStart int
	for _, group := range file.Comments {
		for _, c := range group.List {
			from, to := line(c.Pos()), line(c.End())
			for l := from; l <= to; l++ {
				a.LinesOfCode.CommentLines++
			}
			switch commentText(c.Text) {
			case "@codeCoverageIgnore":
				a.AnnotatedLines.Add(from)
			case "@codeCoverageIgnoreStart":
				if ignoreStart == 0 {
					ignoreStart = from
				}
			case "@codeCoverageIgnoreEnd":
				if ignoreStart != 0 {
					a.AnnotatedLines.AddRange(ignoreStart, to)
					ignoreStart = 0
				}
			}
		}
	}

	total := len(lines)
	if lines[total-1] == "" {
		total--
	}
	if ignoreStart != 0 {
		a.AnnotatedLines.AddRange(ignoreStart, total)
	}

	a.LinesOfCode.Lines = total
	a.LinesOfCode.NonCommentLines = total - a.LinesOfCode.CommentLines
	return a, nil
}

// markStatements records the start line of every statement in body. Simple
// statements spanning several lines map their continuation lines to the
// start line.
func markStatements(a *language.FileAnalysis, body *ast.BlockStmt, line func(token.Pos) int, blank func(int) bool) {
	ast.Inspect(body, func(n ast.Node) bool {
		stmt, ok := n.(ast.Stmt)
		if !ok {
			return true
		}
		switch stmt.(type) {
		case *ast.BlockStmt, *ast.LabeledStmt, *ast.EmptyStmt, *ast.CaseClause, *ast.CommClause:
			return true
		}
		start := line(stmt.Pos())
		if _, seen := a.ExecutableLines[start]; !seen {
			a.ExecutableLines[start] = start
		}
		if !isSimple(stmt) || containsFuncLit(stmt) {
			return true
		}
		for l := start + 1; l <= line(stmt.End()); l++ {
			if _, seen := a.ExecutableLines[l]; !seen && !blank(l) {
				a.ExecutableLines[l] = start
			}
		}
		return true
	})
}

func isSimple(stmt ast.Stmt) bool {
	switch stmt.(type) {
	case *ast.AssignStmt, *ast.ExprStmt, *ast.ReturnStmt, *ast.IncDecStmt,
		*ast.SendStmt, *ast.GoStmt, *ast.DeferStmt, *ast.DeclStmt:
		return true
	}
	return false
}

func containsFuncLit(n ast.Node) bool {
	found := false
	ast.Inspect(n, func(n ast.Node) bool {
		if _, ok := n.(*ast.FuncLit); ok {
			found = true
		}
		return !found
	})
	return found
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func unitAnnotations(a *language.FileAnalysis, doc *ast.CommentGroup, start, end int) {
	if doc == nil {
		return
	}
	text := doc.Text()
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "@codeCoverageIgnore" {
			a.AnnotatedLines.AddRange(start, end)
			break
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		if strings.HasPrefix(para, "Deprecated: ") {
			a.DeprecatedLines.AddRange(start, end)
			break
		}
	}
}

func commentText(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return strings.TrimSpace(raw[2:])
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "/*"), "*/"))
}
