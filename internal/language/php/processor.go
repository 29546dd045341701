package php

import (
	"strings"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/language"
)

// PHPProcessor implements the language.Processor interface for PHP.
type PHPProcessor struct{}

func init() {
	language.RegisterProcessor(NewPHPProcessor())
}

func NewPHPProcessor() language.Processor {
	return &PHPProcessor{}
}

func (p *PHPProcessor) Name() string {
	return "PHP"
}

// Detect matches the usual PHP source extensions.
func (p *PHPProcessor) Detect(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, ext := range []string{".php", ".phtml", ".inc"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (p *PHPProcessor) Analyze(filePath string, src []byte) (*language.FileAnalysis, error) {
	w := newWalker(string(src))
	w.walk()
	return w.analysis, nil
}

type frameKind int

const (
	frameBlock frameKind = iota
	frameClass
	frameAnonClass
	frameInterface
	frameFunction
	frameClosure
)

// unit is a named function or method.
type unit struct {
	name       string
	namespace  string
	visibility string
	startLine  int
	nameLine   int
	endLine    int
	doc        string
	complexity int
	hasCode    bool
	class      *classDecl
}

type classDecl struct {
	class    language.Class
	nameLine int
	doc      string
	methods  int
}

type frame struct {
	kind  frameKind
	unit  *unit
	class *classDecl
}

// header is a declaration whose body has not opened yet.
type header struct {
	kind       frameKind
	unit       *unit
	class      *classDecl
	depth      int
	executable bool
}

type walker struct {
	lines    []string
	tokens   []token
	analysis *language.FileAnalysis

	stack     []frame
	header    *header
	namespace string
	units     []*unit
	classes   []*classDecl

	// Statement state, reset at ';', '{' and '}'.
	stmtStartLine int
	stmtGroup     int
	stmtExec      []int
	stmtNonExec   bool
	stmtVis       string
	lastDoc       string

	commentLines language.LineSet
	ignoreStart  int
}

func newWalker(src string) *walker {
	return &walker{
		lines:        strings.Split(src, "\n"),
		tokens:       tokenize(src),
		analysis:     language.NewFileAnalysis(),
		commentLines: make(language.LineSet),
	}
}

func (w *walker) walk() {
	prev := ""
	for i, tok := range w.tokens {
		if tok.kind.isComment() {
			w.comment(tok)
			continue
		}
		w.forgetDoc(tok)
		w.token(i, tok, prev)
		if tok.kind == tokPunct || tok.kind == tokIdent {
			prev = strings.ToLower(tok.text)
		} else {
			prev = ""
		}
	}
	w.finish()
}

func (w *walker) nextSignificant(i int) (int, token, bool) {
	for j := i + 1; j < len(w.tokens); j++ {
		if !w.tokens[j].kind.isComment() {
			return j, w.tokens[j], true
		}
	}
	return -1, token{}, false
}

func (w *walker) resetStatement() {
	w.stmtStartLine = 0
	w.stmtGroup = 0
	w.stmtExec = w.stmtExec[:0]
	w.stmtNonExec = false
	w.stmtVis = ""
}

// inCode reports whether the innermost non-block frame holds statements.
func (w *walker) inCode() bool {
	for i := len(w.stack) - 1; i >= 0; i-- {
		switch w.stack[i].kind {
		case frameBlock:
			continue
		case frameFunction, frameClosure:
			return true
		default:
			return false
		}
	}
	return true
}

// currentUnit is the innermost named function or method.
func (w *walker) currentUnit() *unit {
	for i := len(w.stack) - 1; i >= 0; i-- {
		if w.stack[i].unit != nil {
			return w.stack[i].unit
		}
	}
	return nil
}

func (w *walker) classFrame() *frame {
	for i := len(w.stack) - 1; i >= 0; i-- {
		switch w.stack[i].kind {
		case frameClass, frameAnonClass, frameInterface:
			return &w.stack[i]
		case frameFunction, frameClosure:
			return nil
		}
	}
	return nil
}

func (w *walker) token(i int, tok token, prev string) {
	switch tok.kind {
	case tokOpenTag, tokCloseTag, tokInlineHTML:
		w.resetStatement()
		return
	}
	if w.stmtStartLine == 0 {
		w.stmtStartLine = tok.line
	}
	if w.header != nil {
		w.headerToken(tok)
		return
	}

	text := strings.ToLower(tok.text)
	memberAccess := prev == "->" || prev == "?->" || prev == "::"
	if tok.kind == tokIdent && !memberAccess {
		switch text {
		case "class", "trait", "interface", "enum":
			if w.startClass(i, tok, text, prev) {
				return
			}
		case "function":
			// "use function" imports a name.
			if !w.stmtNonExec && w.startFunction(i, tok) {
				return
			}
		case "namespace":
			if len(w.stmtExec) == 0 && w.inCode() {
				w.stmtNonExec = true
				w.namespace = ""
				if _, next, ok := w.nextSignificant(i); ok && next.kind == tokIdent {
					w.namespace = strings.TrimPrefix(next.text, `\`)
				}
			}
		case "use", "declare":
			if len(w.stmtExec) == 0 && w.inCode() && w.currentUnit() == nil {
				w.stmtNonExec = true
			}
		case "public", "protected", "private":
			w.stmtVis = text
		}
	}
	if w.stmtNonExec {
		w.analysis.ScaffoldingLines.AddRange(tok.line, tok.endLine)
	}

	if tok.kind == tokPunct {
		switch tok.text {
		case "{":
			w.stack = append(w.stack, frame{kind: frameBlock})
			w.resetStatement()
			return
		case "}":
			w.pop(tok)
			w.resetStatement()
			return
		case ";":
			w.resetStatement()
			return
		}
	}

	if w.inCode() && !w.stmtNonExec {
		w.countComplexity(tok, text, memberAccess)
		if isExecutable(tok, text) {
			w.markExecutable(tok)
		}
	}
}

// headerToken consumes a declaration header up to its body.
func (w *walker) headerToken(tok token) {
	h := w.header
	if h.executable && w.inCode() && isExecutable(tok, strings.ToLower(tok.text)) {
		w.markExecutable(tok)
	}
	if tok.kind != tokPunct {
		return
	}
	switch tok.text {
	case "(", "[":
		h.depth++
	case ")", "]":
		h.depth--
	case ";":
		if h.depth == 0 && h.kind == frameFunction {
			// Abstract or interface method.
			h.unit.endLine = tok.line
			w.analysis.ScaffoldingLines.AddRange(w.stmtStartLine, tok.line)
			w.header = nil
			w.resetStatement()
		}
	case "{":
		if h.depth != 0 {
			return
		}
		w.header = nil
		if h.class != nil {
			w.classes = append(w.classes, h.class)
		}
		w.stack = append(w.stack, frame{kind: h.kind, unit: h.unit, class: h.class})
		w.resetStatement()
	}
}

func (w *walker) startClass(i int, tok token, kind, prev string) bool {
	_, next, ok := w.nextSignificant(i)
	if !ok {
		return false
	}
	if prev == "new" && kind == "class" {
		w.header = &header{kind: frameAnonClass, executable: true}
		if w.inCode() && !w.stmtNonExec {
			w.markExecutable(tok)
		}
		return true
	}
	if next.kind != tokIdent || (kind == "enum" && len(w.stmtExec) > 0) {
		return false
	}

	w.dropStatementLines()
	decl := &classDecl{
		class: language.Class{
			Name:      next.text,
			Namespace: w.namespace,
			Kind:      language.ClassKind(kind),
			StartLine: w.stmtStartLine,
		},
		nameLine: next.line,
		doc:      w.lastDoc,
	}
	h := &header{kind: frameClass, class: decl}
	if decl.class.Kind == language.KindInterface {
		h.kind = frameInterface
	}
	w.header = h
	return true
}

func (w *walker) startFunction(i int, tok token) bool {
	j, next, ok := w.nextSignificant(i)
	if ok && next.kind == tokPunct && next.text == "&" {
		_, next, ok = w.nextSignificant(j)
	}
	if !ok {
		return false
	}
	if next.kind != tokIdent {
		// Closure: part of the enclosing statement.
		w.header = &header{kind: frameClosure, executable: true}
		if w.inCode() && !w.stmtNonExec {
			w.markExecutable(tok)
		}
		return true
	}

	w.dropStatementLines()
	u := &unit{
		name:       next.text,
		namespace:  w.namespace,
		visibility: w.stmtVis,
		startLine:  w.stmtStartLine,
		nameLine:   next.line,
		doc:        w.lastDoc,
		complexity: 1,
	}
	if cf := w.classFrame(); cf != nil {
		switch cf.kind {
		case frameAnonClass:
			// Counted towards the enclosing unit.
			w.header = &header{kind: frameClosure}
			return true
		case frameInterface:
			w.header = &header{kind: frameFunction, unit: &unit{}}
			return true
		}
		u.class = cf.class
		if u.visibility == "" {
			u.visibility = "public"
		}
	}
	w.units = append(w.units, u)
	w.header = &header{kind: frameFunction, unit: u}
	return true
}

// dropStatementLines forgets executable lines collected for a statement that
// turned out to be a declaration, e.g. "final class" at the top level.
func (w *walker) dropStatementLines() {
	for _, line := range w.stmtExec {
		if w.analysis.ExecutableLines[line] == w.stmtGroup {
			delete(w.analysis.ExecutableLines, line)
		}
	}
	w.stmtExec = w.stmtExec[:0]
	w.stmtGroup = 0
}

func (w *walker) pop(tok token) {
	if len(w.stack) == 0 {
		return
	}
	f := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	switch f.kind {
	case frameFunction:
		u := f.unit
		u.endLine = tok.line
		if !u.hasCode {
			w.analysis.ExecutableLines[u.nameLine] = u.nameLine
			w.ignoreAllBut(u.startLine, u.endLine, u.nameLine)
		}
		w.unitAnnotations(u.doc, u.startLine, u.endLine)
	case frameClass:
		f.class.class.EndLine = tok.line
		w.unitAnnotations(f.class.doc, f.class.class.StartLine, tok.line)
	case frameInterface:
		f.class.class.EndLine = tok.line
		w.analysis.ScaffoldingLines.AddRange(f.class.class.StartLine, tok.line)
	}
}

// ignoreAllBut marks the lines of an empty construct as scaffolding, except
// the declaration line that stands in for it.
func (w *walker) ignoreAllBut(from, to, keep int) {
	for line := from; line <= to; line++ {
		if line != keep {
			w.analysis.ScaffoldingLines.Add(line)
		}
	}
}

func (w *walker) unitAnnotations(doc string, start, end int) {
	if hasIgnoreTag(doc) {
		w.analysis.AnnotatedLines.AddRange(start, end)
	}
	if strings.Contains(doc, "@deprecated") {
		w.analysis.DeprecatedLines.AddRange(start, end)
	}
}

func (w *walker) markExecutable(tok token) {
	if w.stmtGroup == 0 {
		w.stmtGroup = tok.line
	}
	for line := tok.line; line <= tok.endLine; line++ {
		if line > tok.line && w.blank(line) {
			continue
		}
		if _, seen := w.analysis.ExecutableLines[line]; !seen {
			w.analysis.ExecutableLines[line] = w.stmtGroup
			w.stmtExec = append(w.stmtExec, line)
		}
	}
	for i := len(w.stack) - 1; i >= 0; i-- {
		if w.stack[i].kind == frameFunction {
			w.stack[i].unit.hasCode = true
			break
		}
	}
}

func (w *walker) countComplexity(tok token, text string, memberAccess bool) {
	u := w.currentUnit()
	if u == nil {
		return
	}
	switch tok.kind {
	case tokIdent:
		if memberAccess {
			return
		}
		switch text {
		case "if", "elseif", "for", "foreach", "while", "case", "catch", "and", "or", "xor":
			u.complexity++
		}
	case tokPunct:
		switch text {
		case "?", "??", "&&", "||":
			u.complexity++
		}
	}
}

func (w *walker) comment(tok token) {
	w.commentLines.AddRange(tok.line, tok.endLine)
	if tok.kind == tokDocComment {
		w.lastDoc = tok.text
	}

	switch commentText(tok.text) {
	case "@codeCoverageIgnore":
		w.analysis.AnnotatedLines.Add(tok.line)
	case "@codeCoverageIgnoreStart":
		if w.ignoreStart == 0 {
			w.ignoreStart = tok.line
		}
	case "@codeCoverageIgnoreEnd":
		if w.ignoreStart != 0 {
			w.analysis.AnnotatedLines.AddRange(w.ignoreStart, tok.endLine)
			w.ignoreStart = 0
		}
	}
}

func (w *walker) forgetDoc(tok token) {
	if tok.kind == tokPunct && (tok.text == "{" || tok.text == "}" || tok.text == ";") {
		w.lastDoc = ""
	}
}

func (w *walker) blank(line int) bool {
	return line-1 >= len(w.lines) || strings.TrimSpace(w.lines[line-1]) == ""
}

func (w *walker) finish() {
	a := w.analysis
	total := len(w.lines)
	if w.lines[total-1] == "" {
		total--
	}
	if w.ignoreStart != 0 {
		a.AnnotatedLines.AddRange(w.ignoreStart, total)
	}

	classIndex := make(map[*classDecl]int)
	for _, c := range w.classes {
		if c.class.Kind == language.KindInterface {
			continue
		}
		if c.class.EndLine == 0 {
			c.class.EndLine = total
		}
		classIndex[c] = len(a.Classes)
		a.Classes = append(a.Classes, c.class)
	}
	for _, u := range w.units {
		if u.endLine == 0 {
			u.endLine = total
		}
		if u.class == nil {
			a.Functions = append(a.Functions, language.Function{
				Name:       u.name,
				Namespace:  u.namespace,
				StartLine:  u.startLine,
				EndLine:    u.endLine,
				Complexity: u.complexity,
			})
			continue
		}
		idx, ok := classIndex[u.class]
		if !ok {
			continue
		}
		u.class.methods++
		a.Classes[idx].Methods = append(a.Classes[idx].Methods, language.Method{
			Name:       u.name,
			Visibility: u.visibility,
			StartLine:  u.startLine,
			EndLine:    u.endLine,
			Complexity: u.complexity,
		})
	}
	// A class without methods still reports its declaration line.
	for c := range classIndex {
		if c.class.Kind == language.KindClass && c.methods == 0 {
			a.ExecutableLines[c.nameLine] = c.nameLine
			w.ignoreAllBut(c.class.StartLine, c.class.EndLine, c.nameLine)
		}
	}

	a.LinesOfCode.Lines = total
	for line := range w.commentLines {
		if line <= total {
			a.LinesOfCode.CommentLines++
		}
	}
	a.LinesOfCode.NonCommentLines = total - a.LinesOfCode.CommentLines
}

// isExecutable reports whether tok can carry an executable statement on its
// line.
func isExecutable(tok token, lower string) bool {
	switch tok.kind {
	case tokOpenTag, tokCloseTag, tokInlineHTML, tokAttribute, tokComment, tokDocComment:
		return false
	case tokPunct:
		switch tok.text {
		case "{", "}", "(", ")", "[", "]", ";", ",":
			return false
		}
	case tokIdent:
		switch lower {
		case "else", "try", "finally", "do":
			return false
		}
	}
	return true
}

func commentText(raw string) string {
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = raw[2:]
	case strings.HasPrefix(raw, "#"):
		raw = raw[1:]
	case strings.HasPrefix(raw, "/*"):
		raw = strings.TrimSuffix(strings.TrimLeft(raw[2:], "*"), "*/")
	}
	return strings.TrimSpace(raw)
}

// hasIgnoreTag finds a bare @codeCoverageIgnore tag in a docblock. The Start
// and End markers do not count.
func hasIgnoreTag(doc string) bool {
	const tag = "@codeCoverageIgnore"
	for rest := doc; ; {
		i := strings.Index(rest, tag)
		if i < 0 {
			return false
		}
		rest = rest[i+len(tag):]
		if !strings.HasPrefix(rest, "Start") && !strings.HasPrefix(rest, "End") {
			return true
		}
	}
}
