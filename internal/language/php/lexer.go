package php

import (
	"strings"
)

type tokenKind int

const (
	tokInlineHTML tokenKind = iota
	tokOpenTag
	tokCloseTag
	tokComment
	tokDocComment
	tokAttribute
	tokVariable
	tokIdent
	tokNumber
	tokString
	tokPunct
)

func (k tokenKind) isComment() bool {
	return k == tokComment || k == tokDocComment
}

type token struct {
	kind    tokenKind
	text    string
	line    int
	endLine int
}

// operators is ordered longest first.
var operators = []string{
	"<<=", ">>=", "**=", "...", "<=>", "===", "!==", "??=", "?->",
	"<<", ">>", "**", "++", "--", "->", "=>", "::", "==", "!=", "<>", "<=", ">=",
	"&&", "||", "??", "+=", "-=", "*=", "/=", ".=", "%=", "&=", "|=", "^=",
}

type lexer struct {
	src    string
	pos    int
	line   int
	tokens []token
}

// tokenize splits PHP source into tokens. Whitespace is dropped. The lexer is
// lenient: unterminated constructs run to the end of the input.
func tokenize(src string) []token {
	lx := &lexer{src: src, line: 1}
	lx.run()
	return lx.tokens
}

func (lx *lexer) emit(kind tokenKind, start, startLine int) {
	lx.tokens = append(lx.tokens, token{
		kind:    kind,
		text:    lx.src[start:lx.pos],
		line:    startLine,
		endLine: lx.line,
	})
}

// advance moves pos forward by n bytes, counting newlines.
func (lx *lexer) advance(n int) {
	end := min(lx.pos+n, len(lx.src))
	lx.line += strings.Count(lx.src[lx.pos:end], "\n")
	lx.pos = end
}

func (lx *lexer) peek(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

func (lx *lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(lx.src[lx.pos:], s)
}

func (lx *lexer) run() {
	for lx.pos < len(lx.src) {
		lx.scanHTML()
		lx.scanPHP()
	}
}

func (lx *lexer) scanHTML() {
	start, startLine := lx.pos, lx.line
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == '<' && lx.peek(1) == '?' {
			break
		}
		lx.advance(1)
	}
	if lx.pos > start {
		// A token ending in a newline does not occupy the next line.
		lx.emit(tokInlineHTML, start, startLine)
		if strings.HasSuffix(lx.tokens[len(lx.tokens)-1].text, "\n") {
			lx.tokens[len(lx.tokens)-1].endLine--
		}
	}
	if lx.pos >= len(lx.src) {
		return
	}
	start, startLine = lx.pos, lx.line
	switch {
	case len(lx.src)-lx.pos >= 5 && strings.EqualFold(lx.src[lx.pos:lx.pos+5], "<?php"):
		lx.advance(5)
	case lx.hasPrefix("<?="):
		lx.advance(3)
	default:
		lx.advance(2)
	}
	lx.emit(tokOpenTag, start, startLine)
}

func (lx *lexer) scanPHP() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		start, startLine := lx.pos, lx.line
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			lx.advance(1)
		case c == '?' && lx.peek(1) == '>':
			lx.advance(2)
			lx.emit(tokCloseTag, start, startLine)
			if lx.hasPrefix("\r\n") {
				lx.advance(2)
			} else if lx.peek(0) == '\n' {
				lx.advance(1)
			}
			return
		case c == '#' && lx.peek(1) == '[':
			lx.scanAttribute()
			lx.emit(tokAttribute, start, startLine)
		case c == '#' || (c == '/' && lx.peek(1) == '/'):
			lx.scanLineComment()
			lx.emit(tokComment, start, startLine)
		case c == '/' && lx.peek(1) == '*':
			kind := tokComment
			if lx.peek(2) == '*' && isSpace(lx.peek(3)) {
				kind = tokDocComment
			}
			end := strings.Index(lx.src[lx.pos+2:], "*/")
			if end < 0 {
				lx.advance(len(lx.src) - lx.pos)
			} else {
				lx.advance(end + 4)
			}
			lx.emit(kind, start, startLine)
		case c == '$' && isNameStart(lx.peek(1)):
			lx.advance(1)
			lx.scanName()
			lx.emit(tokVariable, start, startLine)
		case isNameStart(c) || (c == '\\' && isNameStart(lx.peek(1))):
			lx.scanQualifiedName()
			lx.emit(tokIdent, start, startLine)
		case isDigit(c) || (c == '.' && isDigit(lx.peek(1))):
			for lx.pos < len(lx.src) && (isNameChar(lx.src[lx.pos]) || lx.src[lx.pos] == '.') {
				lx.advance(1)
			}
			lx.emit(tokNumber, start, startLine)
		case c == '\'':
			lx.scanQuoted('\'')
			lx.emit(tokString, start, startLine)
		case c == '"' || c == '`':
			lx.scanQuoted(c)
			lx.emit(tokString, start, startLine)
		case lx.hasPrefix("<<<"):
			lx.scanHeredoc()
			lx.emit(tokString, start, startLine)
		default:
			lx.scanOperator()
			lx.emit(tokPunct, start, startLine)
		}
	}
}

func (lx *lexer) scanLineComment() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '\n' || (c == '?' && lx.peek(1) == '>') {
			return
		}
		if c == '\r' && lx.peek(1) == '\n' {
			return
		}
		lx.advance(1)
	}
}

func (lx *lexer) scanAttribute() {
	lx.advance(2)
	depth := 1
	for lx.pos < len(lx.src) && depth > 0 {
		switch c := lx.src[lx.pos]; c {
		case '[':
			depth++
			lx.advance(1)
		case ']':
			depth--
			lx.advance(1)
		case '\'', '"':
			lx.scanQuoted(c)
		default:
			lx.advance(1)
		}
	}
}

func (lx *lexer) scanName() {
	for lx.pos < len(lx.src) && isNameChar(lx.src[lx.pos]) {
		lx.advance(1)
	}
}

func (lx *lexer) scanQualifiedName() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if isNameChar(c) || (c == '\\' && isNameStart(lx.peek(1))) {
			lx.advance(1)
			continue
		}
		return
	}
}

// scanQuoted consumes a quoted string starting at the opening quote. In
// interpolating strings a "{$" expression may contain nested strings.
func (lx *lexer) scanQuoted(quote byte) {
	lx.advance(1)
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\\':
			lx.advance(2)
		case c == quote:
			lx.advance(1)
			return
		case quote != '\'' && c == '{' && lx.peek(1) == '$':
			lx.scanInterpolation()
		default:
			lx.advance(1)
		}
	}
}

func (lx *lexer) scanInterpolation() {
	lx.advance(1)
	depth := 1
	for lx.pos < len(lx.src) && depth > 0 {
		switch c := lx.src[lx.pos]; c {
		case '{':
			depth++
			lx.advance(1)
		case '}':
			depth--
			lx.advance(1)
		case '\'', '"':
			lx.scanQuoted(c)
		default:
			lx.advance(1)
		}
	}
}

func (lx *lexer) scanHeredoc() {
	lx.advance(3)
	for lx.peek(0) == ' ' || lx.peek(0) == '\t' {
		lx.advance(1)
	}
	quote := lx.peek(0)
	if quote == '\'' || quote == '"' {
		lx.advance(1)
	}
	idStart := lx.pos
	lx.scanName()
	id := lx.src[idStart:lx.pos]
	if quote == '\'' || quote == '"' {
		lx.advance(1)
	}
	if id == "" {
		return
	}
	// The body ends at the first line whose content, after indentation,
	// starts with the identifier not followed by a name character.
	for {
		nl := strings.IndexByte(lx.src[lx.pos:], '\n')
		if nl < 0 {
			lx.advance(len(lx.src) - lx.pos)
			return
		}
		lx.advance(nl + 1)
		rest := lx.src[lx.pos:]
		trimmed := strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(trimmed, id) {
			after := len(rest) - len(trimmed) + len(id)
			if after >= len(rest) || !isNameChar(rest[after]) {
				lx.advance(after)
				return
			}
		}
	}
}

func (lx *lexer) scanOperator() {
	for _, op := range operators {
		if lx.hasPrefix(op) {
			lx.advance(len(op))
			return
		}
	}
	lx.advance(1)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c)
}
