package decl

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokSpace
	tokIdent
	tokLParen
	tokRParen
	tokColon
	tokComma
	tokIllegal
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset in the line
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of line"
	case tokSpace:
		return "whitespace"
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// lexer splits a single declaration line. A `//` comment ends the line.
type lexer struct {
	src    string
	pos    int
	peeked *token
}

func newLexer(src string, start int) *lexer {
	return &lexer{src: src, pos: start}
}

func (l *lexer) peek() token {
	if l.peeked == nil {
		tok := l.scan()
		l.peeked = &tok
	}
	return *l.peeked
}

func (l *lexer) next() token {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok
	}
	return l.scan()
}

func (l *lexer) scan() token {
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == ' ' || c == '\t':
		for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
			l.pos++
		}
		return token{kind: tokSpace, text: l.src[start:l.pos], pos: start}

	case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
		l.pos = len(l.src)
		return token{kind: tokEOF, pos: start}

	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}
	}

	l.pos++
	kind := tokIllegal
	switch c {
	case '(':
		kind = tokLParen
	case ')':
		kind = tokRParen
	case ':':
		kind = tokColon
	case ',':
		kind = tokComma
	}
	return token{kind: kind, text: string(c), pos: start}
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}
