package decl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformedDecl is wrapped by every SyntaxError
var ErrMalformedDecl = errors.New("malformed declaration")

// Directive keywords recognised at the start of a line
const (
	includeDirective = "#include"
	declKeyword      = ".decl"
	numberDirective  = ".number_type"
	symbolDirective  = ".symbol_type"
	typeDirective    = ".type"
)

// SyntaxError reports a declaration that does not match
// NAME "(" NAME ":" NAME ("," NAME ":" NAME)* ")"
type SyntaxError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Col, ErrMalformedDecl, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformedDecl
}

// sourceLine is a specification line tagged with where it came from
type sourceLine struct {
	file string
	num  int
	text string
}

// Parse reads a specification file, expands its includes and returns the
// declared relations and type classification.
func Parse(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spec: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f, path, filepath.Dir(path))
}

// ParseReader parses specification text read from r. Includes resolve
// relative to baseDir; name is used in error positions.
func ParseReader(r io.Reader, name, baseDir string) (*Spec, error) {
	top, err := readLines(r, name)
	if err != nil {
		return nil, err
	}

	lines, err := expandIncludes(top, baseDir)
	if err != nil {
		return nil, err
	}

	spec := newSpec(name)
	for _, line := range lines {
		if err := spec.apply(line); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// Expand returns the text of the specification at path with its includes
// pasted in, the same text Parse reads declarations from.
func Expand(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spec: %w", err)
	}
	defer func() { _ = f.Close() }()

	top, err := readLines(f, path)
	if err != nil {
		return nil, err
	}
	lines, err := expandIncludes(top, filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line.text)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func readLines(r io.Reader, name string) ([]sourceLine, error) {
	var lines []sourceLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		lines = append(lines, sourceLine{file: name, num: n, text: strings.TrimRight(scanner.Text(), "\r")})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return lines, nil
}

// expandIncludes replaces each top-level include line with the lines of the
// referenced file. Includes inside included files are not expanded.
func expandIncludes(lines []sourceLine, baseDir string) ([]sourceLine, error) {
	out := make([]sourceLine, 0, len(lines))
	for _, line := range lines {
		if !strings.HasPrefix(line.text, includeDirective) {
			out = append(out, line)
			continue
		}

		fields := strings.Fields(line.text)
		if len(fields) < 2 {
			return nil, &SyntaxError{File: line.file, Line: line.num, Col: len(line.text) + 1, Msg: "include without a file name"}
		}
		target := strings.Trim(fields[1], `"<>`)

		path := filepath.Join(baseDir, target)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: include %s: %w", line.file, line.num, target, err)
		}
		included, err := readLines(f, path)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, included...)
	}
	return out, nil
}

func (s *Spec) apply(line sourceLine) error {
	switch {
	case strings.HasPrefix(line.text, declKeyword):
		rel, err := parseDecl(line)
		if err != nil {
			return err
		}
		if _, exists := s.Relations[rel.Name]; exists {
			s.Redeclared = append(s.Redeclared, rel.Name)
		}
		s.Relations[rel.Name] = rel

	case strings.HasPrefix(line.text, numberDirective):
		if fields := strings.Fields(line.text); len(fields) > 1 {
			s.NumberTypes[fields[1]] = struct{}{}
		}

	case strings.HasPrefix(line.text, symbolDirective):
		if fields := strings.Fields(line.text); len(fields) > 1 {
			s.SymbolTypes[fields[1]] = struct{}{}
		}

	case strings.HasPrefix(line.text, typeDirective+" "), strings.HasPrefix(line.text, typeDirective+"\t"):
		// .type T <: base ; unions and records are not classified
		body := stripComment(line.text[len(typeDirective):])
		name, base, ok := strings.Cut(body, "<:")
		if ok {
			s.classifyAlias(strings.TrimSpace(name), strings.TrimSpace(base))
		}
	}
	return nil
}

func stripComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		return s[:i]
	}
	return s
}

// parseDecl parses one `.decl` line
func parseDecl(line sourceLine) (Relation, error) {
	p := &declParser{line: line, lex: newLexer(line.text, len(declKeyword))}

	if tok := p.lex.peek(); tok.kind != tokSpace {
		return Relation{}, p.errorf(tok, "expected whitespace after %s", declKeyword)
	}

	name, err := p.expect(tokIdent, "relation name")
	if err != nil {
		return Relation{}, err
	}
	if _, err := p.expect(tokLParen, `"("`); err != nil {
		return Relation{}, err
	}

	rel := Relation{Name: name}
	for {
		field, err := p.expect(tokIdent, "field name")
		if err != nil {
			return Relation{}, err
		}
		if _, err := p.expect(tokColon, `":"`); err != nil {
			return Relation{}, err
		}
		typ, err := p.expect(tokIdent, "field type")
		if err != nil {
			return Relation{}, err
		}
		rel.Fields = append(rel.Fields, Field{Name: field, Type: typ})

		tok := p.next()
		if tok.kind == tokRParen {
			break
		}
		if tok.kind != tokComma {
			return Relation{}, p.errorf(tok, `expected "," or ")", got %s`, tok)
		}
	}

	if tok := p.next(); tok.kind != tokEOF {
		return Relation{}, p.errorf(tok, "unexpected %s after declaration", tok)
	}
	return rel, nil
}

type declParser struct {
	line sourceLine
	lex  *lexer
}

// next returns the next significant token
func (p *declParser) next() token {
	for {
		tok := p.lex.next()
		if tok.kind != tokSpace {
			return tok
		}
	}
}

func (p *declParser) expect(kind tokenKind, what string) (string, error) {
	tok := p.next()
	if tok.kind != kind {
		return "", p.errorf(tok, "expected %s, got %s", what, tok)
	}
	return tok.text, nil
}

func (p *declParser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{
		File: p.line.file,
		Line: p.line.num,
		Col:  tok.pos + 1,
		Msg:  fmt.Sprintf(format, args...),
	}
}
