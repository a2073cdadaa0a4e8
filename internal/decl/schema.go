// Package decl parses the relation declarations of a Soufflé specification
// into typed schemas and classifies column types for query rendering.
package decl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a column type is neither numeric nor symbolic
var ErrUnknownType = errors.New("unknown type")

// Field is one typed column of a relation
type Field struct {
	Name string
	Type string
}

// Relation is the schema of one declared relation. Field order is the
// column order of the relation's tuple files.
type Relation struct {
	Name   string
	Fields []Field
}

// Arity returns the number of columns
func (r Relation) Arity() int {
	return len(r.Fields)
}

// FieldIndex returns the column position of the named field, or -1
func (r Relation) FieldIndex(name string) int {
	for i, f := range r.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// TypeClass is the rendering class of a column type
type TypeClass int

const (
	ClassUnknown TypeClass = iota
	ClassNumber
	ClassSymbol
)

func (c TypeClass) String() string {
	switch c {
	case ClassNumber:
		return "number"
	case ClassSymbol:
		return "symbol"
	default:
		return "unknown"
	}
}

// Spec is the parsed declaration schema of a specification file
type Spec struct {
	Path        string
	Relations   map[string]Relation
	NumberTypes map[string]struct{}
	SymbolTypes map[string]struct{}

	// Redeclared lists relation names declared more than once, in the order
	// the overriding declarations were seen. The last declaration wins.
	Redeclared []string
}

func newSpec(path string) *Spec {
	return &Spec{
		Path:        path,
		Relations:   make(map[string]Relation),
		NumberTypes: map[string]struct{}{"number": {}},
		SymbolTypes: map[string]struct{}{"symbol": {}},
	}
}

// Relation looks up a declared relation by name
func (s *Spec) Relation(name string) (Relation, bool) {
	r, ok := s.Relations[name]
	return r, ok
}

// Classify returns the rendering class of a column type
func (s *Spec) Classify(typ string) TypeClass {
	if _, ok := s.NumberTypes[typ]; ok {
		return ClassNumber
	}
	if _, ok := s.SymbolTypes[typ]; ok {
		return ClassSymbol
	}
	return ClassUnknown
}

// FormatArg renders one value as a query argument: numbers bare, symbols quoted
func FormatArg(class TypeClass, value string) (string, error) {
	switch class {
	case ClassNumber:
		return value, nil
	case ClassSymbol:
		return `"` + value + `"`, nil
	case ClassUnknown:
		return "", ErrUnknownType
	}
	return "", fmt.Errorf("unhandled type class %d", int(class))
}

// Query renders a ground atom for the relation, e.g. `r(1, "a")`
func (s *Spec) Query(rel Relation, values []string) (string, error) {
	if len(values) != rel.Arity() {
		return "", fmt.Errorf("query %s: got %d values for %d fields", rel.Name, len(values), rel.Arity())
	}

	args := make([]string, len(values))
	for i, f := range rel.Fields {
		arg, err := FormatArg(s.Classify(f.Type), values[i])
		if err != nil {
			return "", fmt.Errorf("query %s: field %s: %w: %s", rel.Name, f.Name, err, f.Type)
		}
		args[i] = arg
	}

	return rel.Name + "(" + strings.Join(args, ", ") + ")", nil
}

// classifyAlias records `name` with the class of `base`, if base is known
func (s *Spec) classifyAlias(name, base string) {
	switch s.Classify(base) {
	case ClassNumber:
		s.NumberTypes[name] = struct{}{}
	case ClassSymbol:
		s.SymbolTypes[name] = struct{}{}
	case ClassUnknown:
	}
}
