package facts

import (
	"fmt"
	"io"
	"strings"
)

// Forest prints the containment forest, one view per line, indented by
// depth. Known names and classes are appended through highlight. A view
// reached a second time is marked with "..." and not expanded again.
func (x *Index) Forest(w io.Writer, highlight func(string) string) error {
	if highlight == nil {
		highlight = func(s string) string { return s }
	}

	f := &forestPrinter{x: x, w: w, highlight: highlight, printed: make(map[string]bool)}
	for _, root := range x.Roots() {
		f.node(root, 0)
		f.expand(root, 1)
		f.line("")
	}
	return f.err
}

type forestPrinter struct {
	x         *Index
	w         io.Writer
	highlight func(string) string
	printed   map[string]bool
	err       error
}

func (f *forestPrinter) expand(parent string, depth int) {
	if f.printed[parent] {
		return
	}
	f.printed[parent] = true

	for _, child := range f.x.children[parent] {
		f.node(child, depth)
		f.expand(child, depth+1)
	}
}

func (f *forestPrinter) node(id string, depth int) {
	var b strings.Builder
	b.WriteString(strings.Repeat("\t|", depth))
	b.WriteString(id)
	if f.printed[id] {
		b.WriteString("...")
	}
	if name, ok := f.x.names[id]; ok {
		fmt.Fprintf(&b, " id=%s,", f.highlight(name))
	}
	if class, ok := f.x.classes[id]; ok {
		fmt.Fprintf(&b, " class=%s,", f.highlight(class))
	}
	f.line(b.String())
}

func (f *forestPrinter) line(s string) {
	if f.err != nil {
		return
	}
	_, f.err = fmt.Fprintln(f.w, s)
}
