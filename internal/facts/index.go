// Package facts loads the auxiliary identity relations emitted by the
// analysis engines and answers identity and containment questions about
// view identifiers.
package facts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/uicheck/internal/decl"
	"github.com/ppiankov/uicheck/internal/tuple"
	"go.uber.org/zap"
)

// Well-known identity relations
const (
	RelIDName       = "idName"       // idName(v, name)
	RelViewClass    = "viewClass"    // viewClass(v, class)
	RelContainsView = "containsView" // containsView(u, v): u contains v
	RelRootView     = "rootView"     // rootView(act, v): v is a root of activity act
	RelTextContent  = "textContent"  // textContent(v, t)
)

// Options controls fact loading
type Options struct {
	Ext         string // fact file extension, e.g. ".facts"
	TextContent bool   // load textContent
	Logger      *zap.Logger
}

// Index holds identity tables and the containment graph. It is read-only
// after Load.
type Index struct {
	names      map[string]string
	classes    map[string]string
	texts      map[string][]string
	roots      map[string]string
	children   map[string][]string // container -> contained, first-seen order
	containers map[string][]string // contained -> containers, first-seen order
	edges      map[[2]string]struct{}
}

// New returns an empty index
func New() *Index {
	return &Index{
		names:      make(map[string]string),
		classes:    make(map[string]string),
		texts:      make(map[string][]string),
		roots:      make(map[string]string),
		children:   make(map[string][]string),
		containers: make(map[string][]string),
		edges:      make(map[[2]string]struct{}),
	}
}

// table binds a relation to the columns it needs and how rows are stored
type table struct {
	relation string
	columns  []string
	add      func(x *Index, vals []string)
}

var tables = []table{
	{RelIDName, []string{"v", "name"}, func(x *Index, vals []string) { x.SetName(vals[0], vals[1]) }},
	{RelViewClass, []string{"v", "class"}, func(x *Index, vals []string) { x.SetClass(vals[0], vals[1]) }},
	{RelContainsView, []string{"u", "v"}, func(x *Index, vals []string) { x.AddEdge(vals[0], vals[1]) }},
	{RelRootView, []string{"v", "act"}, func(x *Index, vals []string) { x.SetActivity(vals[0], vals[1]) }},
}

var textTable = table{RelTextContent, []string{"v", "t"}, func(x *Index, vals []string) { x.addText(vals[0], vals[1]) }}

// Load reads the well-known relations that are both declared in spec and
// present in dir. Missing files leave their table empty.
func Load(dir string, spec *decl.Spec, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ext := opts.Ext
	if ext == "" {
		ext = ".facts"
	}

	load := tables
	if opts.TextContent {
		load = append(append([]table{}, tables...), textTable)
	}

	x := New()
	for _, tb := range load {
		rel, ok := spec.Relation(tb.relation)
		if !ok {
			logger.Debug("relation not declared, skipping", zap.String("relation", tb.relation))
			continue
		}

		cols := make([]int, len(tb.columns))
		for i, name := range tb.columns {
			cols[i] = rel.FieldIndex(name)
			if cols[i] < 0 {
				return nil, fmt.Errorf("relation %s: no column %q", tb.relation, name)
			}
		}

		path := filepath.Join(dir, tb.relation+ext)
		rows := 0
		err := tuple.ForEach(path, rel.Arity(), func(row []string) error {
			vals := make([]string, len(cols))
			for i, c := range cols {
				vals[i] = row[c]
			}
			tb.add(x, vals)
			rows++
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("fact file missing, skipping", zap.String("relation", tb.relation), zap.String("path", path))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", tb.relation, err)
		}
		logger.Debug("loaded facts", zap.String("relation", tb.relation), zap.Int("rows", rows))
	}
	return x, nil
}

// AddEdge records that container contains child. Duplicate edges are ignored.
func (x *Index) AddEdge(container, child string) {
	key := [2]string{container, child}
	if _, ok := x.edges[key]; ok {
		return
	}
	x.edges[key] = struct{}{}
	x.children[container] = append(x.children[container], child)
	x.containers[child] = append(x.containers[child], container)
}

func (x *Index) addText(id, text string) {
	for _, t := range x.texts[id] {
		if t == text {
			return
		}
	}
	x.texts[id] = append(x.texts[id], text)
}

// SetName records a display name
func (x *Index) SetName(id, name string) { x.names[id] = name }

// SetClass records a class name
func (x *Index) SetClass(id, class string) { x.classes[id] = class }

// SetActivity records the activity owning a root view
func (x *Index) SetActivity(id, activity string) { x.roots[id] = activity }

// Name returns the display name of id
func (x *Index) Name(id string) (string, bool) {
	n, ok := x.names[id]
	return n, ok
}

// Class returns the class name of id
func (x *Index) Class(id string) (string, bool) {
	c, ok := x.classes[id]
	return c, ok
}

// Activity returns the activity of a root view
func (x *Index) Activity(id string) (string, bool) {
	a, ok := x.roots[id]
	return a, ok
}

// Texts returns the sorted text contents of id
func (x *Index) Texts(id string) []string {
	texts := append([]string(nil), x.texts[id]...)
	sort.Strings(texts)
	return texts
}

// Children returns the views directly contained in id
func (x *Index) Children(id string) []string {
	return x.children[id]
}

// Containers returns the views directly containing id
func (x *Index) Containers(id string) []string {
	return x.containers[id]
}

// AncestorsOf returns every transitive container of id in discovery order,
// each at most once. id itself is never included, even on a cycle.
func (x *Index) AncestorsOf(id string) []string {
	seen := map[string]struct{}{id: {}}
	var ancestors []string

	// ancestors doubles as the work queue: each appended container is
	// visited once, so the loop ends after at most |V| entries
	push := func(ids []string) {
		for _, a := range ids {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			ancestors = append(ancestors, a)
		}
	}

	push(x.containers[id])
	for i := 0; i < len(ancestors); i++ {
		push(x.containers[ancestors[i]])
	}
	return ancestors
}

// Roots returns containers that are not contained in anything, sorted
func (x *Index) Roots() []string {
	var roots []string
	for id := range x.children {
		if len(x.containers[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Stats summarises table sizes for logging
func (x *Index) Stats() map[string]int {
	return map[string]int{
		RelIDName:       len(x.names),
		RelViewClass:    len(x.classes),
		RelContainsView: len(x.edges),
		RelRootView:     len(x.roots),
		RelTextContent:  len(x.texts),
	}
}
