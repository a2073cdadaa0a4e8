package facts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/uicheck/internal/decl"
	"github.com/ppiankov/uicheck/internal/tuple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSpec = `.symbol_type ViewID
.decl idName(v: ViewID, name: symbol)
.decl viewClass(v: ViewID, class: symbol)
.decl containsView(u: ViewID, v: ViewID)
.decl rootView(act: symbol, v: ViewID)
.decl textContent(v: ViewID, t: symbol)
`

func mustSpec(t *testing.T, src string) *decl.Spec {
	t.Helper()
	spec, err := decl.ParseReader(strings.NewReader(src), "test.dl", t.TempDir())
	require.NoError(t, err)
	return spec
}

func writeFacts(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".facts"), []byte(content), 0644))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, map[string]string{
		RelIDName:       "A\troot\nD\tbutton\n",
		RelViewClass:    "A\tandroid.widget.LinearLayout\n",
		RelContainsView: "A\tB\nB\tC\nA\tB\n",
		RelRootView:     "MainActivity\tA\n",
		RelTextContent:  "D\tOK\nD\tCancel\nD\tOK\n",
	})

	x, err := Load(dir, mustSpec(t, testSpec), Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	name, ok := x.Name("A")
	assert.True(t, ok)
	assert.Equal(t, "root", name)
	_, ok = x.Name("B")
	assert.False(t, ok)

	class, ok := x.Class("A")
	assert.True(t, ok)
	assert.Equal(t, "android.widget.LinearLayout", class)

	act, ok := x.Activity("A")
	assert.True(t, ok, "columns are located by name, not position")
	assert.Equal(t, "MainActivity", act)

	assert.Equal(t, []string{"B"}, x.Children("A"), "duplicate edges collapse")
	assert.Equal(t, []string{"A"}, x.Containers("B"))
	assert.Empty(t, x.Texts("D"), "textContent is off by default")

	stats := x.Stats()
	assert.Equal(t, 2, stats[RelIDName])
	assert.Equal(t, 2, stats[RelContainsView])
}

func TestLoad_TextContent(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, map[string]string{RelTextContent: "D\tOK\nD\tCancel\nD\tOK\n"})

	x, err := Load(dir, mustSpec(t, testSpec), Options{TextContent: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cancel", "OK"}, x.Texts("D"))
}

func TestLoad_MissingFilesTolerated(t *testing.T) {
	x, err := Load(t.TempDir(), mustSpec(t, testSpec), Options{})
	require.NoError(t, err)
	assert.Empty(t, x.AncestorsOf("anything"))
	assert.Empty(t, x.Roots())
}

func TestLoad_UndeclaredRelationSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, map[string]string{RelIDName: "A\troot\textra\n"})

	// idName is not declared, so its malformed file is never read
	x, err := Load(dir, mustSpec(t, ".decl other(x: number)\n"), Options{})
	require.NoError(t, err)
	_, ok := x.Name("A")
	assert.False(t, ok)
}

func TestLoad_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, map[string]string{RelIDName: "A\troot\n"})

	_, err := Load(dir, mustSpec(t, ".decl idName(view: symbol, name: symbol)\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "v"`)
}

func TestLoad_ArityMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFacts(t, dir, map[string]string{RelViewClass: "A\tcls\textra\n"})

	_, err := Load(dir, mustSpec(t, testSpec), Options{})
	assert.ErrorIs(t, err, tuple.ErrArityMismatch)
}

func TestAncestorsOf(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]string
		id    string
		want  []string
	}{
		{
			name:  "chain",
			edges: [][2]string{{"A", "B"}, {"B", "C"}},
			id:    "C",
			want:  []string{"B", "A"},
		},
		{
			name:  "no containers",
			edges: [][2]string{{"A", "B"}},
			id:    "A",
			want:  nil,
		},
		{
			name:  "diamond reported once",
			edges: [][2]string{{"R", "L"}, {"R", "M"}, {"L", "X"}, {"M", "X"}},
			id:    "X",
			want:  []string{"L", "M", "R"},
		},
		{
			name:  "cycle terminates",
			edges: [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}},
			id:    "C",
			want:  []string{"B", "A"},
		},
		{
			name:  "self loop",
			edges: [][2]string{{"A", "A"}, {"P", "A"}},
			id:    "A",
			want:  []string{"P"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New()
			for _, e := range tt.edges {
				x.AddEdge(e[0], e[1])
			}
			assert.Equal(t, tt.want, x.AncestorsOf(tt.id))
		})
	}
}

func TestAncestorsOf_LargeCycleNoDuplicates(t *testing.T) {
	x := New()
	const n = 500
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "v" + strings.Repeat("x", i)
	}
	for i := range ids {
		x.AddEdge(ids[(i+1)%n], ids[i])
		x.AddEdge(ids[(i+7)%n], ids[i])
	}

	got := x.AncestorsOf(ids[0])
	assert.Len(t, got, n-1)

	seen := make(map[string]bool)
	for _, id := range got {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestForest(t *testing.T) {
	x := New()
	x.AddEdge("A", "B")
	x.AddEdge("A", "C")
	x.AddEdge("B", "D")
	x.AddEdge("C", "D")
	x.SetName("B", "header")
	x.SetClass("D", "TextView")

	var buf bytes.Buffer
	err := x.Forest(&buf, func(s string) string { return "<" + s + ">" })
	require.NoError(t, err)

	want := "A\n" +
		"\t|B id=<header>,\n" +
		"\t|\t|D class=<TextView>,\n" +
		"\t|C\n" +
		"\t|\t|D... class=<TextView>,\n" +
		"\n"
	assert.Equal(t, want, buf.String())
}

func TestSetters(t *testing.T) {
	x := New()
	x.AddEdge("A", "B")
	x.SetName("B", "header")
	x.SetClass("B", "FrameLayout")
	x.SetActivity("A", "MainActivity")

	act, ok := x.Activity("A")
	assert.True(t, ok)
	assert.Equal(t, "MainActivity", act)
	_, ok = x.Activity("B")
	assert.False(t, ok, "only roots carry an activity")

	name, _ := x.Name("B")
	class, _ := x.Class("B")
	assert.Equal(t, "header", name)
	assert.Equal(t, "FrameLayout", class)
	assert.Equal(t, []string{"A"}, x.Roots())
	assert.Equal(t, 1, x.Stats()[RelRootView])
}
