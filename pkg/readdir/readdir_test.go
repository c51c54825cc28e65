package readdir

import (
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oneconcern/zipmount/pkg/errors"
	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/manifest"
	"github.com/oneconcern/zipmount/pkg/vfs"
	"github.com/oneconcern/zipmount/pkg/vfs/status"
	"github.com/oneconcern/zipmount/pkg/zipcache"
	"github.com/oneconcern/zipmount/pkg/zipfile/ziptest"
)

const testManifest = `{
  "linkType": "HARD",
  "children": {
    "a": {"linkType": "HARD", "children": {}},
    "b": {"linkType": "SOFT", "target": "a"},
    "c": {"linkType": "HARD", "children": {}},
    "d": {"linkType": "HARD", "target": "/cache/pkg.zip"},
    "e": {"linkType": "HARD", "children": {}}
  }
}`

func testEngine(t testing.TB) (*Engine, *vfs.Tree) {
	fs := afero.NewMemMapFs()
	ziptest.WriteFile(t, fs, "/cache/pkg.zip",
		ziptest.File{Name: "readme.txt", Body: "read me"},
		ziptest.File{Name: "lib/index.js", Body: "module.exports = 42\n", Deflate: true},
	)
	root, err := manifest.Decode([]byte(testManifest))
	require.NoError(t, err)
	tree, err := vfs.New(root, zipcache.New(zipcache.Fs(fs)))
	require.NoError(t, err)
	return New(tree, Logger(zaptest.NewLogger(t))), tree
}

type listed struct {
	name   string
	cookie uint64
}

// collect accepts up to max entries, or all entries when max is negative
func collect(t testing.TB, e *Engine, dir vfs.Node, cookie uint64, max int) ([]listed, Result) {
	var entries []listed
	result, err := e.List(dir, cookie, false, func(entry Entry) bool {
		if max >= 0 && len(entries) >= max {
			return false
		}
		assert.Nil(t, entry.Attributes)
		entries = append(entries, listed{name: entry.Name, cookie: entry.NextCookie})
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, Verifier, result.Verifier)
	return entries, result
}

func TestListAll(t *testing.T) {
	e, tree := testEngine(t)

	entries, result := collect(t, e, tree.Root(), 0, -1)
	assert.Equal(t, []listed{
		{".", 1}, {"..", 2}, {"a", 3}, {"b", 4}, {"c", 5}, {"d", 6}, {"e", 7},
	}, entries)
	assert.True(t, result.EOF)
	assert.Equal(t, uint64(7), result.Cookie)

	// nothing left
	entries, result = collect(t, e, tree.Root(), 7, -1)
	assert.Empty(t, entries)
	assert.True(t, result.EOF)
	assert.Equal(t, uint64(7), result.Cookie)
}

func TestResume(t *testing.T) {
	e, tree := testEngine(t)

	entries, result := collect(t, e, tree.Root(), 4, -1)
	assert.Equal(t, []listed{{"c", 5}, {"d", 6}, {"e", 7}}, entries)
	assert.True(t, result.EOF)

	entries, _ = collect(t, e, tree.Root(), 2, -1)
	require.Len(t, entries, 5)
	assert.Equal(t, "a", entries[0].name)

	entries, _ = collect(t, e, tree.Root(), 1, 1)
	assert.Equal(t, []listed{{"..", 2}}, entries)
}

func TestPagination(t *testing.T) {
	e, tree := testEngine(t)

	var (
		all    []string
		cookie uint64
		calls  int
	)
	for {
		entries, result := collect(t, e, tree.Root(), cookie, 2)
		calls++
		for _, entry := range entries {
			all = append(all, entry.name)
		}
		cookie = result.Cookie
		if result.EOF {
			break
		}
		require.Less(t, calls, 10)
	}
	assert.Equal(t, []string{".", "..", "a", "b", "c", "d", "e"}, all)
	assert.Equal(t, 4, calls)
}

func TestRejectDoesNotAdvance(t *testing.T) {
	e, tree := testEngine(t)

	var offered []string
	result, err := e.List(tree.Root(), 3, false, func(entry Entry) bool {
		offered = append(offered, entry.Name)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, offered)
	assert.Equal(t, uint64(3), result.Cookie)
	assert.False(t, result.EOF)

	// the rejected entry comes first on the next call
	entries, _ := collect(t, e, tree.Root(), result.Cookie, 1)
	assert.Equal(t, []listed{{"b", 4}}, entries)
}

func TestAttributes(t *testing.T) {
	e, tree := testEngine(t)

	byName := make(map[string]Entry)
	_, err := e.List(tree.Root(), 0, true, func(entry Entry) bool {
		require.NotNil(t, entry.Attributes)
		assert.Equal(t, entry.ID, entry.Attributes.ID)
		assert.Equal(t, entry.Kind, entry.Attributes.Kind)
		byName[entry.Name] = entry
		return true
	})
	require.NoError(t, err)

	assert.Equal(t, ident.Root, byName["."].ID)
	assert.Equal(t, ident.ParentOfRoot, byName[".."].ID)
	assert.Equal(t, vfs.KindSymlink, byName["b"].Kind)
	assert.Equal(t, vfs.KindDir, byName["d"].Kind)

	// ".." below the root is the parent node
	lib, err := tree.Lookup("d/lib")
	require.NoError(t, err)
	d, err := tree.Lookup("d")
	require.NoError(t, err)

	byName = make(map[string]Entry)
	result, err := e.List(lib, 0, true, func(entry Entry) bool {
		byName[entry.Name] = entry
		return true
	})
	require.NoError(t, err)
	assert.True(t, result.EOF)
	assert.Equal(t, lib.ID(), byName["."].ID)
	assert.Equal(t, d.ID(), byName[".."].ID)
	require.Contains(t, byName, "index.js")
	assert.Equal(t, vfs.KindFile, byName["index.js"].Kind)
	assert.Equal(t, uint64(20), byName["index.js"].Attributes.Size)
}

// countingNode counts attribute computations
type countingNode struct {
	vfs.Node
	calls *int32
}

func (n countingNode) Attributes() (vfs.Attributes, error) {
	atomic.AddInt32(n.calls, 1)
	return n.Node.Attributes()
}

func (n countingNode) Children() ([]vfs.DirEntry, error) {
	children, err := n.Node.Children()
	if err != nil {
		return nil, err
	}
	wrapped := make([]vfs.DirEntry, 0, len(children))
	for _, c := range children {
		wrapped = append(wrapped, vfs.DirEntry{Name: c.Name, Node: countingNode{Node: c.Node, calls: n.calls}})
	}
	return wrapped, nil
}

func TestSkipAttributes(t *testing.T) {
	e, tree := testEngine(t)
	d, err := tree.Lookup("d")
	require.NoError(t, err)

	var calls int32
	entries, _ := collect(t, e, countingNode{Node: d, calls: &calls}, 2, -1)
	assert.Len(t, entries, 2)
	assert.Zero(t, atomic.LoadInt32(&calls))

	_, err = e.List(countingNode{Node: d, calls: &calls}, 2, true, func(Entry) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDotDotSkipsAttributes(t *testing.T) {
	e, tree := testEngine(t)

	for _, pth := range []string{"a", "d", "d/lib"} {
		dir, err := tree.Lookup(pth)
		require.NoError(t, err)
		want, err := dir.Attributes()
		require.NoError(t, err)

		var calls int32
		var dotDot Entry
		_, err = e.List(countingNode{Node: dir, calls: &calls}, 1, false, func(entry Entry) bool {
			dotDot = entry
			return false
		})
		require.NoError(t, err)
		assert.Zero(t, atomic.LoadInt32(&calls), pth)
		assert.Equal(t, "..", dotDot.Name)
		assert.Equal(t, want.Parent, dotDot.ID, pth)
		assert.Equal(t, vfs.KindDir, dotDot.Kind)
		assert.Nil(t, dotDot.Attributes)
	}
}

func TestListErrors(t *testing.T) {
	e, tree := testEngine(t)

	b, err := tree.Lookup("b")
	require.NoError(t, err)
	_, err = e.List(b, 0, false, func(Entry) bool { return true })
	assert.True(t, errors.Is(err, status.ErrTypeMismatch))

	readme, err := tree.Lookup("d/readme.txt")
	require.NoError(t, err)
	_, err = e.List(readme, 0, false, func(Entry) bool { return true })
	assert.True(t, errors.Is(err, status.ErrTypeMismatch))
}
