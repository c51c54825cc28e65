package manifest

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/zipmount/pkg/errors"
	"github.com/oneconcern/zipmount/pkg/manifest/status"
)

const testManifest = `
{
  // the dependency tree
  "linkType": "HARD",
  "children": {
    "pkg": {"linkType": "HARD", "target": "/cache/pkg.zip"},
    "lib": {
      "linkType": "HARD",
      "target": "/cache/lib.zip/package/dist",
      "children": {
        "node_modules": {"linkType": "HARD", "children": {}},
      },
    },
    "bin": {"linkType": "SOFT", "target": "../pkg/bin"},
  },
}`

func TestDecode(t *testing.T) {
	root, err := Decode([]byte(testManifest))
	require.NoError(t, err)

	assert.Equal(t, Dir, root.Kind)
	require.Len(t, root.Children, 3)
	assert.Equal(t, "bin", root.Children[0].Name)
	assert.Equal(t, "lib", root.Children[1].Name)
	assert.Equal(t, "pkg", root.Children[2].Name)
	assert.Equal(t, 5, root.Count())

	pkg, ok := root.Child("pkg")
	require.True(t, ok)
	assert.Equal(t, ZipMount, pkg.Kind)
	assert.Equal(t, "/cache/pkg.zip", pkg.ArchivePath)
	assert.Equal(t, "/", pkg.InnerSubpath)

	lib, ok := root.Child("lib")
	require.True(t, ok)
	assert.Equal(t, "/cache/lib.zip", lib.ArchivePath)
	assert.Equal(t, "/package/dist", lib.InnerSubpath)
	nm, ok := lib.Child("node_modules")
	require.True(t, ok)
	assert.Equal(t, Dir, nm.Kind)
	assert.Empty(t, nm.Children)

	bin, ok := root.Child("bin")
	require.True(t, ok)
	assert.Equal(t, SoftLink, bin.Kind)
	assert.Equal(t, "../pkg/bin", bin.Target)
	assert.False(t, bin.IsDir())

	_, ok = root.Child("nope")
	assert.False(t, ok)

	var visited []string
	require.NoError(t, root.Walk(func(pth string, _ *Node) error {
		visited = append(visited, pth)
		return nil
	}))
	assert.Equal(t, []string{"/", "/bin", "/lib", "/lib/node_modules", "/pkg"}, visited)
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		manifest string
		cause    *errors.Error
	}{
		{name: "syntax", manifest: `{"linkType": `, cause: status.ErrSyntax},
		{name: "link type", manifest: `{"linkType": "PORTAL"}`, cause: status.ErrLinkType},
		{name: "missing link type", manifest: `{"children": {}}`, cause: status.ErrLinkType},
		{name: "null child", manifest: `{"linkType": "HARD", "children": {"a": null}}`, cause: status.ErrLinkType},
		{name: "portal", manifest: `{"linkType": "HARD", "target": "/some/dir"}`, cause: status.ErrPortal},
		{name: "marker inside a name", manifest: `{"linkType": "HARD", "target": "/cache/pkg.zipped"}`, cause: status.ErrPortal},
		{name: "soft link without target", manifest: `{"linkType": "SOFT"}`, cause: status.ErrSoftLink},
		{name: "soft link with children", manifest: `{"linkType": "SOFT", "target": "x", "children": {"a": {"linkType": "HARD"}}}`, cause: status.ErrSoftLink},
		{name: "separator in name", manifest: `{"linkType": "HARD", "children": {"a/b": {"linkType": "HARD"}}}`, cause: status.ErrSegment},
		{name: "dot dot", manifest: `{"linkType": "HARD", "children": {"..": {"linkType": "HARD"}}}`, cause: status.ErrSegment},
		{name: "empty name", manifest: `{"linkType": "HARD", "children": {"": {"linkType": "HARD"}}}`, cause: status.ErrSegment},
		{
			name:     "deep error",
			manifest: `{"linkType": "HARD", "children": {"a": {"linkType": "HARD", "children": {"b": {"linkType": "HARD", "target": "/nope"}}}}}`,
			cause:    status.ErrPortal,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			root, err := Decode([]byte(tc.manifest))
			require.Error(t, err)
			assert.Nil(t, root)
			assert.Truef(t, errors.Is(err, status.ErrManifest), "expected a manifest error, got %v", err)
			assert.Truef(t, errors.Is(err, tc.cause), "expected %v, got %v", tc.cause, err)
		})
	}
}

func TestDeepErrorNamesPath(t *testing.T) {
	_, err := Decode([]byte(`{"linkType": "HARD", "children": {"a": {"linkType": "HARD", "children": {"b": {"linkType": "HARD", "target": "/nope"}}}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"/a/b"`)
}

func TestSplitTarget(t *testing.T) {
	for _, tc := range []struct {
		target, archive, subpath string
		ok                       bool
	}{
		{"/cache/pkg.zip", "/cache/pkg.zip", "/", true},
		{"/cache/pkg.zip/", "/cache/pkg.zip", "/", true},
		{"/cache/pkg.zip/a/b", "/cache/pkg.zip", "/a/b", true},
		{"/cache/pkg.zipper/x.zip/in", "/cache/pkg.zipper/x.zip", "/in", true},
		{"/cache/pkg.zip.d/x.zip", "/cache/pkg.zip.d/x.zip", "/", true},
		{"/cache/pkg.tar", "", "", false},
		{"", "", "", false},
	} {
		archive, subpath, ok := SplitTarget(tc.target)
		assert.Equal(t, tc.ok, ok, tc.target)
		assert.Equal(t, tc.archive, archive, tc.target)
		assert.Equal(t, tc.subpath, subpath, tc.target)
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/m/tree.json", []byte(testManifest), 0644))
	require.NoError(t, afero.WriteFile(fs, "/m/tree.yaml", []byte(`
linkType: HARD
children:
  pkg:
    linkType: HARD
    target: /cache/pkg.zip/sub
  link:
    linkType: SOFT
    target: pkg
`), 0644))

	root, err := Load(fs, "/m/tree.json")
	require.NoError(t, err)
	assert.Len(t, root.Children, 3)

	root, err = Load(fs, "/m/tree.yaml")
	require.NoError(t, err)
	pkg, ok := root.Child("pkg")
	require.True(t, ok)
	assert.Equal(t, "/sub", pkg.InnerSubpath)
	link, ok := root.Child("link")
	require.True(t, ok)
	assert.Equal(t, "pkg", link.Target)

	_, err = Load(fs, "/m/missing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRead))
}
