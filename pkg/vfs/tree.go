package vfs

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/manifest"
	"github.com/oneconcern/zipmount/pkg/overlay"
	"github.com/oneconcern/zipmount/pkg/vfs/status"
	"github.com/oneconcern/zipmount/pkg/zipcache"
	"github.com/oneconcern/zipmount/pkg/zipfile"
)

// Option for the tree
type Option func(*Tree)

// Owner sets the uid and gid reported for all nodes. The default is the current process owner.
func Owner(uid, gid uint32) Option {
	return func(t *Tree) {
		t.uid = uid
		t.gid = gid
	}
}

// WithOverlay redirects writes on archive files to shadow files.
// Without overlay, the tree is read-only.
func WithOverlay(m *overlay.Manager) Option {
	return func(t *Tree) {
		t.overlays = m
	}
}

// Logger sets a logger for the tree
func Logger(l *zap.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.l = l
		}
	}
}

// ModTime sets the modification time reported for manifest nodes. The default is the time the tree is built.
func ModTime(mtime time.Time) Option {
	return func(t *Tree) {
		t.mtime = mtime
	}
}

// Tree of virtual nodes built from a manifest.
//
// Manifest nodes are numbered depth-first at build time: this number is the
// base of their identity and of the identity of the archive entries they mount.
// The tree is immutable once built and safe for concurrent use.
type Tree struct {
	cache    *zipcache.Cache
	overlays *overlay.Manager
	l        *zap.Logger
	uid      uint32
	gid      uint32
	mtime    time.Time

	nodes   []Node   // by base
	parents []uint32 // base -> parent base
	mounts  []*zipMount
}

// New builds the tree of nodes for a manifest. Archives are acquired from cache, but not loaded.
func New(root *manifest.Node, cache *zipcache.Cache, opts ...Option) (*Tree, error) {
	if root == nil || !root.IsDir() {
		return nil, status.ErrTypeMismatch.WrapMessage("the root of a manifest must be a directory")
	}
	if err := ident.CheckBase(uint64(root.Count() - 1)); err != nil {
		return nil, err
	}

	t := &Tree{
		cache: cache,
		l:     zap.NewNop(),
		uid:   uint32(os.Getuid()),
		gid:   uint32(os.Getgid()),
		mtime: time.Now(),
	}
	for _, apply := range opts {
		apply(t)
	}

	if _, err := t.build(root, 0); err != nil {
		t.Release()
		return nil, err
	}
	t.l.Debug("virtual tree built", zap.Int("nodes", len(t.nodes)), zap.Int("mounts", len(t.mounts)))
	return t, nil
}

func (t *Tree) build(n *manifest.Node, parent uint32) (Node, error) {
	base := uint32(len(t.nodes))
	t.nodes = append(t.nodes, nil)
	t.parents = append(t.parents, parent)

	var (
		node Node
		dir  *manifestDir
	)
	switch n.Kind {
	case manifest.SoftLink:
		node = &softLink{tree: t, base: base, target: n.Target}
	case manifest.ZipMount:
		m := &zipMount{
			manifestDir: manifestDir{tree: t, base: base},
			archive:     t.cache.Acquire(n.ArchivePath),
			subpath:     n.InnerSubpath,
		}
		t.mounts = append(t.mounts, m)
		if t.overlays != nil {
			o, err := t.overlays.For(m.archive)
			if err != nil {
				return nil, err
			}
			m.overlay = o
		}
		node, dir = m, &m.manifestDir
	default:
		d := &manifestDir{tree: t, base: base}
		node, dir = d, d
	}
	t.nodes[base] = node

	if dir != nil && len(n.Children) > 0 {
		dir.children = make([]DirEntry, 0, len(n.Children))
		for _, c := range n.Children {
			child, err := t.build(c.Node, base)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, DirEntry{Name: c.Name, Node: child})
		}
	}
	return node, nil
}

// Root node
func (t *Tree) Root() Node {
	return t.nodes[0]
}

// Len returns the number of manifest nodes
func (t *Tree) Len() int {
	return len(t.nodes)
}

// ReadOnly tells if writes are rejected
func (t *Tree) ReadOnly() bool {
	return t.overlays == nil
}

// Release the archives acquired by this tree
func (t *Tree) Release() {
	for _, m := range t.mounts {
		m.archive.Release()
	}
	t.mounts = nil
}

// Lookup walks a slash-separated path from the root. Symbolic links are not followed.
func (t *Tree) Lookup(pth string) (Node, error) {
	node := t.Root()
	for _, name := range strings.Split(pth, "/") {
		switch name {
		case "", ".":
			continue
		case "..":
			attrs, err := node.Attributes()
			if err != nil {
				return nil, err
			}
			if attrs.Parent == ident.ParentOfRoot {
				continue
			}
			if node, err = t.Node(attrs.Parent); err != nil {
				return nil, err
			}
		default:
			next, err := node.Child(name)
			if err != nil {
				return nil, err
			}
			node = next
		}
	}
	return node, nil
}

// Node resolves an identity back to its node
func (t *Tree) Node(id ident.ID) (Node, error) {
	switch id {
	case ident.Root:
		return t.Root(), nil
	case ident.Invalid, ident.ParentOfRoot:
		return nil, status.ErrNotFound.WrapMessage("reserved identity %v", id)
	}

	base, tag, local := ident.Decode(id)
	if int(base) >= len(t.nodes) {
		return nil, status.ErrNotFound.WrapMessage("identity %v", id)
	}
	if tag == ident.Manifest {
		if base == 0 || local != 0 {
			return nil, status.ErrNotFound.WrapMessage("identity %v", id)
		}
		return t.nodes[base], nil
	}

	m, ok := t.nodes[base].(*zipMount)
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("identity %v: not a zip mount", id)
	}
	return m.entry(zipfile.ID{Kind: kindOf(tag), Index: local})
}

// Parent resolves the identity of the directory holding the node with identity id.
//
// Nodes are not stat'ed: archive entries only need the archive listings.
func (t *Tree) Parent(id ident.ID) (ident.ID, error) {
	switch id {
	case ident.Root:
		return ident.ParentOfRoot, nil
	case ident.Invalid, ident.ParentOfRoot:
		return ident.Invalid, status.ErrNotFound.WrapMessage("reserved identity %v", id)
	}

	base, tag, local := ident.Decode(id)
	if int(base) >= len(t.nodes) {
		return ident.Invalid, status.ErrNotFound.WrapMessage("identity %v", id)
	}
	if tag == ident.Manifest {
		if base == 0 || local != 0 {
			return ident.Invalid, status.ErrNotFound.WrapMessage("identity %v", id)
		}
		return t.parentID(base), nil
	}

	m, ok := t.nodes[base].(*zipMount)
	if !ok {
		return ident.Invalid, status.ErrNotFound.WrapMessage("identity %v: not a zip mount", id)
	}
	node, err := m.entry(zipfile.ID{Kind: kindOf(tag), Index: local})
	if err != nil {
		return ident.Invalid, err
	}
	z, _, err := m.resolve()
	if err != nil {
		return ident.Invalid, err
	}
	return node.(*zipEntry).parent(z), nil
}

func (t *Tree) manifestID(base uint32) ident.ID {
	if base == 0 {
		return ident.Root
	}
	return ident.Encode(base, ident.Manifest, 0)
}

func (t *Tree) parentID(base uint32) ident.ID {
	if base == 0 {
		return ident.ParentOfRoot
	}
	return t.manifestID(t.parents[base])
}

func tagOf(k zipfile.Kind) ident.Tag {
	switch k {
	case zipfile.KindSymlink:
		return ident.Symlink
	case zipfile.KindDir:
		return ident.Dir
	default:
		return ident.File
	}
}

func kindOf(tag ident.Tag) zipfile.Kind {
	switch tag {
	case ident.Symlink:
		return zipfile.KindSymlink
	case ident.Dir:
		return zipfile.KindDir
	default:
		return zipfile.KindFile
	}
}

func mismatch(op string, id ident.ID) error {
	return status.ErrTypeMismatch.WrapMessage("%s on node %v", op, id)
}
