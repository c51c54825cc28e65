package vfs

import (
	"sort"

	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/vfs/status"
)

// manifestDir is a directory declared by the manifest
type manifestDir struct {
	tree     *Tree
	base     uint32
	children []DirEntry // sorted by name
}

func (d *manifestDir) ID() ident.ID {
	return d.tree.manifestID(d.base)
}

func (d *manifestDir) Kind() Kind {
	return KindDir
}

func (d *manifestDir) Children() ([]DirEntry, error) {
	return d.children, nil
}

func (d *manifestDir) staticChild(name string) (Node, bool) {
	i := sort.Search(len(d.children), func(i int) bool { return d.children[i].Name >= name })
	if i < len(d.children) && d.children[i].Name == name {
		return d.children[i].Node, true
	}
	return nil, false
}

func (d *manifestDir) Child(name string) (Node, error) {
	if child, ok := d.staticChild(name); ok {
		return child, nil
	}
	return nil, status.ErrNotFound.WrapMessage("%q", name)
}

func (d *manifestDir) Attributes() (Attributes, error) {
	return Attributes{
		Kind:   KindDir,
		Mode:   dirMode,
		Nlink:  2,
		Uid:    d.tree.uid,
		Gid:    d.tree.gid,
		Mtime:  d.tree.mtime,
		ID:     d.ID(),
		Parent: d.tree.parentID(d.base),
	}, nil
}

func (d *manifestDir) ReadAt([]byte, int64) (int, error) {
	return 0, mismatch("read", d.ID())
}

func (d *manifestDir) WriteAt([]byte, int64) (int, error) {
	return 0, mismatch("write", d.ID())
}

func (d *manifestDir) ReadLink() (string, error) {
	return "", mismatch("readlink", d.ID())
}

// softLink is a symbolic link declared by the manifest
type softLink struct {
	tree   *Tree
	base   uint32
	target string
}

func (s *softLink) ID() ident.ID {
	return s.tree.manifestID(s.base)
}

func (s *softLink) Kind() Kind {
	return KindSymlink
}

func (s *softLink) Children() ([]DirEntry, error) {
	return nil, mismatch("list", s.ID())
}

func (s *softLink) Child(string) (Node, error) {
	return nil, mismatch("lookup", s.ID())
}

func (s *softLink) Attributes() (Attributes, error) {
	return Attributes{
		Kind:   KindSymlink,
		Mode:   symlinkMode,
		Size:   uint64(len(s.target)),
		Nlink:  1,
		Uid:    s.tree.uid,
		Gid:    s.tree.gid,
		Mtime:  s.tree.mtime,
		ID:     s.ID(),
		Parent: s.tree.parentID(s.base),
	}, nil
}

func (s *softLink) ReadAt([]byte, int64) (int, error) {
	return 0, mismatch("read", s.ID())
}

func (s *softLink) WriteAt([]byte, int64) (int, error) {
	return 0, mismatch("write", s.ID())
}

func (s *softLink) ReadLink() (string, error) {
	return s.target, nil
}
