package vfs

import (
	"sync"

	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/overlay"
	"github.com/oneconcern/zipmount/pkg/vfs/status"
	"github.com/oneconcern/zipmount/pkg/zipcache"
	"github.com/oneconcern/zipmount/pkg/zipfile"
)

// zipMount is a manifest directory which also lists the content of an archive.
//
// The archive subpath is resolved on first use, after the archive is loaded.
type zipMount struct {
	manifestDir
	archive *zipcache.Archive
	overlay *overlay.Overlay // nil when read-only
	subpath string

	once    sync.Once
	root    uint32
	rootErr error
}

func (m *zipMount) resolve() (*zipfile.Archive, uint32, error) {
	z, err := m.archive.Get()
	if err != nil {
		return nil, 0, err
	}
	m.once.Do(func() {
		id, err := z.Resolve(m.subpath)
		switch {
		case err != nil:
			m.rootErr = status.ErrMount.WrapMessage("%q in %q", m.subpath, m.archive.Path()).Wrap(err)
		case !id.IsDir():
			m.rootErr = status.ErrMount.WrapMessage("%q in %q is not a directory", m.subpath, m.archive.Path())
		default:
			m.root = id.Index
		}
	})
	return z, m.root, m.rootErr
}

func (m *zipMount) Children() ([]DirEntry, error) {
	z, root, err := m.resolve()
	if err != nil {
		return nil, err
	}
	archived := z.Children(root)
	children := make([]DirEntry, 0, len(m.children)+len(archived))
	children = append(children, m.children...)
	for _, c := range archived {
		if _, shadowed := m.staticChild(c.Name); shadowed {
			continue
		}
		children = append(children, DirEntry{Name: c.Name, Node: m.node(c.ID)})
	}
	return children, nil
}

func (m *zipMount) Child(name string) (Node, error) {
	if child, ok := m.staticChild(name); ok {
		return child, nil
	}
	z, root, err := m.resolve()
	if err != nil {
		return nil, err
	}
	id, ok := z.Lookup(root, name)
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("%q", name)
	}
	return m.node(id), nil
}

func (m *zipMount) node(id zipfile.ID) *zipEntry {
	return &zipEntry{mount: m, id: id}
}

// entry validates an archive node address decoded from an identity
func (m *zipMount) entry(id zipfile.ID) (Node, error) {
	z, _, err := m.resolve()
	if err != nil {
		return nil, err
	}
	if id.IsDir() {
		if int(id.Index) >= z.Listings() {
			return nil, status.ErrNotFound.WrapMessage("no listing %d in %q", id.Index, m.archive.Path())
		}
		return m.node(id), nil
	}
	e, ok := z.Entry(id.Index)
	if !ok || e.Dir || e.Symlink != (id.Kind == zipfile.KindSymlink) {
		return nil, status.ErrNotFound.WrapMessage("no %v entry %d in %q", tagOf(id.Kind), id.Index, m.archive.Path())
	}
	return m.node(id), nil
}

// zipEntry is a directory, file or symbolic link inside an archive
type zipEntry struct {
	mount *zipMount
	id    zipfile.ID
}

func (e *zipEntry) ID() ident.ID {
	return ident.Encode(e.mount.base, tagOf(e.id.Kind), e.id.Index)
}

func (e *zipEntry) Kind() Kind {
	switch e.id.Kind {
	case zipfile.KindDir:
		return KindDir
	case zipfile.KindSymlink:
		return KindSymlink
	default:
		return KindFile
	}
}

func (e *zipEntry) parent(z *zipfile.Archive) ident.ID {
	listing, ok := z.Parent(e.id)
	if !ok || listing == e.mount.root {
		return e.mount.ID()
	}
	return ident.Encode(e.mount.base, ident.Dir, listing)
}

func (e *zipEntry) Children() ([]DirEntry, error) {
	if e.id.Kind != zipfile.KindDir {
		return nil, mismatch("list", e.ID())
	}
	z, err := e.mount.archive.Get()
	if err != nil {
		return nil, err
	}
	archived := z.Children(e.id.Index)
	children := make([]DirEntry, 0, len(archived))
	for _, c := range archived {
		children = append(children, DirEntry{Name: c.Name, Node: e.mount.node(c.ID)})
	}
	return children, nil
}

func (e *zipEntry) Child(name string) (Node, error) {
	if e.id.Kind != zipfile.KindDir {
		return nil, mismatch("lookup", e.ID())
	}
	z, err := e.mount.archive.Get()
	if err != nil {
		return nil, err
	}
	id, ok := z.Lookup(e.id.Index, name)
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("%q", name)
	}
	return e.mount.node(id), nil
}

func (e *zipEntry) Attributes() (Attributes, error) {
	z, _, err := e.mount.resolve()
	if err != nil {
		return Attributes{}, err
	}
	t := e.mount.tree
	attrs := Attributes{
		Uid:    t.uid,
		Gid:    t.gid,
		Mtime:  t.mtime,
		ID:     e.ID(),
		Parent: e.parent(z),
	}

	attrs.Kind = e.Kind()
	if attrs.Kind == KindDir {
		attrs.Mode = dirMode
		attrs.Nlink = 2
		return attrs, nil
	}

	entry, ok := z.Entry(e.id.Index)
	if !ok {
		return Attributes{}, status.ErrNotFound.WrapMessage("no entry %d in %q", e.id.Index, e.mount.archive.Path())
	}
	if !entry.Modified.IsZero() {
		attrs.Mtime = entry.Modified
	}
	attrs.Nlink = 1
	if refs := e.mount.archive.Refs(); refs > 1 {
		attrs.Nlink = uint32(refs)
	}

	if attrs.Kind == KindSymlink {
		attrs.Mode = symlinkMode
		attrs.Size = entry.Size
		attrs.AllocSize = entry.CompressedSize
		return attrs, nil
	}

	attrs.Mode = entry.Mode.Perm()
	attrs.Size = entry.Size
	attrs.AllocSize = entry.CompressedSize
	if o := e.mount.overlay; o != nil && o.Detached(e.id.Index) {
		stat, err := o.StatEntry(e.id.Index)
		if err != nil {
			return Attributes{}, err
		}
		attrs.Size = stat.Size
		attrs.AllocSize = stat.Size
		attrs.Mtime = stat.ModTime
	}
	return attrs, nil
}

func (e *zipEntry) ReadAt(p []byte, off int64) (int, error) {
	if e.id.Kind != zipfile.KindFile {
		return 0, mismatch("read", e.ID())
	}
	if o := e.mount.overlay; o != nil {
		return o.ReadData(e.id.Index, p, off)
	}
	return e.mount.archive.ReadAt(e.id.Index, p, off)
}

func (e *zipEntry) WriteAt(p []byte, off int64) (int, error) {
	if e.id.Kind != zipfile.KindFile {
		return 0, mismatch("write", e.ID())
	}
	o := e.mount.overlay
	if o == nil {
		return 0, status.ErrReadOnly.WrapMessage("write on node %v", e.ID())
	}
	return o.WriteData(e.id.Index, p, off)
}

// Truncate sets the size of an archive file, detaching it to its shadow file
func (e *zipEntry) Truncate(size uint64) error {
	if e.id.Kind != zipfile.KindFile {
		return mismatch("truncate", e.ID())
	}
	o := e.mount.overlay
	if o == nil {
		return status.ErrReadOnly.WrapMessage("truncate on node %v", e.ID())
	}
	return o.Truncate(e.id.Index, int64(size))
}

func (e *zipEntry) ReadLink() (string, error) {
	if e.id.Kind != zipfile.KindSymlink {
		return "", mismatch("readlink", e.ID())
	}
	return e.mount.archive.ReadLink(e.id.Index)
}
