package zipfile

import (
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/zipfile/status"
)

// maxLocal bounds entry and listing indices, which are addressed as identity locals
var maxLocal uint64 = ident.MaxLocal

// builder assembles per-directory listings from the flat list of entries.
//
// Directories implied by entry paths are synthesized. When a directory and
// a file share a path, the directory wins. Later duplicate files replace
// earlier ones.
type builder struct {
	txns    []*iradix.Txn
	parents map[ID]uint32
}

func newBuilder(hint int) *builder {
	return &builder{
		txns:    []*iradix.Txn{iradix.New().Txn()},
		parents: make(map[ID]uint32, hint),
	}
}

func (b *builder) add(i uint32, e *Entry) error {
	segments, err := splitName(e.Name)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		if e.Dir {
			// an explicit entry for the archive root
			return nil
		}
		return status.Format(status.ErrUnsafePath.WrapMessage("entry %d has an empty name", i))
	}

	dirs := segments
	if !e.Dir {
		dirs = segments[:len(segments)-1]
	}

	listing := RootID.Index
	for _, name := range dirs {
		if listing, err = b.dir(listing, name); err != nil {
			return err
		}
	}
	if e.Dir {
		return nil
	}

	id := ID{Kind: KindFile, Index: i}
	if e.Symlink {
		id.Kind = KindSymlink
	}
	b.leaf(listing, segments[len(segments)-1], id)
	return nil
}

// dir returns the listing for name in the parent listing, creating it if needed
func (b *builder) dir(parent uint32, name string) (uint32, error) {
	txn := b.txns[parent]
	if v, ok := txn.Get([]byte(name)); ok {
		existing := v.(ID)
		if existing.IsDir() {
			return existing.Index, nil
		}
		delete(b.parents, existing)
	}
	if uint64(len(b.txns)) > maxLocal {
		return 0, status.Format(status.ErrBounds.WrapMessage("more than %d directories", maxLocal+1))
	}

	index := uint32(len(b.txns))
	b.txns = append(b.txns, iradix.New().Txn())
	id := ID{Kind: KindDir, Index: index}
	txn.Insert([]byte(name), id)
	b.parents[id] = parent
	return index, nil
}

func (b *builder) leaf(parent uint32, name string, id ID) {
	txn := b.txns[parent]
	if v, ok := txn.Get([]byte(name)); ok {
		existing := v.(ID)
		if existing.IsDir() {
			return
		}
		delete(b.parents, existing)
	}
	txn.Insert([]byte(name), id)
	b.parents[id] = parent
}

func (b *builder) commit() []*iradix.Tree {
	listings := make([]*iradix.Tree, len(b.txns))
	for i, txn := range b.txns {
		listings[i] = txn.Commit()
	}
	return listings
}

// splitName returns the path segments of an entry name, rejecting names
// which would escape the archive root.
func splitName(name string) ([]string, error) {
	if strings.HasPrefix(name, "/") {
		return nil, status.Format(status.ErrUnsafePath.WrapMessage("absolute entry name %q", name))
	}
	parts := strings.Split(name, "/")
	segments := parts[:0]
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return nil, status.Format(status.ErrUnsafePath.WrapMessage("entry name %q", name))
		}
		segments = append(segments, part)
	}
	return segments, nil
}

// Lookup finds the member name in a directory listing
func (a *Archive) Lookup(listing uint32, name string) (ID, bool) {
	if int(listing) >= len(a.listings) {
		return ID{}, false
	}
	v, ok := a.listings[listing].Get([]byte(name))
	if !ok {
		return ID{}, false
	}
	return v.(ID), true
}

// Children returns the members of a directory listing, in lexical order
func (a *Archive) Children(listing uint32) []Child {
	if int(listing) >= len(a.listings) {
		return nil
	}
	tree := a.listings[listing]
	children := make([]Child, 0, tree.Len())
	tree.Root().Walk(func(k []byte, v interface{}) bool {
		children = append(children, Child{Name: string(k), ID: v.(ID)})
		return false
	})
	return children
}

// Parent returns the listing containing id. The root listing has no parent.
func (a *Archive) Parent(id ID) (uint32, bool) {
	listing, ok := a.parents[id]
	return listing, ok
}

// Resolve walks subpath from the archive root.
//
// Symbolic links are not followed: a symlink in the middle of the path yields status.ErrNotDir.
func (a *Archive) Resolve(subpath string) (ID, error) {
	segments, err := splitName(strings.TrimPrefix(subpath, "/"))
	if err != nil {
		return ID{}, err
	}
	current := RootID
	for _, name := range segments {
		if !current.IsDir() {
			return ID{}, status.ErrNotDir.WrapMessage("%q in %q", name, subpath)
		}
		next, ok := a.Lookup(current.Index, name)
		if !ok {
			return ID{}, status.ErrNotFound.WrapMessage("%q in %q", name, subpath)
		}
		current = next
	}
	return current, nil
}
