// Package vfs builds a virtual tree of nodes from a manifest, splicing the
// content of zip archives at mount points.
//
// There are four kinds of nodes, all exposed through the Node interface:
//   - directories declared by the manifest
//   - zip mounts: manifest directories which also list the content of an archive
//     at some subpath. Manifest children win name collisions.
//   - archive entries: directories, files and symbolic links found in archives
//   - soft links declared by the manifest
//
// Nodes are identified by an ident.ID, from which they may be resolved again
// with Tree.Node. Nodes do not point to their parent: parents are derived from
// identities.
package vfs

import (
	"os"
	"time"

	"github.com/oneconcern/zipmount/pkg/ident"
)

// Kind of node
type Kind uint8

const (
	// KindDir is a directory
	KindDir Kind = iota
	// KindFile is a regular file
	KindFile
	// KindSymlink is a symbolic link
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

const (
	dirMode     os.FileMode = os.ModeDir | 0755
	symlinkMode os.FileMode = os.ModeSymlink | 0777
)

// Attributes of a node
type Attributes struct {
	Kind      Kind
	Mode      os.FileMode // with type bits
	Size      uint64
	AllocSize uint64
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Mtime     time.Time
	ID        ident.ID
	Parent    ident.ID
}

// DirEntry is a named child of a directory
type DirEntry struct {
	Name string
	Node Node
}

// Node is the uniform set of capabilities of a virtual node.
//
// Operations which make no sense for a kind of node return an error
// wrapping status.ErrTypeMismatch.
type Node interface {
	ID() ident.ID

	// Kind is known without loading any archive
	Kind() Kind

	// Children in a stable order. Directories only.
	Children() ([]DirEntry, error)

	// Child looks up a child by name. Directories only.
	Child(name string) (Node, error)

	Attributes() (Attributes, error)

	// ReadAt reads file content, with io.ReaderAt semantics. Files only.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes to a shadow copy of the file. Archive files only.
	WriteAt(p []byte, off int64) (int, error)

	// ReadLink returns the target of a symbolic link.
	ReadLink() (string, error)
}

// Truncater is implemented by nodes whose size may be changed
type Truncater interface {
	Truncate(size uint64) error
}
