// Package zipfile reads the central directory of a ZIP archive and serves
// positioned reads of its entries.
//
// Only a subset of the PKZIP format is supported: entries must be stored or
// deflated, unencrypted, and the archive must not rely on ZIP64 extensions.
//
// Every structural field read from the archive is checked against the archive
// size before being trusted, so that hostile inputs are rejected with an error
// wrapping status.ErrFormat rather than causing large allocations or panics.
//
// An Archive only holds metadata. Entry data is read from the io.ReaderAt the
// caller supplies, with offset-explicit reads only: an Archive and its reader
// may be shared by concurrent goroutines.
package zipfile

import (
	"fmt"
	"os"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Method is the compression method of an entry
type Method uint16

const (
	// Store entries are not compressed
	Store Method = 0
	// Deflate entries are compressed with DEFLATE (RFC 1951)
	Deflate Method = 8
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Entry is a central directory record
type Entry struct {
	Name           string
	Method         Method
	Size           uint64 // uncompressed
	CompressedSize uint64
	CRC32          uint32
	Mode           os.FileMode // permission bits only
	Symlink        bool
	Dir            bool
	Modified       time.Time
	HeaderOffset   int64
}

// Kind of an archive node
type Kind uint8

const (
	// KindFile is a regular file entry
	KindFile Kind = iota
	// KindSymlink is a symbolic link entry
	KindSymlink
	// KindDir is a directory listing
	KindDir
)

// ID addresses a node inside an archive.
//
// For files and symlinks, Index is the entry index in the central directory.
// For directories, Index is the listing index, RootID being the archive root.
type ID struct {
	Kind  Kind
	Index uint32
}

// RootID is the listing of the archive root
var RootID = ID{Kind: KindDir, Index: 0}

// IsDir tells if this ID refers to a directory listing
func (id ID) IsDir() bool {
	return id.Kind == KindDir
}

// Child is a named member of a listing
type Child struct {
	Name string
	ID   ID
}

// Archive is the parsed central directory of a zip file.
//
// It is immutable once returned by Parse.
type Archive struct {
	size     int64
	entries  []Entry
	listings []*iradix.Tree // name -> ID
	parents  map[ID]uint32  // child -> containing listing
}

// Size of the archive file
func (a *Archive) Size() int64 {
	return a.size
}

// Len returns the number of entries in the central directory
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entry returns the i-th central directory record
func (a *Archive) Entry(i uint32) (Entry, bool) {
	if int(i) >= len(a.entries) {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Listings returns the number of directory listings, the root included
func (a *Archive) Listings() int {
	return len(a.listings)
}
