// Package ident packs the identity of a virtual node into a single 64-bit value.
//
// An identity is the tuple (base, tag, local):
//
//	 63          33 32 31 30           0
//	+--------------+-----+--------------+
//	|  base (31)   | tag |  local (31)  |
//	+--------------+-----+--------------+
//
// base identifies the owning manifest node (numbered at tree-build time),
// tag selects the kind of node and local is the archive-internal entry or
// listing index (unused for manifest nodes).
//
// Encoding and decoding are pure and O(1): the kind of a node and its owning
// manifest node are recovered from the identity alone, without any lookup table.
package ident

import "fmt"

// ID is the 64-bit identity of a virtual node, stable for the life of a mount.
type ID uint64

// Tag selects the variant of node an ID refers to.
type Tag uint8

const (
	// Manifest is a node declared by the manifest (directory, zip mount or soft link)
	Manifest Tag = iota
	// File is a regular file inside an archive
	File
	// Symlink is a symbolic link inside an archive
	Symlink
	// Dir is a directory listing inside an archive
	Dir
)

const (
	localBits = 31
	tagBits   = 2
	baseBits  = 31

	tagShift  = localBits
	baseShift = localBits + tagBits

	// MaxBase is the largest manifest node number that can be encoded
	MaxBase = 1<<baseBits - 1
	// MaxLocal is the largest archive-local index that can be encoded
	MaxLocal = 1<<localBits - 1
	// MaxTag is the largest tag value
	MaxTag = 1<<tagBits - 1
)

// Reserved identities
const (
	Invalid      ID = 0
	ParentOfRoot ID = 1
	Root         ID = 2
)

func (t Tag) String() string {
	switch t {
	case Manifest:
		return "manifest"
	case File:
		return "file"
	case Symlink:
		return "symlink"
	case Dir:
		return "dir"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// OverflowError reports a field that does not fit its bit width.
//
// Encode panics with an *OverflowError: it means the tree or an archive
// exceeds the scale supported by the addressing scheme.
type OverflowError struct {
	Field string
	Value uint64
	Max   uint64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("identity overflow: %s %d exceeds %d", e.Field, e.Value, e.Max)
}

// CheckBase returns an *OverflowError when base cannot be encoded.
func CheckBase(base uint64) error {
	if base > MaxBase {
		return &OverflowError{Field: "base", Value: base, Max: MaxBase}
	}
	return nil
}

// CheckLocal returns an *OverflowError when local cannot be encoded.
func CheckLocal(local uint64) error {
	if local > MaxLocal {
		return &OverflowError{Field: "local", Value: local, Max: MaxLocal}
	}
	return nil
}

// Encode packs (base, tag, local) into an ID. It panics when a field overflows.
func Encode(base uint32, tag Tag, local uint32) ID {
	if err := CheckBase(uint64(base)); err != nil {
		panic(err)
	}
	if uint64(tag) > MaxTag {
		panic(&OverflowError{Field: "tag", Value: uint64(tag), Max: MaxTag})
	}
	if err := CheckLocal(uint64(local)); err != nil {
		panic(err)
	}
	return ID(uint64(base)<<baseShift | uint64(tag)<<tagShift | uint64(local))
}

// Decode is the exact inverse of Encode.
func Decode(id ID) (base uint32, tag Tag, local uint32) {
	v := uint64(id)
	base = uint32(v >> baseShift)
	tag = Tag(v >> tagShift & MaxTag)
	local = uint32(v & MaxLocal)
	return
}

// Base returns the manifest node number of id.
func (id ID) Base() uint32 {
	b, _, _ := Decode(id)
	return b
}

// Tag returns the variant of id.
func (id ID) Tag() Tag {
	_, t, _ := Decode(id)
	return t
}

// Local returns the archive-local index of id.
func (id ID) Local() uint32 {
	_, _, l := Decode(id)
	return l
}

// IsReserved tells if id is one of the reserved identities.
func (id ID) IsReserved() bool {
	return id <= Root
}

func (id ID) String() string {
	switch id {
	case Invalid:
		return "invalid"
	case ParentOfRoot:
		return "parent-of-root"
	case Root:
		return "root"
	}
	b, t, l := Decode(id)
	return fmt.Sprintf("%d/%s/%d", b, t, l)
}
