// Package status exports errors produced by the vfs package.
package status

import (
	"github.com/oneconcern/zipmount/pkg/errors"
)

var (
	// ErrNotFound indicates a missing child, path or node identity
	ErrNotFound = errors.New("no such node")

	// ErrTypeMismatch indicates an operation which is not supported by this kind of node,
	// e.g. reading a directory or listing the children of a file
	ErrTypeMismatch = errors.New("operation not supported by node")

	// ErrReadOnly indicates a write on a tree mounted without overlay
	ErrReadOnly = errors.New("read-only tree")

	// ErrMount indicates an archive subpath which cannot be mounted
	ErrMount = errors.New("cannot mount archive subpath")
)
