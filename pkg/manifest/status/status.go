// Package status exports errors produced by the manifest package.
package status

import (
	"github.com/oneconcern/zipmount/pkg/errors"
)

var (
	// ErrManifest is the parent of every error raised on an invalid manifest
	ErrManifest = errors.New("invalid manifest")

	// ErrSyntax indicates a manifest which cannot be decoded
	ErrSyntax = errors.New("cannot decode manifest")

	// ErrLinkType indicates a node with a missing or unknown linkType
	ErrLinkType = errors.New("unknown link type")

	// ErrSegment indicates an illegal child name
	ErrSegment = errors.New("illegal path segment")

	// ErrPortal indicates a hard link target which is not an archive
	ErrPortal = errors.New("hard link target is not a zip archive")

	// ErrSoftLink indicates a soft link without target, or with children
	ErrSoftLink = errors.New("invalid soft link")

	// ErrRead wraps I/O errors met while reading a manifest file
	ErrRead = errors.New("cannot read manifest")

	// ErrTooLarge indicates a manifest with more nodes than can be addressed
	ErrTooLarge = errors.New("too many manifest nodes")
)

// Manifest wraps some specific cause as a manifest error
func Manifest(cause *errors.Error) *errors.Error {
	return ErrManifest.Wrap(cause)
}
