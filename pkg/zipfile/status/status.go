// Package status exports errors produced by the zipfile package.
package status

import (
	"github.com/oneconcern/zipmount/pkg/errors"
)

var (
	// ErrFormat is the parent of every error raised on a malformed or unsupported archive
	ErrFormat = errors.New("invalid zip archive")

	// ErrNoEOCD indicates that no end of central directory record could be located
	ErrNoEOCD = errors.New("end of central directory not found")

	// ErrZip64 indicates an archive relying on ZIP64 extensions
	ErrZip64 = errors.New("zip64 archives are not supported")

	// ErrEncrypted indicates an encrypted entry
	ErrEncrypted = errors.New("encrypted entries are not supported")

	// ErrMethod indicates a compression method other than store or deflate
	ErrMethod = errors.New("unsupported compression method")

	// ErrBounds indicates inconsistent sizes or offsets in the archive trailer or central directory
	ErrBounds = errors.New("inconsistent central directory bounds")

	// ErrBomb indicates that declared compressed sizes exceed the archive size
	ErrBomb = errors.New("compressed sizes exceed archive size")

	// ErrTruncatedHeader indicates a missing or truncated local file header
	ErrTruncatedHeader = errors.New("truncated local file header")

	// ErrChecksum indicates that inflated content does not match its declared size or CRC
	ErrChecksum = errors.New("entry checksum mismatch")

	// ErrUnsafePath indicates an entry name escaping the archive root
	ErrUnsafePath = errors.New("unsafe entry path")

	// ErrRead wraps I/O errors met while reading the archive file
	ErrRead = errors.New("cannot read archive")

	// ErrNotFound indicates a path that does not exist in the archive
	ErrNotFound = errors.New("no such entry in archive")

	// ErrNotDir indicates a path traversing an archive entry which is not a directory
	ErrNotDir = errors.New("not a directory in archive")
)

// Format wraps some specific cause as an archive format error
func Format(cause *errors.Error) *errors.Error {
	return ErrFormat.Wrap(cause)
}
