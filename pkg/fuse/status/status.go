// Package status exports errors produced by the fuse package.
package status

import (
	"github.com/oneconcern/zipmount/pkg/errors"
)

var (
	// ErrNilTree indicates that no virtual tree was provided to serve
	ErrNilTree = errors.New("virtual tree is nil")

	// ErrMountPoint is an error while preparing or mounting the mount point
	ErrMountPoint = errors.New("cannot mount")
)
