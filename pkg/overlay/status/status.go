// Package status exports errors produced by the overlay package.
package status

import (
	"github.com/oneconcern/zipmount/pkg/errors"
)

var (
	// ErrShadow indicates a failure to create, read or write a shadow file
	ErrShadow = errors.New("shadow file error")

	// ErrSource indicates a failure to read the original content of an entry
	ErrSource = errors.New("cannot read original entry")
)
