// Package status exports errors produced by the zipcache package.
package status

import (
	"github.com/oneconcern/zipmount/pkg/errors"
)

var (
	// ErrLoad indicates that a cached archive could not be opened or parsed.
	//
	// Parsing errors also wrap the zip format error.
	ErrLoad = errors.New("cannot load archive")

	// ErrRead indicates a failed read on an archive entry
	ErrRead = errors.New("cannot read archive entry")
)
