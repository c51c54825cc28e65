// Package readdir lists virtual directories in pages.
//
// A listing starts with "." and "..", followed by the children of the directory
// in the order of vfs.Node.Children. Every entry carries the cookie to resume
// the listing right after it:
//
//	"."        0 -> 1
//	".."       1 -> 2
//	child i    i+2 -> i+3
//
// Trees are immutable once mounted: the verifier is constant.
package readdir

import (
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/vfs"
	"github.com/oneconcern/zipmount/pkg/vfs/status"
)

// Verifier returned with every listing
const Verifier uint64 = 0

const (
	dotCookie    uint64 = 0
	dotDotCookie uint64 = 1
	firstChild   uint64 = 2
)

// Entry of a directory listing
type Entry struct {
	Name       string
	ID         ident.ID
	Kind       vfs.Kind
	NextCookie uint64

	// Attributes are nil unless requested
	Attributes *vfs.Attributes
}

// Result of a listing call
type Result struct {
	// Cookie to resume from: the next cookie of the last accepted entry
	Cookie   uint64
	Verifier uint64

	// EOF is true when the last child was accepted
	EOF bool
}

// Option for the engine
type Option func(*Engine)

// Logger sets a logger for the engine
func Logger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

// Engine lists the directories of a tree
type Engine struct {
	tree *vfs.Tree
	l    *zap.Logger
}

// New engine for a tree
func New(tree *vfs.Tree, opts ...Option) *Engine {
	e := &Engine{
		tree: tree,
		l:    zap.NewNop(),
	}
	for _, apply := range opts {
		apply(e)
	}
	return e
}

// List emits the entries of dir starting at cookie, until consume returns false or the listing is exhausted.
//
// An entry rejected by consume is not accounted for: the returned cookie allows to resume with this entry.
// Attributes are computed only when wantAttrs is set.
func (e *Engine) List(dir vfs.Node, cookie uint64, wantAttrs bool, consume func(Entry) bool) (Result, error) {
	result := Result{Cookie: cookie, Verifier: Verifier}
	if dir.Kind() != vfs.KindDir {
		return result, status.ErrTypeMismatch.WrapMessage("list on node %v", dir.ID())
	}

	if cookie <= dotCookie {
		entry, err := e.entry(".", dir, dir.ID(), dotCookie+1, wantAttrs)
		if err != nil {
			return result, err
		}
		if !consume(entry) {
			return result, nil
		}
		result.Cookie = entry.NextCookie
	}

	if cookie <= dotDotCookie {
		entry, err := e.dotDot(dir, wantAttrs)
		if err != nil {
			return result, err
		}
		if !consume(entry) {
			return result, nil
		}
		result.Cookie = entry.NextCookie
	}

	children, err := dir.Children()
	if err != nil {
		return result, err
	}

	start := uint64(0)
	if cookie > firstChild {
		start = cookie - firstChild
	}
	for i := start; i < uint64(len(children)); i++ {
		child := children[i]
		entry, err := e.entry(child.Name, child.Node, child.Node.ID(), i+firstChild+1, wantAttrs)
		if err != nil {
			return result, err
		}
		if !consume(entry) {
			e.l.Debug("listing paused", zap.Stringer("dir", dir.ID()), zap.Uint64("cookie", result.Cookie))
			return result, nil
		}
		result.Cookie = entry.NextCookie
	}
	result.EOF = true
	return result, nil
}

// dotDot is the parent of dir. The root is its own parent, with a reserved identity.
func (e *Engine) dotDot(dir vfs.Node, wantAttrs bool) (Entry, error) {
	if dir.ID() == ident.Root {
		return e.entry("..", dir, ident.ParentOfRoot, dotDotCookie+1, wantAttrs)
	}

	parentID, err := e.tree.Parent(dir.ID())
	if err != nil {
		return Entry{}, err
	}
	if !wantAttrs {
		// parents are directories
		return Entry{Name: "..", ID: parentID, Kind: vfs.KindDir, NextCookie: dotDotCookie + 1}, nil
	}
	parent, err := e.tree.Node(parentID)
	if err != nil {
		return Entry{}, err
	}
	return e.entry("..", parent, parentID, dotDotCookie+1, wantAttrs)
}

func (e *Engine) entry(name string, node vfs.Node, id ident.ID, next uint64, wantAttrs bool) (Entry, error) {
	entry := Entry{
		Name:       name,
		ID:         id,
		Kind:       node.Kind(),
		NextCookie: next,
	}
	if !wantAttrs {
		return entry, nil
	}
	attrs, err := node.Attributes()
	if err != nil {
		return Entry{}, err
	}
	attrs.ID = id
	entry.Attributes = &attrs
	return entry, nil
}
