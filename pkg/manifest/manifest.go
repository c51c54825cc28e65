// Package manifest decodes the document describing a virtual tree.
//
// A manifest is a JSON tree of nodes:
//
//	{"linkType": "SOFT", "target": "../some/path"}
//	{"linkType": "HARD", "target": "/cache/pkg.zip/sub", "children": {...}}
//	{"linkType": "HARD", "children": {...}}
//
// A HARD node with a target mounts the zip archive designated by the target.
// A HARD node without target is a plain directory. Comments are tolerated.
//
// Decoding validates the whole document before returning: a manifest is
// either entirely valid or rejected.
package manifest

import (
	"path"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/jsonc"

	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/manifest/status"
)

const (
	// LinkSoft declares a symbolic link
	LinkSoft = "SOFT"
	// LinkHard declares a directory, possibly backed by an archive
	LinkHard = "HARD"

	// ArchiveMarker terminates the archive part of a hard link target
	ArchiveMarker = ".zip"
)

// Kind of manifest node
type Kind uint8

const (
	// Dir is a plain directory with static children only
	Dir Kind = iota
	// ZipMount is a directory whose content is spliced from an archive
	ZipMount
	// SoftLink is a symbolic link
	SoftLink
)

func (k Kind) String() string {
	switch k {
	case Dir:
		return "dir"
	case ZipMount:
		return "zip"
	case SoftLink:
		return "link"
	default:
		return "unknown"
	}
}

// Node of a manifest tree. Nodes are immutable once decoded.
type Node struct {
	Kind Kind

	// Target of a soft link
	Target string

	// ArchivePath and InnerSubpath locate the content of a zip mount
	ArchivePath  string
	InnerSubpath string

	// Children sorted by name
	Children []Child
}

// Child is a named child node
type Child struct {
	Name string
	Node *Node
}

// Child looks up a child by name
func (n *Node) Child(name string) (*Node, bool) {
	i := sort.Search(len(n.Children), func(i int) bool { return n.Children[i].Name >= name })
	if i < len(n.Children) && n.Children[i].Name == name {
		return n.Children[i].Node, true
	}
	return nil, false
}

// IsDir tells if this node is a directory, backed by an archive or not
func (n *Node) IsDir() bool {
	return n.Kind != SoftLink
}

// Count the nodes in this tree
func (n *Node) Count() int {
	count := 1
	for _, c := range n.Children {
		count += c.Node.Count()
	}
	return count
}

// Walk visits the tree depth-first, children in name order. The root has path "/".
func (n *Node) Walk(fn func(pth string, node *Node) error) error {
	return n.walk("/", fn)
}

func (n *Node) walk(pth string, fn func(string, *Node) error) error {
	if err := fn(pth, n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Node.walk(path.Join(pth, c.Name), fn); err != nil {
			return err
		}
	}
	return nil
}

// document is the wire format of a node
type document struct {
	LinkType string               `json:"linkType"`
	Target   *string              `json:"target,omitempty"`
	Children map[string]*document `json:"children,omitempty"`
}

// Decode a JSON manifest. Comments and trailing commas are tolerated.
func Decode(data []byte) (*Node, error) {
	var doc document
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, status.Manifest(status.ErrSyntax.Wrap(err))
	}

	d := decoder{}
	root, err := d.node("/", &doc)
	if err != nil {
		return nil, err
	}
	return root, nil
}

type decoder struct {
	count uint64
}

func (d *decoder) node(pth string, doc *document) (*Node, error) {
	if doc == nil {
		return nil, status.Manifest(status.ErrLinkType.WrapMessage("null node at %q", pth))
	}

	// node 0 is the root, all others must fit the identity base
	if err := ident.CheckBase(d.count); err != nil {
		return nil, status.Manifest(status.ErrTooLarge.Wrap(err))
	}
	d.count++

	switch doc.LinkType {
	case LinkSoft:
		if doc.Target == nil || *doc.Target == "" {
			return nil, status.Manifest(status.ErrSoftLink.WrapMessage("no target at %q", pth))
		}
		if len(doc.Children) > 0 {
			return nil, status.Manifest(status.ErrSoftLink.WrapMessage("children declared at %q", pth))
		}
		return &Node{Kind: SoftLink, Target: *doc.Target}, nil

	case LinkHard:
		n := &Node{Kind: Dir}
		if doc.Target != nil {
			archive, subpath, ok := SplitTarget(*doc.Target)
			if !ok {
				return nil, status.Manifest(status.ErrPortal.WrapMessage("target %q at %q", *doc.Target, pth))
			}
			n.Kind = ZipMount
			n.ArchivePath = archive
			n.InnerSubpath = subpath
		}
		children, err := d.children(pth, doc.Children)
		if err != nil {
			return nil, err
		}
		n.Children = children
		return n, nil

	default:
		return nil, status.Manifest(status.ErrLinkType.WrapMessage("%q at %q", doc.LinkType, pth))
	}
}

func (d *decoder) children(pth string, docs map[string]*document) ([]Child, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(docs))
	for name := range docs {
		if err := ValidSegment(name); err != nil {
			return nil, status.Manifest(status.ErrSegment.WrapMessage("%q at %q", name, pth))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]Child, 0, len(names))
	for _, name := range names {
		child, err := d.node(path.Join(pth, name), docs[name])
		if err != nil {
			return nil, err
		}
		children = append(children, Child{Name: name, Node: child})
	}
	return children, nil
}

// ValidSegment checks that name may be used as a child name
func ValidSegment(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return status.ErrSegment.WrapMessage("%q", name)
	case strings.ContainsAny(name, "/\x00"):
		return status.ErrSegment.WrapMessage("%q", name)
	}
	return nil
}

// SplitTarget splits a hard link target into an archive path and the subpath inside the archive.
//
// The archive path ends with the first ".zip" marker followed by the end of the
// target or by a "/". The subpath defaults to "/".
func SplitTarget(target string) (archive, subpath string, ok bool) {
	for start := 0; ; {
		i := strings.Index(target[start:], ArchiveMarker)
		if i < 0 {
			return "", "", false
		}
		end := start + i + len(ArchiveMarker)
		if end == len(target) || target[end] == '/' {
			subpath = target[end:]
			if subpath == "" {
				subpath = "/"
			}
			return target[:end], subpath, true
		}
		start = end
	}
}
