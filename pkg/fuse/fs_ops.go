package fuse

import (
	"context"
	"io"
	"syscall"

	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/oneconcern/zipmount/pkg/readdir"
	"github.com/oneconcern/zipmount/pkg/vfs"
)

func (fs *fsInternal) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	op.Inodes = uint64(fs.tree.Len())
	return nil
}

func (fs *fsInternal) GetXattr(
	ctx context.Context,
	op *fuseops.GetXattrOp) error {
	// extended attributes are ignored
	return jfuse.ENOATTR
}

func (fs *fsInternal) ListXattr(
	ctx context.Context,
	op *fuseops.ListXattrOp) error {
	return nil
}

func (fs *fsInternal) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	parent, err := fs.node(op.Parent)
	if err != nil {
		return err
	}
	if parent.Kind() != vfs.KindDir {
		return jfuse.ENOTDIR
	}

	child, err := parent.Child(op.Name)
	if err != nil {
		return errno(err)
	}
	attrs, err := fs.attributes(child)
	if err != nil {
		return err
	}

	op.Entry.Child = toInode(child.ID())
	op.Entry.Generation = 1
	op.Entry.Attributes = attrs
	op.Entry.AttributesExpiration = fs.expiration()
	op.Entry.EntryExpiration = fs.expiration()
	return nil
}

func (fs *fsInternal) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	op.Attributes, err = fs.attributes(node)
	if err != nil {
		return err
	}
	op.AttributesExpiration = fs.expiration()
	return nil
}

// SetInodeAttributes supports truncation only. Other changes are ignored.
func (fs *fsInternal) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if fs.readOnly {
		return syscall.EROFS
	}
	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}

	if op.Size != nil {
		truncater, ok := node.(vfs.Truncater)
		if !ok || node.Kind() != vfs.KindFile {
			return jfuse.EINVAL
		}
		if err = truncater.Truncate(*op.Size); err != nil {
			return errno(err)
		}
	}

	op.Attributes, err = fs.attributes(node)
	if err != nil {
		return err
	}
	op.AttributesExpiration = fs.expiration()
	return nil
}

func (fs *fsInternal) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) (err error) {
	// inodes are derived from identities: there is nothing to forget
	return nil
}

func (fs *fsInternal) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	if node.Kind() != vfs.KindDir {
		return jfuse.ENOTDIR
	}
	return nil
}

func (fs *fsInternal) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	if node.Kind() != vfs.KindDir {
		return jfuse.ENOTDIR
	}

	_, err = fs.engine.List(node, uint64(op.Offset), false, func(entry readdir.Entry) bool {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(entry.NextCookie),
			Inode:  toInode(entry.ID),
			Name:   entry.Name,
			Type:   direntType(entry.Kind),
		})
		if n == 0 {
			return false
		}
		op.BytesRead += n
		return true
	})
	return errno(err)
}

func (fs *fsInternal) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) (err error) {
	return nil
}

func (fs *fsInternal) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	switch node.Kind() {
	case vfs.KindDir:
		return syscall.EISDIR
	case vfs.KindSymlink:
		return jfuse.EINVAL
	}
	op.KeepPageCache = fs.readOnly
	return nil
}

func (fs *fsInternal) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	if node.Kind() == vfs.KindDir {
		return syscall.EISDIR
	}

	op.BytesRead, err = node.ReadAt(op.Dst, op.Offset)
	if err == io.EOF {
		return nil
	}
	return errno(err)
}

func (fs *fsInternal) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if fs.readOnly {
		return syscall.EROFS
	}
	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	if node.Kind() == vfs.KindDir {
		return syscall.EISDIR
	}

	_, err = node.WriteAt(op.Data, op.Offset)
	return errno(err)
}

func (fs *fsInternal) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	node, err := fs.node(op.Inode)
	if err != nil {
		return err
	}
	op.Target, err = node.ReadLink()
	return errno(err)
}

func (fs *fsInternal) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) (err error) {
	// writes go straight to shadow files
	return nil
}

func (fs *fsInternal) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) (err error) {
	return nil
}

func (fs *fsInternal) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) (err error) {
	return nil
}
