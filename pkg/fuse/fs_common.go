package fuse

import (
	"fmt"
	"syscall"
	"time"

	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/errors"
	"github.com/oneconcern/zipmount/pkg/ident"
	"github.com/oneconcern/zipmount/pkg/metrics"
	"github.com/oneconcern/zipmount/pkg/readdir"
	"github.com/oneconcern/zipmount/pkg/vfs"
	vfsstatus "github.com/oneconcern/zipmount/pkg/vfs/status"
)

var _ fuseutil.FileSystem = &fsInternal{}

type fsInternal struct {
	fuseutil.NotImplementedFileSystem

	tree     *vfs.Tree
	engine   *readdir.Engine
	readOnly bool

	// logger
	l *zap.Logger

	metrics.Enable
	m *M
}

func toInode(id ident.ID) fuseops.InodeID {
	if id == ident.ParentOfRoot {
		return fuseops.RootInodeID
	}
	return fuseops.InodeID(id - 1)
}

func toID(inode fuseops.InodeID) ident.ID {
	return ident.ID(inode + 1)
}

// expiration of kernel caches: forever when nothing can change
func (fs *fsInternal) expiration() time.Time {
	if fs.readOnly {
		return time.Now().Add(cacheYearLong)
	}
	return time.Time{}
}

func (fs *fsInternal) node(inode fuseops.InodeID) (vfs.Node, error) {
	node, err := fs.tree.Node(toID(inode))
	if err != nil {
		return nil, errno(err)
	}
	return node, nil
}

func (fs *fsInternal) attributes(node vfs.Node) (fuseops.InodeAttributes, error) {
	attrs, err := node.Attributes()
	if err != nil {
		return fuseops.InodeAttributes{}, errno(err)
	}
	return toInodeAttributes(attrs), nil
}

func toInodeAttributes(attrs vfs.Attributes) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   attrs.Size,
		Nlink:  attrs.Nlink,
		Mode:   attrs.Mode,
		Atime:  attrs.Mtime,
		Mtime:  attrs.Mtime,
		Ctime:  attrs.Mtime,
		Crtime: attrs.Mtime,
		Uid:    attrs.Uid,
		Gid:    attrs.Gid,
	}
}

func direntType(kind vfs.Kind) fuseutil.DirentType {
	switch kind {
	case vfs.KindDir:
		return fuseutil.DT_Directory
	case vfs.KindSymlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

// errno maps errors from the virtual tree to errors understood by the kernel
func errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vfsstatus.ErrNotFound):
		return jfuse.ENOENT
	case errors.Is(err, vfsstatus.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, vfsstatus.ErrTypeMismatch):
		return jfuse.EINVAL
	default:
		return jfuse.EIO
	}
}

func (fs *fsInternal) opStart(op interface{}) time.Time {
	logger := fs.l.With(zap.String("Request", fmt.Sprintf("%T", op)))
	switch t := op.(type) {
	case *fuseops.ReadFileOp:
		logger.Debug("Start", zap.Uint64("inode", uint64(t.Inode)), zap.Int("buffer", len(t.Dst)), zap.Int64("offset", t.Offset))
	case *fuseops.WriteFileOp:
		logger.Debug("Start", zap.Uint64("inode", uint64(t.Inode)), zap.Int("size", len(t.Data)), zap.Int64("offset", t.Offset))
	case *fuseops.ReadDirOp:
		logger.Debug("Start", zap.Uint64("inode", uint64(t.Inode)), zap.Uint64("offset", uint64(t.Offset)))
	case *fuseops.LookUpInodeOp:
		logger.Debug("Start", zap.Uint64("parent", uint64(t.Parent)), zap.String("child", t.Name))
	case *fuseops.GetInodeAttributesOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Inode)))
	case *fuseops.SetInodeAttributesOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Inode)))
	case *fuseops.ForgetInodeOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Inode)))
	case *fuseops.OpenDirOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Inode)))
	case *fuseops.ReleaseDirHandleOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Handle)))
	case *fuseops.OpenFileOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Inode)))
	case *fuseops.ReadSymlinkOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Inode)))
	case *fuseops.ReleaseFileHandleOp:
		logger.Debug("Start", zap.Uint64("hndl", uint64(t.Handle)))
	default:
		logger.Debug("Start", zap.Any("op", op))
	}
	return time.Now()
}

func (fs *fsInternal) opEnd(t0 time.Time, op interface{}, err error) {
	opName := fmt.Sprintf("%T", op)
	logger := fs.l.With(zap.String("Request", opName))
	switch t := op.(type) {
	case *fuseops.ReadFileOp:
		logger.Debug("End", zap.Uint64("inode", uint64(t.Inode)), zap.Int64("offset", t.Offset), zap.Int("read", t.BytesRead), zap.Error(err))
		if fs.MetricsEnabled() {
			fs.m.Volume.IO.IORecord("read", t.BytesRead, err)
		}
	case *fuseops.WriteFileOp:
		logger.Debug("End", zap.Uint64("inode", uint64(t.Inode)), zap.Error(err))
		if fs.MetricsEnabled() {
			fs.m.Volume.IO.IORecord("write", len(t.Data), err)
		}
	case *fuseops.ReadDirOp:
		logger.Debug("End", zap.Uint64("inode", uint64(t.Inode)), zap.Int("read", t.BytesRead), zap.Error(err))
	case *fuseops.LookUpInodeOp:
		logger.Debug("End", zap.Uint64("parent", uint64(t.Parent)), zap.String("child", t.Name),
			zap.Uint64("inode", uint64(t.Entry.Child)), zap.Error(err))
	case *fuseops.GetInodeAttributesOp:
		logger.Debug("End", zap.Uint64("id", uint64(t.Inode)), zap.Error(err))
	case *fuseops.SetInodeAttributesOp:
		logger.Debug("End", zap.Uint64("id", uint64(t.Inode)), zap.Error(err))
	case *fuseops.ReadSymlinkOp:
		logger.Debug("End", zap.Uint64("id", uint64(t.Inode)), zap.String("target", t.Target), zap.Error(err))
	default:
		logger.Debug("End", zap.Error(err))
	}
	if fs.MetricsEnabled() {
		fs.m.Usage.UsedAll(t0, opName)(err)
	}
}
