// Package fuse exposes a virtual tree as a FUSE file system.
//
// Inode numbers are node identities shifted by one, so the root identity maps
// to fuseops.RootInodeID. The mount is read-only unless the tree carries a
// write overlay.
package fuse

import (
	"context"
	"os"
	"time"

	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oneconcern/zipmount/pkg/dlogger"
	"github.com/oneconcern/zipmount/pkg/fuse/status"
	"github.com/oneconcern/zipmount/pkg/readdir"
	"github.com/oneconcern/zipmount/pkg/vfs"
)

const (
	// Cache duration
	cacheYearLong                = 365 * 24 * time.Hour
	mountPointMode   os.FileMode = 0755
	subTypeReadOnly              = "zipmount"
	subTypeWriteable             = "zipmount-overlay"
	fsName                       = "zipmount"
)

// FS is the virtual file system created on top of a tree
type FS struct {
	mfs        *jfuse.MountedFileSystem // The mounted filesystem
	fsInternal *fsInternal              // The core of the filesystem
	server     jfuse.Server             // Fuse server
}

// New creates a file system serving a tree
func New(tree *vfs.Tree, opts ...Option) (*FS, error) {
	if tree == nil {
		return nil, status.ErrNilTree
	}

	fs := &fsInternal{
		tree:     tree,
		readOnly: tree.ReadOnly(),
		l:        dlogger.MustGetLogger("info"),
	}
	for _, apply := range opts {
		apply(fs)
	}
	if fs.MetricsEnabled() {
		fs.m = fs.EnsureMetrics("fuse", &M{}).(*M)
	}
	fs.engine = readdir.New(tree, readdir.Logger(fs.l))

	return &FS{
		fsInternal: fs,
		server:     fuseutil.NewFileSystemServer(fs),
	}, nil
}

func defaultMountConfig(readOnly bool) *jfuse.MountConfig {
	subType := subTypeWriteable
	if readOnly {
		subType = subTypeReadOnly
	}
	return &jfuse.MountConfig{
		Subtype:  subType, // mount appears as "fuse.{subType}"
		ReadOnly: readOnly,
		FSName:   fsName,
	}
}

// Mount the file system at path
func (dfs *FS) Mount(path string, opts ...MountOption) error {
	if err := os.MkdirAll(path, mountPointMode); err != nil {
		return status.ErrMountPoint.WrapMessage("%q", path).Wrap(err)
	}

	mountCfg := defaultMountConfig(dfs.fsInternal.readOnly)
	for _, apply := range opts {
		apply(mountCfg)
	}

	el, _ := zap.NewStdLogAt(dfs.fsInternal.l.
		With(zap.String("fuse", "mount"), zap.String("mountpoint", path)), zapcore.ErrorLevel)
	dl, _ := zap.NewStdLogAt(dfs.fsInternal.l.
		With(zap.String("fuse-debug", "mount"), zap.String("mountpoint", path)), zapcore.DebugLevel)
	mountCfg.ErrorLogger = el
	if dfs.fsInternal.l.Core().Enabled(zapcore.DebugLevel) {
		mountCfg.DebugLogger = dl
	}

	var err error
	dfs.mfs, err = jfuse.Mount(path, dfs.server, mountCfg)
	if err != nil {
		return status.ErrMountPoint.WrapMessage("%q", path).Wrap(err)
	}
	dfs.fsInternal.l.Info("mounting", zap.String("mountpoint", path), zap.Bool("read-only", mountCfg.ReadOnly))
	return nil
}

// Unmount the file system at path
func (dfs *FS) Unmount(path string) error {
	dfs.fsInternal.l.Info("unmounting", zap.String("mountpoint", path))
	return jfuse.Unmount(path)
}

// JoinMount blocks until a mounted file system has been unmounted.
// It does not return successfully until all ops read from the connection have been responded to
// (i.e. the file system server has finished processing all in-flight ops).
func (dfs *FS) JoinMount(ctx context.Context) error {
	return dfs.mfs.Join(ctx)
}
