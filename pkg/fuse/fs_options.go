package fuse

import (
	"github.com/jacobsa/fuse"
	"go.uber.org/zap"
)

// Option for the file system
type Option func(*fsInternal)

// Logger for this file system
func Logger(l *zap.Logger) Option {
	return func(fs *fsInternal) {
		if l == nil {
			return
		}
		fs.l = l
	}
}

// WithMetrics toggles metrics on the fuse package
func WithMetrics(enabled bool) Option {
	return func(fs *fsInternal) {
		fs.EnableMetrics(enabled)
	}
}

// MountOption enables options when mounting the file system
type MountOption func(*fuse.MountConfig)

// AllowOther lets other users access the mount
func AllowOther() MountOption {
	return func(cfg *fuse.MountConfig) {
		if cfg.Options == nil {
			cfg.Options = make(map[string]string)
		}
		cfg.Options["allow_other"] = ""
	}
}

// VolumeName sets the name of the volume (OSX only)
func VolumeName(name string) MountOption {
	return func(cfg *fuse.MountConfig) {
		cfg.VolumeName = name
	}
}
