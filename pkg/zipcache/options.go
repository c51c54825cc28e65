package zipcache

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// DefaultIdleTimeout is the time after which an unused archive may be dropped from memory
	DefaultIdleTimeout = 30 * time.Second

	// DefaultInflateCacheSize is the number of inflated entries kept in memory
	DefaultInflateCacheSize = 64
)

// Option for the zip cache
type Option func(*Cache)

// Fs sets the filesystem archives are opened from. The default is the OS filesystem.
//
// Files must support concurrent ReadAt calls, as OS files do.
func Fs(fs afero.Fs) Option {
	return func(c *Cache) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// Logger sets a logger for the cache
func Logger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.l = l
		}
	}
}

// IdleTimeout sets the time after which an unused archive is evicted by CleanIfNeeded
func IdleTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.idle = d
		}
	}
}

// InflateCacheSize sets the number of inflated deflate entries kept in memory.
// A negative size disables this cache.
func InflateCacheSize(entries int) Option {
	return func(c *Cache) {
		if entries != 0 {
			c.inflateSize = entries
		}
	}
}

// WithMetrics enables metrics collection
func WithMetrics(enabled bool) Option {
	return func(c *Cache) {
		c.EnableMetrics(enabled)
	}
}
