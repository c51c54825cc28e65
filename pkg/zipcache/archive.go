package zipcache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/zipcache/status"
	"github.com/oneconcern/zipmount/pkg/zipfile"
)

type state uint8

const (
	notLoaded state = iota
	loaded
	errored
)

// Archive is an archive shared by all the mount points referring to the same path.
//
// The parsed central directory and the open file are only held while loaded.
// Entry reads hold the read lock, so that eviction never closes the file
// under an in-flight read.
type Archive struct {
	path  string
	cache *Cache

	mu    sync.RWMutex
	state state
	zip   *zipfile.Archive
	file  afero.File
	err   error

	refs       int32
	lastAccess int64 // unix nanoseconds
}

// Path of the archive file
func (a *Archive) Path() string {
	return a.path
}

// Refs returns the number of mount points sharing this archive
func (a *Archive) Refs() int {
	return int(atomic.LoadInt32(&a.refs))
}

// Release decrements the reference count
func (a *Archive) Release() {
	atomic.AddInt32(&a.refs, -1)
}

// Loaded tells if the archive is currently parsed and open
func (a *Archive) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state == loaded
}

func (a *Archive) touch() {
	atomic.StoreInt64(&a.lastAccess, a.cache.now().UnixNano())
}

func (a *Archive) idleSince(deadline time.Time) bool {
	return atomic.LoadInt64(&a.lastAccess) <= deadline.UnixNano()
}

// Get returns the parsed archive, parsing it if needed.
//
// A failure to load is sticky: later calls return the same error without retrying.
func (a *Archive) Get() (*zipfile.Archive, error) {
	a.touch()

	a.mu.RLock()
	switch a.state {
	case loaded:
		z := a.zip
		a.mu.RUnlock()
		return z, nil
	case errored:
		err := a.err
		a.mu.RUnlock()
		return nil, err
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// another caller may have completed the load while we were waiting
	switch a.state {
	case loaded:
		return a.zip, nil
	case errored:
		return nil, a.err
	}

	a.load()
	return a.zip, a.err
}

// load must be called with the write lock held
func (a *Archive) load() {
	c := a.cache
	start := time.Now()
	atomic.AddUint64(&c.loads, 1)

	z, f, err := a.open()
	if c.MetricsEnabled() {
		entries := 0
		if z != nil {
			entries = z.Len()
		}
		c.m.Archives.Loaded(start, entries, err)
	}

	if err != nil {
		atomic.AddUint64(&c.failures, 1)
		a.state = errored
		a.err = err
		a.zip = nil
		c.l.Warn("cannot load archive", zap.String("archive", a.path), zap.Error(err))
		return
	}

	a.state = loaded
	a.zip = z
	a.file = f
	a.err = nil
	c.l.Debug("archive loaded",
		zap.String("archive", a.path),
		zap.Int("entries", z.Len()),
		zap.Int("listings", z.Listings()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (a *Archive) open() (*zipfile.Archive, afero.File, error) {
	f, err := a.cache.fs.Open(a.path)
	if err != nil {
		return nil, nil, status.ErrLoad.WrapMessage("%q", a.path).Wrap(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, status.ErrLoad.WrapMessage("%q", a.path).Wrap(err)
	}

	z, err := zipfile.Parse(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, status.ErrLoad.WrapMessage("%q", a.path).Wrap(err)
	}
	return z, f, nil
}

// evictIfIdle drops the loaded state if the archive was not accessed since deadline
func (a *Archive) evictIfIdle(deadline time.Time) bool {
	if !a.idleSince(deadline) {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != loaded || !a.idleSince(deadline) {
		return false
	}
	a.drop()
	return true
}

func (a *Archive) unload() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != loaded {
		return nil
	}
	return a.drop()
}

// drop must be called with the write lock held
func (a *Archive) drop() error {
	err := a.file.Close()
	a.file = nil
	a.zip = nil
	a.state = notLoaded
	a.cache.purgeInflated(a.path)
	a.cache.l.Debug("archive unloaded", zap.String("archive", a.path))
	return err
}

// withLoaded runs fn with the archive loaded and the read lock held
func (a *Archive) withLoaded(fn func(*zipfile.Archive, afero.File) error) error {
	for {
		a.touch()
		a.mu.RLock()
		switch a.state {
		case loaded:
			defer a.mu.RUnlock()
			return fn(a.zip, a.file)
		case errored:
			err := a.err
			a.mu.RUnlock()
			return err
		}
		a.mu.RUnlock()

		if _, err := a.Get(); err != nil {
			return err
		}
	}
}

// Entry returns the central directory record of entry i
func (a *Archive) Entry(i uint32) (zipfile.Entry, error) {
	z, err := a.Get()
	if err != nil {
		return zipfile.Entry{}, err
	}
	e, ok := z.Entry(i)
	if !ok {
		return zipfile.Entry{}, status.ErrRead.WrapMessage("no entry %d in %q", i, a.path)
	}
	return e, nil
}

// ReadAt reads the decompressed content of entry i, with io.ReaderAt semantics
func (a *Archive) ReadAt(i uint32, p []byte, off int64) (n int, err error) {
	err = a.withLoaded(func(z *zipfile.Archive, f afero.File) error {
		e, ok := z.Entry(i)
		if !ok {
			return status.ErrRead.WrapMessage("no entry %d in %q", i, a.path)
		}
		if e.Method != zipfile.Deflate {
			var rerr error
			n, rerr = z.ReadAt(f, i, p, off)
			return rerr
		}

		data, ierr := a.inflate(z, f, i)
		if ierr != nil {
			return ierr
		}
		var werr error
		n, werr = zipfile.Window(data, p, off)
		return werr
	})
	return n, err
}

// Content returns the whole decompressed content of entry i.
//
// The returned slice may be shared and must not be modified.
func (a *Archive) Content(i uint32) (data []byte, err error) {
	err = a.withLoaded(func(z *zipfile.Archive, f afero.File) error {
		e, ok := z.Entry(i)
		if !ok {
			return status.ErrRead.WrapMessage("no entry %d in %q", i, a.path)
		}
		var cerr error
		if e.Method == zipfile.Deflate {
			data, cerr = a.inflate(z, f, i)
		} else {
			data, cerr = z.Content(f, i)
		}
		return cerr
	})
	return data, err
}

// ReadLink returns the target of a symlink entry
func (a *Archive) ReadLink(i uint32) (string, error) {
	data, err := a.Content(i)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *Archive) inflate(z *zipfile.Archive, f afero.File, i uint32) ([]byte, error) {
	c := a.cache
	key := inflateKey{path: a.path, index: i}
	if data, ok := c.inflatedContent(key); ok {
		if c.MetricsEnabled() {
			c.m.Inflate.Hit()
		}
		return data, nil
	}

	data, err := z.Content(f, i)
	if err != nil {
		return nil, err
	}
	if c.MetricsEnabled() {
		c.m.Inflate.Miss(len(data))
	}
	c.keepInflated(key, data)
	return data, nil
}
