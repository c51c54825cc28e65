// Package overlay redirects writes on archive entries to local shadow files.
//
// Archives are never modified. On the first write to an entry, its whole
// decompressed content is copied to a shadow file, which then receives the
// write. The entry is detached: every later read, write or stat of this entry
// is served from the shadow file.
//
// Shadow files are laid out as <root>/<escaped archive path>/<entry index>.
// They persist across mounts: existing shadow files are recognized as detached
// entries.
//
// Detaching is not atomic: two concurrent first writes to the same entry may
// both copy the original content, and one of the writes may be lost.
package overlay

import (
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/overlay/status"
	"github.com/oneconcern/zipmount/pkg/zipfile"
)

const (
	shadowDirMode  os.FileMode = 0755
	shadowFileMode os.FileMode = 0644
)

// Source is the read-only origin of entries
type Source interface {
	Path() string
	Entry(uint32) (zipfile.Entry, error)
	Content(uint32) ([]byte, error)
	ReadAt(uint32, []byte, int64) (int, error)
}

// Stat of an entry, as seen through the overlay
type Stat struct {
	Size     uint64
	ModTime  time.Time
	Detached bool
}

// Option for the overlay manager
type Option func(*Manager)

// Logger sets a logger for the overlay manager
func Logger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.l = l
		}
	}
}

// Manager hands out one Overlay per archive
type Manager struct {
	fs   afero.Fs
	root string
	l    *zap.Logger

	mu       sync.Mutex
	overlays map[string]*Overlay
}

// New overlay manager, storing shadow files under root on fs
func New(fs afero.Fs, root string, opts ...Option) *Manager {
	m := &Manager{
		fs:       fs,
		root:     root,
		l:        zap.NewNop(),
		overlays: make(map[string]*Overlay),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Root directory of shadow files
func (m *Manager) Root() string {
	return m.root
}

// For returns the overlay of an archive.
//
// The first call for a given archive path scans the shadow directory for entries detached by a previous mount.
func (m *Manager) For(src Source) (*Overlay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.overlays[src.Path()]; ok {
		return o, nil
	}

	o := &Overlay{
		m:        m,
		src:      src,
		dir:      path.Join(m.root, Sanitize(src.Path())),
		detached: make(map[uint32]struct{}),
	}
	if err := o.scan(); err != nil {
		return nil, err
	}
	m.overlays[src.Path()] = o
	return o, nil
}

// Sanitize turns an archive path into a single directory name, distinct for distinct paths.
//
// ASCII letters, digits, '.' and '-' are kept. '_' is doubled. Every other byte,
// and a leading '.', is escaped as '_' followed by two lowercase hex digits.
func Sanitize(pth string) string {
	const hexDigits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(pth))
	for i := 0; i < len(pth); i++ {
		c := pth[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.' && i > 0:
			b.WriteByte(c)
		case c == '_':
			b.WriteString("__")
		default:
			b.WriteByte('_')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		}
	}
	return b.String()
}

// Overlay redirects writes on the entries of one archive
type Overlay struct {
	m   *Manager
	src Source
	dir string

	mu       sync.Mutex
	detached map[uint32]struct{}
}

func (o *Overlay) scan() error {
	infos, err := afero.ReadDir(o.m.fs, o.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return status.ErrShadow.WrapMessage("scanning %q", o.dir).Wrap(err)
	}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		index, err := strconv.ParseUint(info.Name(), 10, 32)
		if err != nil {
			continue
		}
		o.detached[uint32(index)] = struct{}{}
	}
	if len(o.detached) > 0 {
		o.m.l.Info("found detached entries", zap.String("archive", o.src.Path()), zap.Int("count", len(o.detached)))
	}
	return nil
}

// Dir is the shadow directory of this archive
func (o *Overlay) Dir() string {
	return o.dir
}

func (o *Overlay) shadow(i uint32) string {
	return path.Join(o.dir, strconv.FormatUint(uint64(i), 10))
}

// Detached tells if entry i is served from a shadow file
func (o *Overlay) Detached(i uint32) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.detached[i]
	return ok
}

// StatEntry returns the size of entry i, from its shadow file when detached
func (o *Overlay) StatEntry(i uint32) (Stat, error) {
	if o.Detached(i) {
		info, err := o.m.fs.Stat(o.shadow(i))
		if err != nil {
			return Stat{}, status.ErrShadow.WrapMessage("stat %q", o.shadow(i)).Wrap(err)
		}
		return Stat{Size: uint64(info.Size()), ModTime: info.ModTime(), Detached: true}, nil
	}

	e, err := o.src.Entry(i)
	if err != nil {
		return Stat{}, err
	}
	return Stat{Size: e.Size, ModTime: e.Modified}, nil
}

// ReadData reads entry i at off, from its shadow file when detached
func (o *Overlay) ReadData(i uint32, p []byte, off int64) (int, error) {
	if !o.Detached(i) {
		return o.src.ReadAt(i, p, off)
	}

	f, err := o.m.fs.Open(o.shadow(i))
	if err != nil {
		return 0, status.ErrShadow.WrapMessage("open %q", o.shadow(i)).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	n, err := f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, status.ErrShadow.WrapMessage("read %q", o.shadow(i)).Wrap(err)
	}
	return n, err
}

// WriteData writes to entry i at off, detaching the entry first if needed
func (o *Overlay) WriteData(i uint32, p []byte, off int64) (int, error) {
	if err := o.ensureDetached(i); err != nil {
		return 0, err
	}

	f, err := o.m.fs.OpenFile(o.shadow(i), os.O_WRONLY, shadowFileMode)
	if err != nil {
		return 0, status.ErrShadow.WrapMessage("open %q", o.shadow(i)).Wrap(err)
	}
	n, err := f.WriteAt(p, off)
	if err != nil {
		_ = f.Close()
		return n, status.ErrShadow.WrapMessage("write %q", o.shadow(i)).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return n, status.ErrShadow.WrapMessage("close %q", o.shadow(i)).Wrap(err)
	}
	return n, nil
}

// Truncate sets the size of entry i, detaching the entry first if needed
func (o *Overlay) Truncate(i uint32, size int64) error {
	if err := o.ensureDetached(i); err != nil {
		return err
	}

	f, err := o.m.fs.OpenFile(o.shadow(i), os.O_WRONLY, shadowFileMode)
	if err != nil {
		return status.ErrShadow.WrapMessage("open %q", o.shadow(i)).Wrap(err)
	}
	defer func() { _ = f.Close() }()
	if err := f.Truncate(size); err != nil {
		return status.ErrShadow.WrapMessage("truncate %q", o.shadow(i)).Wrap(err)
	}
	return nil
}

func (o *Overlay) ensureDetached(i uint32) error {
	if o.Detached(i) {
		return nil
	}
	return o.detach(i)
}

// detach copies the original content of entry i to its shadow file.
//
// The check in ensureDetached and the copy are not atomic.
func (o *Overlay) detach(i uint32) error {
	e, err := o.src.Entry(i)
	if err != nil {
		return status.ErrSource.Wrap(err)
	}
	content, err := o.src.Content(i)
	if err != nil {
		return status.ErrSource.Wrap(err)
	}

	if err := o.m.fs.MkdirAll(o.dir, shadowDirMode); err != nil {
		return status.ErrShadow.WrapMessage("mkdir %q", o.dir).Wrap(err)
	}
	if err := afero.WriteFile(o.m.fs, o.shadow(i), content, e.Mode.Perm()|0600); err != nil {
		return status.ErrShadow.WrapMessage("copy %q", o.shadow(i)).Wrap(err)
	}

	o.mu.Lock()
	o.detached[i] = struct{}{}
	o.mu.Unlock()

	o.m.l.Info("entry detached",
		zap.String("archive", o.src.Path()),
		zap.String("entry", e.Name),
		zap.Uint32("index", i),
		zap.String("shadow", o.shadow(i)),
	)
	return nil
}
