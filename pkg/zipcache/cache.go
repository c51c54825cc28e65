// Package zipcache shares parsed zip archives between the nodes of a virtual tree.
//
// An archive is parsed lazily on first access, at most once even under concurrent
// first accesses. A parsing failure is remembered: a broken archive is not
// parsed again. Loaded archives which remain unused may be dropped from memory
// by CleanIfNeeded, and transparently parsed again on the next access.
package zipcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/oneconcern/zipmount/pkg/metrics"
)

// Stats about the activity of a cache
type Stats struct {
	Archives  int
	Loads     uint64
	Failures  uint64
	Evictions uint64
}

// Cache owns one Archive per distinct archive path
type Cache struct {
	mu       sync.Mutex
	archives map[string]*Archive

	fs          afero.Fs
	l           *zap.Logger
	idle        time.Duration
	now         func() time.Time
	inflateSize int
	inflated    *lru.Cache // inflateKey -> []byte

	loads     uint64
	failures  uint64
	evictions uint64

	metrics.Enable
	m *M
}

type inflateKey struct {
	path  string
	index uint32
}

// New builds an empty zip cache
func New(opts ...Option) *Cache {
	c := &Cache{
		archives:    make(map[string]*Archive),
		fs:          afero.NewOsFs(),
		l:           zap.NewNop(),
		idle:        DefaultIdleTimeout,
		now:         time.Now,
		inflateSize: DefaultInflateCacheSize,
	}
	for _, apply := range opts {
		apply(c)
	}

	if c.inflateSize > 0 {
		c.inflated, _ = lru.New(c.inflateSize)
	}

	if c.MetricsEnabled() {
		c.m = c.EnsureMetrics("zipcache", &M{}).(*M)
	}
	return c
}

// Acquire returns the shared archive for pth, and increments its reference count.
//
// The archive is not opened until it is used.
func (c *Cache) Acquire(pth string) *Archive {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.archives[pth]
	if !ok {
		a = &Archive{path: pth, cache: c}
		a.touch()
		c.archives[pth] = a
	}
	atomic.AddInt32(&a.refs, 1)
	return a
}

// Lookup returns the archive for pth, if it has been acquired
func (c *Cache) Lookup(pth string) (*Archive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.archives[pth]
	return a, ok
}

func (c *Cache) snapshot() []*Archive {
	c.mu.Lock()
	defer c.mu.Unlock()
	archives := make([]*Archive, 0, len(c.archives))
	for _, a := range c.archives {
		archives = append(archives, a)
	}
	return archives
}

// CleanIfNeeded drops the loaded state of archives which have not been used
// for longer than the idle timeout. It returns the number of evicted archives.
//
// Failed archives keep their error.
func (c *Cache) CleanIfNeeded() int {
	deadline := c.now().Add(-c.idle)
	evicted := 0
	for _, a := range c.snapshot() {
		if a.evictIfIdle(deadline) {
			evicted++
		}
	}
	if evicted > 0 {
		atomic.AddUint64(&c.evictions, uint64(evicted))
		c.l.Debug("evicted idle archives", zap.Int("count", evicted))
		if c.MetricsEnabled() {
			c.m.Archives.Evicted(evicted)
		}
	}
	return evicted
}

// Run calls CleanIfNeeded periodically, until ctx is done
func (c *Cache) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = c.idle
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.CleanIfNeeded()
		}
	}
}

// Close releases all open archive files. Archives remain usable and are loaded again on demand.
func (c *Cache) Close() error {
	var first error
	for _, a := range c.snapshot() {
		if err := a.unload(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats returns counters about this cache
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	count := len(c.archives)
	c.mu.Unlock()

	return Stats{
		Archives:  count,
		Loads:     atomic.LoadUint64(&c.loads),
		Failures:  atomic.LoadUint64(&c.failures),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

func (c *Cache) inflatedContent(key inflateKey) ([]byte, bool) {
	if c.inflated == nil {
		return nil, false
	}
	v, ok := c.inflated.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *Cache) keepInflated(key inflateKey, data []byte) {
	if c.inflated == nil {
		return
	}
	c.inflated.Add(key, data)
}

func (c *Cache) purgeInflated(pth string) {
	if c.inflated == nil {
		return
	}
	for _, k := range c.inflated.Keys() {
		if key := k.(inflateKey); key.path == pth {
			c.inflated.Remove(k)
		}
	}
}
