package zipcache

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/oneconcern/zipmount/pkg/errors"
	"github.com/oneconcern/zipmount/pkg/zipcache/status"
	zipstatus "github.com/oneconcern/zipmount/pkg/zipfile/status"
	"github.com/oneconcern/zipmount/pkg/zipfile/ziptest"
)

var testBody = strings.Repeat("some package content\n", 100)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testFs(t testing.TB) afero.Fs {
	fs := afero.NewMemMapFs()
	ziptest.WriteFile(t, fs, "/cache/pkg.zip",
		ziptest.File{Name: "readme.txt", Body: "read me"},
		ziptest.File{Name: "lib/index.js", Body: testBody, Deflate: true},
	)
	require.NoError(t, afero.WriteFile(fs, "/cache/broken.zip", []byte("definitely not a zip archive"), 0644))
	return fs
}

func testCache(t testing.TB, fs afero.Fs, opts ...Option) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(append([]Option{Fs(fs), Logger(zaptest.NewLogger(t))}, opts...)...)
	c.now = clock.Now
	return c, clock
}

func TestAcquire(t *testing.T) {
	c, _ := testCache(t, testFs(t))

	a := c.Acquire("/cache/pkg.zip")
	b := c.Acquire("/cache/pkg.zip")
	require.Same(t, a, b)
	assert.Equal(t, 2, a.Refs())
	assert.Equal(t, "/cache/pkg.zip", a.Path())

	// nothing is parsed until used
	assert.False(t, a.Loaded())
	assert.Zero(t, c.Stats().Loads)

	other := c.Acquire("/cache/other.zip")
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, c.Stats().Archives)

	b.Release()
	assert.Equal(t, 1, a.Refs())

	found, ok := c.Lookup("/cache/pkg.zip")
	require.True(t, ok)
	assert.Same(t, a, found)
	_, ok = c.Lookup("/cache/nope.zip")
	assert.False(t, ok)
}

func TestParseOnceUnderConcurrency(t *testing.T) {
	const workers = 64
	c, _ := testCache(t, testFs(t))
	a := c.Acquire("/cache/pkg.zip")

	var (
		mu   sync.Mutex
		seen = make(map[interface{}]struct{})
	)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			z, err := a.Get()
			if err != nil {
				return err
			}
			mu.Lock()
			seen[z] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, 1, "all callers must observe the same payload")
	assert.Equal(t, uint64(1), c.Stats().Loads)
	assert.True(t, a.Loaded())
}

func TestStickyError(t *testing.T) {
	c, _ := testCache(t, testFs(t))

	for _, pth := range []string{"/cache/broken.zip", "/cache/missing.zip"} {
		a := c.Acquire(pth)

		_, err := a.Get()
		require.Error(t, err)
		assert.True(t, errors.Is(err, status.ErrLoad))

		_, again := a.Get()
		assert.Equal(t, err, again)

		_, err = a.ReadAt(0, make([]byte, 1), 0)
		assert.Equal(t, again, err)
	}

	broken, _ := c.Lookup("/cache/broken.zip")
	_, err := broken.Get()
	assert.True(t, errors.Is(err, zipstatus.ErrFormat))

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Loads)
	assert.Equal(t, uint64(2), stats.Failures)

	// failures are not evicted
	assert.Zero(t, c.CleanIfNeeded())
}

func TestReadEntries(t *testing.T) {
	c, _ := testCache(t, testFs(t), WithMetrics(true))
	a := c.Acquire("/cache/pkg.zip")
	z, err := a.Get()
	require.NoError(t, err)

	readme, err := z.Resolve("/readme.txt")
	require.NoError(t, err)
	index, err := z.Resolve("/lib/index.js")
	require.NoError(t, err)

	e, err := a.Entry(readme.Index)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), e.Size)

	p := make([]byte, 4)
	n, err := a.ReadAt(readme.Index, p, 5)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "me", string(p[:n]))

	for i := 0; i < 3; i++ {
		n, err = a.ReadAt(index.Index, p, 5)
		require.NoError(t, err)
		assert.Equal(t, testBody[5:9], string(p[:n]))
	}
	require.NotNil(t, c.inflated)
	assert.Equal(t, 1, c.inflated.Len())

	content, err := a.Content(index.Index)
	require.NoError(t, err)
	assert.Equal(t, testBody, string(content))

	_, err = a.Entry(42)
	assert.True(t, errors.Is(err, status.ErrRead))
	_, err = a.ReadAt(42, p, 0)
	assert.True(t, errors.Is(err, status.ErrRead))
}

func TestConcurrentReads(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewBasePathFs(afero.NewOsFs(), dir)
	ziptest.WriteFile(t, fs, "/pkg.zip",
		ziptest.File{Name: "a.txt", Body: testBody},
		ziptest.File{Name: "b.txt", Body: testBody, Deflate: true},
	)
	c, clock := testCache(t, fs)
	a := c.Acquire("/pkg.zip")

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			p := make([]byte, 21)
			for j := 0; j < 20; j++ {
				off := int64((i + j) % 100 * 21)
				n, err := a.ReadAt(uint32(j%2), p, off)
				if err != nil {
					return err
				}
				if string(p[:n]) != testBody[off:off+21] {
					return errors.New("unexpected content")
				}
				if j%5 == 0 {
					clock.Advance(time.Minute)
					_ = c.CleanIfNeeded()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, c.Close())
}

func TestEviction(t *testing.T) {
	c, clock := testCache(t, testFs(t), IdleTimeout(30*time.Second))
	a := c.Acquire("/cache/pkg.zip")

	first, err := a.Get()
	require.NoError(t, err)
	_, err = a.Content(1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.inflated.Len())

	clock.Advance(10 * time.Second)
	assert.Zero(t, c.CleanIfNeeded(), "archive is not idle yet")
	assert.True(t, a.Loaded())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, c.CleanIfNeeded())
	assert.False(t, a.Loaded())
	assert.Zero(t, c.inflated.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)

	// not loaded archives are not evicted twice
	clock.Advance(time.Hour)
	assert.Zero(t, c.CleanIfNeeded())

	second, err := a.Get()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, uint64(2), c.Stats().Loads)
	assert.Equal(t, first.Len(), second.Len())
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t,
		// opencensus stats collection goroutine
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	c := New(Fs(testFs(t)), IdleTimeout(time.Millisecond))
	a := c.Acquire("/cache/pkg.zip")
	_, err := a.Get()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, time.Millisecond)
	}()

	require.Eventually(t, func() bool { return !a.Loaded() }, 5*time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestInflateCacheDisabled(t *testing.T) {
	c, _ := testCache(t, testFs(t), InflateCacheSize(-1))
	assert.Nil(t, c.inflated)

	a := c.Acquire("/cache/pkg.zip")
	content, err := a.Content(1)
	require.NoError(t, err)
	assert.Equal(t, testBody, string(content))
}
