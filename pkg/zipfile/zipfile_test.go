package zipfile

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneconcern/zipmount/pkg/errors"
	"github.com/oneconcern/zipmount/pkg/zipfile/status"
	"github.com/oneconcern/zipmount/pkg/zipfile/ziptest"
)

func parse(t testing.TB, b []byte) (*Archive, error) {
	return Parse(bytes.NewReader(b), int64(len(b)))
}

func mustParse(t testing.TB, b []byte) *Archive {
	a, err := parse(t, b)
	require.NoError(t, err)
	return a
}

func assertFormat(t testing.TB, err error, cause *errors.Error) {
	require.Error(t, err)
	assert.Truef(t, errors.Is(err, status.ErrFormat), "expected a format error, got %v", err)
	assert.Truef(t, errors.Is(err, cause), "expected %v, got %v", cause, err)
}

func childNames(children []Child) []string {
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name)
	}
	return names
}

func TestParseTrailer(t *testing.T) {
	files := []ziptest.File{{Name: "a.txt", Body: "hello"}}

	t.Run("without comment", func(t *testing.T) {
		b := ziptest.Build(t, files...)
		require.Equal(t, len(b)-22, ziptest.EOCD(t, b))
		a := mustParse(t, b)
		assert.Equal(t, 1, a.Len())
		assert.Equal(t, int64(len(b)), a.Size())
	})

	t.Run("with comment", func(t *testing.T) {
		b := ziptest.BuildWithComment(t, "some archive comment", files...)
		a := mustParse(t, b)
		assert.Equal(t, 1, a.Len())
	})

	t.Run("with inconsistent comment length", func(t *testing.T) {
		b := ziptest.BuildWithComment(t, "short", files...)
		ziptest.Put16(b, ziptest.EOCD(t, b)+20, 200)
		_, err := parse(t, b)
		assertFormat(t, err, status.ErrBounds)
	})

	t.Run("with comment length on fast path", func(t *testing.T) {
		b := ziptest.Build(t, files...)
		ziptest.Put16(b, len(b)-2, 1)
		_, err := parse(t, b)
		assertFormat(t, err, status.ErrBounds)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := parse(t, []byte("PK"))
		assertFormat(t, err, status.ErrNoEOCD)
	})

	t.Run("not a zip", func(t *testing.T) {
		_, err := parse(t, bytes.Repeat([]byte("not a zip file"), 100))
		assertFormat(t, err, status.ErrNoEOCD)
	})
}

func TestParseRejects(t *testing.T) {
	build := func() []byte {
		return ziptest.Build(t,
			ziptest.File{Name: "a.txt", Body: "hello"},
			ziptest.File{Name: "b.txt", Body: "world", Deflate: true},
		)
	}

	for _, tc := range []struct {
		name  string
		patch func([]byte)
		cause *errors.Error
	}{
		{
			name:  "zip64 entry count",
			patch: func(b []byte) { ziptest.Put16(b, ziptest.EOCD(t, b)+10, 0xFFFF) },
			cause: status.ErrZip64,
		},
		{
			name:  "zip64 central directory offset",
			patch: func(b []byte) { ziptest.Put32(b, ziptest.EOCD(t, b)+16, 0xFFFFFFFF) },
			cause: status.ErrZip64,
		},
		{
			name:  "zip64 entry size",
			patch: func(b []byte) { ziptest.Put32(b, ziptest.Record(t, b, 1)+24, 0xFFFFFFFF) },
			cause: status.ErrZip64,
		},
		{
			name:  "central directory larger than archive",
			patch: func(b []byte) { ziptest.Put32(b, ziptest.EOCD(t, b)+12, uint32(len(b)+1)) },
			cause: status.ErrBounds,
		},
		{
			name:  "too many entries",
			patch: func(b []byte) { ziptest.Put16(b, ziptest.EOCD(t, b)+10, 1000) },
			cause: status.ErrBounds,
		},
		{
			name: "central directory overruns archive",
			patch: func(b []byte) {
				eocd := ziptest.EOCD(t, b)
				ziptest.Put32(b, eocd+16, uint32(len(b))-4)
			},
			cause: status.ErrBounds,
		},
		{
			name:  "fewer entries than records",
			patch: func(b []byte) { ziptest.Put16(b, ziptest.EOCD(t, b)+10, 1) },
			cause: status.ErrBounds,
		},
		{
			name:  "encrypted",
			patch: func(b []byte) { ziptest.Put16(b, ziptest.Record(t, b, 0)+8, 0x1) },
			cause: status.ErrEncrypted,
		},
		{
			name:  "bzip2",
			patch: func(b []byte) { ziptest.Put16(b, ziptest.Record(t, b, 1)+10, 12) },
			cause: status.ErrMethod,
		},
		{
			name:  "bomb",
			patch: func(b []byte) { ziptest.Put32(b, ziptest.Record(t, b, 1)+20, uint32(len(b))) },
			cause: status.ErrBomb,
		},
		{
			name:  "stored sizes differ",
			patch: func(b []byte) { ziptest.Put32(b, ziptest.Record(t, b, 0)+24, 1000) },
			cause: status.ErrBounds,
		},
		{
			name:  "bad record signature",
			patch: func(b []byte) { ziptest.Put32(b, ziptest.Record(t, b, 1), 0xdeadbeef) },
			cause: status.ErrBounds,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := build()
			tc.patch(b)
			_, err := parse(t, b)
			assertFormat(t, err, tc.cause)
		})
	}
}

func TestParseAttributes(t *testing.T) {
	a := mustParse(t, ziptest.Build(t,
		ziptest.File{Name: "bin/", Mode: 0700},
		ziptest.File{Name: "bin/run.sh", Body: "#!/bin/sh\n", Mode: 0755},
		ziptest.File{Name: "plain.txt", Body: "no unix mode"},
		ziptest.File{Name: "link", Link: "plain.txt"},
	))
	require.Equal(t, 4, a.Len())

	dir, _ := a.Entry(0)
	assert.True(t, dir.Dir)
	assert.Equal(t, os.FileMode(0700), dir.Mode)

	exe, _ := a.Entry(1)
	assert.False(t, exe.Dir)
	assert.Equal(t, os.FileMode(0755), exe.Mode)
	assert.Equal(t, uint64(10), exe.Size)
	assert.Equal(t, 2019, exe.Modified.Year())

	plain, _ := a.Entry(2)
	assert.Equal(t, os.FileMode(0644), plain.Mode)
	assert.False(t, plain.Symlink)

	link, _ := a.Entry(3)
	assert.True(t, link.Symlink)
	assert.Equal(t, uint64(len("plain.txt")), link.Size)

	_, ok := a.Entry(4)
	assert.False(t, ok)
}

func TestListings(t *testing.T) {
	a := mustParse(t, ziptest.Build(t,
		ziptest.File{Name: "top.txt", Body: "top"},
		ziptest.File{Name: "deep/er/file.txt", Body: "deep"},
		ziptest.File{Name: "./dot/x", Body: "x"},
		ziptest.File{Name: "dup", Body: "first"},
		ziptest.File{Name: "dup", Body: "second"},
		ziptest.File{Name: "clash", Body: "a file"},
		ziptest.File{Name: "clash/inner", Body: "a dir wins"},
		ziptest.File{Name: "empty/"},
		ziptest.File{Name: "link", Link: "top.txt"},
	))

	root := a.Children(RootID.Index)
	assert.Equal(t, []string{"clash", "deep", "dot", "dup", "empty", "link", "top.txt"}, childNames(root))

	deep, ok := a.Lookup(RootID.Index, "deep")
	require.True(t, ok)
	require.True(t, deep.IsDir())
	er, ok := a.Lookup(deep.Index, "er")
	require.True(t, ok)
	assert.Equal(t, []string{"file.txt"}, childNames(a.Children(er.Index)))

	parent, ok := a.Parent(er)
	require.True(t, ok)
	assert.Equal(t, deep.Index, parent)
	parent, ok = a.Parent(deep)
	require.True(t, ok)
	assert.Equal(t, RootID.Index, parent)
	_, ok = a.Parent(RootID)
	assert.False(t, ok)

	dup, ok := a.Lookup(RootID.Index, "dup")
	require.True(t, ok)
	assert.Equal(t, ID{Kind: KindFile, Index: 4}, dup)

	clash, ok := a.Lookup(RootID.Index, "clash")
	require.True(t, ok)
	assert.True(t, clash.IsDir())

	link, ok := a.Lookup(RootID.Index, "link")
	require.True(t, ok)
	assert.Equal(t, KindSymlink, link.Kind)

	empty, ok := a.Lookup(RootID.Index, "empty")
	require.True(t, ok)
	assert.Empty(t, a.Children(empty.Index))

	_, ok = a.Lookup(RootID.Index, "missing")
	assert.False(t, ok)
}

func TestIndexBounds(t *testing.T) {
	saved := maxLocal
	maxLocal = 3
	defer func() { maxLocal = saved }()

	a := mustParse(t, ziptest.Build(t, ziptest.File{Name: "a/b/c/x", Body: "x"}))
	c, err := a.Resolve("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), c.Index)

	_, err = parse(t, ziptest.Build(t, ziptest.File{Name: "a/b/c/d/x", Body: "x"}))
	assertFormat(t, err, status.ErrBounds)

	files := make([]ziptest.File, 0, 5)
	for _, name := range []string{"1", "2", "3", "4"} {
		files = append(files, ziptest.File{Name: name, Body: name})
	}
	mustParse(t, ziptest.Build(t, files...))

	files = append(files, ziptest.File{Name: "5", Body: "5"})
	_, err = parse(t, ziptest.Build(t, files...))
	assertFormat(t, err, status.ErrBounds)
}

func TestUnsafeNames(t *testing.T) {
	for _, name := range []string{"../escape", "a/../../escape", "/etc/passwd"} {
		_, err := parse(t, ziptest.Build(t, ziptest.File{Name: name, Body: "x"}))
		assertFormat(t, err, status.ErrUnsafePath)
	}
}

func TestResolve(t *testing.T) {
	a := mustParse(t, ziptest.Build(t,
		ziptest.File{Name: "a/b/c.txt", Body: "c"},
		ziptest.File{Name: "a/link", Link: "b"},
	))

	id, err := a.Resolve("/")
	require.NoError(t, err)
	assert.Equal(t, RootID, id)

	id, err = a.Resolve("a/b")
	require.NoError(t, err)
	assert.True(t, id.IsDir())

	id, err = a.Resolve("/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, ID{Kind: KindFile, Index: 0}, id)

	_, err = a.Resolve("/a/nope")
	assert.True(t, errors.Is(err, status.ErrNotFound))

	_, err = a.Resolve("/a/b/c.txt/d")
	assert.True(t, errors.Is(err, status.ErrNotDir))

	_, err = a.Resolve("/a/link/c.txt")
	assert.True(t, errors.Is(err, status.ErrNotDir))
}

func TestRead(t *testing.T) {
	body := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200)
	b := ziptest.Build(t,
		ziptest.File{Name: "stored.txt", Body: body},
		ziptest.File{Name: "deflated.txt", Body: body, Deflate: true},
		ziptest.File{Name: "empty.txt"},
	)
	a := mustParse(t, b)
	r := bytes.NewReader(b)

	deflated, _ := a.Entry(1)
	require.Equal(t, Deflate, deflated.Method)
	require.Less(t, deflated.CompressedSize, deflated.Size)

	for i := uint32(0); i < 2; i++ {
		content, err := a.Content(r, i)
		require.NoError(t, err)
		assert.Equal(t, body, string(content))

		p := make([]byte, 10)
		n, err := a.ReadAt(r, i, p, 44)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
		assert.Equal(t, body[44:54], string(p))

		n, err = a.ReadAt(r, i, p, int64(len(body)-4))
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, body[len(body)-4:], string(p[:n]))

		n, err = a.ReadAt(r, i, p, int64(len(body)))
		assert.Equal(t, io.EOF, err)
		assert.Zero(t, n)
	}

	content, err := a.Content(r, 2)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestReadCorrupted(t *testing.T) {
	files := []ziptest.File{
		{Name: "stored.txt", Body: "stored content"},
		{Name: "deflated.txt", Body: strings.Repeat("abc", 100), Deflate: true},
	}

	t.Run("checksum", func(t *testing.T) {
		b := ziptest.Build(t, files...)
		ziptest.Put32(b, ziptest.Record(t, b, 1)+16, 0x12345678)
		a := mustParse(t, b)
		_, err := a.Content(bytes.NewReader(b), 1)
		assertFormat(t, err, status.ErrChecksum)
	})

	t.Run("declared size", func(t *testing.T) {
		b := ziptest.Build(t, files...)
		ziptest.Put32(b, ziptest.Record(t, b, 1)+24, 10)
		a := mustParse(t, b)
		_, err := a.Content(bytes.NewReader(b), 1)
		assertFormat(t, err, status.ErrChecksum)
	})

	t.Run("local header signature", func(t *testing.T) {
		b := ziptest.Build(t, files...)
		ziptest.Put32(b, 0, 0)
		a := mustParse(t, b)
		_, err := a.DataOffset(bytes.NewReader(b), 0)
		assertFormat(t, err, status.ErrTruncatedHeader)
	})

	t.Run("local header out of archive", func(t *testing.T) {
		b := ziptest.Build(t, files...)
		ziptest.Put32(b, ziptest.Record(t, b, 0)+42, uint32(len(b)-10))
		a := mustParse(t, b)
		_, err := a.ReadAt(bytes.NewReader(b), 0, make([]byte, 4), 0)
		assertFormat(t, err, status.ErrTruncatedHeader)
	})
}

func TestWindow(t *testing.T) {
	p := make([]byte, 4)
	n, err := Window([]byte("abcdef"), p, 1)
	require.NoError(t, err)
	assert.Equal(t, "bcde", string(p[:n]))

	n, err = Window([]byte("abcdef"), p, 4)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "ef", string(p[:n]))

	_, err = Window([]byte("abcdef"), p, -1)
	assert.Error(t, err)
}
