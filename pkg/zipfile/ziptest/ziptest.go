// Package ziptest builds zip archives for tests, and helps corrupting them.
package ziptest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// File describes an entry to write in a test archive.
//
// A Name ending with "/" declares a directory. A Link makes a symbolic
// link pointing to Link. Deflate compresses the body.
type File struct {
	Name    string
	Body    string
	Link    string
	Mode    os.FileMode
	Deflate bool
}

// Build a zip archive
func Build(t testing.TB, files ...File) []byte {
	return BuildWithComment(t, "", files...)
}

// BuildWithComment builds a zip archive with some trailing comment
func BuildWithComment(t testing.TB, comment string, files ...File) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range files {
		h := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Store,
			Modified: time.Date(2019, 3, 4, 5, 6, 8, 0, time.UTC),
		}
		if f.Deflate {
			h.Method = zip.Deflate
		}
		body := f.Body

		switch {
		case f.Link != "":
			h.SetMode(os.ModeSymlink | 0777)
			body = f.Link
		case len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/':
			mode := f.Mode
			if mode == 0 {
				mode = 0755
			}
			h.SetMode(os.ModeDir | mode)
		case f.Mode != 0:
			h.SetMode(f.Mode)
		}

		fw, err := w.CreateHeader(h)
		require.NoError(t, err)
		if body != "" {
			_, err = fw.Write([]byte(body))
			require.NoError(t, err)
		}
	}

	if comment != "" {
		require.NoError(t, w.SetComment(comment))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// WriteFile builds an archive and stores it at pth on fs
func WriteFile(t testing.TB, fs afero.Fs, pth string, files ...File) {
	require.NoError(t, fs.MkdirAll(path.Dir(pth), 0755))
	require.NoError(t, afero.WriteFile(fs, pth, Build(t, files...), 0644))
}

// EOCD returns the offset of the end of central directory record
func EOCD(t testing.TB, archive []byte) int {
	for pos := len(archive) - 22; pos >= 0; pos-- {
		if binary.LittleEndian.Uint32(archive[pos:]) == 0x06054b50 {
			return pos
		}
	}
	require.FailNow(t, "no end of central directory record in archive")
	return -1
}

// CentralDirectory returns the offset of the first central directory record
func CentralDirectory(t testing.TB, archive []byte) int {
	return int(binary.LittleEndian.Uint32(archive[EOCD(t, archive)+16:]))
}

// Record returns the offset of the i-th central directory record
func Record(t testing.TB, archive []byte, i int) int {
	pos := CentralDirectory(t, archive)
	for ; i > 0; i-- {
		h := archive[pos:]
		pos += 46 + int(binary.LittleEndian.Uint16(h[28:])) + int(binary.LittleEndian.Uint16(h[30:])) + int(binary.LittleEndian.Uint16(h[32:]))
	}
	require.Equal(t, uint32(0x02014b50), binary.LittleEndian.Uint32(archive[pos:]))
	return pos
}

// Put16 overwrites a little-endian uint16 at off
func Put16(archive []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(archive[off:], v)
}

// Put32 overwrites a little-endian uint32 at off
func Put32(archive []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(archive[off:], v)
}
