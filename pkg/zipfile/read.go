package zipfile

import (
	stderrors "errors"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/oneconcern/zipmount/pkg/zipfile/status"
)

// DataOffset locates the first byte of the data of entry i, by reading its local file header.
func (a *Archive) DataOffset(r io.ReaderAt, i uint32) (int64, error) {
	e, ok := a.Entry(i)
	if !ok {
		return 0, status.ErrNotFound.WrapMessage("entry %d", i)
	}
	if e.HeaderOffset+localHeaderSize > a.size {
		return 0, status.Format(status.ErrTruncatedHeader.WrapMessage("entry %q", e.Name))
	}

	var h [localHeaderSize]byte
	if err := readFull(r, h[:], e.HeaderOffset); err != nil {
		return 0, err
	}
	if le.Uint32(h[:]) != localHeaderSignature {
		return 0, status.Format(status.ErrTruncatedHeader.WrapMessage("bad local header signature for entry %q", e.Name))
	}

	start := e.HeaderOffset + localHeaderSize + int64(le.Uint16(h[26:])) + int64(le.Uint16(h[28:]))
	if start+int64(e.CompressedSize) > a.size {
		return 0, status.Format(status.ErrTruncatedHeader.WrapMessage("data for entry %q overruns the archive", e.Name))
	}
	return start, nil
}

// ReadAt reads the decompressed content of entry i, starting at off.
//
// Like io.ReaderAt, it returns io.EOF when fewer than len(p) bytes are available.
// Deflated entries are fully inflated on every call: callers reading
// such entries repeatedly should keep the result of Content instead.
func (a *Archive) ReadAt(r io.ReaderAt, i uint32, p []byte, off int64) (int, error) {
	e, ok := a.Entry(i)
	if !ok {
		return 0, status.ErrNotFound.WrapMessage("entry %d", i)
	}

	if e.Method == Deflate {
		data, err := a.Content(r, i)
		if err != nil {
			return 0, err
		}
		return Window(data, p, off)
	}

	if off < 0 {
		return 0, status.ErrBounds.WrapMessage("negative offset %d", off)
	}
	if uint64(off) >= e.Size {
		return 0, io.EOF
	}
	start, err := a.DataOffset(r, i)
	if err != nil {
		return 0, err
	}
	n := len(p)
	if remaining := e.Size - uint64(off); uint64(n) > remaining {
		n = int(remaining)
	}
	if err := readFull(r, p[:n], start+off); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Content returns the whole decompressed content of entry i.
//
// The content is checked against the declared size and CRC-32.
func (a *Archive) Content(r io.ReaderAt, i uint32) ([]byte, error) {
	e, ok := a.Entry(i)
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("entry %d", i)
	}
	start, err := a.DataOffset(r, i)
	if err != nil {
		return nil, err
	}

	var src io.Reader = io.NewSectionReader(r, start, int64(e.CompressedSize))
	if e.Method == Deflate {
		fr := flate.NewReader(src)
		defer func() { _ = fr.Close() }()
		src = fr
	}

	// never trust the declared size for the allocation: read one byte past it
	data, err := io.ReadAll(io.LimitReader(src, int64(e.Size)+1))
	if err != nil {
		var corrupt flate.CorruptInputError
		if stderrors.As(err, &corrupt) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return nil, status.Format(status.ErrChecksum.WrapMessage("entry %q", e.Name).Wrap(err))
		}
		return nil, status.ErrRead.Wrap(err)
	}

	if uint64(len(data)) != e.Size {
		return nil, status.Format(status.ErrChecksum.WrapMessage("entry %q inflates to more or less than %d bytes", e.Name, e.Size))
	}
	if crc32.ChecksumIEEE(data) != e.CRC32 {
		return nil, status.Format(status.ErrChecksum.WrapMessage("entry %q", e.Name))
	}
	return data, nil
}

// Window copies the part of content starting at off into p, with io.ReaderAt semantics.
func Window(content []byte, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, status.ErrBounds.WrapMessage("negative offset %d", off)
	}
	if off >= int64(len(content)) {
		return 0, io.EOF
	}
	n := copy(p, content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
