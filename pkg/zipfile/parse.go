package zipfile

import (
	"encoding/binary"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oneconcern/zipmount/pkg/zipfile/status"
)

const (
	eocdSignature        = 0x06054b50
	centralDirSignature  = 0x02014b50
	localHeaderSignature = 0x04034b50

	eocdSize        = 22
	centralDirSize  = 46 // fixed part of a central directory record
	localHeaderSize = 30 // fixed part of a local file header

	maxCommentLength = 0xFFFF
	maxEOCDScan      = eocdSize + maxCommentLength

	zip64Count  = 0xFFFF
	zip64Length = 0xFFFFFFFF

	flagEncrypted = 0x1
	hostUnix      = 3

	sIFMT    = 0xF000
	sIFDIR   = 0x4000
	sIFLNK   = 0xA000
	msdosDir = 0x10

	defaultFileMode os.FileMode = 0644
	defaultDirMode  os.FileMode = 0755
)

var le = binary.LittleEndian

type trailer struct {
	entries    uint16
	cdSize     uint32
	cdOffset   uint32
	commentLen uint16
}

// Parse reads the central directory of the zip archive held by r, of the given size.
//
// It returns an error wrapping status.ErrFormat when the archive is malformed,
// unsupported or looks hostile, and the underlying error on I/O failures.
func Parse(r io.ReaderAt, size int64) (*Archive, error) {
	t, err := findTrailer(r, size)
	if err != nil {
		return nil, err
	}

	if t.entries == zip64Count || t.cdSize == zip64Length || t.cdOffset == zip64Length {
		return nil, status.Format(status.ErrZip64)
	}
	if int64(t.cdSize) > size {
		return nil, status.Format(status.ErrBounds.WrapMessage("central directory size %d exceeds archive size %d", t.cdSize, size))
	}
	if uint32(t.entries) > t.cdSize/centralDirSize {
		return nil, status.Format(status.ErrBounds.WrapMessage("%d entries cannot fit in a %d bytes central directory", t.entries, t.cdSize))
	}
	if int64(t.cdOffset)+int64(t.cdSize) > size {
		return nil, status.Format(status.ErrBounds.WrapMessage("central directory at %d overruns archive size %d", t.cdOffset, size))
	}

	cd := make([]byte, t.cdSize)
	if err := readFull(r, cd, int64(t.cdOffset)); err != nil {
		return nil, err
	}

	entries, err := walkCentralDirectory(cd, int(t.entries), size)
	if err != nil {
		return nil, err
	}

	if len(entries) > 0 && uint64(len(entries)-1) > maxLocal {
		return nil, status.Format(status.ErrBounds.WrapMessage("%d entries exceed the %d addressable", len(entries), maxLocal+1))
	}

	b := newBuilder(len(entries))
	for i := range entries {
		if err := b.add(uint32(i), &entries[i]); err != nil {
			return nil, err
		}
	}

	return &Archive{
		size:     size,
		entries:  entries,
		listings: b.commit(),
		parents:  b.parents,
	}, nil
}

// findTrailer locates the end of central directory record.
//
// The common case of an archive without comment is served by reading
// the last 22 bytes. Otherwise, the trailer is searched backward in the
// region that may hold it, i.e. the last 65557 bytes.
func findTrailer(r io.ReaderAt, size int64) (trailer, error) {
	if size < eocdSize {
		return trailer{}, status.Format(status.ErrNoEOCD.WrapMessage("archive is only %d bytes long", size))
	}

	tail := make([]byte, eocdSize)
	if err := readFull(r, tail, size-eocdSize); err != nil {
		return trailer{}, err
	}
	if le.Uint32(tail) == eocdSignature {
		return decodeTrailer(tail, 0)
	}

	scan := int64(maxEOCDScan)
	if size < scan {
		scan = size
	}
	region := make([]byte, scan)
	if err := readFull(r, region, size-scan); err != nil {
		return trailer{}, err
	}
	for pos := len(region) - eocdSize; pos >= 0; pos-- {
		if le.Uint32(region[pos:]) == eocdSignature {
			return decodeTrailer(region, pos)
		}
	}

	return trailer{}, status.Format(status.ErrNoEOCD)
}

func decodeTrailer(region []byte, pos int) (trailer, error) {
	b := region[pos:]
	t := trailer{
		entries:    le.Uint16(b[10:]),
		cdSize:     le.Uint32(b[12:]),
		cdOffset:   le.Uint32(b[16:]),
		commentLen: le.Uint16(b[20:]),
	}
	if pos+int(t.commentLen)+eocdSize > len(region) {
		return trailer{}, status.Format(status.ErrBounds.WrapMessage("archive comment of %d bytes overruns the archive", t.commentLen))
	}
	return t, nil
}

func walkCentralDirectory(cd []byte, count int, size int64) ([]Entry, error) {
	entries := make([]Entry, 0, count)
	var (
		consumed       int
		compressedSize uint64
	)

	for i := 0; i < count; i++ {
		if consumed+centralDirSize > len(cd) {
			return nil, status.Format(status.ErrBounds.WrapMessage("central directory record %d is truncated", i))
		}
		h := cd[consumed:]
		if le.Uint32(h) != centralDirSignature {
			return nil, status.Format(status.ErrBounds.WrapMessage("bad signature for central directory record %d", i))
		}

		madeBy := le.Uint16(h[4:])
		flags := le.Uint16(h[8:])
		method := Method(le.Uint16(h[10:]))
		modTime := le.Uint16(h[12:])
		modDate := le.Uint16(h[14:])
		crc := le.Uint32(h[16:])
		csize := le.Uint32(h[20:])
		usize := le.Uint32(h[24:])
		nameLen := int(le.Uint16(h[28:]))
		extraLen := int(le.Uint16(h[30:]))
		commentLen := int(le.Uint16(h[32:]))
		external := le.Uint32(h[38:])
		offset := le.Uint32(h[42:])

		recordLen := centralDirSize + nameLen + extraLen + commentLen
		if consumed+recordLen > len(cd) {
			return nil, status.Format(status.ErrBounds.WrapMessage("central directory record %d overruns the central directory", i))
		}
		name := string(h[centralDirSize : centralDirSize+nameLen])

		if flags&flagEncrypted != 0 {
			return nil, status.Format(status.ErrEncrypted.WrapMessage("entry %q", name))
		}
		if method != Store && method != Deflate {
			return nil, status.Format(status.ErrMethod.WrapMessage("entry %q uses %v", name, method))
		}
		if csize == zip64Length || usize == zip64Length || offset == zip64Length {
			return nil, status.Format(status.ErrZip64.WrapMessage("entry %q", name))
		}
		if method == Store && csize != usize {
			return nil, status.Format(status.ErrBounds.WrapMessage("stored entry %q declares %d compressed bytes for %d bytes", name, csize, usize))
		}

		compressedSize += uint64(csize)
		if compressedSize > uint64(size) {
			return nil, status.Format(status.ErrBomb.WrapMessage("at entry %q", name))
		}

		e := Entry{
			Name:           name,
			Method:         method,
			Size:           uint64(usize),
			CompressedSize: uint64(csize),
			CRC32:          crc,
			Modified:       msDosTimeToTime(modDate, modTime),
			HeaderOffset:   int64(offset),
		}
		setMode(&e, madeBy, external)
		entries = append(entries, e)

		consumed += recordLen
	}

	if consumed != len(cd) {
		return nil, status.Format(status.ErrBounds.WrapMessage("walked %d bytes of a %d bytes central directory", consumed, len(cd)))
	}
	return entries, nil
}

// setMode derives permissions and entry type from the external attributes.
//
// Unix modes are only trusted when the entry was produced on a unix host.
func setMode(e *Entry, madeBy uint16, external uint32) {
	e.Dir = strings.HasSuffix(e.Name, "/")

	if madeBy>>8 == hostUnix {
		unixMode := external >> 16
		switch unixMode & sIFMT {
		case sIFLNK:
			e.Symlink = true
		case sIFDIR:
			e.Dir = true
		}
		e.Mode = os.FileMode(unixMode & 0777)
	} else if external&msdosDir != 0 {
		e.Dir = true
	}

	if e.Mode == 0 {
		if e.Dir {
			e.Mode = defaultDirMode
		} else {
			e.Mode = defaultFileMode
		}
	}
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s. See: https://msdn.microsoft.com/en-us/library/ms724247(v=VS.85).aspx
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	if dosDate == 0 && dosTime == 0 {
		return time.Time{}
	}
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.UTC,
	)
}

// readFull reads exactly len(p) bytes at off.
func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return status.ErrRead.Wrap(err)
}
