// Package bytesource provides the random-access, cursor-carrying byte
// reader that every HDF5 structure decoder is built on. It is the one
// place in the module allowed to touch the underlying file or buffer.
package bytesource

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/scigolib/goh5/internal/utils"
)

// Source is a little-endian-aware, random-access reader with a single
// logical cursor. Offset and length field widths are configured once the
// superblock has been parsed (they default to 8, matching the widest
// HDF5 encoding, until SetSizes is called).
//
// Source is not safe for concurrent use: the reader is single-cursor and
// cooperative by design, matching the rest of the package.
type Source struct {
	r          io.ReaderAt
	pos        int64
	size       int64
	offsetSize int
	lengthSize int
}

// Open wraps an existing io.ReaderAt of the given total size.
func Open(r io.ReaderAt, size int64) *Source {
	return &Source{r: r, size: size, offsetSize: 8, lengthSize: 8}
}

// FromBytes wraps an in-memory buffer. Used by tests and by callers that
// already hold the whole file (or a MATLAB .mat payload) in memory.
func FromBytes(data []byte) *Source {
	return Open(bytes.NewReader(data), int64(len(data)))
}

// FromFile opens path and wraps it. The caller is responsible for closing
// the returned *os.File once the Source is no longer needed.
func FromFile(path string) (*Source, *os.File, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path is intentional for a file-reading library
	if err != nil {
		return nil, nil, errors.Wrap(err, "open file")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrap(err, "stat file")
	}
	return Open(f, info.Size()), f, nil
}

// SetSizes configures the width, in bytes, of on-disk Address and Length
// fields. Both must be 2, 4, or 8. Called once, after the superblock has
// been parsed; every subsequent read of an "offset" or "length" field
// uses these widths.
func (s *Source) SetSizes(offsetSize, lengthSize int) error {
	if !validSize(offsetSize) || !validSize(lengthSize) {
		return errors.Errorf("invalid offset/length size: offset=%d length=%d", offsetSize, lengthSize)
	}
	s.offsetSize = offsetSize
	s.lengthSize = lengthSize
	return nil
}

func validSize(n int) bool { return n == 2 || n == 4 || n == 8 }

// OffsetSize returns the configured width of Address fields.
func (s *Source) OffsetSize() int { return s.offsetSize }

// LengthSize returns the configured width of Length fields.
func (s *Source) LengthSize() int { return s.lengthSize }

// Len returns the total size of the underlying byte source, or -1 if unknown.
func (s *Source) Len() int64 { return s.size }

// Position returns the current cursor position.
func (s *Source) Position() int64 { return s.pos }

// Seek moves the cursor to an absolute position. Negative positions are
// rejected; HDF5 addresses are never negative.
func (s *Source) Seek(pos int64) error {
	if pos < 0 {
		return errors.Errorf("seek to negative position %d", pos)
	}
	s.pos = pos
	return nil
}

// Save returns a token representing the current cursor position, for use
// with Restore. Prefer WithSaved where the recursive region is a single
// function body.
func (s *Source) Save() int64 { return s.pos }

// Restore resets the cursor to a previously Saved position.
func (s *Source) Restore(token int64) { s.pos = token }

// WithSaved runs fn with the cursor free to move, then restores the
// cursor to its entry position regardless of whether fn returned an
// error. This is the scoped-acquisition primitive every inter-address
// jump (heap lookup, B-tree descent, vlen dereference, compound member
// recursion) must use: it makes a leaked cursor position impossible by
// construction.
func (s *Source) WithSaved(fn func() error) error {
	saved := s.pos
	defer func() { s.pos = saved }()
	return fn()
}

// ReadAt reads len(buf) bytes starting at addr without disturbing the
// cursor. It is shorthand for Seek+ReadBytes+Restore and is the usual way
// to fetch an address-keyed structure (object header, heap, B-tree node).
func (s *Source) ReadAt(addr int64, buf []byte) error {
	return s.WithSaved(func() error {
		if err := s.Seek(addr); err != nil {
			return err
		}
		return s.readFull(buf)
	})
}

// readFull reads exactly len(buf) bytes into buf from the current cursor
// and advances it.
func (s *Source) readFull(buf []byte) error {
	n := len(buf)
	if n == 0 {
		return nil
	}
	got, err := s.r.ReadAt(buf, s.pos)
	if err != nil && !(errors.Is(err, io.EOF) && got == n) {
		return errors.Wrapf(err, "read %d bytes at %d", n, s.pos)
	}
	if got != n {
		return errors.Wrapf(io.ErrUnexpectedEOF, "short read at %d: got %d want %d", s.pos, got, n)
	}
	s.pos += int64(n)
	return nil
}

// ReadBytes reads exactly n bytes from the current cursor and advances it.
// The returned slice is owned by the caller.
func (s *Source) ReadBytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, errors.Errorf("negative read length %d", n)
	}
	buf := make([]byte, n)
	if err := s.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readScratch reads n bytes through the shared buffer pool, hands them to
// decode, and releases the buffer. Only for the fixed-width primitive
// reads, where the decoded integer leaves the buffer before release.
func (s *Source) readScratch(n int, decode func([]byte) uint64) (uint64, error) {
	buf := utils.GetBuffer(n)
	defer utils.ReleaseBuffer(buf)
	if err := s.readFull(buf); err != nil {
		return 0, err
	}
	return decode(buf), nil
}

// ReadU8 reads an unsigned 8-bit integer and advances the cursor.
func (s *Source) ReadU8() (uint8, error) {
	v, err := s.readScratch(1, func(b []byte) uint64 { return uint64(b[0]) })
	return uint8(v), err
}

// ReadU16 reads a little-endian unsigned 16-bit integer.
func (s *Source) ReadU16() (uint16, error) {
	v, err := s.readScratch(2, func(b []byte) uint64 { return uint64(binary.LittleEndian.Uint16(b)) })
	return uint16(v), err
}

// ReadU32 reads a little-endian unsigned 32-bit integer.
func (s *Source) ReadU32() (uint32, error) {
	v, err := s.readScratch(4, func(b []byte) uint64 { return uint64(binary.LittleEndian.Uint32(b)) })
	return uint32(v), err
}

// ReadU64 reads a little-endian unsigned 64-bit integer.
func (s *Source) ReadU64() (uint64, error) {
	return s.readScratch(8, binary.LittleEndian.Uint64)
}

// ReadI8 reads a signed 8-bit integer by reinterpreting ReadU8.
func (s *Source) ReadI8() (int8, error) {
	v, err := s.ReadU8()
	return int8(v), err
}

// ReadI16 reads a signed 16-bit integer by reinterpreting ReadU16.
func (s *Source) ReadI16() (int16, error) {
	v, err := s.ReadU16()
	return int16(v), err
}

// ReadI32 reads a signed 32-bit integer by reinterpreting ReadU32.
func (s *Source) ReadI32() (int32, error) {
	v, err := s.ReadU32()
	return int32(v), err
}

// ReadI64 reads a signed 64-bit integer by reinterpreting ReadU64.
func (s *Source) ReadI64() (int64, error) {
	v, err := s.ReadU64()
	return int64(v), err
}

// ReadOffset reads an Address-width field, per the configured offset size.
func (s *Source) ReadOffset() (uint64, error) { return s.readSized(s.offsetSize) }

// ReadLength reads a Length-width field, per the configured length size.
func (s *Source) ReadLength() (uint64, error) { return s.readSized(s.lengthSize) }

func (s *Source) readSized(width int) (uint64, error) {
	return s.readScratch(width, func(b []byte) uint64 { return DecodeUint(b, width) })
}

// UndefinedAddress is the sentinel "no address" value at the given width:
// the all-ones bit pattern of that width.
func UndefinedAddress(width int) uint64 {
	switch width {
	case 2:
		return uint64(^uint16(0))
	case 4:
		return uint64(^uint32(0))
	default:
		return ^uint64(0)
	}
}

// DecodeUint decodes a little-endian unsigned integer of width 1, 2, 4, or
// 8 bytes from the front of data. Widths in between (e.g. a 3-byte field
// packed into a bit-field byte) are handled by zero-extending into an
// 8-byte buffer.
func DecodeUint(data []byte, width int) uint64 {
	if width <= 0 {
		return 0
	}
	switch width {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 8:
		return binary.LittleEndian.Uint64(data)
	default:
		var buf [8]byte
		n := width
		if n > 8 {
			n = 8
		}
		copy(buf[:n], data[:n])
		return binary.LittleEndian.Uint64(buf[:])
	}
}
