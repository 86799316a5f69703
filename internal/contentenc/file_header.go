package contentenc

// Per-file header
//
// Format: [ magic uint32 LE ][ flags uint32 LE ][ length uint64 LE ]
//
// "length" is the authoritative logical file size. The header sits at byte
// 0 of every regular file and the blocks follow it.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderMagic marks a valid file header.
	HeaderMagic uint32 = 0x71cc75bf
	// HeaderLen is the total header length
	HeaderLen = 16
)

// ErrBadHeader is returned by ParseHeader when the magic does not match.
var ErrBadHeader = errors.New("invalid file header")

// FileHeader represents the header stored on each regular file.
type FileHeader struct {
	Magic uint32
	// Reserved, always zero
	Flags  uint32
	Length uint64
}

// NewFileHeader returns a header for an empty file.
func NewFileHeader() *FileHeader {
	return &FileHeader{Magic: HeaderMagic}
}

// Pack - serialize fileHeader object
func (h *FileHeader) Pack() []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.Length)
	return buf
}

// ParseHeader - parse "buf" into fileHeader object
func ParseHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != HeaderLen {
		return nil, fmt.Errorf("ParseHeader: invalid length: got %d, want %d", len(buf), HeaderLen)
	}
	h := FileHeader{
		Magic:  binary.LittleEndian.Uint32(buf[0:4]),
		Flags:  binary.LittleEndian.Uint32(buf[4:8]),
		Length: binary.LittleEndian.Uint64(buf[8:16]),
	}
	if h.Magic != HeaderMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrBadHeader, h.Magic)
	}
	return &h, nil
}

// ReadHeader reads and parses the header at offset 0 of "r".
// A file shorter than the header returns io.ErrUnexpectedEOF (or io.EOF if
// it is empty).
func ReadHeader(r io.ReaderAt) (*FileHeader, error) {
	buf := make([]byte, HeaderLen)
	n, err := r.ReadAt(buf, 0)
	if n == HeaderLen {
		return ParseHeader(buf)
	}
	if err == nil || err == io.EOF {
		if n == 0 {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	return nil, err
}

// Persist writes the header to offset 0 of "w".
func (h *FileHeader) Persist(w io.WriterAt) error {
	n, err := w.WriteAt(h.Pack(), 0)
	if err != nil {
		return err
	}
	if n != HeaderLen {
		return io.ErrShortWrite
	}
	return nil
}
