// Package contentenc maps logical file content onto fixed-size encoded
// blocks and back. It does read-modify-write for partial blocks and checks
// the integrity of every block it reads.
package contentenc

import (
	"errors"
	"io"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// ReaderWriterAt is what WriteAt needs from the backing file. Partial
// blocks are read back before they are rewritten.
type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// ContentEnc is the block engine for one codec. It keeps no per-file state
// and can be shared by all open files.
type ContentEnc struct {
	codec codec.Codec
	// Logical bytes per block
	capacity int
	// Pool of codec.BlockSize buffers
	blockPool bPool
}

// New returns a ContentEnc that stores blocks through "c".
func New(c codec.Codec) *ContentEnc {
	return &ContentEnc{
		codec:     c,
		capacity:  BodySize - c.Overhead(),
		blockPool: newBPool(codec.BlockSize),
	}
}

// Capacity returns the number of logical bytes one block carries.
// 504 for plain and XOR, 488 for AES.
func (be *ContentEnc) Capacity() uint64 {
	return uint64(be.capacity)
}

// Codec returns the codec blocks are stored with.
func (be *ContentEnc) Codec() codec.Codec {
	return be.codec
}

// ReadAt reads up to len(dst) logical bytes at "off" from the backing file.
//
// The read stops at the last physical block. A block whose valid length is
// shorter than its capacity contributes zeros for the gap, but only if a
// later block exists. Otherwise the gap is the end of file.
//
// If the first block fails to load, the error is returned. A failure on a
// later block ends the read with a short count and a warning, so the caller
// gets the good prefix but never bad data.
func (be *ContentEnc) ReadAt(f io.ReaderAt, dst []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	plain := be.blockPool.Get()
	defer be.blockPool.Put(plain)

	n := 0
	pending := 0
	var last uint64
	for i, ib := range be.ExplodePlainRange(uint64(off), uint64(len(dst))) {
		length, err := be.fetchBlock(f, ib.BlockNo, plain)
		if err == errAbsent {
			return n, nil
		}
		if err != nil {
			if i == 0 {
				return 0, err
			}
			tlog.Warn.Printf("ReadAt: stopping short at block %d: %v", ib.BlockNo, err)
			return n, nil
		}
		// The gap at the end of the previous block is now known to be
		// inside the file.
		clear(dst[n : n+pending])
		n += pending
		pending = 0

		skip := int(ib.Skip)
		want := int(ib.Length)
		have := 0
		if length > skip {
			have = min(want, length-skip)
			copy(dst[n:n+have], body(plain)[skip:skip+have])
		}
		n += have
		pending = want - have
		last = ib.BlockNo
	}
	// The range ended inside the gap of its last block. The gap is data if
	// the file goes on past that block.
	if pending > 0 && be.blockExists(f, last+1) {
		clear(dst[n : n+pending])
		n += pending
	}
	return n, nil
}

// blockExists reports whether the backing file reaches into block "blockNo".
func (be *ContentEnc) blockExists(f io.ReaderAt, blockNo uint64) bool {
	var b [1]byte
	n, _ := f.ReadAt(b[:], int64(be.BlockNoToCipherOff(blockNo)))
	return n == 1
}

// WriteAt writes "src" at logical offset "off".
//
// Blocks that are overwritten completely are written fresh. Partial blocks
// are fetched, merged and written back. Every block goes to disk with a
// single WriteAt of the whole physical block. On failure the number of bytes
// already on disk is returned together with the error.
//
// WriteAt does not know about the file size. Updating the FileHeader is up
// to the caller.
func (be *ContentEnc) WriteAt(f ReaderWriterAt, src []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	plain := be.blockPool.Get()
	defer be.blockPool.Put(plain)

	n := 0
	for _, ib := range be.ExplodePlainRange(uint64(off), uint64(len(src))) {
		length := be.capacity
		if ib.IsPartial() {
			old, err := be.fetchBlock(f, ib.BlockNo, plain)
			if err == errAbsent {
				clear(plain)
				old = 0
			} else if err != nil {
				tlog.Warn.Printf("WriteAt: cannot merge into block %d: %v", ib.BlockNo, err)
				return n, err
			}
			// Bytes past the valid length are not covered by the crc
			clear(body(plain)[old:])
			length = max(old, int(ib.End()))
		} else {
			clear(plain)
		}
		copy(body(plain)[ib.Skip:ib.End()], src[n:n+int(ib.Length)])
		if err := be.storeBlock(f, ib.BlockNo, plain, length); err != nil {
			return n, err
		}
		n += int(ib.Length)
	}
	return n, nil
}
