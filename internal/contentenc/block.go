package contentenc

// Physical block format
//
// Every block is codec.BlockSize (512) bytes on disk. Decoded, it is
//
//	[ magic uint16 LE ][ length uint16 LE ][ crc32c uint32 LE ][ body 504 bytes ]
//
// where "length" is the number of valid body bytes and "crc32c" covers
// exactly those bytes. A physical block consisting only of zero bytes is a
// hole (never written) and reads as zeros.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/matteobertozzi/aesfs/internal/codec"
)

const (
	// BlockMagic marks a decoded block.
	BlockMagic uint16 = 0x7d95
	// BlockHeaderLen is the size of the per-block header.
	BlockHeaderLen = 8
	// BodySize is the space after the block header. The codec overhead is
	// taken from it.
	BodySize = codec.BlockSize - BlockHeaderLen
)

var (
	// ErrCorrupt is the parent of every integrity failure. It means "wrong
	// key or damaged data", as opposed to an I/O error.
	ErrCorrupt = errors.New("corrupt block")
	// ErrBadMagic - the decoded block does not start with BlockMagic
	ErrBadMagic = fmt.Errorf("%w: bad magic", ErrCorrupt)
	// ErrBadCRC - the body checksum does not match
	ErrBadCRC = fmt.Errorf("%w: crc mismatch", ErrCorrupt)
	// ErrBadLength - the header claims more valid bytes than a block can hold
	ErrBadLength = fmt.Errorf("%w: length out of range", ErrCorrupt)
	// ErrShortBlock - the backing file ends in the middle of a block
	ErrShortBlock = errors.New("short physical block")
	// ErrDecode - the codec rejected the block
	ErrDecode = errors.New("block decode failed")

	// errAbsent means there is no physical block at all at this position.
	errAbsent = errors.New("block absent")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// blockHeader is the decoded header of a block.
type blockHeader struct {
	Magic  uint16
	Length uint16
	CRC    uint32
}

func parseBlockHeader(b []byte) blockHeader {
	return blockHeader{
		Magic:  binary.LittleEndian.Uint16(b[0:2]),
		Length: binary.LittleEndian.Uint16(b[2:4]),
		CRC:    binary.LittleEndian.Uint32(b[4:8]),
	}
}

func (h blockHeader) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.Magic)
	binary.LittleEndian.PutUint16(b[2:4], h.Length)
	binary.LittleEndian.PutUint32(b[4:8], h.CRC)
}

// body returns the body part of a decoded block.
func body(plain []byte) []byte {
	return plain[BlockHeaderLen:codec.BlockSize]
}

// fetchBlock reads block "blockNo" from "f" and decodes it into "plain",
// which must be codec.BlockSize bytes. It returns the number of valid body
// bytes.
//
// A block that does not exist returns errAbsent. A hole decodes to a
// zeroed block with full capacity, because a hole always has data behind it.
//
// An all-zero physical block skips the magic and crc checks. This is the one
// case where damage is not detected: a block zeroed on disk reads back as a
// hole. Sparse files created by Truncate rely on it.
func (be *ContentEnc) fetchBlock(f io.ReaderAt, blockNo uint64, plain []byte) (int, error) {
	ciphertext := be.blockPool.Get()
	defer be.blockPool.Put(ciphertext)

	off := int64(be.BlockNoToCipherOff(blockNo))
	n, err := f.ReadAt(ciphertext, off)
	if n == 0 && (err == nil || err == io.EOF) {
		return 0, errAbsent
	}
	if n < len(ciphertext) {
		if err == nil || err == io.EOF {
			return 0, fmt.Errorf("%w: block %d has %d bytes", ErrShortBlock, blockNo, n)
		}
		return 0, err
	}
	if isZero(ciphertext) {
		clear(plain)
		return be.capacity, nil
	}
	if err := be.codec.Decode(plain, ciphertext); err != nil {
		return 0, fmt.Errorf("%w: block %d: %w", ErrDecode, blockNo, err)
	}
	h := parseBlockHeader(plain)
	if h.Magic != BlockMagic {
		return 0, fmt.Errorf("%w: block %d: %#04x", ErrBadMagic, blockNo, h.Magic)
	}
	if int(h.Length) > be.capacity {
		return 0, fmt.Errorf("%w: block %d: %d > %d", ErrBadLength, blockNo, h.Length, be.capacity)
	}
	crc := crc32.Checksum(body(plain)[:h.Length], castagnoli)
	if crc != h.CRC {
		return 0, fmt.Errorf("%w: block %d: have %08x want %08x", ErrBadCRC, blockNo, crc, h.CRC)
	}
	return int(h.Length), nil
}

// storeBlock stamps magic, "length" and checksum into "plain", encodes it
// and writes the whole physical block with one WriteAt call.
func (be *ContentEnc) storeBlock(f io.WriterAt, blockNo uint64, plain []byte, length int) error {
	h := blockHeader{
		Magic:  BlockMagic,
		Length: uint16(length),
		CRC:    crc32.Checksum(body(plain)[:length], castagnoli),
	}
	h.put(plain)

	ciphertext := be.blockPool.Get()
	defer be.blockPool.Put(ciphertext)
	if err := be.codec.Encode(ciphertext, plain); err != nil {
		return err
	}
	off := int64(be.BlockNoToCipherOff(blockNo))
	n, err := f.WriteAt(ciphertext, off)
	if err != nil {
		return err
	}
	if n != len(ciphertext) {
		return io.ErrShortWrite
	}
	return nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
