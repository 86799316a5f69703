package contentenc

import (
	"github.com/matteobertozzi/aesfs/internal/codec"
)

// Contentenc methods that translate offsets between the logical file and
// the backing file

const codecBlockSize = uint64(codec.BlockSize)

// Locate maps a logical offset to the block holding it and the offset
// inside that block's body.
func Locate(offset uint64, capacity uint64) (blockNo uint64, intra uint64) {
	return offset / capacity, offset % capacity
}

// PlainOffToBlockNo returns the block number at logical offset "plainOffset".
func (be *ContentEnc) PlainOffToBlockNo(plainOffset uint64) uint64 {
	blockNo, _ := Locate(plainOffset, be.Capacity())
	return blockNo
}

// BlockNoToCipherOff returns the backing file offset of block "blockNo".
func (be *ContentEnc) BlockNoToCipherOff(blockNo uint64) uint64 {
	return HeaderLen + blockNo*codecBlockSize
}

// BlockNoToPlainOff returns the logical offset of block "blockNo".
func (be *ContentEnc) BlockNoToPlainOff(blockNo uint64) uint64 {
	return blockNo * be.Capacity()
}

// BlockCount returns how many blocks "plainSize" logical bytes occupy.
func (be *ContentEnc) BlockCount(plainSize uint64) uint64 {
	if plainSize == 0 {
		return 0
	}
	return be.PlainOffToBlockNo(plainSize-1) + 1
}

// PlainSizeToCipherSize returns the backing file size for a file with
// "plainSize" logical bytes, header included.
func (be *ContentEnc) PlainSizeToCipherSize(plainSize uint64) uint64 {
	return HeaderLen + be.BlockCount(plainSize)*codecBlockSize
}

// CipherSizeToBlockCount returns the number of complete physical blocks in
// a backing file of "cipherSize" bytes.
func (be *ContentEnc) CipherSizeToBlockCount(cipherSize uint64) uint64 {
	if cipherSize <= HeaderLen {
		return 0
	}
	return (cipherSize - HeaderLen) / codecBlockSize
}

// ExplodePlainRange splits a logical byte range into (possibly partial)
// blocks. Returns an empty slice if length == 0.
func (be *ContentEnc) ExplodePlainRange(offset uint64, length uint64) []intraBlock {
	var blocks []intraBlock
	var nextBlock intraBlock
	nextBlock.fs = be

	for length > 0 {
		nextBlock.BlockNo, nextBlock.Skip = Locate(offset, be.Capacity())

		// Minimum of remaining data and remaining space in the block
		nextBlock.Length = min(length, be.Capacity()-nextBlock.Skip)

		blocks = append(blocks, nextBlock)
		offset += nextBlock.Length
		length -= nextBlock.Length
	}
	return blocks
}
