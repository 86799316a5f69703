package contentenc

import (
	"io"
)

// BlockInfo describes one physical block. Used by aesfs-xray.
type BlockInfo struct {
	BlockNo uint64
	// Offset of the block in the backing file
	Offset int64
	// Hole is set for an all-zero block
	Hole bool
	// Length is the number of valid body bytes
	Length int
	CRC    uint32
	// Err is the integrity or decode error of this block, if any
	Err error
}

// InspectBlock loads block "blockNo" and reports what it found. A block that
// fails to decode is not an error here, it is reported in BlockInfo.Err.
// Returns io.EOF after the last block.
func (be *ContentEnc) InspectBlock(f io.ReaderAt, blockNo uint64) (BlockInfo, error) {
	info := BlockInfo{
		BlockNo: blockNo,
		Offset:  int64(be.BlockNoToCipherOff(blockNo)),
	}
	plain := be.blockPool.Get()
	defer be.blockPool.Put(plain)

	length, err := be.fetchBlock(f, blockNo, plain)
	if err == errAbsent {
		return info, io.EOF
	}
	if err != nil {
		info.Err = err
		return info, nil
	}
	h := parseBlockHeader(plain)
	info.Hole = h.Magic == 0
	info.Length = length
	info.CRC = h.CRC
	return info, nil
}
