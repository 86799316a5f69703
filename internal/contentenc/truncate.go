package contentenc

import (
	"errors"
	"fmt"
	"io"
)

// Truncater is a backing file that can change its size, like *os.File.
type Truncater interface {
	ReaderWriterAt
	Truncate(size int64) error
}

// Truncate changes the logical size of the file in "f" from "oldSize" to
// "newSize". The caller updates and persists the FileHeader afterwards.
//
// Shrinking cuts the backing file after the last kept block and lowers that
// block's valid length. Growing raises the valid length of the old last
// block and extends the backing file with holes.
func (be *ContentEnc) Truncate(f Truncater, oldSize uint64, newSize uint64) error {
	if newSize == oldSize {
		return nil
	}
	if newSize < oldSize {
		return be.shrink(f, newSize)
	}
	return be.grow(f, oldSize, newSize)
}

func (be *ContentEnc) shrink(f Truncater, newSize uint64) error {
	if newSize == 0 {
		return f.Truncate(HeaderLen)
	}
	lastNo := be.PlainOffToBlockNo(newSize - 1)
	if err := f.Truncate(int64(be.BlockNoToCipherOff(lastNo) + codecBlockSize)); err != nil {
		return err
	}
	keep := int(newSize - be.BlockNoToPlainOff(lastNo))
	return be.setBlockLength(f, lastNo, keep, false)
}

func (be *ContentEnc) grow(f Truncater, oldSize uint64, newSize uint64) error {
	if oldSize > 0 {
		lastNo := be.PlainOffToBlockNo(oldSize - 1)
		fill := min(be.Capacity(), newSize-be.BlockNoToPlainOff(lastNo))
		if err := be.setBlockLength(f, lastNo, int(fill), true); err != nil {
			return err
		}
	}
	newLastNo := be.PlainOffToBlockNo(newSize - 1)
	return f.Truncate(int64(be.BlockNoToCipherOff(newLastNo) + codecBlockSize))
}

// setBlockLength rewrites block "blockNo" with "length" valid bytes. Bytes
// past the valid length are zeroed. With growOnly set, a block that is
// already long enough is left alone. An absent block is ignored.
func (be *ContentEnc) setBlockLength(f ReaderWriterAt, blockNo uint64, length int, growOnly bool) error {
	plain := be.blockPool.Get()
	defer be.blockPool.Put(plain)

	old, err := be.fetchBlock(f, blockNo, plain)
	if err == errAbsent {
		return nil
	}
	if err != nil {
		return err
	}
	if old == length || (growOnly && old > length) {
		return nil
	}
	clear(body(plain)[min(old, length):])
	return be.storeBlock(f, blockNo, plain, length)
}

// Verify loads every block a file of "size" logical bytes must have and
// returns all integrity and I/O problems found, joined.
func (be *ContentEnc) Verify(f io.ReaderAt, size uint64) error {
	plain := be.blockPool.Get()
	defer be.blockPool.Put(plain)

	var errs []error
	count := be.BlockCount(size)
	for blockNo := uint64(0); blockNo < count; blockNo++ {
		_, err := be.fetchBlock(f, blockNo, plain)
		if err == errAbsent {
			errs = append(errs, fmt.Errorf("block %d of %d missing: %w", blockNo, count, io.ErrUnexpectedEOF))
			break
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
