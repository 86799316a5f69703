package contentenc

// intraBlock identifies a part of a file block
type intraBlock struct {
	BlockNo uint64 // Block number in file
	Skip    uint64 // Offset into the block body
	Length  uint64 // Length of data from this block
	fs      *ContentEnc
}

// IsPartial - is the block partial? This means we have to do read-modify-write.
func (ib *intraBlock) IsPartial() bool {
	return ib.Skip > 0 || ib.Length < ib.fs.Capacity()
}

// End returns Skip+Length, the body extent touched by this part.
func (ib *intraBlock) End() uint64 {
	return ib.Skip + ib.Length
}
