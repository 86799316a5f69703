package contentenc

import (
	"testing"

	"github.com/matteobertozzi/aesfs/internal/codec"
)

type testRange struct {
	offset uint64
	length uint64
}

func TestLocate(t *testing.T) {
	for _, capa := range []uint64{488, 504} {
		for off := uint64(0); off < 5000; off++ {
			blockNo, intra := Locate(off, capa)
			if intra >= capa {
				t.Fatalf("intra %d >= capacity %d", intra, capa)
			}
			if blockNo*capa+intra != off {
				t.Fatalf("Locate(%d, %d) = (%d, %d) does not map back", off, capa, blockNo, intra)
			}
		}
	}
}

func TestSplitRange(t *testing.T) {
	var ranges []testRange

	ranges = append(ranges, testRange{0, 70000},
		testRange{0, 10},
		testRange{234, 6511},
		testRange{65444, 54},
		testRange{0, 1024 * 1024},
		testRange{0, 65536},
		testRange{6654, 8945})

	f := newEnc(t, codec.KindAES)
	bs := f.Capacity()

	for _, r := range ranges {
		parts := f.ExplodePlainRange(r.offset, r.length)
		var lastBlockNo uint64 = 1 << 63
		var total uint64
		for i, p := range parts {
			if p.BlockNo == lastBlockNo {
				t.Errorf("Duplicate block number %d", p.BlockNo)
			}
			lastBlockNo = p.BlockNo
			if p.Length > bs || p.Skip >= bs {
				t.Errorf("Test fail: n=%d, length=%d, offset=%d\n", p.BlockNo, p.Length, p.Skip)
			}
			// Only the first block can start in the middle
			if i > 0 && p.Skip != 0 {
				t.Errorf("block %d has skip %d", p.BlockNo, p.Skip)
			}
			total += p.Length
		}
		if total != r.length {
			t.Errorf("range %v: parts add up to %d", r, total)
		}
	}
	if len(f.ExplodePlainRange(100, 0)) != 0 {
		t.Error("empty range should have no parts")
	}
}

func TestSizes(t *testing.T) {
	f := newEnc(t, codec.KindPlain)
	bs := f.Capacity()
	testCases := []struct {
		plain, blocks, cipher uint64
	}{
		{0, 0, HeaderLen},
		{1, 1, HeaderLen + 512},
		{bs, 1, HeaderLen + 512},
		{bs + 1, 2, HeaderLen + 1024},
	}
	for _, tc := range testCases {
		if b := f.BlockCount(tc.plain); b != tc.blocks {
			t.Errorf("BlockCount(%d)=%d, want %d", tc.plain, b, tc.blocks)
		}
		if c := f.PlainSizeToCipherSize(tc.plain); c != tc.cipher {
			t.Errorf("PlainSizeToCipherSize(%d)=%d, want %d", tc.plain, c, tc.cipher)
		}
		if b := f.CipherSizeToBlockCount(tc.cipher); b != tc.blocks {
			t.Errorf("CipherSizeToBlockCount(%d)=%d, want %d", tc.cipher, b, tc.blocks)
		}
	}
	if off := f.BlockNoToCipherOff(3); off != HeaderLen+3*512 {
		t.Errorf("BlockNoToCipherOff(3)=%d", off)
	}
}
