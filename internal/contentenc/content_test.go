package contentenc

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
)

func newEnc(t *testing.T, kind codec.Kind) *ContentEnc {
	t.Helper()
	key, iv := cryptocore.LegacyKDF([]byte("secret"), []byte("pepper"), cryptocore.DefaultRounds)
	c, err := codec.New(kind, codec.Secret{Cipher: cryptocore.New(key, iv), Passphrase: []byte("secret")})
	require.NoError(t, err)
	return New(c)
}

func allEncs(t *testing.T) []*ContentEnc {
	return []*ContentEnc{
		newEnc(t, codec.KindPlain),
		newEnc(t, codec.KindXOR),
		newEnc(t, codec.KindAES),
	}
}

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "data"), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func randBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestCapacity(t *testing.T) {
	encs := allEncs(t)
	require.EqualValues(t, 504, encs[0].Capacity())
	require.EqualValues(t, 504, encs[1].Capacity())
	require.EqualValues(t, 488, encs[2].Capacity())
}

func TestHelloWorld(t *testing.T) {
	for _, be := range allEncs(t) {
		t.Run(be.Codec().Name(), func(t *testing.T) {
			f := tempFile(t)
			n, err := be.WriteAt(f, []byte("Hello World"), 0)
			require.NoError(t, err)
			require.Equal(t, 11, n)
			n, err = be.WriteAt(f, []byte("!"), 11)
			require.NoError(t, err)
			require.Equal(t, 1, n)

			buf := make([]byte, 12)
			n, err = be.ReadAt(f, buf, 0)
			require.NoError(t, err)
			require.Equal(t, 12, n)
			require.Equal(t, "Hello World!", string(buf))

			// Physical layout: header room plus exactly one block
			st, err := f.Stat()
			require.NoError(t, err)
			require.EqualValues(t, HeaderLen+codec.BlockSize, st.Size())
		})
	}
}

// Write n bytes at off into a fresh file and read them back, for aligned and
// unaligned offsets and lengths up to several blocks.
func TestPartialWriteMatrix(t *testing.T) {
	for _, be := range allEncs(t) {
		capa := int(be.Capacity())
		offsets := []int{0, 1, capa - 1, capa, capa + 7, 3*capa - 5}
		lengths := []int{1, 10, capa - 1, capa, capa + 1, 3*capa + 17}
		for _, off := range offsets {
			for _, n := range lengths {
				name := fmt.Sprintf("%s/off=%d/n=%d", be.Codec().Name(), off, n)
				t.Run(name, func(t *testing.T) {
					f := tempFile(t)
					data := randBytes(t, n)
					w, err := be.WriteAt(f, data, int64(off))
					require.NoError(t, err)
					require.Equal(t, n, w)

					got := make([]byte, n)
					r, err := be.ReadAt(f, got, int64(off))
					require.NoError(t, err)
					require.Equal(t, n, r)
					require.Equal(t, data, got)

					// Everything before "off" reads as zeros
					all := make([]byte, off+n)
					r, err = be.ReadAt(f, all, 0)
					require.NoError(t, err)
					require.Equal(t, off+n, r)
					require.Equal(t, make([]byte, off), all[:off])
					require.Equal(t, data, all[off:])
				})
			}
		}
	}
}

// Overwriting the middle of existing data keeps what is around it.
func TestOverwrite(t *testing.T) {
	for _, be := range allEncs(t) {
		f := tempFile(t)
		capa := int(be.Capacity())
		orig := randBytes(t, 4*capa)
		_, err := be.WriteAt(f, orig, 0)
		require.NoError(t, err)

		patch := randBytes(t, capa+20)
		off := capa - 10
		_, err = be.WriteAt(f, patch, int64(off))
		require.NoError(t, err)
		want := append([]byte(nil), orig...)
		copy(want[off:], patch)

		got := make([]byte, len(orig))
		n, err := be.ReadAt(f, got, 0)
		require.NoError(t, err)
		require.Equal(t, len(orig), n)
		require.Equal(t, want, got)
	}
}

// Reading past the written data stops at the valid length of the last block.
func TestReadTail(t *testing.T) {
	for _, be := range allEncs(t) {
		f := tempFile(t)
		_, err := be.WriteAt(f, []byte("0123456789"), 0)
		require.NoError(t, err)
		buf := make([]byte, 100)
		n, err := be.ReadAt(f, buf, 0)
		require.NoError(t, err)
		require.Equal(t, 10, n)
		n, err = be.ReadAt(f, buf, 5)
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.Equal(t, "56789", string(buf[:n]))
		// Past the last block
		n, err = be.ReadAt(f, buf, int64(be.Capacity()*5))
		require.NoError(t, err)
		require.Equal(t, 0, n)
	}
}

// The unwritten tail of a block reads as zeros once a later block exists.
func TestSparseGap(t *testing.T) {
	be := newEnc(t, codec.KindAES)
	capa := int(be.Capacity())
	f := tempFile(t)
	_, err := be.WriteAt(f, []byte("head"), 0)
	require.NoError(t, err)
	_, err = be.WriteAt(f, []byte("tail"), int64(3*capa+1))
	require.NoError(t, err)

	buf := make([]byte, 3*capa+5)
	n, err := be.ReadAt(f, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	want := make([]byte, len(buf))
	copy(want, "head")
	copy(want[3*capa+1:], "tail")
	require.Equal(t, want, buf)
}

// Reads that start and end inside the gap still see zeros, not EOF.
func TestSparseGapSubRange(t *testing.T) {
	for _, kind := range []codec.Kind{codec.KindPlain, codec.KindXOR, codec.KindAES} {
		be := newEnc(t, kind)
		capa := int(be.Capacity())
		f := tempFile(t)
		_, err := be.WriteAt(f, []byte("A"), 0)
		require.NoError(t, err)
		_, err = be.WriteAt(f, []byte("B"), int64(capa+96))
		require.NoError(t, err)

		buf := make([]byte, 5)
		n, err := be.ReadAt(f, buf, 10)
		require.NoError(t, err, kind)
		require.Equal(t, 5, n, kind)
		require.Equal(t, make([]byte, 5), buf)

		// Up to the end of the first block
		buf = make([]byte, capa-1)
		n, err = be.ReadAt(f, buf, 1)
		require.NoError(t, err)
		require.Equal(t, capa-1, n, kind)

		// Across the gap into the second block
		buf = make([]byte, capa)
		n, err = be.ReadAt(f, buf, 100)
		require.NoError(t, err)
		require.Equal(t, capa-3, n, kind)
		require.Equal(t, byte('B'), buf[n-1])

		// The gap of the last block stays EOF
		n, err = be.ReadAt(f, buf[:10], int64(capa+97))
		require.NoError(t, err)
		require.Equal(t, 0, n, kind)
	}
}

func flipBit(t *testing.T, f *os.File, off int64, bit uint) {
	t.Helper()
	b := make([]byte, 1)
	_, err := f.ReadAt(b, off)
	require.NoError(t, err)
	b[0] ^= 1 << bit
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}

// Flipping any bit of the valid body is detected by the crc.
func TestCRCDetection(t *testing.T) {
	be := newEnc(t, codec.KindPlain)
	f := tempFile(t)
	data := randBytes(t, 100)
	_, err := be.WriteAt(f, data, 0)
	require.NoError(t, err)
	buf := make([]byte, 100)

	for _, pos := range []int64{0, 1, 50, 99} {
		for _, bit := range []uint{0, 3, 7} {
			physOff := HeaderLen + BlockHeaderLen + pos
			flipBit(t, f, physOff, bit)
			n, err := be.ReadAt(f, buf, 0)
			require.ErrorIs(t, err, ErrBadCRC, "pos=%d bit=%d", pos, bit)
			require.ErrorIs(t, err, ErrCorrupt)
			require.Equal(t, 0, n)
			flipBit(t, f, physOff, bit)
		}
	}
	// Magic
	flipBit(t, f, HeaderLen, 0)
	_, err = be.ReadAt(f, buf, 0)
	require.ErrorIs(t, err, ErrBadMagic)
	flipBit(t, f, HeaderLen, 0)

	n, err := be.ReadAt(f, buf, 0)
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])
}

// With encrypting codecs a flipped bit never comes back as plaintext.
func TestCorruptionEncrypted(t *testing.T) {
	for _, kind := range []codec.Kind{codec.KindXOR, codec.KindAES} {
		be := newEnc(t, kind)
		f := tempFile(t)
		_, err := be.WriteAt(f, randBytes(t, 300), 0)
		require.NoError(t, err)
		for _, pos := range []int64{0, 10, 200, 300} {
			physOff := HeaderLen + pos
			flipBit(t, f, physOff, 2)
			_, err := be.ReadAt(f, make([]byte, 300), 0)
			require.Error(t, err, "%s pos=%d", kind, pos)
			require.True(t, errors.Is(err, ErrCorrupt) || errors.Is(err, ErrDecode), "%v", err)
			flipBit(t, f, physOff, 2)
		}
	}
}

// A bad block after the first one ends the read early without an error.
func TestLaterBlockCorrupt(t *testing.T) {
	be := newEnc(t, codec.KindPlain)
	capa := int(be.Capacity())
	f := tempFile(t)
	data := randBytes(t, 3*capa)
	_, err := be.WriteAt(f, data, 0)
	require.NoError(t, err)
	flipBit(t, f, HeaderLen+codec.BlockSize+BlockHeaderLen+5, 1)

	buf := make([]byte, len(data))
	n, err := be.ReadAt(f, buf, 0)
	require.NoError(t, err)
	require.Equal(t, capa, n)
	require.Equal(t, data[:capa], buf[:n])
}

func TestShortBlock(t *testing.T) {
	be := newEnc(t, codec.KindAES)
	f := tempFile(t)
	_, err := be.WriteAt(f, []byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(HeaderLen+100))
	_, err = be.ReadAt(f, make([]byte, 5), 0)
	require.ErrorIs(t, err, ErrShortBlock)
	require.NotErrorIs(t, err, ErrCorrupt)
}

// failingFile lets "budget" block writes through and then fails.
type failingFile struct {
	*os.File
	budget int
}

var errInjected = errors.New("injected write failure")

func (f *failingFile) WriteAt(b []byte, off int64) (int, error) {
	if f.budget == 0 {
		return 0, errInjected
	}
	f.budget--
	return f.File.WriteAt(b, off)
}

// A failed store returns the count of bytes that are on disk.
func TestWriteFailureCount(t *testing.T) {
	be := newEnc(t, codec.KindAES)
	capa := int(be.Capacity())
	f := &failingFile{File: tempFile(t), budget: 2}
	data := randBytes(t, 5*capa)
	n, err := be.WriteAt(f, data, 10)
	require.ErrorIs(t, err, errInjected)
	// First block carries capa-10 bytes, the second a full block
	require.Equal(t, 2*capa-10, n)

	got := make([]byte, n)
	r, err := be.ReadAt(f, got, 10)
	require.NoError(t, err)
	require.Equal(t, n, r)
	require.Equal(t, data[:n], got)
}

func TestTruncate(t *testing.T) {
	for _, be := range allEncs(t) {
		t.Run(be.Codec().Name(), func(t *testing.T) {
			capa := be.Capacity()
			f := tempFile(t)
			size := 3*capa + 50
			data := randBytes(t, int(size))
			_, err := be.WriteAt(f, data, 0)
			require.NoError(t, err)

			// Shrink into the middle of block 1
			newSize := capa + 7
			require.NoError(t, be.Truncate(f, size, newSize))
			st, err := f.Stat()
			require.NoError(t, err)
			require.EqualValues(t, be.PlainSizeToCipherSize(newSize), st.Size())
			buf := make([]byte, size)
			n, err := be.ReadAt(f, buf, 0)
			require.NoError(t, err)
			require.EqualValues(t, newSize, n)
			require.Equal(t, data[:newSize], buf[:n])
			require.NoError(t, be.Verify(f, newSize))

			// Grow again: the cut-off region must come back as zeros
			grown := 4 * capa
			require.NoError(t, be.Truncate(f, newSize, grown))
			buf = make([]byte, grown)
			n, err = be.ReadAt(f, buf, 0)
			require.NoError(t, err)
			require.EqualValues(t, grown, n)
			require.Equal(t, data[:newSize], buf[:newSize])
			require.Equal(t, make([]byte, grown-newSize), buf[newSize:])
			require.NoError(t, be.Verify(f, grown))

			// Grow within the last block
			require.NoError(t, be.Truncate(f, grown, grown))
			require.NoError(t, be.Truncate(f, grown, 0))
			st, err = f.Stat()
			require.NoError(t, err)
			require.EqualValues(t, HeaderLen, st.Size())
			_, err = be.WriteAt(f, []byte("abc"), 0)
			require.NoError(t, err)
			require.NoError(t, be.Truncate(f, 3, 20))
			buf = make([]byte, 20)
			n, err = be.ReadAt(f, buf, 0)
			require.NoError(t, err)
			require.Equal(t, 20, n)
			require.Equal(t, append([]byte("abc"), make([]byte, 17)...), buf)
		})
	}
}

func TestVerify(t *testing.T) {
	be := newEnc(t, codec.KindPlain)
	capa := be.Capacity()
	f := tempFile(t)
	_, err := be.WriteAt(f, randBytes(t, int(2*capa)), 0)
	require.NoError(t, err)
	require.NoError(t, be.Verify(f, 2*capa))

	err = be.Verify(f, 3*capa)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	flipBit(t, f, HeaderLen+BlockHeaderLen+1, 0)
	flipBit(t, f, HeaderLen+codec.BlockSize+BlockHeaderLen+1, 0)
	err = be.Verify(f, 2*capa)
	require.ErrorIs(t, err, ErrBadCRC)
	// Both blocks are reported
	require.Equal(t, 2, bytes.Count([]byte(err.Error()), []byte("crc mismatch")))
}

func TestFileHeader(t *testing.T) {
	h := NewFileHeader()
	h.Length = 1234567
	buf := h.Pack()
	require.Len(t, buf, HeaderLen)
	require.Equal(t, []byte{0xbf, 0x75, 0xcc, 0x71}, buf[:4])
	h2, err := ParseHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, h2)

	buf[0] ^= 1
	_, err = ParseHeader(buf)
	require.ErrorIs(t, err, ErrBadHeader)
	_, err = ParseHeader(buf[:10])
	require.Error(t, err)

	f := tempFile(t)
	_, err = ReadHeader(f)
	require.ErrorIs(t, err, io.EOF)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	_, err = ReadHeader(f)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.NoError(t, h.Persist(f))
	h3, err := ReadHeader(f)
	require.NoError(t, err)
	require.Equal(t, h, h3)
}

func TestInspectBlock(t *testing.T) {
	be := newEnc(t, codec.KindXOR)
	f := tempFile(t)
	capacity := int(be.Capacity())
	// Block 0 full, block 1 a hole, block 2 with 10 bytes
	_, err := be.WriteAt(f, randBytes(t, capacity), 0)
	require.NoError(t, err)
	_, err = be.WriteAt(f, randBytes(t, 10), int64(2*capacity))
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, codec.BlockSize), int64(be.BlockNoToCipherOff(1)))
	require.NoError(t, err)

	info, err := be.InspectBlock(f, 0)
	require.NoError(t, err)
	require.NoError(t, info.Err)
	require.False(t, info.Hole)
	require.Equal(t, capacity, info.Length)
	require.EqualValues(t, HeaderLen, info.Offset)

	info, err = be.InspectBlock(f, 1)
	require.NoError(t, err)
	require.True(t, info.Hole)

	info, err = be.InspectBlock(f, 2)
	require.NoError(t, err)
	require.Equal(t, 10, info.Length)

	_, err = be.InspectBlock(f, 3)
	require.Equal(t, io.EOF, err)

	flipBit(t, f, int64(be.BlockNoToCipherOff(2))+BlockHeaderLen+2, 1)
	info, err = be.InspectBlock(f, 2)
	require.NoError(t, err)
	require.ErrorIs(t, info.Err, ErrCorrupt)
}

// A physical block overwritten with zeros is indistinguishable from a hole
// and is not reported as damage.
func TestZeroedBlockIsHole(t *testing.T) {
	be := newEnc(t, codec.KindAES)
	capa := int(be.Capacity())
	f := tempFile(t)
	data := bytes.Repeat([]byte{0x55}, 3*capa)
	_, err := be.WriteAt(f, data, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, codec.BlockSize), int64(be.BlockNoToCipherOff(1)))
	require.NoError(t, err)

	buf := make([]byte, len(data))
	n, err := be.ReadAt(f, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data[:capa], buf[:capa])
	require.Equal(t, make([]byte, capa), buf[capa:2*capa])
	require.NoError(t, be.Verify(f, uint64(len(data))))
}
