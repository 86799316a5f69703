package pack

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

func TestMain(m *testing.M) {
	tlog.Info.Enabled = false
	os.Exit(m.Run())
}

func newPacker(t *testing.T, kind codec.Kind) *Packer {
	key, iv := cryptocore.LegacyKDF([]byte("key"), []byte("salt"), cryptocore.DefaultRounds)
	c, err := codec.New(kind, codec.Secret{Cipher: cryptocore.New(key, iv), Passphrase: []byte("key")})
	require.NoError(t, err)
	return New(contentenc.New(c))
}

func testData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/300)
	}
	return b
}

func TestPairs(t *testing.T) {
	p, err := Pairs([]string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.Equal(t, []Pair{{"a", "b"}, {"c", "d"}}, p)

	p, err = Pairs(nil)
	require.NoError(t, err)
	require.Empty(t, p)

	_, err = Pairs([]string{"a", "b", "c"})
	require.ErrorIs(t, err, ErrOddArgs)
}

func TestPackUnpack(t *testing.T) {
	ctx := context.Background()
	for _, kind := range []codec.Kind{codec.KindAES, codec.KindXOR, codec.KindPlain} {
		p := newPacker(t, kind)
		capacity := int(p.contentEnc.Capacity())
		for _, size := range []int{0, 1, capacity - 1, capacity, capacity + 1, 10*capacity + 17, 100000} {
			dir := t.TempDir()
			plain := filepath.Join(dir, "plain")
			packed := filepath.Join(dir, "packed")
			back := filepath.Join(dir, "back")
			data := testData(size)
			require.NoError(t, os.WriteFile(plain, data, 0600))

			require.NoError(t, p.Pack(ctx, plain, packed))
			f, err := os.Open(packed)
			require.NoError(t, err)
			h, err := contentenc.ReadHeader(f)
			f.Close()
			require.NoError(t, err)
			require.EqualValues(t, size, h.Length, "%s size %d", kind, size)

			st, err := os.Stat(packed)
			require.NoError(t, err)
			blocks := (size + capacity - 1) / capacity
			require.EqualValues(t, contentenc.HeaderLen+blocks*codec.BlockSize, st.Size())

			require.NoError(t, p.Unpack(ctx, packed, back))
			have, err := os.ReadFile(back)
			require.NoError(t, err)
			require.True(t, bytes.Equal(data, have), "%s size %d: content mismatch", kind, size)
		}
	}
}

func TestPackedIsEncrypted(t *testing.T) {
	p := newPacker(t, codec.KindAES)
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	packed := filepath.Join(dir, "packed")
	data := bytes.Repeat([]byte("secret content "), 100)
	require.NoError(t, os.WriteFile(plain, data, 0600))
	require.NoError(t, p.Pack(context.Background(), plain, packed))
	raw, err := os.ReadFile(packed)
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("secret content")))
}

func TestUnpackCorrupt(t *testing.T) {
	ctx := context.Background()
	p := newPacker(t, codec.KindAES)
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	packed := filepath.Join(dir, "packed")
	require.NoError(t, os.WriteFile(plain, testData(2000), 0600))
	require.NoError(t, p.Pack(ctx, plain, packed))

	raw, err := os.ReadFile(packed)
	require.NoError(t, err)
	// Flip a byte in the encrypted body of the first block
	raw[contentenc.HeaderLen+contentenc.BlockHeaderLen+3] ^= 0xff
	require.NoError(t, os.WriteFile(packed, raw, 0600))
	require.ErrorIs(t, p.Unpack(ctx, packed, filepath.Join(dir, "back")), contentenc.ErrCorrupt)

	// Garbage header
	require.NoError(t, os.WriteFile(packed, make([]byte, 100), 0600))
	require.ErrorIs(t, p.Unpack(ctx, packed, filepath.Join(dir, "back")), contentenc.ErrBadHeader)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	p := newPacker(t, codec.KindXOR)
	dir := t.TempDir()
	var packPairs, unpackPairs []Pair
	for i, size := range []int{0, 10, 5000, 12345} {
		name := filepath.Join(dir, string(rune('a'+i)))
		require.NoError(t, os.WriteFile(name, testData(size), 0600))
		packPairs = append(packPairs, Pair{name, name + ".aes"})
		unpackPairs = append(unpackPairs, Pair{name + ".aes", name + ".out"})
	}
	require.NoError(t, p.Run(ctx, packPairs, false, 3))
	require.NoError(t, p.Run(ctx, unpackPairs, true, 0))
	for _, pair := range packPairs {
		want, err := os.ReadFile(pair.Src)
		require.NoError(t, err)
		have, err := os.ReadFile(pair.Src + ".out")
		require.NoError(t, err)
		require.Equal(t, want, have)
	}

	// A missing source fails its pair only
	pairs := []Pair{{filepath.Join(dir, "missing"), filepath.Join(dir, "x")}, packPairs[1]}
	err := p.Run(ctx, pairs, false, 2)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(packPairs[1].Dst)
	require.NoError(t, err)
}
