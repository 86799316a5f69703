// Package speed implements the "-speed" command-line option,
// similar to "openssl speed".
// It benchmarks the block codecs and the legacy key derivation.
package speed

import (
	"crypto/rand"
	"fmt"
	"log"
	"testing"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
)

// Run - run the speed the test and print the results.
func Run() {
	fmt.Printf("cpu: %s\n", cpuModelName())
	bTable := []struct {
		name string
		f    func(*testing.B)
	}{
		{name: "aes-encode", f: func(b *testing.B) { bEncode(b, codec.KindAES) }},
		{name: "aes-decode", f: func(b *testing.B) { bDecode(b, codec.KindAES) }},
		{name: "xor-encode", f: func(b *testing.B) { bEncode(b, codec.KindXOR) }},
		{name: "xor-decode", f: func(b *testing.B) { bDecode(b, codec.KindXOR) }},
		{name: "plain-encode", f: func(b *testing.B) { bEncode(b, codec.KindPlain) }},
	}
	for _, b := range bTable {
		fmt.Printf("%-20s\t", b.name)
		mbs := mbPerSec(testing.Benchmark(b.f))
		if mbs > 0 {
			fmt.Printf("%7.2f MB/s\n", mbs)
		} else {
			fmt.Printf("    N/A\n")
		}
	}
	r := testing.Benchmark(bLegacyKDF)
	if r.N > 0 && r.T > 0 {
		fmt.Printf("%-20s\t%7.2f ms/op (%d rounds)\n", "legacy-kdf",
			float64(r.T.Milliseconds())/float64(r.N), cryptocore.DefaultRounds)
	}
}

func mbPerSec(r testing.BenchmarkResult) float64 {
	if r.Bytes <= 0 || r.T <= 0 || r.N <= 0 {
		return 0
	}
	return (float64(r.Bytes) * float64(r.N) / 1e6) / r.T.Seconds()
}

// Get "n" random bytes from /dev/urandom or panic
func randBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		log.Panic("Failed to read random bytes: " + err.Error())
	}
	return b
}

func newCodec(b *testing.B, kind codec.Kind) codec.Codec {
	c, err := codec.New(kind, codec.Secret{
		Cipher:     cryptocore.New(randBytes(cryptocore.KeyLen), randBytes(cryptocore.IVLen)),
		Passphrase: randBytes(8),
	})
	if err != nil {
		b.Fatal(err)
	}
	return c
}

// bEncode benchmarks encoding one full block with codec "kind"
func bEncode(b *testing.B, kind codec.Kind) {
	c := newCodec(b, kind)
	in := make([]byte, codec.BlockSize)
	out := make([]byte, codec.BlockSize)
	b.SetBytes(int64(len(in)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Encode(out, in); err != nil {
			b.Fatal(err)
		}
	}
}

// bDecode benchmarks decoding one full block with codec "kind"
func bDecode(b *testing.B, kind codec.Kind) {
	c := newCodec(b, kind)
	in := make([]byte, codec.BlockSize)
	enc := make([]byte, codec.BlockSize)
	if err := c.Encode(enc, in); err != nil {
		b.Fatal(err)
	}
	out := make([]byte, codec.BlockSize)
	b.SetBytes(int64(len(in)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Decode(out, enc); err != nil {
			b.Fatal(err)
		}
	}
}

// bLegacyKDF benchmarks one key derivation with the default round count
func bLegacyKDF(b *testing.B) {
	pass := randBytes(16)
	salt := randBytes(16)
	for i := 0; i < b.N; i++ {
		cryptocore.LegacyKDF(pass, salt, cryptocore.DefaultRounds)
	}
}
