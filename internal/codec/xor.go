package codec

import (
	"encoding/binary"
)

// DefaultXORKey is used when no passphrase is given. Shorter passphrases
// overwrite its leading bytes.
const DefaultXORKey uint64 = 0x215730a664adb230

// XOR xors each little-endian 64-bit word of a block with a fixed key.
// Decode is the same operation as Encode.
type XOR struct {
	key uint64
}

var _ Codec = XOR{}

// NewXOR returns a XOR codec with "key".
func NewXOR(key uint64) XOR {
	return XOR{key: key}
}

// XORKeyFromPassphrase returns the first 8 bytes of "p" as a little-endian
// key. A shorter passphrase is copied over the low bytes of DefaultXORKey.
func XORKeyFromPassphrase(p []byte) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], DefaultXORKey)
	copy(buf[:], p)
	return binary.LittleEndian.Uint64(buf[:])
}

func (x XOR) apply(dst, src []byte) error {
	if err := checkSizes(dst, src); err != nil {
		return err
	}
	for i := 0; i < BlockSize; i += 8 {
		w := binary.LittleEndian.Uint64(src[i:])
		binary.LittleEndian.PutUint64(dst[i:], w^x.key)
	}
	return nil
}

func (x XOR) Encode(dst, src []byte) error {
	return x.apply(dst, src)
}

func (x XOR) Decode(dst, src []byte) error {
	return x.apply(dst, src)
}

func (XOR) MaxLength(n int) int {
	return n
}

func (XOR) Overhead() int {
	return 0
}

func (XOR) Name() string {
	return KindXOR.String()
}
