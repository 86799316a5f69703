package codec

import (
	"crypto/aes"
	"fmt"

	"github.com/matteobertozzi/aesfs/internal/cryptocore"
)

// AESOverhead is the block space reserved for the PKCS#7 padding block.
const AESOverhead = aes.BlockSize

// aesPlainSize is the part of a block that gets encrypted. Its padded
// ciphertext is exactly BlockSize bytes.
const aesPlainSize = BlockSize - AESOverhead

// AES encrypts the first 496 bytes of a block (header and 488 body bytes)
// into a full 512-byte physical block.
type AES struct {
	c *cryptocore.CipherContext
}

var _ Codec = &AES{}

// NewAES returns an AES codec on top of the shared cipher context.
func NewAES(c *cryptocore.CipherContext) *AES {
	return &AES{c: c}
}

func (a *AES) Encode(dst, src []byte) error {
	if err := checkSizes(dst, src); err != nil {
		return err
	}
	ct, err := a.c.Encrypt(dst[:0], src[:aesPlainSize])
	if err != nil {
		return err
	}
	if len(ct) != BlockSize {
		return fmt.Errorf("%w: ciphertext is %d bytes", ErrSize, len(ct))
	}
	copy(dst, ct)
	return nil
}

func (a *AES) Decode(dst, src []byte) error {
	if err := checkSizes(dst, src); err != nil {
		return err
	}
	pt, err := a.c.Decrypt(dst[:0], src)
	if err != nil {
		return err
	}
	if len(pt) != aesPlainSize {
		return fmt.Errorf("%w: plaintext is %d bytes, want %d", ErrSize, len(pt), aesPlainSize)
	}
	copy(dst, pt)
	for i := aesPlainSize; i < BlockSize; i++ {
		dst[i] = 0
	}
	return nil
}

func (a *AES) MaxLength(n int) int {
	return a.c.MaxLength(n)
}

func (a *AES) Overhead() int {
	return AESOverhead
}

func (a *AES) Name() string {
	return KindAES.String()
}
