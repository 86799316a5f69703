// Package codec implements the per-block transforms a store can use: plain,
// XOR and AES. All of them work on exactly one 512-byte physical block, so
// the block engine in contentenc never has to know which one is active.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matteobertozzi/aesfs/internal/cryptocore"
)

// BlockSize is the size of a physical block, header included.
const BlockSize = 512

// ErrSize is returned when a buffer or a decrypted block does not have the
// expected size. It is distinct from cryptocore.ErrCipher.
var ErrSize = errors.New("codec: size mismatch")

// Codec transforms one physical block. "dst" and "src" are both BlockSize
// bytes long.
type Codec interface {
	// Encode transforms a plain block into its on-disk form.
	Encode(dst, src []byte) error
	// Decode reverses Encode.
	Decode(dst, src []byte) error
	// MaxLength returns the encoded size of "n" plain bytes.
	MaxLength(n int) int
	// Overhead is the number of block bytes the codec reserves for itself.
	Overhead() int
	// Name is the codec name as accepted by ParseKind.
	Name() string
}

// Kind selects one of the built-in codecs.
type Kind int

const (
	// KindAES is AES-256-CBC. This is the default.
	KindAES Kind = iota
	// KindXOR is a whole-block XOR with a 64-bit key.
	KindXOR
	// KindPlain stores blocks unchanged.
	KindPlain
)

var kindNames = map[Kind]string{
	KindAES:   "aes",
	KindXOR:   "xor",
	KindPlain: "plain",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts "aes", "xor" or "plain" into a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown codec %q", s)
}

// Secret is the key material a codec is built from. KindAES needs Cipher,
// KindXOR needs Passphrase, KindPlain needs nothing.
type Secret struct {
	Cipher     *cryptocore.CipherContext
	Passphrase []byte
}

// New returns the codec for "kind".
func New(kind Kind, s Secret) (Codec, error) {
	switch kind {
	case KindAES:
		if s.Cipher == nil {
			return nil, errors.New("aes codec needs a cipher context")
		}
		return NewAES(s.Cipher), nil
	case KindXOR:
		return NewXOR(XORKeyFromPassphrase(s.Passphrase)), nil
	case KindPlain:
		return Plain{}, nil
	}
	return nil, fmt.Errorf("unknown codec kind %d", int(kind))
}

func checkSizes(dst, src []byte) error {
	if len(dst) != BlockSize || len(src) != BlockSize {
		return fmt.Errorf("%w: dst=%d src=%d, want %d", ErrSize, len(dst), len(src), BlockSize)
	}
	return nil
}
