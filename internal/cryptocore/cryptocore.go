// Package cryptocore holds the AES-256-CBC cipher context shared by content
// and name encryption, and the key derivation functions that feed it.
package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"sync"
)

const (
	// KeyLen is the cipher key length in bytes. 32 for AES-256.
	KeyLen = 32
	// IVLen is the CBC IV length in bytes.
	IVLen = aes.BlockSize
)

// ErrCipher is returned when the cipher primitive rejects its input, for
// example a ciphertext that is not block aligned or carries invalid padding.
var ErrCipher = errors.New("cipher failure")

// ivSetter is implemented by the CBC modes of crypto/cipher. It lets us
// rewind a mode to the original IV without allocating a new one.
type ivSetter interface {
	SetIV([]byte)
}

// CipherContext is one AES-256-CBC key schedule plus a reusable encrypter
// and decrypter. Every Encrypt or Decrypt call starts from the original IV,
// so each message is encrypted independently.
//
// The CBC modes are stateful, so all calls are serialized by one mutex.
type CipherContext struct {
	lock  sync.Mutex
	key   []byte
	iv    []byte
	block cipher.Block
	enc   cipher.BlockMode
	dec   cipher.BlockMode
}

// New returns a new CipherContext or panics.
//
// "key" must be KeyLen bytes. Only the first IVLen bytes of "iv" are used,
// which allows passing the 32-byte IV produced by LegacyKDF directly.
func New(key []byte, iv []byte) *CipherContext {
	if len(key) != KeyLen {
		panic(fmt.Sprintf("Unsupported key length %d", len(key)))
	}
	if len(iv) < IVLen {
		panic(fmt.Sprintf("IV too short: %d", len(iv)))
	}
	c := &CipherContext{
		key: append([]byte(nil), key...),
		iv:  append([]byte(nil), iv[:IVLen]...),
	}
	var err error
	c.block, err = aes.NewCipher(c.key)
	if err != nil {
		panic(err)
	}
	c.enc = cipher.NewCBCEncrypter(c.block, c.iv)
	c.dec = cipher.NewCBCDecrypter(c.block, c.iv)
	return c
}

// MaxLength returns the ciphertext size for "n" bytes of plaintext.
// PKCS#7 always adds at least one byte, so this is at most n+16.
func (c *CipherContext) MaxLength(n int) int {
	return (n/aes.BlockSize + 1) * aes.BlockSize
}

// resetLocked rewinds both modes to the original IV.
// Caller must hold c.lock.
func (c *CipherContext) resetLocked() {
	if s, ok := c.enc.(ivSetter); ok {
		s.SetIV(c.iv)
	} else {
		c.enc = cipher.NewCBCEncrypter(c.block, c.iv)
	}
	if s, ok := c.dec.(ivSetter); ok {
		s.SetIV(c.iv)
	} else {
		c.dec = cipher.NewCBCDecrypter(c.block, c.iv)
	}
}

// Encrypt pads "src" with PKCS#7, encrypts it and appends the ciphertext
// to "dst".
func (c *CipherContext) Encrypt(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return dst, fmt.Errorf("%w: empty plaintext", ErrCipher)
	}
	padded := Pad16(src)
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.block == nil {
		return dst, fmt.Errorf("%w: context wiped", ErrCipher)
	}
	c.resetLocked()
	c.enc.CryptBlocks(padded, padded)
	return append(dst, padded...), nil
}

// Decrypt decrypts "src", strips the PKCS#7 padding and appends the
// plaintext to "dst".
func (c *CipherContext) Decrypt(dst, src []byte) ([]byte, error) {
	if len(src) == 0 || len(src)%aes.BlockSize != 0 {
		return dst, fmt.Errorf("%w: ciphertext length %d is not block aligned", ErrCipher, len(src))
	}
	buf := make([]byte, len(src))
	c.lock.Lock()
	if c.block == nil {
		c.lock.Unlock()
		return dst, fmt.Errorf("%w: context wiped", ErrCipher)
	}
	c.resetLocked()
	c.dec.CryptBlocks(buf, src)
	c.lock.Unlock()
	plain, err := UnPad16(buf)
	if err != nil {
		return dst, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	return append(dst, plain...), nil
}

// Wipe tries to wipe secret keys from memory by overwriting them with zeros
// and dropping the key schedule. The context is unusable afterwards.
//
// This is not bulletproof due to possible GC copies, but
// still raises the bar for extracting the key.
func (c *CipherContext) Wipe() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
	for i := range c.iv {
		c.iv[i] = 0
	}
	c.block = nil
	c.enc = nil
	c.dec = nil
}
