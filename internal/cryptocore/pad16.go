package cryptocore

import (
	"crypto/aes"
	"errors"
	"fmt"
	"log"
)

// Pad16 pads data to the AES block size (=16 byte) using standard PKCS#7
// padding and returns a new slice.
// https://tools.ietf.org/html/rfc5652#section-6.3
func Pad16(orig []byte) (padded []byte) {
	oldLen := len(orig)
	if oldLen == 0 {
		log.Panic("Padding zero-length string makes no sense")
	}
	padLen := aes.BlockSize - oldLen%aes.BlockSize
	newLen := oldLen + padLen
	padded = make([]byte, newLen)
	copy(padded, orig)
	for i := oldLen; i < newLen; i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// UnPad16 removes PKCS#7 padding. The result aliases "padded".
func UnPad16(padded []byte) ([]byte, error) {
	oldLen := len(padded)
	if oldLen == 0 {
		return nil, errors.New("Empty input")
	}
	if oldLen%aes.BlockSize != 0 {
		return nil, errors.New("Unaligned size")
	}
	// The padding byte's value is the padding length
	padByte := padded[oldLen-1]
	padLen := int(padByte)
	if padLen == 0 {
		return nil, errors.New("Padding cannot be zero-length")
	}
	if padLen > aes.BlockSize {
		return nil, fmt.Errorf("Padding too long, padLen=%d > 16", padLen)
	}
	// Empty plaintexts are never produced by Pad16
	if padLen >= oldLen {
		return nil, fmt.Errorf("Padding too long, oldLen=%d >= padLen=%d", oldLen, padLen)
	}
	for i := oldLen - padLen; i < oldLen; i++ {
		if padded[i] != padByte {
			return nil, fmt.Errorf("Padding byte at i=%d is invalid", i)
		}
	}
	return padded[:oldLen-padLen], nil
}
