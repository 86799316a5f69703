package cryptocore

import (
	"crypto/sha256"
	"log"

	"golang.org/x/crypto/hkdf"
)

const (
	// HKDFInfoKeyIV is the HKDF info string used to derive the content and
	// name key+IV from the scrypt output.
	HKDFInfoKeyIV = "aesfs AES-CBC key and IV"
)

// hkdfDerive derives "outLen" bytes from "secret" and "info" using
// HKDF-SHA256.
// It returns the derived bytes or panics.
func hkdfDerive(secret []byte, info string, outLen int) (out []byte) {
	h := hkdf.New(sha256.New, secret, nil, []byte(info))
	out = make([]byte, outLen)
	n, err := h.Read(out)
	if n != outLen || err != nil {
		log.Panicf("hkdfDerive: hkdf read failed, got %d bytes, error: %v", n, err)
	}
	return out
}

// HKDFKeyIV derives key and IV jointly (64 bytes) from "secret".
func HKDFKeyIV(secret []byte, info string) (key []byte, iv []byte) {
	out := hkdfDerive(secret, info, 2*KeyLen)
	return out[:KeyLen], out[KeyLen:]
}
