// Package nametransform encrypts and decrypts filenames.
//
// Every path segment is encrypted on its own with the shared CBC context and
// stored as lowercase hex. Names whose shape cannot be a hex ciphertext are
// passed through unchanged when decoding.
package nametransform

import (
	"crypto/aes"
	"encoding/hex"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// NameTransform is used to transform filenames.
type NameTransform struct {
	cipher         *cryptocore.CipherContext
	plaintextNames bool
}

// New returns a new NameTransform instance. With "plaintextNames" set, names
// are stored as they are and "c" may be nil.
func New(c *cryptocore.CipherContext, plaintextNames bool) *NameTransform {
	return &NameTransform{
		cipher:         c,
		plaintextNames: plaintextNames,
	}
}

// PlaintextNames returns true if names are not encrypted.
func (n *NameTransform) PlaintextNames() bool {
	return n.plaintextNames
}

// EncryptName encrypts "plainName" and returns the hex-encoded ciphertext.
//
// Returns ENAMETOOLONG if the result would not fit into NameMax bytes, which
// happens above MaxPlainNameLen plaintext bytes.
func (n *NameTransform) EncryptName(plainName string) (string, error) {
	if err := IsValidName(plainName); err != nil {
		tlog.Debug.Printf("EncryptName %q: %v", plainName, err)
		return "", syscall.EINVAL
	}
	if n.plaintextNames {
		return plainName, nil
	}
	if len(plainName) > MaxPlainNameLen {
		return "", syscall.ENAMETOOLONG
	}
	bin, err := n.cipher.Encrypt(nil, []byte(plainName))
	if err != nil {
		tlog.Warn.Printf("EncryptName: %v", err)
		return "", syscall.EIO
	}
	return hex.EncodeToString(bin), nil
}

// isCipherShaped reports whether "name" can be a hex-encoded ciphertext:
// an even number of characters encoding a whole number of AES blocks.
func isCipherShaped(name string) bool {
	if len(name) == 0 || len(name)%2 != 0 {
		return false
	}
	return (len(name)/2)%aes.BlockSize == 0
}

// DecryptName decrypts a hex-encoded "cipherName".
//
// Names that are not cipher-shaped are returned unchanged. This is how the
// config file and other unencrypted entries survive. A literal name that is
// valid hex of the right length is misread as ciphertext, which is a known
// limitation of the format.
//
// Malformed hex, a cipher failure or a decrypted name that the kernel must
// never see all return EBADMSG.
func (n *NameTransform) DecryptName(cipherName string) (string, error) {
	if n.plaintextNames || !isCipherShaped(cipherName) {
		return cipherName, nil
	}
	bin, err := hex.DecodeString(cipherName)
	if err != nil {
		tlog.Debug.Printf("DecryptName %q: %v", cipherName, err)
		return "", syscall.EBADMSG
	}
	plain, err := n.cipher.Decrypt(nil, bin)
	if err != nil {
		// The detailed padding error stays in the debug log. Everything is
		// lumped into EBADMSG for the caller.
		tlog.Debug.Printf("DecryptName %q: %v", cipherName, err)
		return "", syscall.EBADMSG
	}
	name := string(plain)
	if err := IsValidName(name); err != nil {
		tlog.Debug.Printf("DecryptName %q: decrypted name invalid: %v", cipherName, err)
		return "", syscall.EBADMSG
	}
	return name, nil
}

// EncryptPath encrypts every segment of the relative virtual path
// "plainPath". Empty segments are dropped, so "/a//b/" and "a/b" give the
// same result. The root ("" or "/") maps to "".
func (n *NameTransform) EncryptPath(plainPath string) (string, error) {
	var parts []string
	for _, seg := range strings.Split(plainPath, "/") {
		if seg == "" {
			continue
		}
		c, err := n.EncryptName(seg)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, "/"), nil
}

// EncodePath returns the backing path of "plainPath" below "root".
func (n *NameTransform) EncodePath(root string, plainPath string) (string, error) {
	cPath, err := n.EncryptPath(plainPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, cPath), nil
}

// DecryptPath reverses EncryptPath.
func (n *NameTransform) DecryptPath(cipherPath string) (string, error) {
	var parts []string
	for _, seg := range strings.Split(cipherPath, "/") {
		if seg == "" {
			continue
		}
		p, err := n.DecryptName(seg)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "/"), nil
}
